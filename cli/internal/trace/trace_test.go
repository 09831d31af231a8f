package trace

import (
	"bytes"
	"strings"
	"testing"
)

func TestEnabled(t *testing.T) {
	var buf bytes.Buffer
	if New(nil).Enabled() {
		t.Error("Enabled() with nil writer = true, want false")
	}
	if !New(&buf).Enabled() {
		t.Error("Enabled() with non-nil writer = false, want true")
	}
	var nilTracer *Tracer
	if nilTracer.Enabled() {
		t.Error("nil *Tracer Enabled() = true, want false")
	}
}

func TestNilWriter_noPanic(t *testing.T) {
	tr := New(nil)
	tr.Section("Discovery")
	tr.Printf("files=%d\n", 3)
	tr.List([]string{"a"}, 0)
}

func TestSection_writesHeader(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Section("Discovery")
	want := "\n[sift:trace] === Discovery ===\n"
	if got := buf.String(); got != want {
		t.Errorf("Section wrote %q, want %q", got, want)
	}
}

func TestPrintf_writesFormatted(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Printf("next=%s file=%s\n", "analyze_file", "a.al")
	if got := buf.String(); got != "next=analyze_file file=a.al\n" {
		t.Errorf("Printf wrote %q", got)
	}
}

func TestList_capsOutput(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).List([]string{"a.al", "b.al", "c.al"}, 2)
	got := buf.String()
	if !strings.Contains(got, "a.al") || !strings.Contains(got, "b.al") {
		t.Errorf("List output missing items: %q", got)
	}
	if strings.Contains(got, "c.al") {
		t.Errorf("List output should be capped: %q", got)
	}
	if !strings.Contains(got, "... and 1 more") {
		t.Errorf("List output missing remainder line: %q", got)
	}
}
