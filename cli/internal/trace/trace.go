// Package trace writes internal engine steps (discovery order, scan totals,
// next-action decisions) to stderr when --trace is set. No-op when the writer
// is nil, so callers never need to check before tracing.
package trace

import (
	"fmt"
	"io"
)

// Tracer writes sectioned trace output. When the underlying writer is nil, all methods no-op.
type Tracer struct {
	w io.Writer
}

// New returns a Tracer that writes to w. If w is nil, all methods no-op.
func New(w io.Writer) *Tracer {
	return &Tracer{w: w}
}

// Enabled returns true if the tracer has a non-nil writer.
func (t *Tracer) Enabled() bool {
	return t != nil && t.w != nil
}

// Section writes a section header: "\n[sift:trace] === name ===\n"
func (t *Tracer) Section(name string) {
	if !t.Enabled() {
		return
	}
	fmt.Fprintf(t.w, "\n[sift:trace] === %s ===\n", name)
}

// Printf writes to the trace writer when enabled.
func (t *Tracer) Printf(format string, args ...any) {
	if !t.Enabled() {
		return
	}
	fmt.Fprintf(t.w, format, args...)
}

// List writes one indented, numbered line per item, capped at max lines
// (max <= 0 means no cap). A trailing "... and N more" line reports the rest.
func (t *Tracer) List(items []string, max int) {
	if !t.Enabled() {
		return
	}
	n := len(items)
	if max > 0 && n > max {
		n = max
	}
	for i := 0; i < n; i++ {
		fmt.Fprintf(t.w, "  %3d  %s\n", i, items[i])
	}
	if n < len(items) {
		fmt.Fprintf(t.w, "  ... and %d more\n", len(items)-n)
	}
}
