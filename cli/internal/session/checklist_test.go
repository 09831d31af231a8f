package session

import (
	"strings"
	"testing"

	"sift/cli/internal/definition"
)

// items builds a checklist from "id:type:status" triples.
func items(triples ...string) []ChecklistItem {
	out := make([]ChecklistItem, 0, len(triples))
	for _, tr := range triples {
		parts := strings.SplitN(tr, ":", 3)
		out = append(out, ChecklistItem{ID: parts[0], Type: parts[1], Status: ItemStatus(parts[2])})
	}
	return out
}

func ids(list []ChecklistItem) []string {
	out := make([]string, len(list))
	for i, it := range list {
		out[i] = it.ID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestInsertBeforeValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		start []ChecklistItem
		add   []string
		want  []string
	}{
		{
			name:  "before validation",
			start: items("a:analysis:completed", "v:validation:pending"),
			add:   []string{"t1", "t2"},
			want:  []string{"a", "t1", "t2", "v"},
		},
		{
			name:  "no validation appends",
			start: items("a:analysis:completed", "c:custom:pending"),
			add:   []string{"t1"},
			want:  []string{"a", "c", "t1"},
		},
		{
			name:  "after earlier expansion",
			start: items("a:analysis:completed", "t0:topic_application:pending", "v:validation:pending"),
			add:   []string{"t1"},
			want:  []string{"a", "t0", "t1", "v"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := FileEntry{Checklist: tt.start}
			var add []ChecklistItem
			for _, id := range tt.add {
				add = append(add, ChecklistItem{ID: id, Type: definition.ItemTopicApplication, Status: ItemPending})
			}
			f.InsertBeforeValidation(add...)
			if got := ids(f.Checklist); !equalStrings(got, tt.want) {
				t.Errorf("checklist = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFileEntry_queries(t *testing.T) {
	t.Parallel()
	f := FileEntry{Checklist: items("a:analysis:completed", "b:custom:in_progress", "c:custom:pending", "v:validation:pending")}
	if got := f.FirstPending(); got != 2 {
		t.Errorf("FirstPending = %d, want 2", got)
	}
	if got := f.FirstOpen(); got != 1 {
		t.Errorf("FirstOpen = %d, want 1", got)
	}
	if got := f.ItemIndex("v"); got != 3 {
		t.Errorf("ItemIndex(v) = %d, want 3", got)
	}
	if f.AllTerminal() {
		t.Error("AllTerminal = true with open items")
	}
	for i := range f.Checklist {
		f.Checklist[i].Status = ItemSkipped
	}
	f.Checklist[0].Status = ItemFailed
	if !f.AllTerminal() {
		t.Error("AllTerminal = false with only terminal items")
	}
	if f.HasOpenItems() {
		t.Error("HasOpenItems = true")
	}
}

func TestSession_recountAndDone(t *testing.T) {
	t.Parallel()
	s := &Session{FileInventory: []FileEntry{
		{Path: "a", Status: FileCompleted, Checklist: items("a:analysis:completed")},
		{Path: "b", Status: FileSkipped, Checklist: items("a:analysis:skipped")},
		{Path: "c", Status: FilePending, Checklist: []ChecklistItem{
			{ID: "p1", Type: definition.ItemPatternInstance, Status: ItemCompleted, PatternMatch: &PatternMatch{AutoFixed: true}},
			{ID: "p2", Type: definition.ItemPatternInstance, Status: ItemPending, PatternMatch: &PatternMatch{RequiresManualReview: true}},
		}},
	}}
	s.RecountFiles()
	if s.FilesCompleted != 1 || s.FilesTotal != 3 {
		t.Errorf("FilesCompleted/FilesTotal = %d/%d, want 1/3", s.FilesCompleted, s.FilesTotal)
	}
	s.RecountInstances()
	if s.InstancesTotal != 2 || s.InstancesCompleted != 1 || s.InstancesAutoFixed != 1 || s.InstancesManualReview != 1 {
		t.Errorf("instances = %d/%d/%d/%d", s.InstancesTotal, s.InstancesCompleted, s.InstancesAutoFixed, s.InstancesManualReview)
	}
	if got := s.NextPendingFile(0); got != 2 {
		t.Errorf("NextPendingFile(0) = %d, want 2", got)
	}
	if s.Done(true) {
		t.Error("Done = true with an open item")
	}
	s.FileInventory[2].Checklist[1].Status = ItemCompleted
	s.FileInventory[2].Status = FileCompleted
	if !s.Done(true) {
		t.Error("Done(allowSkipped) = false")
	}
	if s.Done(false) {
		t.Error("Done(!allowSkipped) = true with a skipped file")
	}
}

func TestSession_phases(t *testing.T) {
	t.Parallel()
	s := &Session{Phases: []Phase{
		{ID: "scan", Status: PhasePending, Mode: definition.ModeAutonomous},
		{ID: "convert", Status: PhasePending, Mode: definition.ModeAgentDriven},
		{ID: "verify", Status: PhasePending, Mode: definition.ModeGuided},
	}}
	s.SetPhase("convert")
	if s.CurrentPhase != "convert" || s.Phases[0].Status != PhaseCompleted || s.Phases[1].Status != PhaseInProgress || s.Phases[2].Status != PhasePending {
		t.Errorf("after SetPhase: current=%q phases=%+v", s.CurrentPhase, s.Phases)
	}
	s.CompletePhases()
	for _, p := range s.Phases {
		if p.Status != PhaseCompleted {
			t.Errorf("phase %s = %s, want completed", p.ID, p.Status)
		}
	}
}

func TestNewID(t *testing.T) {
	t.Parallel()
	id := NewID("code_review", mustTime(t, "2026-03-04T10:00:00Z"))
	if len(id) != len("code_review-20260304-")+8 || id[:len("code_review-20260304-")] != "code_review-20260304-" {
		t.Errorf("NewID = %q", id)
	}
	if !ValidID(id) {
		t.Errorf("ValidID(%q) = false", id)
	}
	for _, bad := range []string{"", "../etc", "A-1", "a/b"} {
		if ValidID(bad) {
			t.Errorf("ValidID(%q) = true", bad)
		}
	}
}
