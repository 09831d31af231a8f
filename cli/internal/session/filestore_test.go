package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sift/cli/internal/definition"
	"sift/cli/internal/findings"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func sampleSession(t *testing.T, id string, updated time.Time) *Session {
	t.Helper()
	return &Session{
		ID:           id,
		WorkflowType: "error_label_migration",
		Status:       StatusInProgress,
		CreatedAt:    updated.Add(-time.Hour),
		UpdatedAt:    updated,
		FileInventory: []FileEntry{{
			Path:       "src/Sales.codeunit.al",
			Status:     FileInProgress,
			Size:       2048,
			ObjectType: "codeunit",
			Checklist: []ChecklistItem{
				{ID: "analyze-1a2b3c4d", Type: definition.ItemAnalysis, Description: "Analyze", Status: ItemCompleted},
				{ID: "error-literal-9f8e7d6c", Type: definition.ItemPatternInstance, Description: "Convert", Status: ItemPending,
					PatternMatch: &PatternMatch{PatternID: "error-literal", LineNumber: 12, MatchText: "Error('x')", MatchContext: "a\nError('x')\nb", InstanceType: "simple_literal", SuggestedReplacement: "Error({label_name});", AutoFixable: true}},
				{ID: "validate-5e6f7a8b", Type: definition.ItemValidation, Description: "Validate", Status: ItemPending},
			},
			Findings: []findings.Finding{{File: "src/Sales.codeunit.al", Line: 12, Severity: findings.SeverityWarning, Category: "migration", Description: "literal"}},
		}},
		Phases:         []Phase{{ID: "scan", Name: "Scan", Status: PhaseCompleted, Mode: definition.ModeAutonomous, Required: true}},
		CurrentPhase:   "scan",
		FilesTotal:     1,
		Findings:       []findings.Finding{{File: "src/Sales.codeunit.al", Line: 12, Severity: findings.SeverityWarning, Category: "migration", Description: "literal"}},
		Options:        Options{Scope: ScopeWorkspace, PriorityPatterns: []string{"Codeunit"}, Metadata: map[string]string{"ticket": "ABC-1"}},
		InstancesTotal: 1,
	}
}

func TestFileStore_roundTripAfterRestart(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()
	now := mustTime(t, "2026-05-01T12:30:45.123456789Z")
	want := sampleSession(t, "error_label_migration-20260501-abcdef12", now)

	fs := NewFileStore(filepath.Join(dir, "sessions"), filepath.Join(dir, "reports"))
	if err := fs.Create(ctx, want); err != nil {
		t.Fatalf("Create: %v", err)
	}
	want.FileInventory[0].Checklist[1].Status = ItemCompleted
	want.Touch(now.Add(time.Minute))
	if err := fs.Update(ctx, want); err != nil {
		t.Fatalf("Update: %v", err)
	}

	restarted := NewFileStore(filepath.Join(dir, "sessions"), filepath.Join(dir, "reports"))
	got, err := restarted.Get(ctx, want.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	wantJSON, _ := json.Marshal(want)
	gotJSON, _ := json.Marshal(got)
	if !bytes.Equal(wantJSON, gotJSON) {
		t.Errorf("round trip mismatch:\n got %s\nwant %s", gotJSON, wantJSON)
	}
}

func TestFileStore_getReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs := NewFileStore(t.TempDir(), "")
	s := sampleSession(t, "code_review-20260501-00000001", mustTime(t, "2026-05-01T00:00:00Z"))
	if err := fs.Create(ctx, s); err != nil {
		t.Fatal(err)
	}
	got, err := fs.Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.FileInventory[0].Checklist[1].PatternMatch.InstanceType = "mutated"
	again, err := fs.Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.FileInventory[0].Checklist[1].PatternMatch.InstanceType != "simple_literal" {
		t.Error("Get returned a session sharing memory with the index")
	}
}

func TestFileStore_errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	unbound := NewFileStore("", "")
	if _, err := unbound.Get(ctx, "x"); !errors.Is(err, ErrWorkspaceNotBound) {
		t.Errorf("Get on unbound store: %v, want ErrWorkspaceNotBound", err)
	}
	if err := unbound.Create(ctx, &Session{ID: "x"}); !errors.Is(err, ErrWorkspaceNotBound) {
		t.Errorf("Create on unbound store: %v, want ErrWorkspaceNotBound", err)
	}

	fs := NewFileStore(t.TempDir(), t.TempDir())
	if _, err := fs.Get(ctx, "missing-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing): %v, want ErrNotFound", err)
	}
	if _, err := fs.Get(ctx, "../../etc/passwd"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(traversal): %v, want ErrNotFound", err)
	}
	if err := fs.Update(ctx, &Session{ID: "missing-1"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing): %v, want ErrNotFound", err)
	}
	if err := fs.Delete(ctx, "missing-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(missing): %v, want ErrNotFound", err)
	}
	s := &Session{ID: "dup-1"}
	if err := fs.Create(ctx, s); err != nil {
		t.Fatal(err)
	}
	if err := fs.Create(ctx, s); !errors.Is(err, ErrExists) {
		t.Errorf("Create(dup): %v, want ErrExists", err)
	}
}

func TestFileStore_invalidJSON(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad-1.json"), []byte(`{invalid`), 0644); err != nil {
		t.Fatal(err)
	}
	fs := NewFileStore(dir, "")
	_, err := fs.Get(context.Background(), "bad-1")
	if err == nil {
		t.Fatal("Get: expected error for invalid JSON")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("invalid JSON reported as not found")
	}
}

func TestFileStore_listAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	fs := NewFileStore(dir, "")
	base := mustTime(t, "2026-05-01T00:00:00Z")
	for i, id := range []string{"b-2", "a-1", "c-3"} {
		s := &Session{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := fs.Create(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	list, err := NewFileStore(dir, "").List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var got []string
	for _, s := range list {
		got = append(got, s.ID)
	}
	if !equalStrings(got, []string{"b-2", "a-1", "c-3"}) {
		t.Errorf("List order = %v, want creation order", got)
	}
	if err := fs.Delete(ctx, "a-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a-1.json")); !os.IsNotExist(err) {
		t.Errorf("session file still present: %v", err)
	}
	if _, err := fs.Get(ctx, "a-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: %v", err)
	}
}

func TestFileStore_cleanupRetention(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs := NewFileStore(t.TempDir(), "")
	now := mustTime(t, "2026-05-10T00:00:00Z")
	retention := 7 * 24 * time.Hour
	sessions := map[string]time.Time{
		"old-1":    now.Add(-8 * 24 * time.Hour),
		"old-2":    now.Add(-30 * 24 * time.Hour),
		"fresh-1":  now.Add(-time.Hour),
		"edge-1":   now.Add(-retention),
		"locked-1": now.Add(-9 * 24 * time.Hour),
	}
	for id, updated := range sessions {
		if err := fs.Create(ctx, &Session{ID: id, CreatedAt: updated, UpdatedAt: updated}); err != nil {
			t.Fatal(err)
		}
	}
	release, err := fs.Lock(ctx, "locked-1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	deleted, err := fs.Cleanup(ctx, now.Add(-retention))
	release()
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if !equalStrings(deleted, []string{"old-2", "old-1"}) {
		t.Errorf("deleted = %v, want [old-2 old-1]", deleted)
	}
	for _, id := range []string{"fresh-1", "edge-1", "locked-1"} {
		if _, err := fs.Get(ctx, id); err != nil {
			t.Errorf("Get(%s) after cleanup: %v", id, err)
		}
	}
	for _, id := range []string{"old-1", "old-2"} {
		if _, err := fs.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%s) after cleanup: %v, want ErrNotFound", id, err)
		}
	}
}

func TestFileStore_saveReport(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	fs := NewFileStore(filepath.Join(dir, "sessions"), filepath.Join(dir, "reports"))
	if err := fs.SaveReport(context.Background(), "code_review-1", "markdown", []byte("# Report\n")); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "reports", "code_review-1.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "# Report\n" {
		t.Errorf("report = %q", data)
	}
	if err := NewFileStore(dir, "").SaveReport(context.Background(), "x-1", "json", nil); !errors.Is(err, ErrWorkspaceNotBound) {
		t.Errorf("SaveReport without reports dir: %v", err)
	}
}
