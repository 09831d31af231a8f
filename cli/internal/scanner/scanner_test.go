package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"sift/cli/internal/definition"
	"sift/cli/internal/session"
)

const salesAL = `codeunit 50100 Sales
{
    procedure Check()
    begin
        Error('Customer not found');
        Error('');
        Error('Amount %1 exceeds limit', Amount);
    end;
}
`

var errorLiteral = definition.PatternDefinition{
	ID:           "error-literal",
	Regex:        `Error\('[^']*'[^)]*\)`,
	Exclude:      `^Error\(''\)$`,
	ContextLines: 1,
	Classifiers: []definition.ClassifierRule{
		{Pattern: `%[0-9]`, InstanceType: "placeholder_literal", AutoFixable: false},
		{Pattern: `^Error\('[^']*'\)$`, InstanceType: "simple_literal", AutoFixable: true},
	},
	Transforms: []definition.Transform{
		{InstanceType: "simple_literal", Template: "Error({label_name});"},
	},
}

func inventory(t *testing.T, root string, files map[string]string) []session.FileEntry {
	t.Helper()
	var out []session.FileEntry
	for _, name := range []string{"Sales.codeunit.al", "Empty.page.al", "Missing.table.al"} {
		content, ok := files[name]
		if ok {
			if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
		}
		out = append(out, session.FileEntry{
			Path:   name,
			Status: session.FilePending,
			Checklist: []session.ChecklistItem{
				{ID: "analyze-1", Type: definition.ItemAnalysis, Status: session.ItemPending},
				{ID: "validate-1", Type: definition.ItemValidation, Status: session.ItemPending},
			},
		})
	}
	return out
}

func TestScan_classifiesAndInsertsItems(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	files := inventory(t, root, map[string]string{"Sales.codeunit.al": salesAL, "Empty.page.al": "page 1 X {}\n"})
	sum := Scan(context.Background(), files, Options{Root: root, Patterns: []definition.PatternDefinition{errorLiteral}, Concurrency: 2})

	if sum.TotalInstances != 2 {
		t.Fatalf("TotalInstances = %d, want 2", sum.TotalInstances)
	}
	byType := 0
	for _, tc := range sum.ByType {
		byType += tc.Count
	}
	if byType != 2 {
		t.Errorf("ByType sums to %d, want 2", byType)
	}
	if !sum.ByType["simple_literal"].AutoFixable || sum.ByType["placeholder_literal"].AutoFixable {
		t.Errorf("ByType = %+v", sum.ByType)
	}
	if sum.FilesWithMatches != 1 || sum.FilesScanned != 2 {
		t.Errorf("FilesWithMatches/FilesScanned = %d/%d, want 1/2", sum.FilesWithMatches, sum.FilesScanned)
	}
	if len(sum.Errors) != 1 || sum.Errors[0].File != "Missing.table.al" {
		t.Errorf("Errors = %+v, want one for the missing file", sum.Errors)
	}
	if sum.TimedOut {
		t.Error("TimedOut = true")
	}

	cl := files[0].Checklist
	if len(cl) != 4 {
		t.Fatalf("checklist len = %d, want 4", len(cl))
	}
	if cl[3].Type != definition.ItemValidation {
		t.Errorf("last item type = %s, want validation", cl[3].Type)
	}
	first, second := cl[1].PatternMatch, cl[2].PatternMatch
	if cl[1].Type != definition.ItemPatternInstance || first == nil || second == nil {
		t.Fatalf("pattern items = %+v", cl[1:3])
	}
	if first.LineNumber != 5 || first.MatchText != "Error('Customer not found')" || first.InstanceType != "simple_literal" {
		t.Errorf("first match = %+v", first)
	}
	if first.SuggestedReplacement != "Error({label_name});" || first.RequiresManualReview {
		t.Errorf("first match replacement/manual = %q/%v", first.SuggestedReplacement, first.RequiresManualReview)
	}
	wantCtx := "    begin\n        Error('Customer not found');\n        Error('');"
	if first.MatchContext != wantCtx {
		t.Errorf("MatchContext = %q, want %q", first.MatchContext, wantCtx)
	}
	if second.LineNumber != 7 || second.InstanceType != "placeholder_literal" || !second.RequiresManualReview || second.SuggestedReplacement != "" {
		t.Errorf("second match = %+v", second)
	}
	if len(files[1].Checklist) != 2 {
		t.Errorf("file without matches gained items: %+v", files[1].Checklist)
	}

	want := map[string][2]int{ActionApplyAllAuto: {1, 1}, ActionReviewComplex: {1, 1}}
	if len(sum.SuggestedActions) != len(want) {
		t.Fatalf("SuggestedActions = %+v", sum.SuggestedActions)
	}
	for _, a := range sum.SuggestedActions {
		w := want[a.Action]
		if a.InstanceCount != w[0] || a.FileCount != w[1] {
			t.Errorf("%s = %d/%d, want %v", a.Action, a.InstanceCount, a.FileCount, w)
		}
	}
}

func TestScan_sharedInstanceTypeAutoFixableIfAny(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	files := inventory(t, root, map[string]string{"Sales.codeunit.al": salesAL})
	p := errorLiteral
	p.Classifiers = []definition.ClassifierRule{
		{Pattern: `%[0-9]`, InstanceType: "literal", AutoFixable: false},
		{Pattern: `^Error\('[^']*'\)$`, InstanceType: "literal", AutoFixable: true},
	}
	sum := Scan(context.Background(), files, Options{Root: root, Patterns: []definition.PatternDefinition{p}, Concurrency: 1})
	got := sum.ByType["literal"]
	if got.Count != 2 || !got.AutoFixable {
		t.Errorf("ByType[literal] = %+v, want count 2 and auto-fixable", got)
	}
}

func TestScan_identicalMatchesAreNotDeduplicated(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	files := inventory(t, root, map[string]string{"Sales.codeunit.al": "Error('x');\nError('x');\n"})
	sum := Scan(context.Background(), files[:1], Options{Root: root, Patterns: []definition.PatternDefinition{errorLiteral}})
	if sum.TotalInstances != 2 || len(files[0].Checklist) != 4 {
		t.Errorf("TotalInstances=%d checklist=%d, want 2 and 4", sum.TotalInstances, len(files[0].Checklist))
	}
	if files[0].Checklist[1].ID == files[0].Checklist[2].ID {
		t.Error("duplicate item ids")
	}
}

func TestScan_unclassifiedAndBadPattern(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	files := inventory(t, root, map[string]string{"Sales.codeunit.al": "message('Hi');\nMESSAGE('Bye');\n"})
	patterns := []definition.PatternDefinition{
		{ID: "broken", Regex: `Message(`},
		{ID: "message", Regex: `message\('[^']*'\)`, Flags: "i"},
	}
	sum := Scan(context.Background(), files[:1], Options{Root: root, Patterns: patterns})
	if sum.TotalInstances != 2 {
		t.Fatalf("TotalInstances = %d, want 2", sum.TotalInstances)
	}
	if sum.ByType[Unclassified].Count != 2 {
		t.Errorf("ByType = %+v", sum.ByType)
	}
	if len(sum.Errors) != 1 || sum.Errors[0].PatternID != "broken" {
		t.Errorf("Errors = %+v, want the broken pattern", sum.Errors)
	}
	if len(sum.SuggestedActions) != 1 || sum.SuggestedActions[0].Action != ActionFlagManual {
		t.Errorf("SuggestedActions = %+v", sum.SuggestedActions)
	}
}

func TestScan_expiredDeadlineReturnsPartial(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	files := inventory(t, root, map[string]string{"Sales.codeunit.al": salesAL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum := Scan(ctx, files, Options{Root: root, Patterns: []definition.PatternDefinition{errorLiteral}})
	if !sum.TimedOut {
		t.Error("TimedOut = false")
	}
	if sum.FilesScanned != 0 || sum.TotalInstances != 0 {
		t.Errorf("scanned %d files, %d instances after deadline", sum.FilesScanned, sum.TotalInstances)
	}
}

func TestContextWindow(t *testing.T) {
	t.Parallel()
	lines := []string{"1", "2", "3", "4", "5"}
	tests := []struct {
		line, n int
		want    string
	}{
		{1, 1, "1\n2"},
		{3, 1, "2\n3\n4"},
		{5, 2, "3\n4\n5"},
		{3, 0, "3"},
	}
	for _, tt := range tests {
		if got := contextWindow(lines, tt.line, tt.n); got != tt.want {
			t.Errorf("contextWindow(%d, %d) = %q, want %q", tt.line, tt.n, got, tt.want)
		}
	}
}
