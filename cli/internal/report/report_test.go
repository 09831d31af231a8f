package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"sift/cli/internal/findings"
	"sift/cli/internal/session"
)

func sample() *session.Session {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s := &session.Session{
		ID:             "security_audit-20260501-0000abcd",
		WorkflowType:   "security_audit",
		Status:         session.StatusCompleted,
		CreatedAt:      start,
		UpdatedAt:      start.Add(90 * time.Second),
		FilesTotal:     3,
		FilesCompleted: 2,
		FileInventory: []session.FileEntry{
			{Path: "a.go", Status: session.FileCompleted},
			{Path: "b.go", Status: session.FileCompleted},
			{Path: "c.go", Status: session.FileSkipped},
		},
		Findings: []findings.Finding{
			{File: "a.go", Line: 4, Severity: findings.SeverityInfo, Category: "general", Description: "naming"},
			{File: "b.go", Line: 10, Severity: findings.SeverityCritical, Category: "security", Description: "hardcoded key", Suggestion: "read it from the environment"},
			{File: "a.go", Severity: findings.SeverityError, Category: "correctness", Description: "error ignored"},
		},
		ProposedChanges: []findings.ProposedChange{
			{File: "b.go", LineStart: 10, LineEnd: 10, ProposedCode: "key := os.Getenv(\"KEY\")", Impact: findings.ImpactHigh, AutoApplicable: true},
		},
	}
	return s
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Format{"": FormatMarkdown, "MD": FormatMarkdown, "markdown": FormatMarkdown, "json": FormatJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("html"); err == nil {
		t.Error("ParseFormat(html): expected error")
	}
}

func TestGenerate_markdown(t *testing.T) {
	t.Parallel()
	out, err := Generate(sample(), FormatMarkdown)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, want := range []string{
		"# Workflow report: security_audit",
		"- Duration: 1m30s",
		"- Files: 2 of 3 completed, 1 skipped",
		"- Findings: 3 (critical 1, error 1, warning 0, info 1)",
		"1. **critical** `b.go:10` hardcoded key",
		"   - Suggestion: read it from the environment",
		"2. **error** `a.go` error ignored",
		"- Address 1 critical issue before release",
		"- Fix 1 error-level finding",
		"- Apply 1 auto-applicable proposed change",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "## Pattern instances") {
		t.Error("instance block present without instances")
	}
	if strings.Contains(out, "remaining") {
		t.Error("remaining-files recommendation emitted when every file is done or skipped")
	}
}

func TestGenerate_topFindingsCapped(t *testing.T) {
	t.Parallel()
	s := sample()
	s.Findings = nil
	for i := 0; i < 15; i++ {
		s.Findings = append(s.Findings, findings.Finding{File: "x.go", Line: i + 1, Severity: findings.SeverityWarning, Description: fmt.Sprintf("w%d", i)})
	}
	s.InstancesTotal, s.InstancesCompleted, s.InstancesManualReview = 6, 4, 2
	out, err := Generate(s, FormatMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "10. **warning**") || strings.Contains(out, "11. **warning**") {
		t.Errorf("top findings not capped at %d:\n%s", TopFindings, out)
	}
	for _, want := range []string{"## Pattern instances", "| 6 | 4 | 0 | 2 |", "Plan a cleanup pass for 15 warnings", "Resolve 2 remaining pattern instances", "Manually review 2 instances"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
	if strings.Contains(out, "critical issue") {
		t.Error("critical recommendation emitted with zero critical findings")
	}
}

func TestGenerate_json(t *testing.T) {
	t.Parallel()
	out, err := Generate(sample(), FormatJSON)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var doc Document
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc.DurationMS != 90000 || doc.Severity.Critical != 1 || len(doc.Findings) != 3 || len(doc.ProposedChanges) != 1 {
		t.Errorf("doc = %+v", doc)
	}
	if doc.Instances != nil {
		t.Error("instances present without pattern workflow")
	}
}

func TestBuild_noFindings(t *testing.T) {
	t.Parallel()
	doc := Build(&session.Session{ID: "x-1", FilesTotal: 0})
	if len(doc.Recommendations) != 1 || doc.Recommendations[0] != "No follow-up actions required" {
		t.Errorf("Recommendations = %v", doc.Recommendations)
	}
	if doc.Findings == nil || doc.ProposedChanges == nil {
		t.Error("nil arrays in JSON document")
	}
}
