// Package report renders a session summary as markdown or JSON: duration,
// severity histogram, pattern-instance counters, the most severe findings,
// and recommendations derived from the counts.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sift/cli/internal/findings"
	"sift/cli/internal/session"
)

// Format selects the report rendering.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// TopFindings is how many findings the markdown report lists.
const TopFindings = 10

// ParseFormat accepts markdown, md and json (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown report format %q (want markdown or json)", s)
}

// Instances is the pattern-workflow block.
type Instances struct {
	Total        int `json:"total"`
	Completed    int `json:"completed"`
	AutoFixed    int `json:"auto_fixed"`
	ManualReview int `json:"manual_review"`
}

// Document is the JSON report.
type Document struct {
	SessionID       string                    `json:"session_id"`
	WorkflowType    string                    `json:"workflow_type"`
	Status          session.Status            `json:"status"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
	DurationMS      int64                     `json:"duration_ms"`
	FilesTotal      int                       `json:"files_total"`
	FilesCompleted  int                       `json:"files_completed"`
	FilesSkipped    int                       `json:"files_skipped"`
	Severity        findings.Histogram        `json:"severity"`
	Instances       *Instances                `json:"instances,omitempty"`
	Recommendations []string                  `json:"recommendations"`
	Findings        []findings.Finding        `json:"findings"`
	ProposedChanges []findings.ProposedChange `json:"proposed_changes"`
}

// Build computes the aggregates for s.
func Build(s *session.Session) Document {
	doc := Document{
		SessionID:       s.ID,
		WorkflowType:    s.WorkflowType,
		Status:          s.Status,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		DurationMS:      s.UpdatedAt.Sub(s.CreatedAt).Milliseconds(),
		FilesTotal:      s.FilesTotal,
		FilesCompleted:  s.FilesCompleted,
		Severity:        findings.Count(s.Findings),
		Findings:        s.Findings,
		ProposedChanges: s.ProposedChanges,
	}
	for _, f := range s.FileInventory {
		if f.Status == session.FileSkipped {
			doc.FilesSkipped++
		}
	}
	if s.InstancesTotal > 0 {
		doc.Instances = &Instances{
			Total:        s.InstancesTotal,
			Completed:    s.InstancesCompleted,
			AutoFixed:    s.InstancesAutoFixed,
			ManualReview: s.InstancesManualReview,
		}
	}
	if doc.Findings == nil {
		doc.Findings = []findings.Finding{}
	}
	if doc.ProposedChanges == nil {
		doc.ProposedChanges = []findings.ProposedChange{}
	}
	doc.Recommendations = recommendations(doc)
	return doc
}

func recommendations(doc Document) []string {
	var out []string
	h := doc.Severity
	if h.Critical > 0 {
		out = append(out, fmt.Sprintf("Address %d critical %s before release", h.Critical, plural(h.Critical, "issue", "issues")))
	}
	if h.Error > 0 {
		out = append(out, fmt.Sprintf("Fix %d error-level %s", h.Error, plural(h.Error, "finding", "findings")))
	}
	if h.Warning >= 10 {
		out = append(out, fmt.Sprintf("Plan a cleanup pass for %d warnings", h.Warning))
	}
	if in := doc.Instances; in != nil {
		if open := in.Total - in.Completed; open > 0 {
			out = append(out, fmt.Sprintf("Resolve %d remaining pattern %s", open, plural(open, "instance", "instances")))
		}
		if in.ManualReview > 0 {
			out = append(out, fmt.Sprintf("Manually review %d %s flagged as not auto-fixable", in.ManualReview, plural(in.ManualReview, "instance", "instances")))
		}
	}
	if auto := autoApplicable(doc.ProposedChanges); auto > 0 {
		out = append(out, fmt.Sprintf("Apply %d auto-applicable proposed %s", auto, plural(auto, "change", "changes")))
	}
	if left := doc.FilesTotal - doc.FilesCompleted - doc.FilesSkipped; left > 0 {
		out = append(out, fmt.Sprintf("Finish the remaining %d %s", left, plural(left, "file", "files")))
	}
	if len(out) == 0 {
		out = append(out, "No follow-up actions required")
	}
	return out
}

func autoApplicable(changes []findings.ProposedChange) int {
	n := 0
	for _, c := range changes {
		if c.AutoApplicable {
			n++
		}
	}
	return n
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// Generate renders s in format.
func Generate(s *session.Session, format Format) (string, error) {
	doc := Build(s)
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return "", fmt.Errorf("report: encode: %w", err)
		}
		return string(data) + "\n", nil
	case FormatMarkdown, "":
		return markdown(doc), nil
	}
	return "", fmt.Errorf("unknown report format %q", format)
}

func markdown(doc Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Workflow report: %s\n\n", doc.WorkflowType)
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Session: `%s`\n", doc.SessionID)
	fmt.Fprintf(&b, "- Status: %s\n", doc.Status)
	fmt.Fprintf(&b, "- Duration: %s\n", time.Duration(doc.DurationMS)*time.Millisecond)
	fmt.Fprintf(&b, "- Files: %d of %d completed", doc.FilesCompleted, doc.FilesTotal)
	if doc.FilesSkipped > 0 {
		fmt.Fprintf(&b, ", %d skipped", doc.FilesSkipped)
	}
	b.WriteString("\n")
	h := doc.Severity
	fmt.Fprintf(&b, "- Findings: %d (critical %d, error %d, warning %d, info %d)\n", h.Total(), h.Critical, h.Error, h.Warning, h.Info)
	fmt.Fprintf(&b, "- Proposed changes: %d\n", len(doc.ProposedChanges))

	if in := doc.Instances; in != nil {
		b.WriteString("\n## Pattern instances\n\n")
		fmt.Fprintf(&b, "| Total | Completed | Auto-fixed | Manual review |\n|---|---|---|---|\n")
		fmt.Fprintf(&b, "| %d | %d | %d | %d |\n", in.Total, in.Completed, in.AutoFixed, in.ManualReview)
	}

	if top := findings.MostSevere(doc.Findings, TopFindings); len(top) > 0 {
		b.WriteString("\n## Top findings\n\n")
		for i, f := range top {
			loc := f.File
			if f.Line > 0 {
				loc = fmt.Sprintf("%s:%d", f.File, f.Line)
			}
			fmt.Fprintf(&b, "%d. **%s** `%s` %s\n", i+1, f.Severity, loc, f.Description)
			if f.Suggestion != "" {
				fmt.Fprintf(&b, "   - Suggestion: %s\n", f.Suggestion)
			}
		}
	}

	b.WriteString("\n## Recommendations\n\n")
	for _, r := range doc.Recommendations {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	return b.String()
}
