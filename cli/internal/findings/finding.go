// Package findings defines the schema for what a driving agent reports back
// while working through a file: findings (issues observed) and proposed
// changes (edits the agent recommends but sift never applies). It is the single
// source of truth for the progress-report payload and the report output.
package findings

import "strings"

// Severity is the severity level of a finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Severities lists all severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityError, SeverityWarning, SeverityInfo}

// Rank orders severities for sorting; higher is more severe. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Category is free-form; these are the categories the built-in workflows use.
const (
	CategoryGeneral       = "general"
	CategorySecurity      = "security"
	CategoryPerformance   = "performance"
	CategoryCorrectness   = "correctness"
	CategoryMigration     = "migration"
	CategoryMaintenance   = "maintainability"
	CategoryErrorHandling = "error_handling"
)

// Impact is the blast radius of a proposed change.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Finding is one issue observed in a file. Line is optional (file-level findings are valid).
type Finding struct {
	File         string   `json:"file"`
	Line         int      `json:"line,omitempty"`
	Severity     Severity `json:"severity"`
	Category     string   `json:"category"`
	Description  string   `json:"description"`
	Suggestion   string   `json:"suggestion,omitempty"`
	RelatedTopic string   `json:"related_topic,omitempty"`
}

// ProposedChange is an edit the agent recommends. sift records proposals and
// never edits files.
type ProposedChange struct {
	File           string `json:"file"`
	LineStart      int    `json:"line_start"`
	LineEnd        int    `json:"line_end"`
	OriginalCode   string `json:"original_code"`
	ProposedCode   string `json:"proposed_code"`
	Rationale      string `json:"rationale"`
	Impact         Impact `json:"impact"`
	AutoApplicable bool   `json:"auto_applicable"`
}

// Normalize trims and lowercases enum fields and fills defaults so loosely
// formatted agent output validates: empty category becomes "general", empty
// impact becomes "low".
func (f *Finding) Normalize() {
	f.Severity = Severity(strings.ToLower(strings.TrimSpace(string(f.Severity))))
	f.Category = strings.ToLower(strings.TrimSpace(f.Category))
	if f.Category == "" {
		f.Category = CategoryGeneral
	}
	f.File = strings.TrimSpace(f.File)
}

// Normalize applies the same cleanup as Finding.Normalize to a proposed change.
func (c *ProposedChange) Normalize() {
	c.Impact = Impact(strings.ToLower(strings.TrimSpace(string(c.Impact))))
	if c.Impact == "" {
		c.Impact = ImpactLow
	}
	c.File = strings.TrimSpace(c.File)
	if c.LineEnd == 0 {
		c.LineEnd = c.LineStart
	}
}
