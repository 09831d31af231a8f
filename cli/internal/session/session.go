// Package session holds the workflow session data model, the checklist state
// machine operations over it, and the Session Store: an in-memory index plus
// one JSON document per session, written atomically and guarded by a
// per-session advisory lock.
package session

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"sift/cli/internal/findings"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusInProgress   Status = "in_progress"
	StatusBlocked      Status = "blocked"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// FileStatus is the state of one file in the inventory.
type FileStatus string

const (
	FilePending    FileStatus = "pending"
	FileInProgress FileStatus = "in_progress"
	FileCompleted  FileStatus = "completed"
	FileSkipped    FileStatus = "skipped"
	FileBlocked    FileStatus = "blocked"
)

// Open reports whether the file still accepts checklist updates.
func (s FileStatus) Open() bool {
	return s == FilePending || s == FileInProgress
}

// ItemStatus is the state of one checklist item.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemInProgress ItemStatus = "in_progress"
	ItemCompleted  ItemStatus = "completed"
	ItemSkipped    ItemStatus = "skipped"
	ItemFailed     ItemStatus = "failed"
)

// Terminal reports whether s is completed, skipped or failed.
func (s ItemStatus) Terminal() bool {
	return s == ItemCompleted || s == ItemSkipped || s == ItemFailed
}

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemPending, ItemInProgress, ItemCompleted, ItemSkipped, ItemFailed:
		return true
	}
	return false
}

// PhaseStatus is the state of a workflow phase.
type PhaseStatus string

const (
	PhasePending    PhaseStatus = "pending"
	PhaseInProgress PhaseStatus = "in_progress"
	PhaseCompleted  PhaseStatus = "completed"
	PhaseSkipped    PhaseStatus = "skipped"
)

// Scope selects what a session's discovery covers.
const (
	ScopeWorkspace = "workspace"
	ScopeDirectory = "directory"
	ScopeFile      = "file"
)

// Session is the root aggregate, owned by the Store.
type Session struct {
	ID               string                    `json:"id"`
	WorkflowType     string                    `json:"workflow_type"`
	Status           Status                    `json:"status"`
	StatusReason     string                    `json:"status_reason,omitempty"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
	FileInventory    []FileEntry               `json:"file_inventory"`
	Phases           []Phase                   `json:"phases"`
	CurrentPhase     string                    `json:"current_phase,omitempty"`
	CurrentFileIndex int                       `json:"current_file_index"`
	FilesCompleted   int                       `json:"files_completed"`
	FilesTotal       int                       `json:"files_total"`
	Findings         []findings.Finding        `json:"findings"`
	ProposedChanges  []findings.ProposedChange `json:"proposed_changes"`
	Options          Options                   `json:"options"`

	InstancesTotal        int `json:"instances_total,omitempty"`
	InstancesCompleted    int `json:"instances_completed,omitempty"`
	InstancesAutoFixed    int `json:"instances_auto_fixed,omitempty"`
	InstancesManualReview int `json:"instances_manual_review,omitempty"`
}

// Options is the caller-supplied configuration recorded with the session.
// Empty pattern lists fall back to the workflow definition.
type Options struct {
	Scope            string            `json:"scope,omitempty"`
	Path             string            `json:"path,omitempty"`
	FilePatterns     []string          `json:"file_patterns,omitempty"`
	ExcludePatterns  []string          `json:"exclude_patterns,omitempty"`
	PriorityPatterns []string          `json:"priority_patterns,omitempty"`
	MaxFiles         int               `json:"max_files,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// FileEntry is one discovered file and its checklist.
type FileEntry struct {
	Path            string                    `json:"path"`
	Status          FileStatus                `json:"status"`
	Size            int64                     `json:"size"`
	ObjectType      string                    `json:"object_type,omitempty"`
	Checklist       []ChecklistItem           `json:"checklist"`
	Findings        []findings.Finding        `json:"findings,omitempty"`
	ProposedChanges []findings.ProposedChange `json:"proposed_changes,omitempty"`
}

// ChecklistItem is one unit of work against a file. Type is one of the
// definition item types; TopicID is set for topic_application items and
// PatternMatch for pattern_instance items.
type ChecklistItem struct {
	ID                  string        `json:"id"`
	Type                string        `json:"type"`
	Description         string        `json:"description"`
	Status              ItemStatus    `json:"status"`
	TopicID             string        `json:"topic_id,omitempty"`
	TopicRelevanceScore float64       `json:"topic_relevance_score,omitempty"`
	PatternMatch        *PatternMatch `json:"pattern_match,omitempty"`
	Error               string        `json:"error,omitempty"`
}

// PatternMatch is one classified regex match produced by the scanner.
type PatternMatch struct {
	PatternID            string `json:"pattern_id"`
	LineNumber           int    `json:"line_number"`
	MatchText            string `json:"match_text"`
	MatchContext         string `json:"match_context"`
	InstanceType         string `json:"instance_type"`
	SuggestedReplacement string `json:"suggested_replacement,omitempty"`
	RequiresManualReview bool   `json:"requires_manual_review"`
	AutoFixable          bool   `json:"auto_fixable"`
	AutoFixed            bool   `json:"auto_fixed,omitempty"`
}

// Phase is a coarse stage of the workflow.
type Phase struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Status   PhaseStatus `json:"status"`
	Mode     string      `json:"mode"`
	Required bool        `json:"required"`
}

var validID = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidID reports whether id is safe to use as a file or key name.
func ValidID(id string) bool {
	return len(id) <= 128 && validID.MatchString(id)
}

// NewID returns "<workflowType>-<YYYYMMDD>-<8 hex>".
func NewID(workflowType string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", workflowType, now.UTC().Format("20060102"), ShortID())
}

// ShortID returns 8 random hex characters.
func ShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Touch sets UpdatedAt. Every mutation goes through it.
func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// Clone returns a deep copy so callers never share slices with the store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.FileInventory = cloneSlice(s.FileInventory)
	for i := range out.FileInventory {
		out.FileInventory[i] = out.FileInventory[i].clone()
	}
	out.Phases = cloneSlice(s.Phases)
	out.Findings = cloneSlice(s.Findings)
	out.ProposedChanges = cloneSlice(s.ProposedChanges)
	out.Options = s.Options.clone()
	return &out
}

func (o Options) clone() Options {
	out := o
	out.FilePatterns = cloneSlice(o.FilePatterns)
	out.ExcludePatterns = cloneSlice(o.ExcludePatterns)
	out.PriorityPatterns = cloneSlice(o.PriorityPatterns)
	if o.Metadata != nil {
		out.Metadata = make(map[string]string, len(o.Metadata))
		for k, v := range o.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func (f FileEntry) clone() FileEntry {
	out := f
	out.Checklist = cloneSlice(f.Checklist)
	for i := range out.Checklist {
		if pm := out.Checklist[i].PatternMatch; pm != nil {
			cp := *pm
			out.Checklist[i].PatternMatch = &cp
		}
	}
	out.Findings = cloneSlice(f.Findings)
	out.ProposedChanges = cloneSlice(f.ProposedChanges)
	return out
}

// cloneSlice copies s, keeping nil as nil so JSON output is unchanged.
func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
