// Package history is the append-only engine journal at <state>/history.jsonl.
// Each line is one Record describing a session event. The active file is
// bounded: beyond a record cap the oldest lines move to numbered gzip
// archives (history.jsonl.N.gz), of which only the newest few are kept.
package history

import (
	"time"

	"sift/cli/internal/findings"
)

// Event names.
const (
	EventStart    = "start"
	EventProgress = "progress"
	EventBatch    = "batch"
	EventReport   = "report"
	EventDelete   = "delete"
	EventCleanup  = "cleanup"
	EventComplete = "complete"
)

// ValidEvent returns true if s is one of the Event* constants.
func ValidEvent(s string) bool {
	switch s {
	case EventStart, EventProgress, EventBatch, EventReport, EventDelete, EventCleanup, EventComplete:
		return true
	default:
		return false
	}
}

// Record is one line in history.jsonl.
type Record struct {
	SessionID string    `json:"session_id"`
	Event     string    `json:"event"`
	At        time.Time `json:"at"`
	// File and ItemID identify the checklist item a progress event touched.
	File   string `json:"file,omitempty"`
	ItemID string `json:"item_id,omitempty"`
	Status string `json:"status,omitempty"`
	// Findings and ProposedChanges are the ones reported with this event.
	Findings        []findings.Finding        `json:"findings,omitempty"`
	ProposedChanges []findings.ProposedChange `json:"proposed_changes,omitempty"`
	Detail          string                    `json:"detail,omitempty"` // Free-form, e.g. batch operation and counts.
}
