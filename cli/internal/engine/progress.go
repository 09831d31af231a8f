package engine

import (
	"context"
	"fmt"
	"strings"

	"sift/cli/internal/definition"
	"sift/cli/internal/erruser"
	"sift/cli/internal/findings"
	"sift/cli/internal/history"
	"sift/cli/internal/session"
)

// Completed-action types that act on the whole file rather than one item.
const (
	CompletedSkipFile  = "skip_file"
	CompletedBlockFile = "block_file"
)

// ProgressReport is what the agent sends after finishing a unit of work.
type ProgressReport struct {
	CompletedAction CompletedAction           `json:"completed_action"`
	Findings        []findings.Finding        `json:"findings,omitempty"`
	ProposedChanges []findings.ProposedChange `json:"proposed_changes,omitempty"`
	ExpandChecklist []TopicCandidate          `json:"expand_checklist,omitempty"`
}

// CompletedAction identifies the item the report is about. File defaults to
// the current file; ChecklistItemID defaults to the file's first open item;
// Status defaults to completed.
type CompletedAction struct {
	Type            string             `json:"type"`
	File            string             `json:"file,omitempty"`
	ChecklistItemID string             `json:"checklist_item_id,omitempty"`
	Status          session.ItemStatus `json:"status,omitempty"`
	Error           string             `json:"error,omitempty"`
}

// TopicCandidate is a topic suggested by analysis for the reported file.
type TopicCandidate struct {
	TopicID        string  `json:"topic_id"`
	Description    string  `json:"description,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// ReportProgress applies a progress report to the session and returns the
// next action. The report is validated in full before anything is changed.
func (e *Engine) ReportProgress(ctx context.Context, id string, rep ProgressReport) (Action, error) {
	var (
		def       definition.Definition
		completed bool
		file      string
		status    session.ItemStatus
	)
	s, err := e.withSession(ctx, id, func(s *session.Session) (bool, error) {
		def = e.definitionFor(s)
		idx, err := resolveFile(s, rep.CompletedAction.File)
		if err != nil {
			return false, err
		}
		f := &s.FileInventory[idx]
		file = f.Path
		if !f.Status.Open() {
			return false, erruser.New(fmt.Sprintf("%s is already %s and accepts no further reports.", f.Path, f.Status),
				fmt.Errorf("%w: %s", ErrFileClosed, f.Path))
		}
		if err := prepareReport(&rep, f.Path); err != nil {
			return false, err
		}
		status = rep.CompletedAction.Status

		switch rep.CompletedAction.Type {
		case CompletedSkipFile:
			closeOpenItems(f, session.ItemSkipped, rep.CompletedAction.Error)
			f.Status = session.FileSkipped
		case CompletedBlockFile:
			f.Status = session.FileBlocked
		default:
			if err := applyItem(f, rep.CompletedAction); err != nil {
				return false, err
			}
		}

		f.Findings = append(f.Findings, rep.Findings...)
		f.ProposedChanges = append(f.ProposedChanges, rep.ProposedChanges...)
		s.Findings = append(s.Findings, rep.Findings...)
		s.ProposedChanges = append(s.ProposedChanges, rep.ProposedChanges...)
		if f.Status.Open() {
			expandChecklist(f, rep.ExpandChecklist, def.TopicDiscovery)
		}

		// Files ahead of the cursor stay pending until advance reaches them.
		if f.Status.Open() && f.AllTerminal() {
			f.Status = session.FileCompleted
			e.metrics.RecordFileCompleted(s.WorkflowType)
		}
		if idx == s.CurrentFileIndex && f.Status != session.FileInProgress {
			advance(s, idx)
		}
		completed = refreshStatus(s, def)
		return true, nil
	})
	if err != nil {
		return Action{}, err
	}

	e.metrics.RecordProgress(rep.CompletedAction.Type, string(status))
	e.record(history.Record{
		SessionID:       s.ID,
		Event:           history.EventProgress,
		At:              s.UpdatedAt,
		File:            file,
		ItemID:          rep.CompletedAction.ChecklistItemID,
		Status:          string(status),
		Findings:        rep.Findings,
		ProposedChanges: rep.ProposedChanges,
		Detail:          rep.CompletedAction.Type,
	})
	if completed {
		e.log.Info("session completed", "session", s.ID, "files", s.FilesTotal, "findings", len(s.Findings))
		e.record(history.Record{SessionID: s.ID, Event: history.EventComplete, At: s.UpdatedAt})
	}
	next := NextAction(s)
	e.tracer.Section("Next action")
	e.tracer.Printf("%s file=%s item=%s\n", next.Type, next.File, next.ItemID)
	return next, nil
}

func resolveFile(s *session.Session, path string) (int, error) {
	if path != "" {
		idx := s.FileIndex(path)
		if idx < 0 {
			return -1, fmt.Errorf("%w: %s", ErrFileNotInSession, path)
		}
		return idx, nil
	}
	idx := s.CurrentFileIndex
	if idx < 0 || idx >= len(s.FileInventory) {
		return -1, ErrNoActiveFile
	}
	return idx, nil
}

// prepareReport normalizes and validates rep in place.
func prepareReport(rep *ProgressReport, path string) error {
	a := &rep.CompletedAction
	a.Type = strings.TrimSpace(a.Type)
	if a.Status == "" {
		a.Status = session.ItemCompleted
	}
	if !a.Status.Valid() {
		return erruser.New(fmt.Sprintf("Invalid item status %q (want pending, in_progress, completed, skipped or failed).", a.Status), nil)
	}
	for i := range rep.Findings {
		f := &rep.Findings[i]
		if f.File == "" {
			f.File = path
		}
		f.Normalize()
		if err := f.Validate(); err != nil {
			return erruser.New(fmt.Sprintf("Invalid finding %d.", i), err)
		}
	}
	for i := range rep.ProposedChanges {
		c := &rep.ProposedChanges[i]
		if c.File == "" {
			c.File = path
		}
		c.Normalize()
		if err := c.Validate(); err != nil {
			return erruser.New(fmt.Sprintf("Invalid proposed change %d.", i), err)
		}
	}
	for i, t := range rep.ExpandChecklist {
		if strings.TrimSpace(t.TopicID) == "" {
			return erruser.New(fmt.Sprintf("Topic %d has no topic_id.", i), nil)
		}
		if t.RelevanceScore < 0 || t.RelevanceScore > 1 {
			return erruser.New(fmt.Sprintf("Topic %q relevance %.2f is outside 0..1.", t.TopicID, t.RelevanceScore), nil)
		}
	}
	return nil
}

func applyItem(f *session.FileEntry, a CompletedAction) error {
	i := -1
	if a.ChecklistItemID != "" {
		i = f.ItemIndex(a.ChecklistItemID)
		if i < 0 {
			return fmt.Errorf("%w: %s on %s", ErrItemNotFound, a.ChecklistItemID, f.Path)
		}
	} else {
		i = f.FirstOpen()
	}
	if i < 0 {
		// Nothing open; findings still attach to the file.
		return nil
	}
	it := &f.Checklist[i]
	it.Status = a.Status
	it.Error = ""
	if a.Status == session.ItemFailed {
		it.Error = a.Error
	}
	return nil
}

func closeOpenItems(f *session.FileEntry, status session.ItemStatus, reason string) {
	for i := range f.Checklist {
		it := &f.Checklist[i]
		if !it.Status.Terminal() {
			it.Status = status
			it.Error = reason
		}
	}
}

// expandChecklist adds one topic_application item per qualifying topic,
// before the validation item, keeping the candidates' order. Topics below
// the relevance threshold or already on the file are ignored.
func expandChecklist(f *session.FileEntry, topics []TopicCandidate, rules definition.TopicDiscovery) {
	var add []session.ChecklistItem
	seen := make(map[string]bool)
	for _, t := range topics {
		id := strings.TrimSpace(t.TopicID)
		if t.RelevanceScore < rules.MinRelevanceScore || seen[id] || f.HasTopic(id) {
			continue
		}
		if rules.MaxTopicsPerFile > 0 && len(add) >= rules.MaxTopicsPerFile {
			break
		}
		seen[id] = true
		desc := t.Description
		if desc == "" {
			desc = fmt.Sprintf("Apply topic %s", id)
		}
		add = append(add, session.ChecklistItem{
			ID:                  id + "-" + session.ShortID(),
			Type:                definition.ItemTopicApplication,
			Description:         desc,
			Status:              session.ItemPending,
			TopicID:             id,
			TopicRelevanceScore: t.RelevanceScore,
		})
	}
	f.InsertBeforeValidation(add...)
}

// advance moves the cursor past idx to the next pending file and starts it.
// When no pending file remains the cursor stays put.
func advance(s *session.Session, idx int) {
	next := s.NextPendingFile(idx + 1)
	if next < 0 {
		return
	}
	s.FileInventory[next].Status = session.FileInProgress
	s.CurrentFileIndex = next
}
