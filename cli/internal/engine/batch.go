package engine

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"sift/cli/internal/definition"
	"sift/cli/internal/erruser"
	"sift/cli/internal/history"
	"sift/cli/internal/session"
)

// Batch operations.
const (
	// OpApplyAutoFix completes auto-fixable instances and marks them auto-fixed.
	OpApplyAutoFix = "apply_auto_fix"
	// OpMarkComplete completes every matching instance.
	OpMarkComplete = "mark_complete"
	// OpSkip skips every matching instance.
	OpSkip = "skip"
)

// Batch outcomes for metrics and history.
const (
	outcomePreview  = "preview"
	outcomeExecuted = "executed"
	outcomeRejected = "rejected"
)

const maxPreviewSamples = 5

// BatchRequest is a two-phase batch call. A dry run previews and issues a
// token; an execute call must present that token.
type BatchRequest struct {
	Operation         string      `json:"operation"`
	Filter            BatchFilter `json:"filter"`
	DryRun            bool        `json:"dry_run"`
	ConfirmationToken string      `json:"confirmation_token,omitempty"`
}

// BatchFilter selects pattern_instance items. Empty fields match everything;
// Statuses defaults to pending and in_progress.
type BatchFilter struct {
	InstanceTypes   []string             `json:"instance_types,omitempty"`
	FilePattern     string               `json:"file_pattern,omitempty"`
	AutoFixableOnly bool                 `json:"auto_fixable_only,omitempty"`
	Statuses        []session.ItemStatus `json:"statuses,omitempty"`
}

// BatchResult is either a preview with a token, an execution result, or a
// rejection. A rejection never changes the session.
type BatchResult struct {
	Operation         string        `json:"operation"`
	DryRun            bool          `json:"dry_run"`
	Preview           *BatchPreview `json:"preview,omitempty"`
	ConfirmationToken string        `json:"confirmation_token,omitempty"`
	ExpiresAt         *time.Time    `json:"expires_at,omitempty"`
	Executed          int           `json:"executed"`
	Rejected          bool          `json:"rejected,omitempty"`
	Reason            string        `json:"reason,omitempty"`
	NextAction        *Action       `json:"next_action,omitempty"`
}

// BatchPreview summarizes what an operation would touch.
type BatchPreview struct {
	InstancesAffected int            `json:"instances_affected"`
	FilesAffected     int            `json:"files_affected"`
	ByType            map[string]int `json:"by_type"`
	Samples           []BatchSample  `json:"samples"`
}

// BatchSample is one before/after example from the preview.
type BatchSample struct {
	File         string `json:"file"`
	Line         int    `json:"line"`
	InstanceType string `json:"instance_type"`
	Before       string `json:"before"`
	After        string `json:"after,omitempty"`
}

type itemRef struct {
	file, item int
}

// RunBatch previews or executes a batch operation over pattern instances.
func (e *Engine) RunBatch(ctx context.Context, id string, req BatchRequest) (BatchResult, error) {
	if err := validateBatch(&req); err != nil {
		return BatchResult{}, err
	}
	res := BatchResult{Operation: req.Operation, DryRun: req.DryRun}
	if req.DryRun {
		s, err := e.store.Get(ctx, id)
		if err != nil {
			return BatchResult{}, err
		}
		refs := selectInstances(s, req.Operation, req.Filter)
		res.Preview = preview(s, refs, req.Operation)
		expires := e.clock().Add(e.tokenTTL)
		res.ConfirmationToken = e.signToken(claims(s, req), expires)
		res.ExpiresAt = &expires
		e.metrics.RecordBatch(req.Operation, outcomePreview, 0)
		e.tracer.Section("Batch preview")
		e.tracer.Printf("%s instances=%d files=%d\n", req.Operation, res.Preview.InstancesAffected, res.Preview.FilesAffected)
		return res, nil
	}

	var completed bool
	s, err := e.withSession(ctx, id, func(s *session.Session) (bool, error) {
		if err := e.verifyToken(req.ConfirmationToken, claims(s, req), e.clock()); err != nil {
			res.Rejected = true
			res.Reason = err.Error()
			return false, nil
		}
		refs := selectInstances(s, req.Operation, req.Filter)
		res.Preview = preview(s, refs, req.Operation)
		applyBatch(s, refs, req.Operation)
		def := e.definitionFor(s)
		e.settleFiles(s)
		completed = refreshStatus(s, def)
		res.Executed = len(refs)
		return true, nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	if res.Rejected {
		e.metrics.RecordBatch(req.Operation, outcomeRejected, 0)
		e.log.Info("batch rejected", "session", id, "operation", req.Operation, "reason", res.Reason)
		return res, nil
	}
	e.metrics.RecordBatch(req.Operation, outcomeExecuted, res.Executed)
	e.log.Info("batch executed", "session", id, "operation", req.Operation, "instances", res.Executed)
	e.record(history.Record{
		SessionID: s.ID,
		Event:     history.EventBatch,
		At:        s.UpdatedAt,
		Detail:    fmt.Sprintf("%s instances=%d files=%d", req.Operation, res.Executed, res.Preview.FilesAffected),
	})
	if completed {
		e.record(history.Record{SessionID: s.ID, Event: history.EventComplete, At: s.UpdatedAt})
	}
	next := NextAction(s)
	res.NextAction = &next
	return res, nil
}

func validateBatch(req *BatchRequest) error {
	switch req.Operation {
	case OpApplyAutoFix, OpMarkComplete, OpSkip:
	default:
		return fmt.Errorf("%w %q (want %s, %s or %s)", ErrInvalidBatchOperation, req.Operation, OpApplyAutoFix, OpMarkComplete, OpSkip)
	}
	f := &req.Filter
	if f.FilePattern != "" && !doublestar.ValidatePattern(f.FilePattern) {
		return erruser.New(fmt.Sprintf("Invalid file pattern %q.", f.FilePattern), nil)
	}
	for _, st := range f.Statuses {
		if !st.Valid() {
			return erruser.New(fmt.Sprintf("Invalid status %q in batch filter.", st), nil)
		}
	}
	if len(f.Statuses) == 0 {
		f.Statuses = []session.ItemStatus{session.ItemPending, session.ItemInProgress}
	}
	return nil
}

func claims(s *session.Session, req BatchRequest) tokenClaims {
	return tokenClaims{SessionID: s.ID, Operation: req.Operation, Filter: req.Filter, State: stateDigest(s)}
}

// stateDigest hashes the full session so any change after a dry run
// invalidates its token.
func stateDigest(s *session.Session) []byte {
	data, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	sum := sha256.Sum256(data)
	return sum[:]
}

// selectInstances returns the pattern_instance items matching f in
// inventory and checklist order. apply_auto_fix only ever selects
// auto-fixable instances.
func selectInstances(s *session.Session, op string, f BatchFilter) []itemRef {
	var refs []itemRef
	for fi := range s.FileInventory {
		file := &s.FileInventory[fi]
		if !file.Status.Open() {
			continue
		}
		if f.FilePattern != "" {
			if ok, _ := doublestar.Match(f.FilePattern, file.Path); !ok {
				continue
			}
		}
		for ii, it := range file.Checklist {
			if it.Type != definition.ItemPatternInstance || !slices.Contains(f.Statuses, it.Status) {
				continue
			}
			m := it.PatternMatch
			autoFixable := m != nil && m.AutoFixable
			if (f.AutoFixableOnly || op == OpApplyAutoFix) && !autoFixable {
				continue
			}
			if len(f.InstanceTypes) > 0 && (m == nil || !slices.Contains(f.InstanceTypes, m.InstanceType)) {
				continue
			}
			refs = append(refs, itemRef{file: fi, item: ii})
		}
	}
	return refs
}

func preview(s *session.Session, refs []itemRef, op string) *BatchPreview {
	p := &BatchPreview{ByType: make(map[string]int), Samples: []BatchSample{}}
	files := make(map[int]bool)
	for _, r := range refs {
		file := &s.FileInventory[r.file]
		it := file.Checklist[r.item]
		files[r.file] = true
		sample := BatchSample{File: file.Path}
		if m := it.PatternMatch; m != nil {
			p.ByType[m.InstanceType]++
			sample.Line = m.LineNumber
			sample.InstanceType = m.InstanceType
			sample.Before = m.MatchText
			if op == OpApplyAutoFix {
				sample.After = m.SuggestedReplacement
			}
		}
		if len(p.Samples) < maxPreviewSamples {
			p.Samples = append(p.Samples, sample)
		}
	}
	p.InstancesAffected = len(refs)
	p.FilesAffected = len(files)
	return p
}

func applyBatch(s *session.Session, refs []itemRef, op string) {
	for _, r := range refs {
		it := &s.FileInventory[r.file].Checklist[r.item]
		switch op {
		case OpApplyAutoFix:
			it.Status = session.ItemCompleted
			if it.PatternMatch != nil {
				it.PatternMatch.AutoFixed = true
			}
		case OpMarkComplete:
			it.Status = session.ItemCompleted
		case OpSkip:
			it.Status = session.ItemSkipped
		}
		it.Error = ""
	}
}

// settleFiles completes every open file whose checklist is now terminal and
// moves the cursor off the current file if it finished.
func (e *Engine) settleFiles(s *session.Session) {
	for i := range s.FileInventory {
		f := &s.FileInventory[i]
		if f.Status.Open() && len(f.Checklist) > 0 && f.AllTerminal() {
			f.Status = session.FileCompleted
			e.metrics.RecordFileCompleted(s.WorkflowType)
		}
	}
	idx := s.CurrentFileIndex
	if idx >= 0 && idx < len(s.FileInventory) && s.FileInventory[idx].Status != session.FileInProgress {
		advance(s, idx)
	}
}
