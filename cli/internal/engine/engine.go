// Package engine is the workflow session engine. An Engine is constructed
// with its collaborators injected (definition lookup, session store, clock,
// logger, metrics, journal) and exposes the session operations: start, next
// action, progress report, batch operation, report generation, and
// retention cleanup.
package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sift/cli/internal/definition"
	"sift/cli/internal/history"
	"sift/cli/internal/logging"
	"sift/cli/internal/metrics"
	"sift/cli/internal/session"
	"sift/cli/internal/trace"
)

var (
	// ErrFileNotInSession is returned when a progress report names a file
	// that is not in the inventory.
	ErrFileNotInSession = errors.New("file is not part of this session")
	// ErrItemNotFound is returned when a checklist item id does not exist on the file.
	ErrItemNotFound = errors.New("checklist item not found")
	// ErrNoActiveFile is returned when a report omits the file and the
	// session has no current file.
	ErrNoActiveFile = errors.New("session has no active file")
	// ErrFileClosed is returned when a report targets a file that is
	// already completed, skipped or blocked.
	ErrFileClosed = errors.New("file is closed")
	// ErrInvalidBatchOperation is returned for an unknown batch operation.
	ErrInvalidBatchOperation = errors.New("invalid batch operation")
)

const (
	// DefaultRetention is how long an untouched session is kept.
	DefaultRetention = 7 * 24 * time.Hour
	// DefaultTokenTTL is how long a dry-run confirmation token stays valid.
	DefaultTokenTTL = 10 * time.Minute
	// DefaultScanTimeout bounds the autonomous scan when the definition sets none.
	DefaultScanTimeout = 30 * time.Second
)

// Options wires an Engine. Store and Registry are required.
type Options struct {
	// Root is the workspace root used for discovery and scanning. Empty
	// makes StartWorkflow fail with session.ErrWorkspaceNotBound.
	Root     string
	Store    session.Store
	Registry definition.Lookup
	Now      func() time.Time
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Tracer   *trace.Tracer
	Journal  *history.Journal
	// TokenKey signs batch confirmation tokens. Nil generates a
	// process-local key, so tokens do not survive a restart.
	TokenKey        []byte
	TokenTTL        time.Duration
	ScanTimeout     time.Duration
	ScanConcurrency int
	// MaxFiles caps discovery when the caller sets no cap (0 = unlimited).
	MaxFiles int
}

// Engine drives workflow sessions. Safe for concurrent use; mutations of one
// session are serialized through the store's session lock.
type Engine struct {
	root            string
	store           session.Store
	defs            definition.Lookup
	now             func() time.Time
	log             *slog.Logger
	metrics         *metrics.Metrics
	tracer          *trace.Tracer
	journal         *history.Journal
	tokenKey        []byte
	tokenTTL        time.Duration
	scanTimeout     time.Duration
	scanConcurrency int
	maxFiles        int
}

// New validates opts and returns an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("engine: session store is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("engine: definition registry is required")
	}
	e := &Engine{
		root:            opts.Root,
		store:           opts.Store,
		defs:            opts.Registry,
		now:             opts.Now,
		log:             opts.Logger,
		metrics:         opts.Metrics,
		tracer:          opts.Tracer,
		journal:         opts.Journal,
		tokenKey:        opts.TokenKey,
		tokenTTL:        opts.TokenTTL,
		scanTimeout:     opts.ScanTimeout,
		scanConcurrency: opts.ScanConcurrency,
		maxFiles:        opts.MaxFiles,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.log == nil {
		e.log = logging.Discard()
	}
	if e.tokenTTL <= 0 {
		e.tokenTTL = DefaultTokenTTL
	}
	if e.scanTimeout <= 0 {
		e.scanTimeout = DefaultScanTimeout
	}
	if e.scanConcurrency <= 0 {
		e.scanConcurrency = 1
	}
	if len(e.tokenKey) == 0 {
		e.tokenKey = make([]byte, tokenKeySize)
		if _, err := rand.Read(e.tokenKey); err != nil {
			return nil, fmt.Errorf("engine: generate token key: %w", err)
		}
	}
	return e, nil
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// withSession runs fn on the locked, freshly loaded session. When fn
// returns true the session is touched and persisted.
func (e *Engine) withSession(ctx context.Context, id string, fn func(s *session.Session) (bool, error)) (*session.Session, error) {
	release, err := e.store.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()
	s, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := fn(s)
	if err != nil {
		return nil, err
	}
	if changed {
		s.Touch(e.clock())
		if err := e.persist(ctx, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// persist writes s. Missing sessions and an unbound workspace are returned;
// any other write failure is logged and counted, and the call proceeds with
// the in-memory state.
func (e *Engine) persist(ctx context.Context, s *session.Session) error {
	err := e.store.Update(ctx, s)
	if err == nil {
		return nil
	}
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrWorkspaceNotBound) {
		return err
	}
	e.metrics.RecordPersistFailure()
	e.log.Warn("session write failed; state is not durable until the next successful write",
		"session", s.ID, "error", err)
	return nil
}

func (e *Engine) record(rec history.Record) {
	if rec.At.IsZero() {
		rec.At = e.clock()
	}
	if err := e.journal.Append(rec); err != nil {
		e.log.Warn("history append failed", "session", rec.SessionID, "event", rec.Event, "error", err)
	}
}

// definitionFor returns the session's definition. A definition that has since
// been removed falls back to zero rules so existing sessions stay usable.
func (e *Engine) definitionFor(s *session.Session) definition.Definition {
	def, err := e.defs.Get(s.WorkflowType)
	if err != nil {
		e.log.Warn("workflow definition unavailable; using default rules", "session", s.ID, "workflow_type", s.WorkflowType, "error", err)
		return definition.Definition{Type: s.WorkflowType}
	}
	return def
}

// refreshStatus recomputes counters and the session status. It reports
// whether the session became completed.
func refreshStatus(s *session.Session, def definition.Definition) bool {
	s.RecountFiles()
	s.RecountInstances()
	was := s.Status
	switch {
	case s.Done(def.CompletionRules.AllowSkippedFiles):
		s.Status = session.StatusCompleted
		s.StatusReason = ""
		s.CompletePhases()
	case !anyActive(s):
		s.Status = session.StatusBlocked
		s.StatusReason = "no pending work remains but some files are blocked or skipped"
	default:
		s.Status = session.StatusInProgress
		s.StatusReason = ""
	}
	return s.Status == session.StatusCompleted && was != session.StatusCompleted
}

// anyActive reports whether some file is still pending or in progress.
func anyActive(s *session.Session) bool {
	for _, f := range s.FileInventory {
		if f.Status == session.FilePending || f.Status == session.FileInProgress {
			return true
		}
	}
	return false
}
