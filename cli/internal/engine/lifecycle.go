package engine

import (
	"context"
	"time"

	"sift/cli/internal/history"
	"sift/cli/internal/report"
	"sift/cli/internal/session"
)

// GetNextAction loads the session and returns its next action. It never
// changes the session.
func (e *Engine) GetNextAction(ctx context.Context, id string) (Action, error) {
	s, err := e.store.Get(ctx, id)
	if err != nil {
		return Action{}, err
	}
	a := NextAction(s)
	e.tracer.Section("Next action")
	e.tracer.Printf("%s file=%s item=%s\n", a.Type, a.File, a.ItemID)
	return a, nil
}

// GetSession returns a copy of the stored session.
func (e *Engine) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return e.store.Get(ctx, id)
}

// ListSessions returns every stored session, oldest first.
func (e *Engine) ListSessions(ctx context.Context) ([]*session.Session, error) {
	return e.store.List(ctx)
}

// DeleteSession removes a session. Its saved reports are kept.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}
	e.log.Info("session deleted", "session", id)
	e.record(history.Record{SessionID: id, Event: history.EventDelete})
	return nil
}

// GenerateReport renders the session in format and saves it under the
// session id. A failed save is logged; the rendered report is still returned.
func (e *Engine) GenerateReport(ctx context.Context, id string, format report.Format) (string, error) {
	s, err := e.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	out, err := report.Generate(s, format)
	if err != nil {
		return "", err
	}
	if err := e.store.SaveReport(ctx, id, string(format), []byte(out)); err != nil {
		e.log.Warn("report save failed", "session", id, "format", format, "error", err)
	}
	e.record(history.Record{SessionID: id, Event: history.EventReport, Detail: string(format)})
	return out, nil
}

// CleanupResult lists the sessions removed by Cleanup.
type CleanupResult struct {
	Deleted []string  `json:"deleted"`
	Cutoff  time.Time `json:"cutoff"`
}

// Cleanup deletes sessions whose last update is older than retention
// (DefaultRetention when retention <= 0). Locked sessions are skipped.
func (e *Engine) Cleanup(ctx context.Context, retention time.Duration) (CleanupResult, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	now := e.clock()
	res := CleanupResult{Cutoff: now.Add(-retention), Deleted: []string{}}
	deleted, err := e.store.Cleanup(ctx, res.Cutoff)
	res.Deleted = append(res.Deleted, deleted...)
	for _, id := range deleted {
		e.log.Info("expired session removed", "session", id, "cutoff", res.Cutoff)
		e.record(history.Record{SessionID: id, Event: history.EventCleanup, At: now})
	}
	return res, err
}
