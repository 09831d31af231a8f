package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for an unknown or expired session id.
	ErrNotFound = errors.New("session not found")
	// ErrWorkspaceNotBound is returned when the store has no root directory.
	ErrWorkspaceNotBound = errors.New("workspace root not configured")
	// ErrLocked indicates another writer holds the session lock.
	ErrLocked = errors.New("session is locked by another process")
	// ErrExists is returned by Create when the id is already stored.
	ErrExists = errors.New("session already exists")
)

// Store persists sessions. Implementations return deep copies from Get and
// List so callers can mutate freely, and write the full session on every
// Create and Update.
//
// Callers serialize mutations of one session by holding Lock for the
// duration of a read-modify-write. Different ids are independent.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// Update overwrites the stored session. The in-memory index is updated
	// even when the durable write fails; the error reports the failed write.
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// List returns all sessions ordered by CreatedAt, then ID.
	List(ctx context.Context) ([]*Session, error)
	// Lock takes the per-session writer lock. It returns ErrLocked when
	// another process holds it.
	Lock(ctx context.Context, id string) (release func(), err error)
	// SaveReport stores a generated report keyed by session id and format.
	SaveReport(ctx context.Context, id, format string, content []byte) error
	// Cleanup deletes sessions whose UpdatedAt is before cutoff, skipping
	// any session currently locked. It returns the deleted ids.
	Cleanup(ctx context.Context, cutoff time.Time) ([]string, error)
	Close() error
}
