// Package badgerstore is a session.Store backed by an embedded BadgerDB.
//
// Keys:
//
//	session/<id>          JSON-encoded session.Session
//	report/<id>.<ext>     rendered report bytes
//
// Badger holds an exclusive directory lock, so a second process opening the
// same path fails at Open; within the process, writers of one session are
// serialized with a per-session mutex.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"sift/cli/internal/session"
)

const (
	sessionPrefix = "session/"
	reportPrefix  = "report/"
)

// Config holds configuration for the badger-backed store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in RAM; used by tests.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// DefaultConfig returns a durable configuration at path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store implements session.Store on BadgerDB.
type Store struct {
	db *badger.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ session.Store = (*Store)(nil)

// Open opens (creating if needed) the database described by cfg. An empty
// Path without InMemory returns session.ErrWorkspaceNotBound.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, session.ErrWorkspaceNotBound
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

func sessionKey(id string) []byte { return []byte(sessionPrefix + id) }

// Create stores a new session; an existing id fails with session.ErrExists.
func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sess == nil || !session.ValidID(sess.ID) {
		return errors.New("badgerstore: session id is invalid")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("badgerstore: encode session: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(sess.ID)); err == nil {
			return fmt.Errorf("%w: %s", session.ErrExists, sess.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(sessionKey(sess.ID), data)
	})
}

// Get decodes the stored session. Every call returns a fresh value.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !session.ValidID(id) {
		return nil, fmt.Errorf("%w: %q", session.ErrNotFound, id)
	}
	var out session.Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("badgerstore: get %s: %w", id, err)
	}
	return &out, nil
}

// Update overwrites an existing session.
func (s *Store) Update(ctx context.Context, sess *session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sess == nil {
		return errors.New("badgerstore: nil session")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("badgerstore: encode session: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(sess.ID)); err != nil {
			return err
		}
		return txn.Set(sessionKey(sess.ID), data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", session.ErrNotFound, sess.ID)
	}
	return err
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(id)); err != nil {
			return err
		}
		return txn.Delete(sessionKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	return err
}

// List returns every session ordered by CreatedAt, then ID.
func (s *Store) List(ctx context.Context) ([]*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*session.Session
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var sess session.Session
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sess)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, &sess)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) sessionMutex(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	return m
}

// Lock takes the in-process writer lock for id.
func (s *Store) Lock(ctx context.Context, id string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := s.sessionMutex(id)
	m.Lock()
	return m.Unlock, nil
}

// SaveReport stores content under report/<id>.<ext>.
func (s *Store) SaveReport(ctx context.Context, id, format string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := []byte(reportPrefix + id + "." + session.ReportExt(format))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, content)
	})
}

// Report returns a stored report.
func (s *Store) Report(id, format string) ([]byte, error) {
	key := []byte(reportPrefix + id + "." + session.ReportExt(format))
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: report for %s", session.ErrNotFound, id)
	}
	return out, err
}

// Cleanup deletes sessions last updated before cutoff, skipping any whose
// writer lock is held.
func (s *Store) Cleanup(ctx context.Context, cutoff time.Time) ([]string, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var deleted []string
	for _, sess := range all {
		if !sess.UpdatedAt.Before(cutoff) {
			continue
		}
		m := s.sessionMutex(sess.ID)
		if !m.TryLock() {
			continue
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(sessionKey(sess.ID))
		})
		m.Unlock()
		if err != nil {
			return deleted, fmt.Errorf("badgerstore: delete %s: %w", sess.ID, err)
		}
		deleted = append(deleted, sess.ID)
	}
	return deleted, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
