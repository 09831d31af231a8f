package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"sift/cli/internal/erruser"
)

const (
	sessionExt = ".json"
	lockExt    = ".lock"
)

// FileStore keeps an in-memory index of sessions backed by one JSON file per
// session under sessionsDir. Reports go under reportsDir.
type FileStore struct {
	sessionsDir string
	reportsDir  string

	mu    sync.Mutex
	index map[string]*Session
	locks map[string]*sync.Mutex
}

// NewFileStore returns a store rooted at sessionsDir. An empty sessionsDir
// makes every call fail with ErrWorkspaceNotBound. Directories are created
// on first write.
func NewFileStore(sessionsDir, reportsDir string) *FileStore {
	return &FileStore{
		sessionsDir: sessionsDir,
		reportsDir:  reportsDir,
		index:       make(map[string]*Session),
		locks:       make(map[string]*sync.Mutex),
	}
}

func (fs *FileStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if fs.sessionsDir == "" {
		return ErrWorkspaceNotBound
	}
	return nil
}

func (fs *FileStore) sessionPath(id string) string {
	return filepath.Join(fs.sessionsDir, id+sessionExt)
}

// Create stores a new session. It fails with ErrExists if the id is taken.
func (fs *FileStore) Create(ctx context.Context, s *Session) error {
	if err := fs.check(ctx); err != nil {
		return err
	}
	if s == nil || !ValidID(s.ID) {
		return erruser.New("Cannot store a session without a valid id.", nil)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.index[s.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, s.ID)
	}
	if _, err := os.Stat(fs.sessionPath(s.ID)); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, s.ID)
	}
	fs.index[s.ID] = s.Clone()
	return fs.write(s)
}

// Get returns a copy of the session, reading it from disk when it is not
// yet indexed (e.g. after a restart).
func (fs *FileStore) Get(ctx context.Context, id string) (*Session, error) {
	if err := fs.check(ctx); err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	s, err := fs.loadLocked(id)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// loadLocked returns the indexed session, reading it from disk if needed.
// fs.mu must be held.
func (fs *FileStore) loadLocked(id string) (*Session, error) {
	if s, ok := fs.index[id]; ok {
		return s, nil
	}
	data, err := os.ReadFile(fs.sessionPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, erruser.New("Could not read session file.", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, erruser.New(fmt.Sprintf("Session file for %s is invalid or corrupted.", id), err)
	}
	fs.index[id] = &s
	return &s, nil
}

// Update overwrites the session. The index always takes the new value; the
// returned error, if any, is from the durable write.
func (fs *FileStore) Update(ctx context.Context, s *Session) error {
	if err := fs.check(ctx); err != nil {
		return err
	}
	if s == nil {
		return erruser.New("Cannot save nil session.", nil)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, err := fs.loadLocked(s.ID); err != nil {
		return err
	}
	fs.index[s.ID] = s.Clone()
	return fs.write(s)
}

// Delete removes the session file and its lock file.
func (fs *FileStore) Delete(ctx context.Context, id string) error {
	if err := fs.check(ctx); err != nil {
		return err
	}
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.deleteLocked(id)
}

func (fs *FileStore) deleteLocked(id string) error {
	_, indexed := fs.index[id]
	delete(fs.index, id)
	err := os.Remove(fs.sessionPath(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return erruser.New("Could not delete session file.", err)
	}
	_ = os.Remove(filepath.Join(fs.sessionsDir, id+lockExt))
	if err != nil && !indexed {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// List loads every session file under the sessions directory.
func (fs *FileStore) List(ctx context.Context) ([]*Session, error) {
	if err := fs.check(ctx); err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.loadAllLocked(); err != nil {
		return nil, err
	}
	out := make([]*Session, 0, len(fs.index))
	for _, s := range fs.index {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (fs *FileStore) loadAllLocked() error {
	entries, err := os.ReadDir(fs.sessionsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return erruser.New("Could not list sessions.", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, sessionExt) {
			continue
		}
		id := strings.TrimSuffix(name, sessionExt)
		if !ValidID(id) {
			continue
		}
		if _, err := fs.loadLocked(id); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FileStore) sessionMutex(id string) *sync.Mutex {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	m, ok := fs.locks[id]
	if !ok {
		m = &sync.Mutex{}
		fs.locks[id] = m
	}
	return m
}

// Lock serializes writers of one session: an in-process mutex plus an
// advisory lock file for other processes.
func (fs *FileStore) Lock(ctx context.Context, id string) (func(), error) {
	if err := fs.check(ctx); err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	m := fs.sessionMutex(id)
	m.Lock()
	release, err := fs.lockFile(id)
	if err != nil {
		m.Unlock()
		return nil, err
	}
	return func() {
		release()
		m.Unlock()
	}, nil
}

// tryLock is Lock without waiting on the in-process mutex.
func (fs *FileStore) tryLock(id string) (func(), bool) {
	m := fs.sessionMutex(id)
	if !m.TryLock() {
		return nil, false
	}
	release, err := fs.lockFile(id)
	if err != nil {
		m.Unlock()
		return nil, false
	}
	return func() {
		release()
		m.Unlock()
	}, true
}

func (fs *FileStore) lockFile(id string) (func(), error) {
	if err := os.MkdirAll(fs.sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("session lock: create sessions dir: %w", err)
	}
	return lockFile(filepath.Join(fs.sessionsDir, id+lockExt))
}

// SaveReport writes reportsDir/<id>.<format>.
func (fs *FileStore) SaveReport(ctx context.Context, id, format string, content []byte) error {
	if err := fs.check(ctx); err != nil {
		return err
	}
	if fs.reportsDir == "" {
		return ErrWorkspaceNotBound
	}
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return writeFileAtomic(filepath.Join(fs.reportsDir, id+"."+ReportExt(format)), content)
}

// Cleanup deletes sessions last updated before cutoff. Sessions held by a
// writer are left for a later run.
func (fs *FileStore) Cleanup(ctx context.Context, cutoff time.Time) ([]string, error) {
	expired, err := fs.List(ctx)
	if err != nil {
		return nil, err
	}
	var deleted []string
	for _, s := range expired {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if !s.UpdatedAt.Before(cutoff) {
			continue
		}
		release, ok := fs.tryLock(s.ID)
		if !ok {
			continue
		}
		fs.mu.Lock()
		err := fs.deleteLocked(s.ID)
		fs.mu.Unlock()
		release()
		if err != nil {
			return deleted, err
		}
		deleted = append(deleted, s.ID)
	}
	return deleted, nil
}

// Close is a no-op; every write is already durable.
func (fs *FileStore) Close() error { return nil }

func (fs *FileStore) write(s *Session) error {
	if err := os.MkdirAll(fs.sessionsDir, 0755); err != nil {
		return erruser.New("Could not create sessions directory.", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return erruser.New("Could not save session.", err)
	}
	return writeFileAtomic(fs.sessionPath(s.ID), data)
}

// writeFileAtomic writes data to a temp file in the same directory, syncs it
// and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return erruser.New("Could not create directory.", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return erruser.New("Could not save file.", err)
	}
	tmpPath := f.Name()
	defer func() { _ = os.Remove(tmpPath) }()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return erruser.New("Could not save file.", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return erruser.New("Could not save file.", err)
	}
	if err := f.Close(); err != nil {
		return erruser.New("Could not save file.", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return erruser.New("Could not save file.", err)
	}
	return nil
}

// ReportExt maps a report format to its file extension.
func ReportExt(format string) string {
	switch strings.ToLower(format) {
	case "json":
		return "json"
	default:
		return "md"
	}
}
