package history

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"sift/cli/internal/erruser"
)

const (
	activeName = "history.jsonl"
	// Archives are history.jsonl.<n>.gz, n starting at 1 and growing.
	archivePrefix = activeName + "."
	archiveSuffix = ".gz"
	keepArchives  = 5
)

// Journal appends Records to <Dir>/history.jsonl. Appends from one process
// are serialized. A nil *Journal or one with an empty Dir discards records.
type Journal struct {
	Dir string
	// MaxRecords bounds the active file; older lines move to a gzip
	// archive. 0 never rotates.
	MaxRecords int

	mu sync.Mutex
	// lines counts the active file; -1 until first counted. Another
	// process appending only delays rotation, which recounts from disk.
	lines int
}

// NewJournal returns a journal under dir. maxRecords <= 0 never rotates.
func NewJournal(dir string, maxRecords int) *Journal {
	return &Journal{Dir: dir, MaxRecords: max(maxRecords, 0), lines: -1}
}

func (j *Journal) activePath() string { return filepath.Join(j.Dir, activeName) }

// Append writes rec as one JSON line and rotates when the active file
// exceeds MaxRecords.
func (j *Journal) Append(rec Record) error {
	if j == nil || j.Dir == "" {
		return nil
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return erruser.New("Could not record session history.", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.MkdirAll(j.Dir, 0755); err != nil {
		return erruser.New("Could not create state directory for history.", err)
	}
	if j.lines < 0 {
		n, err := countLines(j.activePath())
		if err != nil {
			return erruser.New("Could not read session history.", err)
		}
		j.lines = n
	}
	if err := appendLine(j.activePath(), line); err != nil {
		return erruser.New("Could not record session history.", err)
	}
	j.lines++
	if j.MaxRecords > 0 && j.lines > j.MaxRecords {
		if err := j.rotate(); err != nil {
			return erruser.New("Could not rotate session history.", err)
		}
	}
	return nil
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// rotate moves all but the newest MaxRecords lines into the next archive,
// rewrites the active file through a temp file, and prunes old archives.
func (j *Journal) rotate() error {
	lines, err := readLines(j.activePath())
	if err != nil {
		return err
	}
	j.lines = len(lines)
	if len(lines) <= j.MaxRecords {
		return nil
	}
	cut := len(lines) - j.MaxRecords
	archives, err := j.archives()
	if err != nil {
		return err
	}
	next := 1
	if len(archives) > 0 {
		next = archives[len(archives)-1].n + 1
	}
	if err := writeArchive(filepath.Join(j.Dir, archiveName(next)), lines[:cut]); err != nil {
		return err
	}
	if err := writeAtomic(j.activePath(), bytes.Join(lines[cut:], nil)); err != nil {
		return err
	}
	j.lines = j.MaxRecords
	return j.prune()
}

func (j *Journal) prune() error {
	archives, err := j.archives()
	if err != nil {
		return err
	}
	for len(archives) > keepArchives {
		if err := os.Remove(filepath.Join(j.Dir, archives[0].name)); err != nil {
			return err
		}
		archives = archives[1:]
	}
	return nil
}

type archive struct {
	n    int
	name string
}

func archiveName(n int) string { return archivePrefix + strconv.Itoa(n) + archiveSuffix }

// archives lists the journal's archives, oldest first.
func (j *Journal) archives() ([]archive, error) {
	matches, err := filepath.Glob(filepath.Join(j.Dir, archivePrefix+"*"+archiveSuffix))
	if err != nil {
		return nil, err
	}
	var out []archive
	for _, m := range matches {
		name := filepath.Base(m)
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, archivePrefix), archiveSuffix))
		if err != nil || n < 1 {
			continue
		}
		out = append(out, archive{n: n, name: name})
	}
	slices.SortFunc(out, func(a, b archive) int { return a.n - b.n })
	return out, nil
}

func writeArchive(path string, lines [][]byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(f)
	for _, l := range lines {
		if _, err := zw.Write(l); err != nil {
			f.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".history-*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readLines returns the non-blank lines of path, each with its newline.
// A missing file has no lines.
func readLines(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out [][]byte
	for _, l := range bytes.SplitAfter(data, []byte("\n")) {
		if len(bytes.TrimSpace(l)) == 0 {
			continue
		}
		if l[len(l)-1] != '\n' {
			l = append(l, '\n')
		}
		out = append(out, l)
	}
	return out, nil
}

func countLines(path string) (int, error) {
	lines, err := readLines(path)
	return len(lines), err
}

// Records returns the journal filtered by session id (empty = all), oldest
// first, keeping only the last n when n > 0.
func (j *Journal) Records(sessionID string, n int) ([]Record, error) {
	if j == nil || j.Dir == "" {
		return nil, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	all, err := j.readAll()
	if err != nil {
		return nil, err
	}
	return Last(ForSession(all, sessionID), n), nil
}

// readAll decodes the archives in order and then the active file.
func (j *Journal) readAll() ([]Record, error) {
	archives, err := j.archives()
	if err != nil {
		return nil, erruser.New("Could not read history directory.", err)
	}
	var out []Record
	for _, a := range archives {
		recs, err := readArchive(filepath.Join(j.Dir, a.name))
		if err != nil {
			return nil, erruser.New("Could not read history archive "+a.name+".", err)
		}
		out = append(out, recs...)
	}
	f, err := os.Open(j.activePath())
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, erruser.New("Could not read history file.", err)
	}
	defer f.Close()
	recs, err := decodeRecords(f)
	if err != nil {
		return nil, erruser.New("Could not read history file.", err)
	}
	return append(out, recs...), nil
}

func readArchive(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return decodeRecords(zr)
}

// decodeRecords reads consecutive JSON records; blank lines are ignored.
func decodeRecords(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	var out []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
}

// ForSession returns the records for id; an empty id returns all records.
func ForSession(records []Record, id string) []Record {
	if id == "" {
		return records
	}
	var out []Record
	for _, r := range records {
		if r.SessionID == id {
			out = append(out, r)
		}
	}
	return out
}

// Last returns the final n records (all when n <= 0).
func Last(records []Record, n int) []Record {
	if n <= 0 || len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}
