package engine

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const tokenKeySize = 32

// Token rejection reasons.
var (
	errTokenMissing   = errors.New("confirmation token is required; run a dry run first")
	errTokenMalformed = errors.New("confirmation token is malformed")
	errTokenExpired   = errors.New("confirmation token has expired; run a new dry run")
	errTokenMismatch  = errors.New("confirmation token does not match this operation or the session changed since the dry run")
)

// LoadOrCreateKey reads the batch signing key at path, creating it with a
// fresh random key when missing so tokens survive process restarts.
func LoadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, derr := hex.DecodeString(strings.TrimSpace(string(data)))
		if derr != nil || len(key) != tokenKeySize {
			return nil, fmt.Errorf("batch key %s: invalid contents", path)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("batch key %s: %w", path, err)
	}
	key := make([]byte, tokenKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("batch key: generate: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("batch key %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			// Another process won the race; use its key.
			return LoadOrCreateKey(path)
		}
		return nil, fmt.Errorf("batch key %s: %w", path, err)
	}
	if _, err := f.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("batch key %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("batch key %s: %w", path, err)
	}
	return key, nil
}

// tokenClaims is what a confirmation token binds: the session, the exact
// operation and filter, and a digest of the session state the preview was
// computed on.
type tokenClaims struct {
	SessionID string
	Operation string
	Filter    BatchFilter
	State     []byte
}

// signToken returns "<expiry unix>.<hex hmac>".
func (e *Engine) signToken(c tokenClaims, expires time.Time) string {
	exp := strconv.FormatInt(expires.Unix(), 10)
	return exp + "." + hex.EncodeToString(e.mac(c, exp))
}

// verifyToken checks token against c at now.
func (e *Engine) verifyToken(token string, c tokenClaims, now time.Time) error {
	if token == "" {
		return errTokenMissing
	}
	exp, sig, ok := strings.Cut(token, ".")
	if !ok {
		return errTokenMalformed
	}
	unix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return errTokenMalformed
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return errTokenMalformed
	}
	if !hmac.Equal(got, e.mac(c, exp)) {
		return errTokenMismatch
	}
	if !now.Before(time.Unix(unix, 0)) {
		return errTokenExpired
	}
	return nil
}

func (e *Engine) mac(c tokenClaims, exp string) []byte {
	h := hmac.New(sha256.New, e.tokenKey)
	h.Write([]byte(c.SessionID))
	h.Write([]byte{0})
	h.Write([]byte(c.Operation))
	h.Write([]byte{0})
	h.Write(canonicalFilter(c.Filter))
	h.Write([]byte{0})
	h.Write(c.State)
	h.Write([]byte{0})
	h.Write([]byte(exp))
	return h.Sum(nil)
}

// canonicalFilter encodes f with its list fields sorted so equivalent
// filters sign identically.
func canonicalFilter(f BatchFilter) []byte {
	f.InstanceTypes = slices.Sorted(slices.Values(f.InstanceTypes))
	statuses := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		statuses[i] = string(s)
	}
	slices.Sort(statuses)
	data, _ := json.Marshal(struct {
		InstanceTypes   []string `json:"t"`
		FilePattern     string   `json:"p"`
		AutoFixableOnly bool     `json:"a"`
		Statuses        []string `json:"s"`
	}{f.InstanceTypes, f.FilePattern, f.AutoFixableOnly, statuses})
	return data
}
