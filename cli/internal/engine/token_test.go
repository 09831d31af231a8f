package engine

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateKey(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state", "batch.key")
	k1, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Len(t, k1, tokenKeySize)
	k2, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	require.NoError(t, os.WriteFile(path, []byte("not hex"), 0600))
	_, err = LoadOrCreateKey(path)
	require.Error(t, err)
}

func TestToken_filterOrderDoesNotMatter(t *testing.T) {
	t.Parallel()
	e := &Engine{tokenKey: []byte("k")}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := tokenClaims{SessionID: "s", Operation: OpSkip, Filter: BatchFilter{InstanceTypes: []string{"b", "a"}}, State: []byte{1}}
	tok := e.signToken(c, now.Add(time.Minute))

	c.Filter.InstanceTypes = []string{"a", "b"}
	assert.NoError(t, e.verifyToken(tok, c, now))

	c.State = []byte{2}
	assert.ErrorIs(t, e.verifyToken(tok, c, now), errTokenMismatch)

	c.State = []byte{1}
	assert.ErrorIs(t, e.verifyToken(tok, c, now.Add(time.Minute)), errTokenExpired)
	assert.ErrorIs(t, e.verifyToken("", c, now), errTokenMissing)
	assert.ErrorIs(t, e.verifyToken("12.zz", c, now), errTokenMalformed)
}
