package fsops

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSDeleterRemoveAllReportsVanished(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "cache")
	require.NoError(t, os.MkdirAll(filepath.Join(sub, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "a", "x"), []byte("x"), 0o644))

	var d OSDeleter
	require.NoError(t, d.RemoveAll(sub))
	assert.NoDirExists(t, sub)

	assert.ErrorIs(t, d.RemoveAll(sub), os.ErrNotExist)
	assert.ErrorIs(t, d.Remove(filepath.Join(dir, "nope")), os.ErrNotExist)
}

func TestFakeDeleterRecordsAndInjects(t *testing.T) {
	boom := errors.New("boom")
	f := &FakeDeleter{Errors: map[string]error{"/b": boom}}

	assert.NoError(t, f.Remove("/a"))
	assert.ErrorIs(t, f.RemoveAll("/b"), boom)
	assert.Equal(t, []string{"rm:/a", "rmall:/b"}, f.Calls)
	assert.Equal(t, 2, f.CallCount())
}
