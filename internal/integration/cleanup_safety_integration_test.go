package integration

import (
	"context"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"sdclean/internal/config"
	"sdclean/internal/database"
	"sdclean/internal/events"
	"sdclean/internal/job"
	"sdclean/internal/metrics"
	"sdclean/internal/safety"
	"sdclean/internal/scheduler"
)

func init() {
	metrics.Init()
}

type storage struct {
	root string
	cfg  *config.Config
	db   *database.HistoryDB
	rec  *events.Recorder
}

// newStorage lays out a small shared-storage tree and a config protecting
// its media folders.
func newStorage(t *testing.T) *storage {
	t.Helper()
	root := t.TempDir()
	files := map[string]int{
		"DCIM/Camera/IMG_0001.jpg":       64,
		"DCIM/.thumbnails/cache/t.tmp":   8,
		"Pictures/a.tmp":                 8,
		"Download/b.tmp":                 32,
		"Download/report.pdf":            16,
		"Download/film.crdownload":       48,
		"Android/data/com.app/cache/x":   12,
		"Android/data/com.app/files/y":   12,
		"Notes/todo.txt":                 4,
		"Notes/old.bak":                  4,
		"emptyish/inner/scratch.log":     2,
	}
	for rel, size := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(strings.Repeat("z", size)), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Movies"), 0o755))

	state := filepath.Join(t.TempDir(), "state")
	yml := fmt.Sprintf(`
state_dir: %s
protected_paths: [%s, %s, %s]
jobs:
  - name: shared-junk
    roots: [%s]
    empty_dirs:
      enabled: true
      keep_top_level: true
`, state, filepath.Join(root, "DCIM"), filepath.Join(root, "Pictures"), filepath.Join(root, "Movies"), root)
	cfg, err := config.Parse(strings.NewReader(yml))
	require.NoError(t, err)

	db, err := database.NewHistoryDB(cfg.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &storage{root: root, cfg: cfg, db: db, rec: &events.Recorder{}}
}

func (s *storage) path(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

func (s *storage) run(t *testing.T, name string, dryRun bool) *job.RunResult {
	t.Helper()
	guard, err := safety.NewGuard(s.cfg.ProtectedPaths...)
	require.NoError(t, err)
	runner := job.NewRunner(guard, zerolog.Nop())
	runner.SetSink(events.Multi{s.rec, s.db})

	jc, ok := job.Lookup(s.cfg, name)
	require.True(t, ok)
	def, err := job.Build(s.cfg, jc)
	require.NoError(t, err)

	outs, err := scheduler.RunJobs(context.Background(), runner, []job.Definition{def}, dryRun, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, outs[0].Err)
	return outs[0].Result
}

// snapshot hashes every entry under root: type, mode, size and content.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		info, err := d.Info()
		require.NoError(t, err)
		sig := fmt.Sprintf("%v|%d|%d", info.Mode(), info.Size(), info.ModTime().UnixNano())
		if info.Mode().IsRegular() {
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			sum := blake3.Sum256(data)
			sig += "|" + hex.EncodeToString(sum[:])
		}
		out[path] = sig
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestProtectedScenario(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"DCIM/a.tmp", "Download/b.tmp"} {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	guard, err := safety.NewGuard(filepath.Join(root, "DCIM"))
	require.NoError(t, err)
	cfg, err := config.Parse(strings.NewReader(`junk_globs: ["*.tmp"]`))
	require.NoError(t, err)
	def, err := job.Build(cfg, config.JobCfg{Name: "scenario", Roots: []string{root}})
	require.NoError(t, err)

	runner := job.NewRunner(guard, zerolog.Nop())
	runner.SetSink(events.Discard)
	want := []string{filepath.Join(root, "Download", "b.tmp")}

	preview, err := runner.Run(context.Background(), def, true)
	require.NoError(t, err)
	assert.Equal(t, want, preview.Previewed)

	live, err := runner.Run(context.Background(), def, false)
	require.NoError(t, err)
	assert.Equal(t, want, live.Deleted)
	assert.FileExists(t, filepath.Join(root, "DCIM", "a.tmp"))
}

func TestDryRunIsByteIdenticalAndMatchesLive(t *testing.T) {
	s := newStorage(t)
	before := snapshot(t, s.root)

	preview := s.run(t, "shared-junk", true)
	assert.Equal(t, before, snapshot(t, s.root), "dry-run changed the filesystem")
	assert.Empty(t, preview.Deleted)
	assert.Empty(t, preview.Failures)

	live := s.run(t, "shared-junk", false)
	assert.Equal(t, preview.Previewed, live.Deleted)
	assert.Equal(t, preview.Bytes, live.Bytes)
	assert.Empty(t, live.Failures)

	assert.ElementsMatch(t, []string{
		s.path("Android/data/com.app/cache"),
		s.path("Download/b.tmp"),
		s.path("Download/film.crdownload"),
		s.path("Notes/old.bak"),
		s.path("emptyish/inner/scratch.log"),
		s.path("emptyish/inner"),
	}, live.Deleted)

	// Protected folders and everything in them survive, junk-named or not.
	for _, rel := range []string{
		"DCIM/Camera/IMG_0001.jpg",
		"DCIM/.thumbnails/cache/t.tmp",
		"Pictures/a.tmp",
		"Download/report.pdf",
		"Notes/todo.txt",
		"Android/data/com.app/files/y",
	} {
		assert.FileExists(t, s.path(rel))
	}
	assert.DirExists(t, s.path("Movies"), "empty protected folder is kept")
	assert.DirExists(t, s.path("emptyish"), "top-level folder is kept")
}

func TestSecondLiveRunDeletesNothing(t *testing.T) {
	s := newStorage(t)
	first := s.run(t, "shared-junk", false)
	require.NotEmpty(t, first.Deleted)

	second := s.run(t, "shared-junk", false)
	assert.Empty(t, second.Deleted)
	assert.Empty(t, second.Failures)
	assert.Zero(t, second.Bytes)
}

func TestCacheWithManyFilesIsOneCandidate(t *testing.T) {
	s := newStorage(t)
	cache := s.path("Android/data/com.big/cache")
	for i := 0; i < 500; i++ {
		p := filepath.Join(cache, fmt.Sprintf("d%02d", i%10), fmt.Sprintf("f%03d.bin", i))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("12345678"), 0o644))
	}

	res := s.run(t, "shared-junk", false)
	var under []string
	for _, p := range res.Deleted {
		if safety.WithinPath(p, cache) {
			under = append(under, p)
		}
	}
	assert.Equal(t, []string{cache}, under)
	assert.NoDirExists(t, cache)

	var rec []events.Event
	for _, e := range s.rec.Events() {
		if e.Path == cache {
			rec = append(rec, e)
		}
	}
	require.Len(t, rec, 1)
	assert.Equal(t, "subtree", rec[0].Kind)
	assert.Equal(t, int64(500*8), rec[0].Bytes)
}

func TestPermissionDeniedIsOneReadError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	s := newStorage(t)
	locked := s.path("Locked")
	require.NoError(t, os.MkdirAll(locked, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(locked, "hidden.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	res := s.run(t, "shared-junk", false)
	require.Len(t, res.ReadErrors, 1)
	assert.Equal(t, locked, res.ReadErrors[0].Path)
	assert.ErrorIs(t, res.ReadErrors[0].Err, fs.ErrPermission)
	assert.Contains(t, res.Deleted, s.path("Notes/old.bak"), "siblings still cleaned")
}

func TestSymlinkToProtectedIsNeverFollowed(t *testing.T) {
	s := newStorage(t)
	link := s.path("Download/photo.tmp")
	require.NoError(t, os.Symlink(s.path("DCIM/Camera/IMG_0001.jpg"), link))
	dirLink := s.path("Download/cache")
	require.NoError(t, os.Symlink(s.path("DCIM"), dirLink))

	res := s.run(t, "shared-junk", false)
	assert.NotContains(t, res.Deleted, link)
	assert.NotContains(t, res.Deleted, dirLink)
	assert.FileExists(t, s.path("DCIM/Camera/IMG_0001.jpg"))
	assert.FileExists(t, s.path("DCIM/.thumbnails/cache/t.tmp"))
}

func TestHistoryRecordsEveryEvent(t *testing.T) {
	s := newStorage(t)
	res := s.run(t, "shared-junk", false)

	records, err := s.db.ByRun(res.RunID)
	require.NoError(t, err)
	var deleted []string
	for _, r := range records {
		assert.Equal(t, "shared-junk", r.Job)
		assert.Equal(t, res.Fingerprint, r.Fingerprint)
		if r.Action == string(events.ActionDelete) {
			deleted = append(deleted, r.Path)
		}
	}
	assert.Equal(t, res.Deleted, deleted)

	st, err := s.db.Stats(1)
	require.NoError(t, err)
	assert.Equal(t, len(res.Deleted), st.Deleted)
	assert.Equal(t, res.Bytes, st.BytesFreed)
}
