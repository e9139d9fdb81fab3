package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdclean/internal/decision"
	"sdclean/internal/events"
	"sdclean/internal/fsops"
	"sdclean/internal/metrics"
	"sdclean/internal/safety"
	"sdclean/internal/scan"
)

func init() {
	metrics.Init()
}

type fixture struct {
	root     string
	file     string
	subtree  string
	emptyDir string
	dcim     string
	exec     *Executor
	recorder *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root:     root,
		file:     filepath.Join(root, "Download", "b.tmp"),
		subtree:  filepath.Join(root, "app", "cache"),
		emptyDir: filepath.Join(root, "old"),
		dcim:     filepath.Join(root, "DCIM"),
		recorder: &events.Recorder{},
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(f.file), 0o755))
	require.NoError(t, os.WriteFile(f.file, make([]byte, 100), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(f.subtree, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.subtree, "a", "x"), make([]byte, 50), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.subtree, "y"), make([]byte, 25), 0o644))
	require.NoError(t, os.MkdirAll(f.emptyDir, 0o755))
	require.NoError(t, os.MkdirAll(f.dcim, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.dcim, "photo.tmp"), []byte("keep"), 0o644))

	guard, err := safety.NewGuard(f.dcim)
	require.NoError(t, err)
	run := RunInfo{Job: "test-job", RunID: "run-1", Fingerprint: "blake3:x"}
	f.exec = NewExecutor(run, safety.NewValidator([]string{root}, guard), zerolog.Nop())
	f.exec.SetSink(f.recorder)
	return f
}

func accept(path string, kind scan.Kind) decision.Decision {
	return decision.Decision{
		Candidate: scan.NewCandidate(path, "", kind, time.Time{}),
		Verdict:   decision.Accept,
		Reason:    decision.ReasonJunk,
	}
}

func (f *fixture) accepted() []decision.Decision {
	return []decision.Decision{
		accept(f.file, scan.KindFile),
		accept(f.subtree, scan.KindSubtree),
		accept(f.emptyDir, scan.KindEmptyDir),
	}
}

// TestDryRunNeverDeletes proves the dry-run contract:
// When dryRun=true, ZERO delete calls must occur
func TestDryRunNeverDeletes(t *testing.T) {
	f := newFixture(t)
	fake := &fsops.FakeDeleter{}
	f.exec.SetDeleter(fake)

	var total int64
	for _, d := range f.accepted() {
		out, err := f.exec.Apply(context.Background(), d, true)
		require.NoError(t, err)
		assert.Equal(t, Previewed, out.Kind, out.Path)
		total += out.Bytes
	}

	assert.Zero(t, fake.CallCount(), "DRY-RUN VIOLATION: %v", fake.Calls)
	assert.Equal(t, int64(100+50+25), total)
	assert.FileExists(t, f.file)
	assert.DirExists(t, f.subtree)
	assert.DirExists(t, f.emptyDir)
	assert.Equal(t, []string{f.file, f.subtree, f.emptyDir}, f.recorder.Paths(events.ActionPreview))
}

// TestRealModeCallsDeleter proves that live mode deletes and reports bytes
func TestRealModeCallsDeleter(t *testing.T) {
	f := newFixture(t)

	want := map[string]int64{f.file: 100, f.subtree: 75, f.emptyDir: 0}
	for _, d := range f.accepted() {
		out, err := f.exec.Apply(context.Background(), d, false)
		require.NoError(t, err)
		assert.Equal(t, Deleted, out.Kind, out.Path)
		assert.Equal(t, want[out.Path], out.Bytes, out.Path)
		assert.NoFileExists(t, out.Path)
	}
	assert.NoDirExists(t, f.subtree)
	assert.FileExists(t, filepath.Join(f.dcim, "photo.tmp"))

	evs := f.recorder.Events()
	require.Len(t, evs, 3)
	for _, e := range evs {
		assert.Equal(t, events.ActionDelete, e.Action)
		assert.Equal(t, "test-job", e.Job)
		assert.Equal(t, "run-1", e.RunID)
		assert.Equal(t, "blake3:x", e.Fingerprint)
	}
}

func TestDeleterCallsMatchKind(t *testing.T) {
	f := newFixture(t)
	fake := &fsops.FakeDeleter{}
	f.exec.SetDeleter(fake)

	for _, d := range f.accepted() {
		_, err := f.exec.Apply(context.Background(), d, false)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"rm:" + f.file, "rmall:" + f.subtree, "rm:" + f.emptyDir}, fake.Calls)
}

func TestRejectedIsSkipped(t *testing.T) {
	f := newFixture(t)
	fake := &fsops.FakeDeleter{}
	f.exec.SetDeleter(fake)

	d := decision.Decision{
		Candidate: scan.NewCandidate(filepath.Join(f.dcim, "photo.tmp"), f.root, scan.KindFile, time.Time{}),
		Verdict:   decision.Reject,
		Reason:    decision.ReasonProtected,
	}
	for _, dryRun := range []bool{true, false} {
		out, err := f.exec.Apply(context.Background(), d, dryRun)
		require.NoError(t, err)
		assert.Equal(t, Skipped, out.Kind)
		assert.Equal(t, decision.ReasonProtected, out.Reason)
	}
	assert.Zero(t, fake.CallCount())
	assert.Len(t, f.recorder.Paths(events.ActionSkip), 2)
}

// TestGuardViolationAborts feeds the executor targets no walker would yield
func TestGuardViolationAborts(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		d      decision.Decision
		target error
	}{
		{"protected file", accept(filepath.Join(f.dcim, "photo.tmp"), scan.KindFile), safety.ErrProtectedPath},
		{"subtree holding protected", accept(f.root, scan.KindSubtree), safety.ErrProtectedPath},
		{"outside root", accept(filepath.Join(t.TempDir(), "x.tmp"), scan.KindFile), safety.ErrOutsideAllowed},
		{"traversal", accept(f.root+"/Download/../DCIM/photo.tmp", scan.KindFile), safety.ErrTraversal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fsops.FakeDeleter{}
			f.exec.SetDeleter(fake)
			for _, dryRun := range []bool{true, false} {
				_, err := f.exec.Apply(context.Background(), tt.d, dryRun)
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrGuardViolation)
				assert.ErrorIs(t, err, tt.target)
				var gv *GuardViolation
				assert.ErrorAs(t, err, &gv)
			}
			assert.Zero(t, fake.CallCount())
		})
	}
	assert.FileExists(t, filepath.Join(f.dcim, "photo.tmp"))
}

func TestDeleteFailureContinues(t *testing.T) {
	f := newFixture(t)
	busy := errors.New("device busy")
	fake := &fsops.FakeDeleter{Errors: map[string]error{f.file: busy}}
	f.exec.SetDeleter(fake)

	var kinds []OutcomeKind
	for _, d := range f.accepted() {
		out, err := f.exec.Apply(context.Background(), d, false)
		require.NoError(t, err)
		kinds = append(kinds, out.Kind)
		if out.Kind == Failed {
			var de *DeleteError
			require.ErrorAs(t, out.Err, &de)
			assert.False(t, de.Vanished)
			assert.ErrorIs(t, out.Err, busy)
		}
	}
	assert.Equal(t, []OutcomeKind{Failed, Deleted, Deleted}, kinds)
	assert.Equal(t, []string{f.file}, f.recorder.Paths(events.ActionFail))
}

func TestVanishedEntry(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.file))
	require.NoError(t, os.RemoveAll(f.subtree))

	for _, d := range f.accepted()[:2] {
		out, err := f.exec.Apply(context.Background(), d, false)
		require.NoError(t, err)
		assert.Equal(t, Failed, out.Kind)

		var de *DeleteError
		require.ErrorAs(t, out.Err, &de)
		assert.True(t, de.Vanished, out.Path)
		assert.ErrorIs(t, out.Err, os.ErrNotExist)
	}
}

func TestSymlinkSwapIsDeleteError(t *testing.T) {
	f := newFixture(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "x.tmp"), []byte("x"), 0o644))
	swapped := filepath.Join(f.root, "swapped")
	require.NoError(t, os.Symlink(outside, swapped))

	out, err := f.exec.Apply(context.Background(), accept(filepath.Join(swapped, "x.tmp"), scan.KindFile), false)
	require.NoError(t, err)
	assert.Equal(t, Failed, out.Kind)
	assert.ErrorIs(t, out.Err, safety.ErrSymlinkEscape)
	assert.FileExists(t, filepath.Join(outside, "x.tmp"))
}

func TestCancelledContextStopsLiveDelete(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.exec.Apply(ctx, accept(f.file, scan.KindFile), false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.FileExists(t, f.file)
}
