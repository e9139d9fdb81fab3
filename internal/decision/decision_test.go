package decision

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdclean/internal/rules"
	"sdclean/internal/safety"
	"sdclean/internal/scan"
)

func newEngine(t *testing.T, vetoes ...Veto) *Engine {
	t.Helper()
	guard, err := safety.NewGuard("/data/keep")
	require.NoError(t, err)
	return NewEngine(guard, rules.Default(), vetoes...)
}

func TestDecide(t *testing.T) {
	e := newEngine(t)

	tests := []struct {
		name    string
		path    string
		kind    scan.Kind
		verdict Verdict
		reason  string
	}{
		{"junk file", "/sdcard/Download/b.tmp", scan.KindFile, Accept, ReasonJunk},
		{"junk subtree", "/sdcard/app/cache", scan.KindSubtree, Accept, ReasonJunk},
		{"empty dir", "/sdcard/old", scan.KindEmptyDir, Accept, ReasonEmptyDir},
		{"protected default", "/sdcard/DCIM/x.tmp", scan.KindFile, Reject, ReasonProtected},
		{"protected alias", "/storage/emulated/0/Pictures/cache", scan.KindSubtree, Reject, ReasonProtected},
		{"protected extra", "/data/keep/a.tmp", scan.KindFile, Reject, ReasonProtected},
		{"subtree holding protected", "/data", scan.KindSubtree, Reject, ReasonProtected},
		{"no match file", "/sdcard/Download/a.jpg", scan.KindFile, Reject, ReasonNoMatch},
		{"no match dir", "/sdcard/Download", scan.KindSubtree, Reject, ReasonNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := scan.NewCandidate(tt.path, "/sdcard", tt.kind, time.Time{})
			d := e.Decide(c)
			assert.Equal(t, tt.verdict, d.Verdict)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Same(t, c, d.Candidate)
		})
	}
}

func TestDecideChecksAlias(t *testing.T) {
	e := newEngine(t)
	c := scan.NewCandidate("/mnt/link/DCIM/a.tmp", "/mnt/link", scan.KindFile, time.Time{})
	c.Alias = "/sdcard/DCIM/a.tmp"

	d := e.Decide(c)
	assert.Equal(t, Reject, d.Verdict)
	assert.Equal(t, ReasonProtected, d.Reason)
}

func TestVetoesRunAfterGuardAndRules(t *testing.T) {
	called := 0
	always := NewVeto("always", func(*scan.Candidate) bool {
		called++
		return true
	})
	e := newEngine(t, always)

	d := e.Decide(scan.NewCandidate("/sdcard/DCIM/x.tmp", "/sdcard", scan.KindFile, time.Time{}))
	assert.Equal(t, ReasonProtected, d.Reason)
	d = e.Decide(scan.NewCandidate("/sdcard/x.jpg", "/sdcard", scan.KindFile, time.Time{}))
	assert.Equal(t, ReasonNoMatch, d.Reason)
	assert.Zero(t, called)

	d = e.Decide(scan.NewCandidate("/sdcard/x.tmp", "/sdcard", scan.KindFile, time.Time{}))
	assert.Equal(t, Reject, d.Verdict)
	assert.Equal(t, "vetoed:always", d.Reason)
	assert.Equal(t, 1, called)
}

func TestMinAge(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	v := minAge(24*time.Hour, func() time.Time { return now })

	fresh := scan.NewCandidate("/sdcard/a.tmp", "/sdcard", scan.KindFile, now.Add(-time.Hour))
	old := scan.NewCandidate("/sdcard/b.tmp", "/sdcard", scan.KindFile, now.Add(-48*time.Hour))
	emptied := scan.NewCandidate("/sdcard/c", "/sdcard", scan.KindEmptyDir, now)

	assert.True(t, v.Veto(fresh))
	assert.False(t, v.Veto(old))
	assert.False(t, v.Veto(emptied))
	assert.Equal(t, "min-age", v.Name())
	assert.False(t, MinAge(0).Veto(fresh))
}

func TestMinSize(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "small.tmp")
	big := filepath.Join(dir, "big.tmp")
	require.NoError(t, os.WriteFile(small, make([]byte, 10), 0o644))
	require.NoError(t, os.WriteFile(big, make([]byte, 1000), 0o644))

	v := MinSize(100)
	assert.True(t, v.Veto(scan.NewCandidate(small, dir, scan.KindFile, time.Time{})))
	assert.False(t, v.Veto(scan.NewCandidate(big, dir, scan.KindFile, time.Time{})))
	assert.False(t, v.Veto(scan.NewCandidate(dir, dir, scan.KindEmptyDir, time.Time{})))
}

func TestMediaContent(t *testing.T) {
	dir := t.TempDir()
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	files := map[string][]byte{
		"renamed-photo.tmp": png,
		"report.tmp":        []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n"),
		"notes.tmp":         []byte("plain text scratch data\n"),
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), body, 0o644))
	}

	v := MediaContent()
	cand := func(name string) *scan.Candidate {
		return scan.NewCandidate(filepath.Join(dir, name), dir, scan.KindFile, time.Time{})
	}

	assert.True(t, v.Veto(cand("renamed-photo.tmp")))
	assert.True(t, v.Veto(cand("report.tmp")))
	assert.False(t, v.Veto(cand("notes.tmp")))
	assert.True(t, v.Veto(cand("missing.tmp")), "unreadable content is kept")

	sub := scan.NewCandidate(dir, dir, scan.KindSubtree, time.Time{})
	assert.False(t, v.Veto(sub))

	link := cand("renamed-photo.tmp")
	link.Symlink = true
	assert.False(t, v.Veto(link))
}
