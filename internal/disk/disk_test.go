package disk

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUsage(t *testing.T) {
	dir := t.TempDir()
	u, err := GetUsage(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, dir, u.Path)
	assert.Positive(t, u.TotalBytes)
	assert.LessOrEqual(t, u.FreeBytes, u.TotalBytes)
	assert.InDelta(t, 50, u.FreePercent(), 50)
}

func TestSampleSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "nope")

	got := Sample(context.Background(), []string{dir, missing})
	assert.Contains(t, got, dir)
	assert.NotContains(t, got, missing)
}

func TestFreePercentZeroTotal(t *testing.T) {
	assert.Zero(t, Usage{}.FreePercent())
	assert.InDelta(t, 25.0, Usage{FreeBytes: 1, TotalBytes: 4}.FreePercent(), 0.001)
}
