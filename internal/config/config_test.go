package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdclean/internal/rules"
)

func parse(t *testing.T, yml string) (*Config, error) {
	t.Helper()
	return Parse(strings.NewReader(yml))
}

func TestDefaults(t *testing.T) {
	cfg, err := parse(t, "")
	require.NoError(t, err)

	assert.False(t, cfg.DryRun)
	assert.Equal(t, 20, cfg.ReportLimit)
	assert.Equal(t, DefaultStateDir, cfg.StateDir)
	assert.Equal(t, "/sdcard/.sdclean/history.db", cfg.DatabasePath)
	assert.Equal(t, "/sdcard/.sdclean/sdclean.lock", cfg.LockPath)
	assert.Equal(t, "127.0.0.1:9095", cfg.PrometheusAddress())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 10, cfg.Logging.MaxSizeMB)
	assert.Equal(t, rules.DefaultGlobs(), cfg.JunkGlobs)
	assert.Equal(t, rules.DefaultDirNames(), cfg.JunkDirNames)
	assert.Contains(t, cfg.ProtectedPaths, DefaultStateDir)
	assert.Empty(t, cfg.Jobs)
}

func TestFullConfig(t *testing.T) {
	cfg, err := parse(t, `
dry_run: true
report_limit: 5
protected_paths: [/sdcard/Documents/, /sdcard/Music]
junk_globs: ["*.tmp"]
protect_media_content: true
jobs:
  - name: shared-junk
    roots: [/sdcard/]
    min_age_hours: 24
    empty_dirs:
      enabled: true
      keep_top_level: true
      keep_nested_under: [/sdcard/Android/]
  - name: no-dirs
    roots: [/sdcard/Download]
    junk_dir_names: []
logging:
  level: DEBUG
  file: /sdcard/.sdclean/sdclean.log
limits:
  max_deletes_per_second: 20
  burst: 5
prometheus:
  port: 9100
`)
	require.NoError(t, err)

	assert.True(t, cfg.DryRun)
	assert.Equal(t, 5, cfg.ReportLimit)
	assert.True(t, cfg.ProtectMediaContent)
	assert.Equal(t, []string{"*.tmp"}, cfg.JunkGlobs)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 20.0, cfg.Limits.MaxDeletesPerSecond)
	assert.Equal(t, "127.0.0.1:9100", cfg.PrometheusAddress())

	assert.Equal(t, []string{
		"/sdcard/Documents",
		"/sdcard/Music",
		"/sdcard/.sdclean",
		"/sdcard/.sdclean/history.db",
		"/sdcard/.sdclean/sdclean.lock",
		"/sdcard/.sdclean/sdclean.log",
	}, cfg.ProtectedPaths)

	j, ok := cfg.Job("shared-junk")
	require.True(t, ok)
	assert.Equal(t, []string{"/sdcard"}, j.Roots)
	assert.Equal(t, 24.0, j.MinAgeHours)
	assert.True(t, j.EmptyDirs.Enabled)
	assert.Equal(t, []string{"/sdcard/Android"}, j.EmptyDirs.KeepNestedUnder)
	assert.Nil(t, j.JunkGlobs, "unset list inherits")

	nd, ok := cfg.Job("no-dirs")
	require.True(t, ok)
	assert.NotNil(t, nd.JunkDirNames)
	assert.Empty(t, nd.JunkDirNames, "explicit empty list disables")

	_, ok = cfg.Job("missing")
	assert.False(t, ok)
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yml  string
		want string
	}{
		{"unknown key", "dyr_run: true", "field dyr_run not found"},
		{"negative report limit", "report_limit: -1", "report_limit"},
		{"relative protected", "protected_paths: [sdcard/DCIM]", "protected_paths"},
		{"bad glob", `junk_globs: ["[x"]`, "syntax error in pattern"},
		{"bad log level", "logging: {level: loud}", "unknown log level"},
		{"bad port", "prometheus: {port: 70000}", "port"},
		{"bad bind", "prometheus: {bind: phone.local}", "bind"},
		{"open bind without token", "prometheus: {bind: 0.0.0.0}", "trigger_token"},
		{"negative rate", "limits: {max_deletes_per_second: -1}", "limits"},
		{"job without roots", "jobs: [{name: a}]", "at least one root"},
		{"job bad name", "jobs: [{name: 'Bad Name', roots: [/sdcard]}]", "job name"},
		{"job relative root", "jobs: [{name: a, roots: [Download]}]", "roots"},
		{"job duplicate", "jobs: [{name: a, roots: [/x]}, {name: a, roots: [/y]}]", "duplicate"},
		{"job negative age", "jobs: [{name: a, roots: [/x], min_age_hours: -2}]", "negative"},
		{"job dir name with slash", "jobs: [{name: a, roots: [/x], junk_dir_names: [a/b]}]", "a/b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.yml)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPrometheusBind(t *testing.T) {
	cfg, err := parse(t, "prometheus: {bind: '::1', port: 9200}")
	require.NoError(t, err)
	assert.Equal(t, "[::1]:9200", cfg.PrometheusAddress())

	cfg, err = parse(t, "prometheus: {bind: 0.0.0.0, trigger_token: s3cret}")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9095", cfg.PrometheusAddress())
	assert.Equal(t, "s3cret", cfg.Prometheus.TriggerToken)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("state_dir: "+dir+"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "history.db"), cfg.DatabasePath)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SDCLEAN_DRY_RUN":       "true",
		"SDCLEAN_DATABASE_PATH": "/tmp/h.db",
		"SDCLEAN_LOG_LEVEL":     "warn",
		"SDCLEAN_TRIGGER_TOKEN": "from-env",
	}
	cfg := &Config{}
	cfg.applyEnv(func(k string) string { return env[k] })
	require.NoError(t, cfg.validateAndDefault())

	assert.True(t, cfg.DryRun)
	assert.Equal(t, "/tmp/h.db", cfg.DatabasePath)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Contains(t, cfg.ProtectedPaths, "/tmp/h.db")
	assert.Equal(t, "from-env", cfg.Prometheus.TriggerToken)
}
