package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"sdclean/internal/rules"
)

// DefaultStateDir holds the history database, lock and optional log file.
// It is always added to the protected set.
const DefaultStateDir = "/sdcard/.sdclean"

type EmptyDirsCfg struct {
	Enabled         bool     `yaml:"enabled" json:"enabled"`
	KeepTopLevel    bool     `yaml:"keep_top_level" json:"keep_top_level"`         // Never remove the root's direct children
	KeepNestedUnder []string `yaml:"keep_nested_under" json:"keep_nested_under"` // Nothing at or under these is removed
}

// JobCfg defines or overrides one cleanup job. A nil JunkGlobs or
// JunkDirNames inherits the global list; an explicit empty list disables
// that matcher for the job.
type JobCfg struct {
	Name                string       `yaml:"name" json:"name"`
	Roots               []string     `yaml:"roots" json:"roots"`
	JunkGlobs           []string     `yaml:"junk_globs" json:"junk_globs"`
	JunkDirNames        []string     `yaml:"junk_dir_names" json:"junk_dir_names"`
	MinAgeHours         float64      `yaml:"min_age_hours" json:"min_age_hours"`
	MinSizeBytes        int64        `yaml:"min_size_bytes" json:"min_size_bytes"`
	ProtectMediaContent *bool        `yaml:"protect_media_content" json:"protect_media_content"`
	EmptyDirs           EmptyDirsCfg `yaml:"empty_dirs" json:"empty_dirs"`
}

// PrometheusCfg configures the serve listener. Bind defaults to loopback;
// any other address requires TriggerToken.
type PrometheusCfg struct {
	Port         int    `yaml:"port" json:"port"`
	Bind         string `yaml:"bind" json:"bind"`
	TriggerToken string `yaml:"trigger_token" json:"-"`
}

type LoggingCfg struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"` // Empty logs to stderr only
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
	Pretty     bool   `yaml:"pretty" json:"pretty"`
}

type LimitsCfg struct {
	MaxDeletesPerSecond float64 `yaml:"max_deletes_per_second" json:"max_deletes_per_second"` // 0 = unlimited
	Burst               int     `yaml:"burst" json:"burst"`
}

type Config struct {
	DryRun              bool          `yaml:"dry_run" json:"dry_run"`
	ReportLimit         int           `yaml:"report_limit" json:"report_limit"`
	ProtectedPaths      []string      `yaml:"protected_paths" json:"protected_paths"`
	JunkGlobs           []string      `yaml:"junk_globs" json:"junk_globs"`
	JunkDirNames        []string      `yaml:"junk_dir_names" json:"junk_dir_names"`
	ProtectMediaContent bool          `yaml:"protect_media_content" json:"protect_media_content"`
	Jobs                []JobCfg      `yaml:"jobs" json:"jobs"`
	StateDir            string        `yaml:"state_dir" json:"state_dir"`
	DatabasePath        string        `yaml:"database_path" json:"database_path"`
	LockPath            string        `yaml:"lock_path" json:"lock_path"`
	Prometheus          PrometheusCfg `yaml:"prometheus" json:"prometheus"`
	Logging             LoggingCfg    `yaml:"logging" json:"logging"`
	Limits              LimitsCfg     `yaml:"limits" json:"limits"`
}

var (
	errInvalidPath     = errors.New("path must be absolute")
	errInvalidJobName  = errors.New("job name must be lowercase letters, digits, '-' or '_'")
	errDuplicateJob    = errors.New("duplicate job name")
	errNoRoots         = errors.New("job must list at least one root")
	errNegativeValue   = errors.New("value cannot be negative")
	errInvalidLogLevel = errors.New("unknown log level")
	errInvalidPort     = errors.New("prometheus port out of range")
	errInvalidBind     = errors.New("prometheus bind must be an IP address or localhost")
	errOpenTrigger     = errors.New("prometheus bind is not loopback; set prometheus.trigger_token")
)

var jobNameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Load reads, validates and defaults the configuration at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file exists: built-in
// jobs, default rules, default protected paths.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv(os.Getenv)
	if err := cfg.validateAndDefault(); err != nil {
		// Only reachable through a malformed SDCLEAN_* variable.
		cfg = &Config{}
		_ = cfg.validateAndDefault()
	}
	return cfg
}

// Parse decodes and validates YAML from r.
func Parse(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

// applyEnv lets SDCLEAN_* variables (typically from a .env file) override
// a few scalar settings.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("SDCLEAN_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.DryRun = b
		}
	}
	if v := getenv("SDCLEAN_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := getenv("SDCLEAN_DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := getenv("SDCLEAN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("SDCLEAN_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := getenv("SDCLEAN_TRIGGER_TOKEN"); v != "" {
		c.Prometheus.TriggerToken = v
	}
}

func (c *Config) validateAndDefault() error {
	if c.ReportLimit < 0 {
		return fmt.Errorf("report_limit: %w", errNegativeValue)
	}
	if c.ReportLimit == 0 {
		c.ReportLimit = 20
	}

	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	var err error
	if c.StateDir, err = cleanAbsolute(c.StateDir); err != nil {
		return fmt.Errorf("state_dir: %w", err)
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.StateDir, "history.db")
	}
	if c.LockPath == "" {
		c.LockPath = filepath.Join(c.StateDir, "sdclean.lock")
	}
	for _, p := range []*string{&c.DatabasePath, &c.LockPath} {
		if *p, err = cleanAbsolute(*p); err != nil {
			return err
		}
	}

	if c.Prometheus.Port == 0 {
		c.Prometheus.Port = 9095
	}
	if c.Prometheus.Port < 0 || c.Prometheus.Port > 65535 {
		return fmt.Errorf("%w: %d", errInvalidPort, c.Prometheus.Port)
	}
	if err := c.Prometheus.validateBind(); err != nil {
		return err
	}

	if err := c.Logging.validateAndDefault(); err != nil {
		return err
	}

	if c.Limits.MaxDeletesPerSecond < 0 || c.Limits.Burst < 0 {
		return fmt.Errorf("limits: %w", errNegativeValue)
	}

	// Protected paths only ever grow: user entries plus our own state.
	protected := make([]string, 0, len(c.ProtectedPaths)+2)
	for _, p := range c.ProtectedPaths {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return fmt.Errorf("protected_paths: %w", err)
		}
		protected = append(protected, cp)
	}
	protected = append(protected, c.StateDir, c.DatabasePath, c.LockPath)
	if c.Logging.File != "" {
		protected = append(protected, c.Logging.File)
	}
	c.ProtectedPaths = dedup(protected)

	if c.JunkGlobs == nil {
		c.JunkGlobs = rules.DefaultGlobs()
	}
	if c.JunkDirNames == nil {
		c.JunkDirNames = rules.DefaultDirNames()
	}
	if _, err := rules.New(c.JunkGlobs, c.JunkDirNames); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for i := range c.Jobs {
		j := &c.Jobs[i]
		if err := j.validate(); err != nil {
			return fmt.Errorf("job %q: %w", j.Name, err)
		}
		if seen[j.Name] {
			return fmt.Errorf("job %q: %w", j.Name, errDuplicateJob)
		}
		seen[j.Name] = true
	}
	return nil
}

func (l *LoggingCfg) validateAndDefault() error {
	if l.Level == "" {
		l.Level = "info"
	}
	l.Level = strings.ToLower(l.Level)
	switch l.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %s", errInvalidLogLevel, l.Level)
	}
	if l.File != "" {
		f, err := cleanAbsolute(l.File)
		if err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
		l.File = f
	}
	if l.MaxSizeMB <= 0 {
		l.MaxSizeMB = 10
	}
	if l.MaxBackups <= 0 {
		l.MaxBackups = 3
	}
	if l.MaxAgeDays <= 0 {
		l.MaxAgeDays = 28
	}
	return nil
}

func (j *JobCfg) validate() error {
	if !jobNameRE.MatchString(j.Name) {
		return errInvalidJobName
	}
	if len(j.Roots) == 0 {
		return errNoRoots
	}
	for i, r := range j.Roots {
		cr, err := cleanAbsolute(r)
		if err != nil {
			return fmt.Errorf("roots: %w", err)
		}
		j.Roots[i] = cr
	}
	for i, k := range j.EmptyDirs.KeepNestedUnder {
		ck, err := cleanAbsolute(k)
		if err != nil {
			return fmt.Errorf("empty_dirs.keep_nested_under: %w", err)
		}
		j.EmptyDirs.KeepNestedUnder[i] = ck
	}
	if j.MinAgeHours < 0 || j.MinSizeBytes < 0 {
		return errNegativeValue
	}
	if j.JunkGlobs != nil || j.JunkDirNames != nil {
		if _, err := rules.New(j.JunkGlobs, j.JunkDirNames); err != nil {
			return err
		}
	}
	return nil
}

// Job returns the configured job with the given name.
func (c *Config) Job(name string) (JobCfg, bool) {
	for _, j := range c.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return JobCfg{}, false
}

func cleanAbsolute(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errInvalidPath
	}
	cp := filepath.Clean(p)
	if !filepath.IsAbs(cp) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return cp, nil
}

func dedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (p *PrometheusCfg) validateBind() error {
	if p.Bind == "" {
		p.Bind = "127.0.0.1"
	}
	loopback := p.Bind == "localhost"
	if !loopback {
		ip := net.ParseIP(p.Bind)
		if ip == nil {
			return fmt.Errorf("%w: %q", errInvalidBind, p.Bind)
		}
		loopback = ip.IsLoopback()
	}
	if !loopback && p.TriggerToken == "" {
		return fmt.Errorf("%w: %s", errOpenTrigger, p.Bind)
	}
	return nil
}

func (c *Config) PrometheusAddress() string {
	return net.JoinHostPort(c.Prometheus.Bind, strconv.Itoa(c.Prometheus.Port))
}
