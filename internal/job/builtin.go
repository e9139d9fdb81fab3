package job

import (
	"time"

	"sdclean/internal/config"
	"sdclean/internal/decision"
	"sdclean/internal/rules"
	"sdclean/internal/scan"
)

type builtin struct {
	cfg         config.JobCfg
	description string
}

var builtins = []builtin{
	{
		cfg: config.JobCfg{
			Name:      "external-caches",
			Roots:     []string{"/sdcard/Android/data"},
			JunkGlobs: []string{},
		},
		description: "App cache directories under Android/data",
	},
	{
		cfg: config.JobCfg{
			Name:         "downloads-junk",
			Roots:        []string{"/sdcard/Download"},
			JunkGlobs:    []string{"*.tmp", "*.crdownload", "*.part", "*.bak"},
			JunkDirNames: []string{},
		},
		description: "Partial and temporary downloads",
	},
	{
		cfg: config.JobCfg{
			Name:  "shared-junk",
			Roots: []string{"/sdcard"},
			EmptyDirs: config.EmptyDirsCfg{
				Enabled:         true,
				KeepTopLevel:    true,
				KeepNestedUnder: []string{"/sdcard/Android"},
			},
		},
		description: "Junk files, cache directories and empty folders across shared storage",
	},
}

// Builtins returns copies of the built-in job definitions.
func Builtins() []config.JobCfg {
	out := make([]config.JobCfg, 0, len(builtins))
	for _, b := range builtins {
		out = append(out, clone(b.cfg))
	}
	return out
}

// Description returns a one-line summary of a built-in job, or "" for a
// configured one.
func Description(name string) string {
	for _, b := range builtins {
		if b.cfg.Name == name {
			return b.description
		}
	}
	return ""
}

// Catalog lists every runnable job: built-ins first, then configured jobs.
// A configured job with a built-in's name replaces it in place.
func Catalog(cfg *config.Config) []config.JobCfg {
	out := Builtins()
	for _, jc := range cfg.Jobs {
		replaced := false
		for i := range out {
			if out[i].Name == jc.Name {
				out[i] = clone(jc)
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, clone(jc))
		}
	}
	return out
}

// Lookup finds a job by name in the catalog.
func Lookup(cfg *config.Config, name string) (config.JobCfg, bool) {
	for _, jc := range Catalog(cfg) {
		if jc.Name == name {
			return jc, true
		}
	}
	return config.JobCfg{}, false
}

// Build resolves a job's rules and vetoes against the global settings.
func Build(cfg *config.Config, jc config.JobCfg) (Definition, error) {
	globs := jc.JunkGlobs
	if globs == nil {
		globs = cfg.JunkGlobs
	}
	dirNames := jc.JunkDirNames
	if dirNames == nil {
		dirNames = cfg.JunkDirNames
	}
	rs, err := rules.New(globs, dirNames)
	if err != nil {
		return Definition{}, &ConfigError{Job: jc.Name, Err: err}
	}

	def := Definition{Name: jc.Name, Roots: append([]string(nil), jc.Roots...), Rules: rs}
	if jc.MinAgeHours > 0 {
		def.Vetoes = append(def.Vetoes, decision.MinAge(time.Duration(jc.MinAgeHours*float64(time.Hour))))
	}
	if jc.MinSizeBytes > 0 {
		def.Vetoes = append(def.Vetoes, decision.MinSize(jc.MinSizeBytes))
	}
	media := cfg.ProtectMediaContent
	if jc.ProtectMediaContent != nil {
		media = *jc.ProtectMediaContent
	}
	if media {
		def.Vetoes = append(def.Vetoes, decision.MediaContent())
	}
	if jc.EmptyDirs.Enabled {
		def.EmptyDirs = &scan.EmptyDirPolicy{
			KeepTopLevel:    jc.EmptyDirs.KeepTopLevel,
			KeepNestedUnder: append([]string(nil), jc.EmptyDirs.KeepNestedUnder...),
		}
	}
	return def, nil
}

func clone(jc config.JobCfg) config.JobCfg {
	jc.Roots = append([]string(nil), jc.Roots...)
	if jc.JunkGlobs != nil {
		jc.JunkGlobs = append([]string{}, jc.JunkGlobs...)
	}
	if jc.JunkDirNames != nil {
		jc.JunkDirNames = append([]string{}, jc.JunkDirNames...)
	}
	jc.EmptyDirs.KeepNestedUnder = append([]string(nil), jc.EmptyDirs.KeepNestedUnder...)
	return jc
}
