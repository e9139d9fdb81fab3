package rules

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

var (
	defaultGlobs    = []string{"*.tmp", "*.log", "*.bak", "*.crdownload"}
	defaultDirNames = []string{"cache", "caches", "tmp", "temp"}
)

// DefaultGlobs returns a copy of the built-in file globs.
func DefaultGlobs() []string { return append([]string(nil), defaultGlobs...) }

// DefaultDirNames returns a copy of the built-in directory-name heuristics.
func DefaultDirNames() []string { return append([]string(nil), defaultDirNames...) }

// Entry is anything the rule set can be asked about.
type Entry interface {
	EntryPath() string
	IsDir() bool
}

// RuleSet selects junk by file name glob and by directory name. It is
// read-only after New and may be shared between jobs.
type RuleSet struct {
	globs    []string
	dirNames []string
}

// New validates and builds a rule set. Globs are matched case-sensitively
// against basenames; directory names are matched case-insensitively. Either
// list may be empty, which disables that matcher.
func New(globs, dirNames []string) (*RuleSet, error) {
	rs := &RuleSet{}
	seen := make(map[string]bool)
	for _, g := range globs {
		g = strings.TrimSpace(g)
		if g == "" || strings.ContainsRune(g, '/') {
			return nil, fmt.Errorf("junk glob %q: %w", g, filepath.ErrBadPattern)
		}
		if _, err := filepath.Match(g, ""); err != nil {
			return nil, fmt.Errorf("junk glob %q: %w", g, err)
		}
		if !seen[g] {
			seen[g] = true
			rs.globs = append(rs.globs, g)
		}
	}

	seen = make(map[string]bool)
	for _, n := range dirNames {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || strings.ContainsRune(n, '/') {
			return nil, fmt.Errorf("junk dir name %q: %w", n, filepath.ErrBadPattern)
		}
		if !seen[n] {
			seen[n] = true
			rs.dirNames = append(rs.dirNames, n)
		}
	}
	return rs, nil
}

// Default is the rule set built from DefaultGlobs and DefaultDirNames.
func Default() *RuleSet {
	rs, err := New(defaultGlobs, defaultDirNames)
	if err != nil {
		panic(err)
	}
	return rs
}

func (rs *RuleSet) Globs() []string    { return append([]string(nil), rs.globs...) }
func (rs *RuleSet) DirNames() []string { return append([]string(nil), rs.dirNames...) }

// MatchesFile reports whether the basename of path matches any glob.
func (rs *RuleSet) MatchesFile(path string) bool {
	base := filepath.Base(path)
	for _, g := range rs.globs {
		if ok, _ := filepath.Match(g, base); ok {
			return true
		}
	}
	return false
}

// MatchesDir reports whether a directory is junk: its basename equals or ends
// with one of the configured names, or its path contains the segment pair
// files/temp. The pair rule belongs to the heuristics and is off when no
// names are configured.
func (rs *RuleSet) MatchesDir(path string) bool {
	if len(rs.dirNames) == 0 {
		return false
	}
	base := strings.ToLower(filepath.Base(path))
	for _, n := range rs.dirNames {
		if strings.HasSuffix(base, n) {
			return true
		}
	}

	segs := strings.Split(strings.ToLower(filepath.ToSlash(filepath.Clean(path))), "/")
	for i := 1; i < len(segs); i++ {
		if segs[i-1] == "files" && segs[i] == "temp" {
			return true
		}
	}
	return false
}

// MatchesJunk dispatches on the entry type.
func (rs *RuleSet) MatchesJunk(e Entry) bool {
	if e.IsDir() {
		return rs.MatchesDir(e.EntryPath())
	}
	return rs.MatchesFile(e.EntryPath())
}

// Fingerprint identifies the effective rules independent of the order they
// were configured in. It is recorded with each run so history rows can be
// tied back to the rules that produced them.
func (rs *RuleSet) Fingerprint() string {
	shape := struct {
		Globs    []string `json:"globs"`
		DirNames []string `json:"dir_names"`
	}{
		Globs:    rs.Globs(),
		DirNames: rs.DirNames(),
	}
	sort.Strings(shape.Globs)
	sort.Strings(shape.DirNames)

	body, _ := json.Marshal(shape)
	sum := blake3.Sum256(body)
	return "blake3:" + hex.EncodeToString(sum[:])
}
