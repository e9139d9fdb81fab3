package safety

import (
	"fmt"
	"path/filepath"
	"strings"
)

// defaultProtected lists the shared-storage folders that hold user media and
// documents. Both the /sdcard alias and the /storage/emulated/0 mount point are
// listed because either may be handed to us as a scope root.
var defaultProtected = []string{
	"/sdcard/DCIM",
	"/sdcard/Pictures",
	"/sdcard/Movies",
	"/sdcard/Music",
	"/sdcard/Documents",
	"/sdcard/Recordings",
	"/sdcard/Podcasts",
	"/sdcard/Audiobooks",
	"/sdcard/Alarms",
	"/sdcard/Ringtones",
	"/sdcard/Notifications",
	"/sdcard/WhatsApp/Media",
	"/sdcard/Android/media",
	"/storage/emulated/0/DCIM",
	"/storage/emulated/0/Pictures",
	"/storage/emulated/0/Movies",
	"/storage/emulated/0/Music",
	"/storage/emulated/0/Documents",
	"/storage/emulated/0/Recordings",
	"/storage/emulated/0/Podcasts",
	"/storage/emulated/0/Audiobooks",
	"/storage/emulated/0/Alarms",
	"/storage/emulated/0/Ringtones",
	"/storage/emulated/0/Notifications",
	"/storage/emulated/0/WhatsApp/Media",
	"/storage/emulated/0/Android/media",
}

// DefaultProtected returns a copy of the built-in protected set.
func DefaultProtected() []string {
	return append([]string(nil), defaultProtected...)
}

// Guard answers whether a path lies under a protected directory. A Guard is
// immutable once built and safe for concurrent use by any number of jobs.
type Guard struct {
	paths    []string
	segments [][]string
}

// NewGuard builds a Guard over the default protected set plus extra. Extra
// paths can only add protection; there is no way to drop a default.
func NewGuard(extra ...string) (*Guard, error) {
	g := &Guard{}
	seen := make(map[string]bool)

	add := func(p string) {
		if seen[p] {
			return
		}
		seen[p] = true
		g.paths = append(g.paths, p)
		g.segments = append(g.segments, Segments(p))
	}

	all := append(DefaultProtected(), extra...)
	for _, raw := range all {
		p, err := NormalizePath(raw)
		if err != nil {
			return nil, fmt.Errorf("protected path %q: %w", raw, err)
		}
		add(p)

		// A protected folder reached through a symlinked mount must stay
		// protected under its resolved name as well.
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			add(filepath.Clean(resolved))
		}
	}
	return g, nil
}

// IsProtected reports whether path equals a protected path or is nested under
// one. Comparison is done on whole path segments, so /sdcard/DCIM2 is not
// covered by /sdcard/DCIM.
func (g *Guard) IsProtected(path string) bool {
	p := filepath.Clean(path)
	if p == string(filepath.Separator) {
		return true
	}
	segs := Segments(p)
	for _, prot := range g.segments {
		if hasSegmentPrefix(segs, prot) {
			return true
		}
	}
	return false
}

// ContainsProtected reports whether some protected path lies strictly below
// path. Deleting such a directory as a subtree would take the protected
// folder with it.
func (g *Guard) ContainsProtected(path string) bool {
	segs := Segments(path)
	for _, prot := range g.segments {
		if len(prot) > len(segs) && hasSegmentPrefix(prot, segs) {
			return true
		}
	}
	return false
}

// Paths returns the protected set, including resolved aliases.
func (g *Guard) Paths() []string {
	return append([]string(nil), g.paths...)
}

// Segments splits a cleaned absolute path into its components. The root
// directory yields an empty slice.
func Segments(path string) []string {
	p := strings.Trim(filepath.ToSlash(filepath.Clean(path)), "/")
	if p == "" || p == "." {
		return nil
	}
	return strings.Split(p, "/")
}

// WithinPath reports whether path equals prefix or is nested under it,
// compared segment by segment.
func WithinPath(path, prefix string) bool {
	return hasSegmentPrefix(Segments(path), Segments(prefix))
}

func hasSegmentPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}
