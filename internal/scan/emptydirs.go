package scan

import (
	"context"
	"iter"
	"os"
	"path/filepath"

	"sdclean/internal/safety"
)

// EmptyDirPolicy controls which empty directories may be removed.
type EmptyDirPolicy struct {
	// KeepTopLevel keeps the root's direct children even when empty.
	KeepTopLevel bool
	// KeepNestedUnder lists directories that are never removed, nor is
	// anything below them.
	KeepNestedUnder []string
}

func (p EmptyDirPolicy) keepsTopLevel(s scope, path string) bool {
	return p.KeepTopLevel && filepath.Dir(path) == s.root
}

// resolved adds the symlink-resolved form of each KeepNestedUnder entry, so
// /sdcard/Android also keeps /storage/emulated/0/Android.
func (p EmptyDirPolicy) resolved() EmptyDirPolicy {
	keep := make([]string, 0, 2*len(p.KeepNestedUnder))
	for _, k := range p.KeepNestedUnder {
		k = filepath.Clean(k)
		keep = append(keep, k)
		if r := safety.ResolveRoot(k); r != k {
			keep = append(keep, r)
		}
	}
	p.KeepNestedUnder = keep
	return p
}

func (p EmptyDirPolicy) keepsNested(s scope, path string) bool {
	for _, k := range p.KeepNestedUnder {
		if safety.WithinPath(path, k) || safety.WithinPath(s.alias(path), k) {
			return true
		}
	}
	return false
}

// EmptyDirs enumerates directories under root that are empty, or would be
// once every path in gone has been removed, deepest first. A directory whose
// children are all yielded is itself considered empty, so a chain of empty
// directories is reported bottom-up. Protected paths, the root, and
// directories kept by policy are never yielded and keep their parents
// non-empty.
func (w *Walker) EmptyDirs(ctx context.Context, root string, gone map[string]bool, policy EmptyDirPolicy) iter.Seq2[*Candidate, error] {
	return func(yield func(*Candidate, error) bool) {
		root = filepath.Clean(root)
		s := scope{root: root, resolved: safety.ResolveRoot(root)}
		if w.protected(s, root) {
			return
		}
		policy = policy.resolved()
		w.emptyBelow(ctx, s, root, gone, policy, yield)
	}
}

// emptyBelow reports whether dir has nothing left in it, and whether the
// walk should continue.
func (w *Walker) emptyBelow(ctx context.Context, s scope, dir string, gone map[string]bool, policy EmptyDirPolicy, yield func(*Candidate, error) bool) (empty, cont bool) {
	if err := ctx.Err(); err != nil {
		yield(nil, err)
		return false, false
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, true
		}
		return false, yield(nil, &ReadError{Path: dir, Err: err})
	}

	remaining := 0
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if gone[path] {
			continue
		}
		if !e.IsDir() || w.protected(s, path) || w.containsProtected(s, path) {
			remaining++
			continue
		}
		if policy.keepsNested(s, path) {
			remaining++
			continue
		}

		childEmpty, cont := w.emptyBelow(ctx, s, path, gone, policy, yield)
		if !cont {
			return false, false
		}
		if !childEmpty || policy.keepsTopLevel(s, path) {
			remaining++
			continue
		}

		c, err := w.candidate(s, e, path, KindEmptyDir)
		if err != nil {
			remaining++
			if !yield(nil, err) {
				return false, false
			}
			continue
		}
		if !yield(c, nil) {
			return false, false
		}
	}
	return remaining == 0, true
}
