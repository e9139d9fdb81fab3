package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"sdclean/internal/rules"
	"sdclean/internal/safety"
)

// ErrNotDir is returned when a walk root is not a directory.
var ErrNotDir = errors.New("not a directory")

// ReadError reports a directory or entry the walker could not read. It is
// never fatal; the walk continues with the next sibling.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Walker finds junk under a scope root.
type Walker struct {
	rules  *rules.RuleSet
	guard  *safety.Guard
	logger zerolog.Logger
}

// NewWalker creates a walker for one rule set and guard.
func NewWalker(rs *rules.RuleSet, guard *safety.Guard, logger zerolog.Logger) *Walker {
	return &Walker{
		rules:  rs,
		guard:  guard,
		logger: logger.With().Str("component", "walker").Logger(),
	}
}

// scope is one root as given and as resolved through symlinks.
type scope struct {
	root     string
	resolved string
}

// alias maps a path under the lexical root to the same entry under the
// resolved root.
func (s scope) alias(path string) string {
	if s.root == s.resolved {
		return path
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return path
	}
	return filepath.Join(s.resolved, rel)
}

func (w *Walker) protected(s scope, path string) bool {
	return w.guard.IsProtected(path) || w.guard.IsProtected(s.alias(path))
}

func (w *Walker) containsProtected(s scope, path string) bool {
	return w.guard.ContainsProtected(path) || w.guard.ContainsProtected(s.alias(path))
}

// Walk lazily enumerates junk under root in depth-first pre-order. Errors
// of type *ReadError are informational; any other error ends the sequence.
//
// Junk directories are yielded as a single subtree candidate and not entered.
// Protected paths are skipped without being read. Symlinks are never
// followed; a symlink whose name matches a glob is yielded only when its
// target stays inside the root and is not protected. The root itself is
// never a candidate.
func (w *Walker) Walk(ctx context.Context, root string) iter.Seq2[*Candidate, error] {
	return func(yield func(*Candidate, error) bool) {
		root = filepath.Clean(root)
		info, err := os.Stat(root)
		if err != nil {
			yield(nil, &ReadError{Path: root, Err: err})
			return
		}
		if !info.IsDir() {
			yield(nil, &ReadError{Path: root, Err: ErrNotDir})
			return
		}

		s := scope{root: root, resolved: safety.ResolveRoot(root)}
		if w.protected(s, root) {
			w.logger.Debug().Str("path", root).Msg("root is protected, nothing to walk")
			return
		}
		w.walkDir(ctx, s, root, yield)
	}
}

func (w *Walker) walkDir(ctx context.Context, s scope, dir string, yield func(*Candidate, error) bool) bool {
	if err := ctx.Err(); err != nil {
		yield(nil, err)
		return false
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", dir).Msg("skipping unreadable directory")
		return yield(nil, &ReadError{Path: dir, Err: err})
	}

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if w.protected(s, path) {
			w.logger.Debug().Str("path", path).Msg("protected, skipped")
			continue
		}

		switch typ := e.Type(); {
		case typ&fs.ModeSymlink != 0:
			if !w.rules.MatchesFile(path) || !w.linkInside(s, path) {
				continue
			}
			c, err := w.candidate(s, e, path, KindFile)
			if err != nil {
				if !yield(nil, err) {
					return false
				}
				continue
			}
			c.Symlink = true
			if !yield(c, nil) {
				return false
			}

		case e.IsDir():
			if w.rules.MatchesDir(path) && !w.containsProtected(s, path) {
				c, err := w.candidate(s, e, path, KindSubtree)
				if err != nil {
					if !yield(nil, err) {
						return false
					}
					continue
				}
				if !yield(c, nil) {
					return false
				}
				continue
			}
			if !w.walkDir(ctx, s, path, yield) {
				return false
			}

		case typ.IsRegular():
			if !w.rules.MatchesFile(path) {
				continue
			}
			c, err := w.candidate(s, e, path, KindFile)
			if err != nil {
				if !yield(nil, err) {
					return false
				}
				continue
			}
			if !yield(c, nil) {
				return false
			}
		}
	}
	return true
}

func (w *Walker) candidate(s scope, e fs.DirEntry, path string, kind Kind) (*Candidate, error) {
	info, err := e.Info()
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	c := NewCandidate(path, s.root, kind, info.ModTime())
	c.Alias = s.alias(path)
	return c, nil
}

// linkInside reports whether the symlink at path resolves to an existing,
// unprotected location inside the root.
func (w *Walker) linkInside(s scope, path string) bool {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	if !safety.WithinPath(target, s.resolved) || target == s.resolved {
		return false
	}
	return !w.guard.IsProtected(target) && !w.guard.ContainsProtected(target)
}
