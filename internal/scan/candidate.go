package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Kind says how a candidate would be removed.
type Kind int

const (
	// KindFile is a single file or symlink.
	KindFile Kind = iota
	// KindSubtree is a junk directory removed with everything below it.
	KindSubtree
	// KindEmptyDir is a directory removed only if it is empty.
	KindEmptyDir
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindSubtree:
		return "subtree"
	case KindEmptyDir:
		return "empty_directory"
	default:
		return "unknown"
	}
}

// Candidate is an entry the walker found that the rules select. It is only
// valid for the run that produced it.
type Candidate struct {
	Path    string
	Root    string
	Kind    Kind
	ModTime time.Time
	Symlink bool
	// Alias is Path under the symlink-resolved root. It equals Path when
	// the root involves no symlinks.
	Alias string

	sizeOnce sync.Once
	size     int64
	sizeErr  error
}

// NewCandidate builds a candidate for path found under root.
func NewCandidate(path, root string, kind Kind, modTime time.Time) *Candidate {
	return &Candidate{
		Path:    path,
		Root:    root,
		Kind:    kind,
		ModTime: modTime,
		Alias:   path,
	}
}

func (c *Candidate) EntryPath() string { return c.Path }
func (c *Candidate) IsDir() bool       { return c.Kind != KindFile }

// Size returns the bytes the candidate occupies. It is computed on first call
// and cached; for a subtree it is the sum of the regular files below it.
// Symlinks count as their own size, never their target's.
func (c *Candidate) Size() int64 {
	c.sizeOnce.Do(func() {
		c.size, c.sizeErr = c.measure()
	})
	return c.size
}

// SizeErr reports a failure while measuring. The size is then a lower bound.
func (c *Candidate) SizeErr() error {
	c.Size()
	return c.sizeErr
}

func (c *Candidate) measure() (int64, error) {
	switch c.Kind {
	case KindEmptyDir:
		return 0, nil
	case KindFile:
		info, err := os.Lstat(c.Path)
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	}

	var total int64
	var firstErr error
	err := filepath.WalkDir(c.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if d != nil && d.IsDir() && path != c.Path {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil && firstErr == nil {
		firstErr = err
	}
	return total, firstErr
}
