package safety

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath    = errors.New("invalid path")
	ErrProtectedPath  = errors.New("protected path")
	ErrOutsideAllowed = errors.New("outside scope roots")
	ErrScopeRoot      = errors.New("scope root itself")
	ErrTraversal      = errors.New("path traversal detected")
	ErrSymlinkEscape  = errors.New("symlink escape detected")
)

// Validator enforces the safety contract for a single delete, immediately
// before it happens.
type Validator struct {
	roots    []string
	resolved []string
	guard    *Guard
}

// NewValidator binds a validator to the scope roots of one job.
func NewValidator(roots []string, guard *Guard) *Validator {
	v := &Validator{guard: guard}
	for _, r := range roots {
		p, err := NormalizePath(r)
		if err != nil {
			continue
		}
		v.roots = append(v.roots, p)
		v.resolved = append(v.resolved, ResolveRoot(p))
	}
	return v
}

// ValidateDeleteTarget is the last gate before a delete syscall. Every error
// except ErrSymlinkEscape means the caller produced a target it should never
// have produced.
func (v *Validator) ValidateDeleteTarget(path string) error {
	if DetectTraversal(path) {
		return ErrTraversal
	}
	p, err := NormalizePath(path)
	if err != nil {
		return err
	}

	if v.guard.IsProtected(p) || v.guard.ContainsProtected(p) {
		return ErrProtectedPath
	}

	for _, r := range v.roots {
		if p == r {
			return ErrScopeRoot
		}
	}
	idx := -1
	for i, r := range v.roots {
		if WithinPath(p, r) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrOutsideAllowed
	}

	// The entry itself may be a symlink; removing it only unlinks it. What
	// must not have moved is the directory it lives in.
	parent, err := filepath.EvalSymlinks(filepath.Dir(p))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !WithinPath(parent, v.resolved[idx]) {
		return ErrSymlinkEscape
	}
	return nil
}

// NormalizePath cleans an absolute path. Relative paths are rejected rather
// than resolved against the working directory.
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidPath
	}
	if !filepath.IsAbs(path) {
		return "", ErrInvalidPath
	}
	return filepath.Clean(path), nil
}

// DetectTraversal blocks any ".." segment in raw input
func DetectTraversal(raw string) bool {
	for _, p := range strings.Split(filepath.ToSlash(raw), "/") {
		if p == ".." {
			return true
		}
	}
	return false
}

// ResolveRoot returns root with symlinks resolved, or root unchanged when it
// cannot be resolved.
func ResolveRoot(root string) string {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return filepath.Clean(root)
	}
	return filepath.Clean(resolved)
}
