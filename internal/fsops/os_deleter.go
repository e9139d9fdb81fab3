package fsops

import (
	"errors"
	"os"
)

// OSDeleter implements Deleter with typed os calls. No shell is involved.
type OSDeleter struct{}

func (OSDeleter) Remove(path string) error {
	return os.Remove(path)
}

// RemoveAll differs from os.RemoveAll in one way: a path that is already
// gone is reported as os.ErrNotExist, so callers can tell a vanished junk
// directory from a removed one.
func (OSDeleter) RemoveAll(path string) error {
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return os.RemoveAll(path)
}
