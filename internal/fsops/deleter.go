package fsops

// Deleter abstracts the only two mutating calls the executor makes.
// Tests swap in FakeDeleter to prove a dry run never reaches the filesystem.
type Deleter interface {
	// Remove deletes a file, a symlink, or an empty directory.
	Remove(path string) error
	// RemoveAll deletes a junk directory and everything below it.
	RemoveAll(path string) error
}
