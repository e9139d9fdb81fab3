package fsops

import "sync"

// FakeDeleter records delete calls without touching the filesystem.
// Errors maps a path to the error its delete call returns.
type FakeDeleter struct {
	mu     sync.Mutex
	Calls  []string
	Errors map[string]error
}

func (f *FakeDeleter) Remove(path string) error {
	return f.record("rm:", path)
}

func (f *FakeDeleter) RemoveAll(path string) error {
	return f.record("rmall:", path)
}

func (f *FakeDeleter) record(op, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, op+path)
	return f.Errors[path]
}

// CallCount returns the number of delete calls seen so far.
func (f *FakeDeleter) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
