package state

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Lock takes an advisory exclusive lock for a prompt id, guarding one
// orchestrator process per loop. It fails immediately (rather than blocking)
// when another process holds the lock. The returned function releases it.
func (st *Store) Lock(promptID string) (func(), error) {
	if err := os.MkdirAll(st.Dir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(st.Dir, promptID+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("loop for prompt %q is already running (lock held on %s)", promptID, path)
	}
	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}
