// Package lock guards a repo against concurrent orchestrator processes.
// Commands not marked safe_for_simultaneous_processes hold this lock for the
// duration of their invocation.
package lock

import (
	"fmt"
	"os"
	"syscall"
)

// RepoLock is an advisory flock on a file under the repo's workspace
// directory, carrying the holder's PID for diagnostics.
type RepoLock struct {
	path string
	file *os.File
}

// New creates an unacquired lock at path.
func New(path string) *RepoLock {
	return &RepoLock{path: path}
}

// TryAcquire takes the lock without blocking. Failure means another
// orchestrator process is already working in this repo.
func (l *RepoLock) TryAcquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("repo is locked by another process: %w", err)
	}

	if err := f.Truncate(0); err == nil {
		if _, err := f.Seek(0, 0); err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
		}
	}

	l.file = f
	return nil
}

// Release drops the lock. Safe to call when never acquired.
func (l *RepoLock) Release() error {
	if l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("release lock: %w", err)
	}
	err := l.file.Close()
	l.file = nil
	return err
}
