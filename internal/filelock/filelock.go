// Package filelock implements the advisory file lock spec.md §5 requires
// around lock-file read-modify-write: "Lock file writes use a file lock
// (advisory) around read-modify-write. On timeout, raise LockTimeoutError".
// It uses the same create-exclusive retry/backoff idiom the teacher uses
// for its SQLite busy-retry loop, rather than a new OS-level flock
// dependency no repo in the pack otherwise pulls in.
package filelock

import (
	"os"
	"time"

	"asp/internal/asperr"
)

// Lock is a held advisory lock; call Unlock to release it.
type Lock struct {
	path string
}

// Acquire creates path exclusively, retrying with backoff until timeout
// elapses. The lock file's content is informational only (the UTC time of
// acquisition), never consulted for correctness.
func Acquire(path string, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)
	backoff := 20 * time.Millisecond
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = f.WriteString(pidContents())
			_ = f.Close()
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, asperr.LockTimeoutError(path, timeout.Seconds())
		}
		time.Sleep(backoff)
		if backoff < 500*time.Millisecond {
			backoff *= 2
		}
	}
}

// Unlock releases the lock by removing the lock file.
func (l *Lock) Unlock() error {
	return os.Remove(l.path)
}

func pidContents() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
