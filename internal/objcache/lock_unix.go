//go:build unix

package objcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// lockPoll is how often a contended lock is retried.
const lockPoll = 50 * time.Millisecond

// Lock takes the exclusive writer lock for this snapshot, waiting until ctx
// is done. The lock is an advisory flock on "<snapshot>.lock" and is dropped
// by the kernel if the process dies. The returned unlock func is idempotent.
func (s *Store) Lock(ctx context.Context) (func(), error) {
	path := s.path + ".lock"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	fd := int(f.Fd())

	start := time.Now()
	for {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			return nil, fmt.Errorf("locking %s: %w", path, err)
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrLocked, path, ctx.Err())
		case <-time.After(lockPoll):
		}
	}

	s.logger.Debug("writer lock acquired", "path", path, "wait_ms", time.Since(start).Milliseconds())

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := unix.Flock(fd, unix.LOCK_UN); err != nil {
				s.logger.Warn("releasing writer lock failed", "path", path, "error", err)
			}
			f.Close()
		})
	}, nil
}
