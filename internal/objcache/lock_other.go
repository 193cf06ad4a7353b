//go:build !unix

package objcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const lockPoll = 50 * time.Millisecond

// Lock takes the exclusive writer lock by creating "<snapshot>.lock"
// exclusively. A lock file left behind by a crashed run must be removed by hand.
func (s *Store) Lock(ctx context.Context) (func(), error) {
	path := s.path + ".lock"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("creating lock file: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrLocked, path, ctx.Err())
		case <-time.After(lockPoll):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := os.Remove(path); err != nil {
				s.logger.Warn("releasing writer lock failed", "path", path, "error", err)
			}
		})
	}, nil
}
