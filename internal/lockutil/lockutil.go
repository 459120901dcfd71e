// Package lockutil provides the cross-process file-lock helper used by the
// file storage backend, grounded on the reference's
// internal/daemon/registry.go withFileLock pattern.
package lockutil

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// pollInterval is how often TryLockContext re-attempts acquisition while
// waiting for a concurrent holder to release lockPath.
const pollInterval = 25 * time.Millisecond

// Acquire takes an exclusive lock on lockPath, retrying until timeout
// elapses, and returns a func that releases it. Storage backends use this
// directly for the duration of a mutating command (spec §5); WithLock
// below wraps it for callers that just want to run a closure under lock.
func Acquire(ctx context.Context, lockPath string, timeout time.Duration) (func() error, error) {
	l := flock.New(lockPath)
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := l.TryLockContext(lockCtx, pollInterval)
	if err != nil {
		return nil, fmt.Errorf("lockutil: acquire lock on %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("lockutil: timed out acquiring lock on %s", lockPath)
	}
	return l.Unlock, nil
}

// WithLock acquires an exclusive lock on lockPath, runs fn, then releases
// it. It serializes concurrent invocations the way the reference serializes
// registry.json read-modify-write cycles.
func WithLock(ctx context.Context, lockPath string, timeout time.Duration, fn func() error) error {
	unlock, err := Acquire(ctx, lockPath, timeout)
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()

	return fn()
}
