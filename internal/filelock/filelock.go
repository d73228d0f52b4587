// Package filelock provides an exclusive advisory lock scoped to a file path.
// The lock lives in a sibling "<path>.lock" file so the guarded file itself
// can be replaced by rename while the lock is held.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/starford/cfgswap/internal/apperr"
)

// errWouldBlock is returned by tryLock when another holder has the lock.
var errWouldBlock = errors.New("lock held by another process")

// Options bound how long Acquire keeps retrying.
type Options struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultOptions returns six attempts starting at 50ms, doubling up to 1s.
func DefaultOptions() Options {
	return Options{
		Attempts:        6,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// Lock is a held lock. Release must be called exactly once; extra calls are no-ops.
type Lock struct {
	path string
	f    *os.File
	once sync.Once
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Acquire takes the exclusive lock for target. Contention is retried with
// exponential backoff until opts.Attempts is exhausted or ctx is done, in
// which case the error matches apperr.ErrFileLocked.
func Acquire(ctx context.Context, target string, opts Options) (*Lock, error) {
	if opts.Attempts <= 0 {
		opts = DefaultOptions()
	}
	lockPath := target + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("filelock: create lock dir: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("filelock: open %s: %w", lockPath, errors.Join(apperr.ErrPermissionDenied, err))
		}
		return nil, fmt.Errorf("filelock: open %s: %w", lockPath, errors.Join(apperr.ErrIO, err))
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.InitialInterval
	b.MaxInterval = opts.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(opts.Attempts-1)), ctx)

	err = backoff.Retry(func() error {
		lerr := tryLock(f)
		if lerr == nil || errors.Is(lerr, errWouldBlock) {
			return lerr
		}
		return backoff.Permanent(lerr)
	}, policy)
	if err != nil {
		_ = f.Close()
		if errors.Is(err, errWouldBlock) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("filelock: %s after %d attempts: %w", target, opts.Attempts, errors.Join(apperr.ErrFileLocked, err))
		}
		return nil, fmt.Errorf("filelock: lock %s: %w", lockPath, errors.Join(apperr.ErrIO, err))
	}
	return &Lock{path: lockPath, f: f}, nil
}

// Release unlocks and closes the lock file. The file itself is left in place;
// removing it would let a waiter lock an unlinked inode.
func (l *Lock) Release() error {
	var err error
	l.once.Do(func() {
		uerr := unlock(l.f)
		cerr := l.f.Close()
		err = errors.Join(uerr, cerr)
	})
	return err
}
