package platform

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/joomcode/errorx"
)

var (
	ErrorsNamespace = errorx.NewNamespace("platform")
	LockError       = ErrorsNamespace.NewType("lock_error")
	// LockTimeout is the LockError raised when the timeout elapses while
	// another process holds the lock.
	LockTimeout = LockError.NewSubtype("timeout", errorx.Timeout())

	pathProperty = errorx.RegisterPrintableProperty("lock_path")
)

const lockRetryDelay = 100 * time.Millisecond

// Lock is a held cross-process operation lock.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes the lock file at path, retrying until timeout elapses
// or ctx is done.
func AcquireLock(ctx context.Context, path string, timeout time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errorx.Decorate(LockError.Wrap(err, "create lock directory"), "lock %s", path)
	}

	fl := flock.New(path)
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, LockError.Wrap(err, "acquire lock %s: interrupted", path).
			WithProperty(pathProperty, path)
	case errors.Is(err, context.DeadlineExceeded), err == nil && !locked:
		return nil, LockTimeout.New("another operation held lock %s for longer than %s", path, timeout).
			WithProperty(pathProperty, path)
	case err != nil:
		return nil, LockError.Wrap(err, "acquire lock %s", path).
			WithProperty(pathProperty, path)
	}
	slog.Debug("operation lock acquired", "path", path)
	return &Lock{fl: fl}, nil
}

// Release unlocks. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	err := l.fl.Unlock()
	l.fl = nil
	if err != nil {
		return LockError.Wrap(err, "release lock")
	}
	return nil
}

// IsLockTimeout reports whether AcquireLock gave up waiting for another
// holder.
func IsLockTimeout(err error) bool {
	return err != nil && errorx.HasTrait(err, errorx.Timeout())
}

// IsLockError reports whether err came from AcquireLock or Release.
func IsLockError(err error) bool {
	return err != nil && errorx.IsOfType(err, LockError)
}
