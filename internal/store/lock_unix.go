//go:build !windows

package store

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/pkglab/pkglab/internal/pkgerrors"
)

// acquireExclusive and acquireShared take the catalog lock via flock(2),
// polling until timeout rather than blocking indefinitely so a stuck lock
// holder surfaces as Busy instead of hanging the CLI forever.
func acquireExclusive(path string, timeout time.Duration) (func(), error) {
	return acquire(path, unix.LOCK_EX, timeout)
}

func acquireShared(path string, timeout time.Duration) (func(), error) {
	return acquire(path, unix.LOCK_SH, timeout)
}

func acquire(path string, how int, timeout time.Duration) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644) //nolint:gosec // G304: fixed lock path under the user's home
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.Busy, path, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(f.Fd()), how|unix.LOCK_NB)
		if err == nil {
			return func() {
				_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
				_ = f.Close()
			}, nil
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, pkgerrors.Newf(pkgerrors.Busy, path, "lock not acquired within %s", timeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
