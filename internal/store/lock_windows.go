//go:build windows

package store

import (
	"os"
	"time"

	"github.com/pkglab/pkglab/internal/pkgerrors"
)

// acquireExclusive and acquireShared fall back to a plain O_EXCL lock file
// on Windows (no LockFileEx wiring; pkglab's supported platform is Unix,
// this keeps the build green). Shared/exclusive are not distinguished.
func acquireExclusive(path string, timeout time.Duration) (func(), error) {
	return acquire(path, timeout)
}

func acquireShared(path string, timeout time.Duration) (func(), error) {
	return acquire(path, timeout)
}

func acquire(path string, timeout time.Duration) (func(), error) {
	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
		if err == nil {
			return func() {
				_ = f.Close()
				_ = os.Remove(path)
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, pkgerrors.Newf(pkgerrors.Busy, path, "lock not acquired within %s", timeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
