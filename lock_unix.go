//go:build darwin || linux || freebsd || netbsd || openbsd || dragonfly

package wgapple

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// buildRootLock is an advisory exclusive lock on the build root. A second
// pipeline on the same build root fails instead of racing the first.
type buildRootLock struct {
	f *os.File
}

func acquireLock(path string) (*buildRootLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("build root is locked by another pipeline (%s)", path)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return &buildRootLock{f: f}, nil
}

func (l *buildRootLock) release() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
