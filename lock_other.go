//go:build !(darwin || linux || freebsd || netbsd || openbsd || dragonfly)

package wgapple

// buildRootLock is a no-op where flock is unavailable.
type buildRootLock struct{}

func acquireLock(string) (*buildRootLock, error) {
	return &buildRootLock{}, nil
}

func (*buildRootLock) release() error {
	return nil
}
