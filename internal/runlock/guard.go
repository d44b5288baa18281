// Package runlock prevents two runs from working on the same root at the same time.
package runlock

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const (
	lockFileNameTemplateConstant       = "git-compact-%s.lock"
	lockDigestLengthConstant           = 16
	lockDirectoryPermissionsConstant   = 0o755
	alreadyRunningMessageConstant      = "another run is already working on this root"
	lockDirectoryErrorTemplateConstant = "unable to create lock directory %s: %w"
	lockAcquireErrorTemplateConstant   = "unable to acquire run lock %s: %w"
	lockHeldErrorTemplateConstant      = "%w: %s"
)

// ErrAlreadyRunning indicates the lock for the root is held by another process.
var ErrAlreadyRunning = errors.New(alreadyRunningMessageConstant)

// Guard hands out exclusive, non-blocking file locks keyed by run root.
type Guard struct {
	lockDirectory string
}

// NewGuard constructs a Guard that keeps lock files in lockDirectory, or the OS temp directory when empty.
func NewGuard(lockDirectory string) *Guard {
	if len(lockDirectory) == 0 {
		lockDirectory = os.TempDir()
	}
	return &Guard{lockDirectory: lockDirectory}
}

// LockPath returns the lock file used for root.
func (guard *Guard) LockPath(root string) string {
	digest := sha256.Sum256([]byte(filepath.Clean(root)))
	encodedDigest := hex.EncodeToString(digest[:])[:lockDigestLengthConstant]
	return filepath.Join(guard.lockDirectory, fmt.Sprintf(lockFileNameTemplateConstant, encodedDigest))
}

// Acquire takes the lock for root without waiting and returns its release function.
func (guard *Guard) Acquire(root string) (func() error, error) {
	if directoryError := os.MkdirAll(guard.lockDirectory, lockDirectoryPermissionsConstant); directoryError != nil {
		return nil, fmt.Errorf(lockDirectoryErrorTemplateConstant, guard.lockDirectory, directoryError)
	}

	lockPath := guard.LockPath(root)
	fileLock := flock.New(lockPath)
	locked, lockError := fileLock.TryLock()
	if lockError != nil {
		return nil, fmt.Errorf(lockAcquireErrorTemplateConstant, lockPath, lockError)
	}
	if !locked {
		return nil, fmt.Errorf(lockHeldErrorTemplateConstant, ErrAlreadyRunning, lockPath)
	}
	return fileLock.Unlock, nil
}
