//go:build windows

package hasher

import (
	"errors"
	"syscall"
)

const (
	errorSharingViolation syscall.Errno = 32
	errorLockViolation    syscall.Errno = 33
)

// isSharingViolation reports whether err is a transient lock/busy condition.
// Sharing and lock violations are the usual cause on Windows shares.
func isSharingViolation(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case errorSharingViolation, errorLockViolation, syscall.EBUSY, syscall.ETIMEDOUT:
		return true
	}
	return false
}
