//go:build !windows

package hasher

import (
	"errors"
	"syscall"
)

// isSharingViolation reports whether err is a transient lock/busy condition.
func isSharingViolation(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.EBUSY, syscall.EAGAIN, syscall.EINTR, syscall.EIO, syscall.ETIMEDOUT:
		return true
	}
	return false
}
