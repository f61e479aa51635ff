package hasher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jonasyr/HashSmith-sub000/pkg/models"
)

// errReadTimeout marks a per-attempt deadline expiry. Timeouts are transient.
var errReadTimeout = errors.New("read timed out")

// Classify maps a file operation error for path to its outcome category.
// Not-exist errors distinguish a missing file from a missing parent
// directory; locked/sharing conditions and timeouts classify as transient IO.
func Classify(path string, err error) models.ErrorCategory {
	switch {
	case err == nil:
		return models.ErrCatNone
	case errors.Is(err, fs.ErrNotExist):
		if dir := filepath.Dir(path); dir != "" {
			if _, statErr := os.Stat(dir); statErr != nil {
				return models.ErrCatDirectoryNotFound
			}
		}
		return models.ErrCatFileNotFound
	case errors.Is(err, fs.ErrPermission):
		return models.ErrCatAccessDenied
	case errors.Is(err, errReadTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded):
		return models.ErrCatIO
	case isSharingViolation(err):
		return models.ErrCatIO
	default:
		return models.ErrCatUnknown
	}
}
