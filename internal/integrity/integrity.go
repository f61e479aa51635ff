// Package integrity detects concurrent modification of files being hashed
// by comparing lightweight metadata snapshots taken before and after the
// read.
package integrity

import (
	"os"

	"github.com/jonasyr/HashSmith-sub000/pkg/models"
)

// Snapshot captures the current size, modification time, and attributes of
// the file at path. Snapshots are cheap (one stat, no open handle).
func Snapshot(path string) (models.IntegritySnapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.IntegritySnapshot{}, err
	}
	return models.IntegritySnapshot{
		Size:       info.Size(),
		ModTime:    info.ModTime().UTC(),
		Attributes: Attributes(info),
	}, nil
}

// Equal reports whether two snapshots describe the same file state.
func Equal(a, b models.IntegritySnapshot) bool {
	return a.Equal(b)
}

// Attributes extracts the hidden/system/reparse attribute bits from a stat
// result. Hidden detection is platform-dependent.
func Attributes(info os.FileInfo) models.FileAttributes {
	var attrs models.FileAttributes
	if info.Mode()&os.ModeSymlink != 0 {
		attrs |= models.AttrReparse
	}
	attrs |= platformAttributes(info)
	return attrs
}
