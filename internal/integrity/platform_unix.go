//go:build !windows

package integrity

import (
	"os"

	"github.com/jonasyr/HashSmith-sub000/pkg/models"
)

// platformAttributes derives attribute bits on Unix-like systems, where
// hidden means a leading dot and there is no system attribute.
func platformAttributes(info os.FileInfo) models.FileAttributes {
	var attrs models.FileAttributes
	name := info.Name()
	if len(name) > 0 && name[0] == '.' {
		attrs |= models.AttrHidden
	}
	return attrs
}
