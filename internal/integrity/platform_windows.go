//go:build windows

package integrity

import (
	"os"
	"syscall"

	"github.com/jonasyr/HashSmith-sub000/pkg/models"
)

// platformAttributes reads the native attribute word on Windows.
func platformAttributes(info os.FileInfo) models.FileAttributes {
	var attrs models.FileAttributes
	if stat, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		if stat.FileAttributes&syscall.FILE_ATTRIBUTE_HIDDEN != 0 {
			attrs |= models.AttrHidden
		}
		if stat.FileAttributes&syscall.FILE_ATTRIBUTE_SYSTEM != 0 {
			attrs |= models.AttrSystem
		}
		if stat.FileAttributes&syscall.FILE_ATTRIBUTE_REPARSE_POINT != 0 {
			attrs |= models.AttrReparse
		}
	}
	return attrs
}
