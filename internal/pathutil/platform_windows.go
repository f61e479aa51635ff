//go:build windows

package pathutil

import (
	"strings"
)

const (
	longPathPrefix = `\\?\`
	uncLongPrefix  = `\\?\UNC\`
)

// platformNormalize applies the extended-length prefix so paths beyond
// MAX_PATH and UNC shares resolve correctly.
func platformNormalize(path string) string {
	if strings.HasPrefix(path, longPathPrefix) {
		return path
	}
	if strings.HasPrefix(path, `\\`) {
		// UNC share: \\server\share -> \\?\UNC\server\share
		return uncLongPrefix + strings.TrimPrefix(path, `\\`)
	}
	return longPathPrefix + path
}

func platformStrip(path string) string {
	if strings.HasPrefix(path, uncLongPrefix) {
		return `\\` + strings.TrimPrefix(path, uncLongPrefix)
	}
	return strings.TrimPrefix(path, longPathPrefix)
}
