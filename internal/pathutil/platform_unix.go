//go:build !windows

package pathutil

// platformNormalize is a no-op outside Windows; abs+clean is canonical.
func platformNormalize(path string) string {
	return path
}

func platformStrip(path string) string {
	return path
}
