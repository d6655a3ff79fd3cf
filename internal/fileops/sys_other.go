//go:build !(linux || darwin || freebsd)

package fileops

import "errors"

// DiskUsage is not available on this platform.
func DiskUsage(path string) (free, total uint64, err error) {
	return 0, 0, errors.New("disk usage not supported")
}

func isNotDir(error) bool { return false }
