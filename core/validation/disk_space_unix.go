//go:build !windows

package validation

import "syscall"

// getDiskSpace reports total and free bytes on the filesystem holding
// path. Free counts blocks available to unprivileged users (Bavail, not
// Bfree), matching what a download could actually use.
func getDiskSpace(path string) (total int64, free int64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}

	bsize := int64(stat.Bsize)
	return int64(stat.Blocks) * bsize, int64(stat.Bavail) * bsize, nil
}
