//go:build !windows

package bsda

import "golang.org/x/sys/unix"

func getAvailableBytes(dir string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0, err
	}
	// Available blocks * size per block = available space in bytes
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
