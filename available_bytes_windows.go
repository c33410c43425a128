//go:build windows

package bsda

import "golang.org/x/sys/windows"

func getAvailableBytes(dir string) (int64, error) {
	dirPtr, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0, err
	}
	var availableToCaller, totalBytes, freeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(dirPtr, &availableToCaller, &totalBytes, &freeBytes); err != nil {
		return 0, err
	}
	return int64(availableToCaller), nil
}
