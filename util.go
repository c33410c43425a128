package bsda

import (
	"fmt"

	"github.com/pbnjay/memory"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
	TiB = 1024 * GiB
)

const (
	// Extracted automatically with a shell script, so keep the format:
	// version = XXXX
	Version = "v0.3.0"

	minCopyBufferSize = 64 * KiB
	maxCopyBufferSize = 8 * MiB
)

func MinInt64(x, y int64) int64 {
	if x > y {
		return y
	}
	return x
}

func MaxInt64(x, y int64) int64 {
	if x < y {
		return y
	}
	return x
}

// write the number of bytes as a human readable string
func diskSpaceString(numBytes int64) string {
	tb := float64(numBytes) / float64(TiB)
	if tb >= 1.0 {
		return fmt.Sprintf("%.1fTB", tb)
	}
	gb := float64(numBytes) / float64(GiB)
	if gb >= 1.0 {
		return fmt.Sprintf("%.1fGB", gb)
	}
	mb := float64(numBytes) / float64(MiB)
	if mb >= 1.0 {
		return fmt.Sprintf("%.1fMB", mb)
	}
	return fmt.Sprintf("%dBytes", numBytes)
}

// Size of the buffer used to stream a file to disk. Scales with machine
// memory, within fixed bounds.
func copyBufferSize() int {
	return int(copyBufferSizeFor(int64(memory.TotalMemory())))
}

func copyBufferSizeFor(totalMemory int64) int64 {
	return MaxInt64(minCopyBufferSize, MinInt64(totalMemory/1024, maxCopyBufferSize))
}
