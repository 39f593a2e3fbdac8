//go:build linux || darwin || freebsd

package state

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DiskUsage reports the filesystem holding path.
type DiskUsage struct {
	Total     uint64
	Available uint64
}

func (d DiskUsage) UsedPct() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Total-d.Available) / float64(d.Total) * 100
}

func Disk(path string) (DiskUsage, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return DiskUsage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	return DiskUsage{
		Total:     stat.Blocks * uint64(stat.Bsize),
		Available: stat.Bavail * uint64(stat.Bsize),
	}, nil
}
