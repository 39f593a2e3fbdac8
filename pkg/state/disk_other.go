//go:build !(linux || darwin || freebsd)

package state

import "errors"

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
	return DiskUsage{}, errors.New("disk usage not supported on this platform")
}
