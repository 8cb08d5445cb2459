// Package monitor provides disk usage monitoring functionality.
package monitor

import (
	"github.com/shirou/gopsutil/v3/disk"
)

// DiskStats represents disk usage statistics.
type DiskStats struct {
	// Path is the mount point being monitored
	Path string
	// Total bytes on the disk
	Total uint64
	// Used bytes on the disk
	Used uint64
	// Free bytes on the disk
	Free uint64
	// UsedPercent is the percentage of disk used
	UsedPercent float64
	// FreePercent is the percentage of disk free
	FreePercent float64
	// FreeGB is free space in gigabytes
	FreeGB float64
}

// GetDiskStats returns disk statistics for the specified path.
func GetDiskStats(path string) (*DiskStats, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return nil, err
	}

	return &DiskStats{
		Path:        path,
		Total:       usage.Total,
		Used:        usage.Used,
		Free:        usage.Free,
		UsedPercent: usage.UsedPercent,
		FreePercent: 100.0 - usage.UsedPercent,
		FreeGB:      float64(usage.Free) / (1024 * 1024 * 1024),
	}, nil
}

// CapacityCheck reports whether a filesystem has room for an expected
// amount of output.
type CapacityCheck struct {
	// Stats for the filesystem holding the checked path
	Stats *DiskStats
	// Required bytes of output in the worst case
	Required int64
	// Fits is true when the free space covers Required
	Fits bool
}

// CheckCapacity compares the free space of the filesystem holding dir
// against required bytes of expected output. required values of zero or
// less always fit; they mean the caller could not estimate.
func CheckCapacity(dir string, required int64) (*CapacityCheck, error) {
	stats, err := GetDiskStats(dir)
	if err != nil {
		return nil, err
	}

	return &CapacityCheck{
		Stats:    stats,
		Required: required,
		Fits:     fits(stats.Free, required),
	}, nil
}

func fits(free uint64, required int64) bool {
	return required <= 0 || uint64(required) <= free
}
