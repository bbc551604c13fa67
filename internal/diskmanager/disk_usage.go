// Package diskmanager reports free space on the filesystem receiving an
// export.
package diskmanager

import (
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/wildfire-loader/internal/errors"
)

// DiskSpaceInfo holds disk space figures for one filesystem.
type DiskSpaceInfo struct {
	Path           string
	TotalBytes     uint64
	UsedBytes      uint64
	AvailableBytes uint64
	UsedPercent    float64
}

// GetDetailedDiskUsage returns space figures for the filesystem holding
// path. Available space is what an unprivileged user can write.
func GetDetailedDiskUsage(path string) (DiskSpaceInfo, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return DiskSpaceInfo{}, errors.New(err).
			Component("diskmanager").
			Category(errors.CategoryFileIO).
			Context("operation", "disk_usage").
			FileContext(path, 0).
			Build()
	}
	return DiskSpaceInfo{
		Path:           path,
		TotalBytes:     usage.Total,
		UsedBytes:      usage.Used,
		AvailableBytes: usage.Free,
		UsedPercent:    usage.UsedPercent,
	}, nil
}

// HasRoomFor reports whether n more bytes fit.
func (i DiskSpaceInfo) HasRoomFor(n int64) bool {
	return n <= 0 || uint64(n) <= i.AvailableBytes
}
