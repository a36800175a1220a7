package analytics

import (
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// DiskUsage holds free/used/total space for the volume backing path, so the
// orchestrator can surface it before admitting large chunked downloads.
type DiskUsage struct {
	UsedBytes  uint64  `json:"used_bytes"`
	FreeBytes  uint64  `json:"free_bytes"`
	TotalBytes uint64  `json:"total_bytes"`
	Percent    float64 `json:"percent"`
}

// GetDiskUsage reports usage for the volume containing path. Errors yield a
// zero-value DiskUsage rather than aborting the caller's stats computation.
func GetDiskUsage(path string) DiskUsage {
	volumePath := filepath.VolumeName(path)
	if volumePath == "" {
		volumePath = path
	} else {
		volumePath += string(filepath.Separator)
	}

	usage, err := disk.Usage(volumePath)
	if err != nil {
		return DiskUsage{}
	}

	return DiskUsage{
		UsedBytes:  usage.Used,
		FreeBytes:  usage.Free,
		TotalBytes: usage.Total,
		Percent:    usage.UsedPercent,
	}
}
