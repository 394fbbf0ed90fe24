package filesystem

import "github.com/vertextoedge/cacheable-image/internal/port"

func newDiskUsage(total, free uint64) *port.DiskUsage {
	usage := &port.DiskUsage{Total: total, Free: free}
	if free < total {
		usage.Used = total - free
	}
	if total > 0 {
		usage.UsedPct = float64(usage.Used) / float64(total) * 100
	}
	return usage
}
