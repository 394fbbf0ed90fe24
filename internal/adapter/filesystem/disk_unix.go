//go:build !windows

package filesystem

import (
	"fmt"
	"syscall"

	"github.com/vertextoedge/cacheable-image/internal/port"
)

// GetDiskUsage returns disk usage of the volume holding the cache root
func (m *Manager) GetDiskUsage() (*port.DiskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(m.rootDir, &stat); err != nil {
		return nil, fmt.Errorf("failed to get disk stats: %w", err)
	}

	bsize := uint64(stat.Bsize)
	return newDiskUsage(uint64(stat.Blocks)*bsize, uint64(stat.Bavail)*bsize), nil
}
