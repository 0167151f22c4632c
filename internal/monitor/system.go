package monitor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

type SystemSnapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryPercent  float64   `json:"memory_percent"`
	DiskPercent    float64   `json:"disk_percent"`
	DiskReadBytes  uint64    `json:"disk_read_bytes"`
	DiskWriteBytes uint64    `json:"disk_write_bytes"`
	NetBytesSent   uint64    `json:"net_bytes_sent"`
	NetBytesRecv   uint64    `json:"net_bytes_recv"`
	Connections    int       `json:"connections"`
	CacheHitRate   float64   `json:"cache_hit_rate"`
}

type Sampler interface {
	Sample(ctx context.Context) (SystemSnapshot, error)
}

// HostSampler samples the local host with gopsutil. Disk usage is taken for
// the filesystem holding Path.
type HostSampler struct {
	Path string
}

func (h HostSampler) Sample(ctx context.Context) (SystemSnapshot, error) {
	snap := SystemSnapshot{Timestamp: time.Now().UTC()}

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return snap, err
	}
	if len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return snap, err
	}
	snap.MemoryPercent = vm.UsedPercent

	path := h.Path
	if path == "" {
		path = "/"
	}
	du, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return snap, err
	}
	snap.DiskPercent = du.UsedPercent

	// I/O counters and connections are not available everywhere; a failure
	// there leaves the fields at zero.
	if counters, err := disk.IOCountersWithContext(ctx); err == nil {
		for _, c := range counters {
			snap.DiskReadBytes += c.ReadBytes
			snap.DiskWriteBytes += c.WriteBytes
		}
	}
	if io, err := net.IOCountersWithContext(ctx, false); err == nil && len(io) > 0 {
		snap.NetBytesSent = io[0].BytesSent
		snap.NetBytesRecv = io[0].BytesRecv
	}
	if conns, err := net.ConnectionsWithContext(ctx, "inet"); err == nil {
		snap.Connections = len(conns)
	}
	return snap, nil
}
