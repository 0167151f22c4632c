package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const diskUsageLimit = 90.0

// HealthCheck writes, reads back and removes a probe file in the temp area
// and samples disk usage for the base path.
func (s *FileSystem) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{CheckedAt: s.now().UTC()}

	probe := filepath.Join(s.tempRoot(), "health-"+uuid.NewString()+".tmp")
	payload := []byte("lumen health " + status.CheckedAt.String())

	if err := os.WriteFile(probe, payload, 0o600); err != nil {
		status.Error = fmt.Sprintf("write probe: %v", err)
	} else {
		status.WriteOK = true
		got, err := os.ReadFile(probe)
		switch {
		case err != nil:
			status.Error = fmt.Sprintf("read probe: %v", err)
		case !bytes.Equal(got, payload):
			status.Error = "read probe: content mismatch"
		default:
			status.ReadOK = true
		}
		if err := os.Remove(probe); err != nil && status.Error == "" {
			status.Error = fmt.Sprintf("remove probe: %v", err)
		}
	}

	if du, err := s.diskUsage(ctx, s.settings.BasePath); err != nil {
		if status.Error == "" {
			status.Error = fmt.Sprintf("disk usage: %v", err)
		}
	} else {
		status.DiskUsagePercent = du.UsedPercent
	}

	status.Healthy = status.WriteOK && status.ReadOK && status.DiskUsagePercent <= diskUsageLimit
	if !status.Healthy {
		s.log.Warn().
			Bool("write_ok", status.WriteOK).
			Bool("read_ok", status.ReadOK).
			Float64("disk_usage_percent", status.DiskUsagePercent).
			Str("error", status.Error).
			Msg("storage unhealthy")
	}
	return status
}
