package monitor

import (
	"fmt"
	"sort"
)

type Level string

const (
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

type Alert struct {
	Level     Level   `json:"level"`
	Metric    string  `json:"metric"`
	Message   string  `json:"message"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

const (
	cpuThreshold        = 80.0
	memoryThreshold     = 85.0
	diskThreshold       = 90.0
	errorRateThreshold  = 5.0
	errorRateMinSamples = 10
)

// CheckAlerts evaluates the latest system sample and per operation error
// rates. Operations are reported in name order.
func (m *Monitor) CheckAlerts() []Alert {
	var alerts []Alert

	if snap, ok := m.Latest(); ok {
		if snap.CPUPercent > cpuThreshold {
			alerts = append(alerts, Alert{
				Level:     LevelWarning,
				Metric:    "cpu_percent",
				Message:   fmt.Sprintf("CPU usage %.1f%% above %.0f%%", snap.CPUPercent, cpuThreshold),
				Value:     snap.CPUPercent,
				Threshold: cpuThreshold,
			})
		}
		if snap.MemoryPercent > memoryThreshold {
			alerts = append(alerts, Alert{
				Level:     LevelWarning,
				Metric:    "memory_percent",
				Message:   fmt.Sprintf("memory usage %.1f%% above %.0f%%", snap.MemoryPercent, memoryThreshold),
				Value:     snap.MemoryPercent,
				Threshold: memoryThreshold,
			})
		}
		if snap.DiskPercent > diskThreshold {
			alerts = append(alerts, Alert{
				Level:     LevelCritical,
				Metric:    "disk_percent",
				Message:   fmt.Sprintf("disk usage %.1f%% above %.0f%%", snap.DiskPercent, diskThreshold),
				Value:     snap.DiskPercent,
				Threshold: diskThreshold,
			})
		}
	}

	m.opsMu.Lock()
	names := make([]string, 0, len(m.ops))
	for name := range m.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := m.ops[name]
		if st.count < errorRateMinSamples {
			continue
		}
		rate := ratio(st.errors, st.count)
		if rate <= errorRateThreshold {
			continue
		}
		alerts = append(alerts, Alert{
			Level:     LevelWarning,
			Metric:    "error_rate:" + name,
			Message:   fmt.Sprintf("%s error rate %.1f%% above %.0f%%", name, rate, errorRateThreshold),
			Value:     rate,
			Threshold: errorRateThreshold,
		})
	}
	m.opsMu.Unlock()

	return alerts
}
