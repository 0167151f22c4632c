package monitor

import (
	"sort"
	"time"
)

type PerformanceMetric struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func (m *Monitor) record(name string, value float64, unit string, tags map[string]string) {
	var copied map[string]string
	if len(tags) > 0 {
		copied = make(map[string]string, len(tags))
		for k, v := range tags {
			copied[k] = v
		}
	}

	m.seriesMu.Lock()
	defer m.seriesMu.Unlock()
	r, ok := m.series[name]
	if !ok {
		r = newRing[PerformanceMetric](m.settings.HistorySize)
		m.series[name] = r
	}
	r.push(PerformanceMetric{
		Name:      name,
		Value:     value,
		Unit:      unit,
		Tags:      copied,
		Timestamp: m.now().UTC(),
	})
}

func (m *Monitor) Metrics(name string) []PerformanceMetric {
	m.seriesMu.RLock()
	defer m.seriesMu.RUnlock()
	r, ok := m.series[name]
	if !ok {
		return nil
	}
	return r.values()
}

func (m *Monitor) MetricNames() []string {
	m.seriesMu.RLock()
	names := make([]string, 0, len(m.series))
	for name := range m.series {
		names = append(names, name)
	}
	m.seriesMu.RUnlock()
	sort.Strings(names)
	return names
}

func (m *Monitor) latestMetrics() map[string]PerformanceMetric {
	m.seriesMu.RLock()
	defer m.seriesMu.RUnlock()
	out := make(map[string]PerformanceMetric, len(m.series))
	for name, r := range m.series {
		if last, ok := r.last(); ok {
			out[name] = last
		}
	}
	return out
}
