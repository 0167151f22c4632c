package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/cache"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/storage"
)

type OperationSummary struct {
	Count     int64   `json:"count"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
	AvgMs     float64 `json:"avg_ms"`
	MaxMs     float64 `json:"max_ms"`
}

type RequestSummary struct {
	Window     string  `json:"window"`
	Count      int     `json:"count"`
	RatePerSec float64 `json:"rate_per_sec"`
	ErrorRate  float64 `json:"error_rate"`
	AvgMs      float64 `json:"avg_ms"`
	P95Ms      float64 `json:"p95_ms"`
}

type CacheSummary struct {
	Hits    int64             `json:"hits"`
	Misses  int64             `json:"misses"`
	Errors  int64             `json:"errors"`
	HitRate float64           `json:"hit_rate"`
	Backend *cache.CacheStats `json:"backend,omitempty"`
}

type Summary struct {
	GeneratedAt time.Time                    `json:"generated_at"`
	Operations  map[string]OperationSummary  `json:"operations"`
	Requests    RequestSummary               `json:"requests"`
	Cache       CacheSummary                 `json:"cache"`
	System      *SystemSnapshot              `json:"system,omitempty"`
	Storage     *storage.StorageMetrics      `json:"storage,omitempty"`
	Alerts      []Alert                      `json:"alerts"`
	Metrics     map[string]PerformanceMetric `json:"metrics"`
}

func (m *Monitor) Summary(ctx context.Context) Summary {
	s := Summary{
		GeneratedAt: m.now().UTC(),
		Operations:  m.operationSummary(),
		Requests:    m.requestSummary(),
		Alerts:      m.CheckAlerts(),
		Metrics:     m.latestMetrics(),
	}
	if s.Alerts == nil {
		s.Alerts = []Alert{}
	}

	m.cacheMu.Lock()
	s.Cache = CacheSummary{
		Hits:    m.cacheHits,
		Misses:  m.cacheMisses,
		Errors:  m.cacheErrors,
		HitRate: ratio(m.cacheHits, m.cacheHits+m.cacheMisses),
	}
	m.cacheMu.Unlock()
	if m.cache != nil {
		stats := m.cache.Stats(ctx)
		s.Cache.Backend = &stats
	}

	if snap, ok := m.Latest(); ok {
		s.System = &snap
	}
	if m.storage != nil {
		metrics := m.storage.Metrics()
		s.Storage = &metrics
	}
	return s
}

func (m *Monitor) operationSummary() map[string]OperationSummary {
	m.opsMu.Lock()
	defer m.opsMu.Unlock()

	out := make(map[string]OperationSummary, len(m.ops))
	for name, st := range m.ops {
		out[name] = OperationSummary{
			Count:     st.count,
			Errors:    st.errors,
			ErrorRate: ratio(st.errors, st.count),
			AvgMs:     ms(st.total) / float64(st.count),
			MaxMs:     ms(st.max),
		}
	}
	return out
}

// requestSummary covers requests inside the trailing window. Responses with
// a 5xx status count as errors.
func (m *Monitor) requestSummary() RequestSummary {
	window := m.settings.RequestWindow
	cutoff := m.now().Add(-window)

	m.reqMu.Lock()
	samples := m.requests.values()
	m.reqMu.Unlock()

	var (
		durations []float64
		errors    int
		total     float64
	)
	for _, r := range samples {
		if r.at.Before(cutoff) {
			continue
		}
		d := ms(r.duration)
		durations = append(durations, d)
		total += d
		if r.status >= 500 {
			errors++
		}
	}

	out := RequestSummary{Window: window.String(), Count: len(durations)}
	if len(durations) == 0 {
		return out
	}
	sort.Float64s(durations)
	idx := int(float64(len(durations))*0.95+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(durations) {
		idx = len(durations) - 1
	}

	out.RatePerSec = float64(len(durations)) / window.Seconds()
	out.ErrorRate = float64(errors) / float64(len(durations)) * 100
	out.AvgMs = total / float64(len(durations))
	out.P95Ms = durations[idx]
	return out
}

func (m *Monitor) ExportMetrics(ctx context.Context, format string) (string, error) {
	switch format {
	case "", "json":
		raw, err := json.MarshalIndent(m.Summary(ctx), "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode summary: %w", err)
		}
		return string(raw), nil
	case "prometheus":
		families, err := m.registry.Gather()
		if err != nil {
			return "", fmt.Errorf("gather metrics: %w", err)
		}
		var buf bytes.Buffer
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
				return "", fmt.Errorf("encode %s: %w", mf.GetName(), err)
			}
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("unknown metrics format %q", format)
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
