package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/storage"
)

type fakeSampler struct {
	snap SystemSnapshot
	err  error
}

func (f *fakeSampler) Sample(context.Context) (SystemSnapshot, error) {
	return f.snap, f.err
}

type fakeStorage struct{}

func (fakeStorage) Metrics() storage.StorageMetrics {
	return storage.StorageMetrics{BytesStored: 4096, UsedBytes: 8192, CacheHitRate: 75}
}

func newTestMonitor(sampler Sampler, opts ...Option) *Monitor {
	return New(Settings{Interval: time.Second, HistorySize: 3, RequestWindow: time.Minute}, sampler, zerolog.Nop(), opts...)
}

func TestTrackOperation(t *testing.T) {
	m := newTestMonitor(nil)

	require.NoError(t, m.TrackOperation("store", nil, func() error { return nil }))
	err := m.TrackOperation("store", map[string]string{"owner_id": "o"}, func() error { return errors.New("disk full") })
	assert.EqualError(t, err, "disk full")

	assert.Panics(t, func() {
		_ = m.TrackOperation("store", nil, func() error { panic("boom") })
	})

	ops := m.operationSummary()
	require.Contains(t, ops, "store")
	assert.Equal(t, int64(3), ops["store"].Count)
	assert.Equal(t, int64(2), ops["store"].Errors)
}

func TestRequestSummaryWindow(t *testing.T) {
	m := newTestMonitor(nil)
	base := time.Now()

	m.now = func() time.Time { return base.Add(-2 * time.Minute) }
	m.TrackRequest("GET", "/old", 500, time.Second)

	m.now = func() time.Time { return base }
	for i := 1; i <= 20; i++ {
		status := 200
		if i == 20 {
			status = 503
		}
		m.TrackRequest("GET", "/media", status, time.Duration(i)*time.Millisecond)
	}

	s := m.requestSummary()
	assert.Equal(t, 20, s.Count)
	assert.Equal(t, 5.0, s.ErrorRate)
	assert.InDelta(t, 10.5, s.AvgMs, 0.001)
	assert.Equal(t, 19.0, s.P95Ms)
	assert.InDelta(t, 20.0/60.0, s.RatePerSec, 0.0001)
}

func TestRequestBufferIsBounded(t *testing.T) {
	m := newTestMonitor(nil)
	for i := 0; i < requestBufferSize+50; i++ {
		m.TrackRequest("GET", "/", 200, time.Millisecond)
	}
	assert.Equal(t, requestBufferSize, m.requests.len())
}

func TestTrackCacheOperation(t *testing.T) {
	m := newTestMonitor(nil)
	m.TrackCacheOperation("get_urls", true, false)
	m.TrackCacheOperation("get_urls", false, false)
	m.TrackCacheOperation("get_urls", true, false)
	m.TrackCacheOperation("get_urls", true, false)
	m.TrackCacheOperation("cache_urls", false, true)

	assert.Equal(t, 75.0, m.cacheHitRate())
	assert.InDeltaSlice(t, []float64{100, 50, 66.667, 75}, m.cacheHistory.values(), 0.001)

	s := m.Summary(context.Background())
	assert.Equal(t, int64(3), s.Cache.Hits)
	assert.Equal(t, int64(1), s.Cache.Misses)
	assert.Equal(t, int64(1), s.Cache.Errors)
}

func TestCollectKeepsBoundedHistory(t *testing.T) {
	sampler := &fakeSampler{}
	m := newTestMonitor(sampler)

	for i := 1; i <= 5; i++ {
		sampler.snap = SystemSnapshot{CPUPercent: float64(i)}
		require.NoError(t, m.Collect(context.Background()))
	}
	history := m.History()
	require.Len(t, history, 3)
	assert.Equal(t, 3.0, history[0].CPUPercent)
	assert.Equal(t, 5.0, history[2].CPUPercent)

	sampler.err = errors.New("no procfs")
	assert.Error(t, m.Collect(context.Background()))
	assert.Len(t, m.History(), 3)
}

func TestCheckAlerts(t *testing.T) {
	sampler := &fakeSampler{snap: SystemSnapshot{CPUPercent: 81, MemoryPercent: 85, DiskPercent: 91}}
	m := newTestMonitor(sampler)
	require.NoError(t, m.Collect(context.Background()))

	// 1 error in 10 samples is 10%
	for i := 0; i < 10; i++ {
		var err error
		if i == 0 {
			err = errors.New("fail")
		}
		_ = m.TrackOperation("store", nil, func() error { return err })
	}
	// too few samples to alert
	for i := 0; i < 5; i++ {
		_ = m.TrackOperation("delete", nil, func() error { return errors.New("fail") })
	}

	alerts := m.CheckAlerts()
	require.Len(t, alerts, 3)
	assert.Equal(t, "cpu_percent", alerts[0].Metric)
	assert.Equal(t, LevelWarning, alerts[0].Level)
	assert.Equal(t, "disk_percent", alerts[1].Metric)
	assert.Equal(t, LevelCritical, alerts[1].Level)
	assert.Equal(t, "error_rate:store", alerts[2].Metric)
	assert.Equal(t, 10.0, alerts[2].Value)
}

func TestExportMetrics(t *testing.T) {
	m := newTestMonitor(&fakeSampler{snap: SystemSnapshot{CPUPercent: 12.5}}, WithStorage(fakeStorage{}))
	require.NoError(t, m.Collect(context.Background()))
	require.NoError(t, m.TrackOperation("store", nil, func() error { return nil }))
	m.TrackRequest("GET", "/media", 200, 3*time.Millisecond)
	m.TrackCacheOperation("get_urls", true, false)

	raw, err := m.ExportMetrics(context.Background(), "json")
	require.NoError(t, err)
	var summary Summary
	require.NoError(t, json.Unmarshal([]byte(raw), &summary))
	assert.Equal(t, int64(1), summary.Operations["store"].Count)
	assert.Equal(t, 1, summary.Requests.Count)
	require.NotNil(t, summary.Storage)
	assert.Equal(t, int64(4096), summary.Storage.BytesStored)
	require.NotNil(t, summary.System)
	assert.Equal(t, 12.5, summary.System.CPUPercent)

	text, err := m.ExportMetrics(context.Background(), "prometheus")
	require.NoError(t, err)
	assert.Contains(t, text, `lumen_operation_total{operation="store",status="success"} 1`)
	assert.Contains(t, text, `lumen_http_requests_total{code="200",method="GET"} 1`)
	assert.Contains(t, text, `lumen_cache_operations_total{result="hit"} 1`)
	assert.Contains(t, text, "lumen_system_cpu_percent 12.5")
	assert.Contains(t, text, "lumen_storage_used_bytes 8192")
	assert.Contains(t, text, "lumen_http_latency_p95_ms 3")
	assert.Contains(t, text, "lumen_http_error_rate_percent 0")
	assert.Contains(t, text, "lumen_cache_hit_rate_percent 100")

	_, err = m.ExportMetrics(context.Background(), "xml")
	assert.Error(t, err)
}

func TestMetricSeriesBoundedPerName(t *testing.T) {
	sampler := &fakeSampler{}
	m := newTestMonitor(sampler)

	for i := 1; i <= 5; i++ {
		require.NoError(t, m.TrackOperation("store", map[string]string{"owner_id": "o"}, func() error { return nil }))
		sampler.snap = SystemSnapshot{CPUPercent: float64(i * 10)}
		require.NoError(t, m.Collect(context.Background()))
	}
	m.TrackCacheOperation("get_urls", true, false)

	store := m.Metrics("store_duration")
	require.Len(t, store, 3)
	assert.Equal(t, "ms", store[0].Unit)
	assert.Equal(t, map[string]string{"owner_id": "o", "status": "success"}, store[0].Tags)
	assert.False(t, store[0].Timestamp.IsZero())

	cpu := m.Metrics("cpu_usage")
	require.Len(t, cpu, 3)
	assert.Equal(t, []float64{30, 40, 50}, []float64{cpu[0].Value, cpu[1].Value, cpu[2].Value})
	assert.Len(t, m.Metrics("cache_hit_rate"), 1)
	assert.Nil(t, m.Metrics("unknown"))

	assert.Equal(t, []string{"cache_hit_rate", "cpu_usage", "disk_usage", "memory_usage", "store_duration"}, m.MetricNames())

	s := m.Summary(context.Background())
	require.Contains(t, s.Metrics, "cpu_usage")
	assert.Equal(t, 50.0, s.Metrics["cpu_usage"].Value)
}

func TestMetricTagsAreCopied(t *testing.T) {
	m := newTestMonitor(nil)
	tags := map[string]string{"owner_id": "o"}
	require.NoError(t, m.TrackOperation("delete", tags, func() error { return errors.New("io") }))
	tags["owner_id"] = "changed"

	got := m.Metrics("delete_duration")
	require.Len(t, got, 1)
	assert.Equal(t, "o", got[0].Tags["owner_id"])
	assert.Equal(t, "error", got[0].Tags["status"])
}

func TestRing(t *testing.T) {
	r := newRing[int](3)
	_, ok := r.last()
	assert.False(t, ok)

	for i := 1; i <= 4; i++ {
		r.push(i)
	}
	assert.Equal(t, []int{2, 3, 4}, r.values())
	last, ok := r.last()
	assert.True(t, ok)
	assert.Equal(t, 4, last)
}
