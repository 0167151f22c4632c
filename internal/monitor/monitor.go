package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/cache"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/storage"
)

const (
	requestBufferSize  = 10000
	cacheHistorySize   = 100
	slowOperation      = 2 * time.Second
	defaultHistorySize = 1000
)

type Settings struct {
	Interval      time.Duration
	HistorySize   int
	RequestWindow time.Duration
}

type StorageSource interface {
	Metrics() storage.StorageMetrics
}

type CacheSource interface {
	Stats(ctx context.Context) cache.CacheStats
}

type opStats struct {
	count  int64
	errors int64
	total  time.Duration
	max    time.Duration
}

type requestSample struct {
	at       time.Time
	method   string
	path     string
	status   int
	duration time.Duration
}

// Monitor records operation latency, request traffic, cache effectiveness
// and host resource samples.
type Monitor struct {
	settings Settings
	sampler  Sampler
	storage  StorageSource
	cache    CacheSource
	log      zerolog.Logger
	now      func() time.Time

	opsMu sync.Mutex
	ops   map[string]*opStats

	reqMu    sync.Mutex
	requests *ring[requestSample]

	cacheMu      sync.Mutex
	cacheHits    int64
	cacheMisses  int64
	cacheErrors  int64
	cacheHistory *ring[float64]

	sysMu   sync.RWMutex
	history *ring[SystemSnapshot]

	seriesMu sync.RWMutex
	series   map[string]*ring[PerformanceMetric]

	registry *prometheus.Registry
	metrics  *collectors
}

type Option func(*Monitor)

func WithStorage(src StorageSource) Option {
	return func(m *Monitor) { m.storage = src }
}

func WithCache(src CacheSource) Option {
	return func(m *Monitor) { m.cache = src }
}

func New(settings Settings, sampler Sampler, log zerolog.Logger, opts ...Option) *Monitor {
	if settings.HistorySize < 1 {
		settings.HistorySize = defaultHistorySize
	}
	if settings.RequestWindow <= 0 {
		settings.RequestWindow = 5 * time.Minute
	}
	if settings.Interval <= 0 {
		settings.Interval = 30 * time.Second
	}

	m := &Monitor{
		settings:     settings,
		sampler:      sampler,
		log:          log.With().Str("component", "monitor").Logger(),
		now:          time.Now,
		ops:          make(map[string]*opStats),
		requests:     newRing[requestSample](requestBufferSize),
		cacheHistory: newRing[float64](cacheHistorySize),
		history:      newRing[SystemSnapshot](settings.HistorySize),
		series:       make(map[string]*ring[PerformanceMetric]),
		registry:     prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.metrics = newCollectors(m.registry, m)
	return m
}

// TrackOperation runs fn and records its duration and outcome under name.
// A panic in fn is recorded as an error and re-raised.
func (m *Monitor) TrackOperation(name string, tags map[string]string, fn func() error) (err error) {
	started := m.now()
	defer func() {
		rec := recover()
		if rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		m.recordOperation(name, tags, m.now().Sub(started), err)
		if rec != nil {
			panic(rec)
		}
	}()
	return fn()
}

func (m *Monitor) recordOperation(name string, tags map[string]string, d time.Duration, err error) {
	m.opsMu.Lock()
	st, ok := m.ops[name]
	if !ok {
		st = &opStats{}
		m.ops[name] = st
	}
	st.count++
	st.total += d
	if d > st.max {
		st.max = d
	}
	if err != nil {
		st.errors++
	}
	m.opsMu.Unlock()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.record(name+"_duration", ms(d), "ms", withTag(tags, "status", status))
	m.metrics.operations.WithLabelValues(name, status).Inc()
	m.metrics.operationDuration.WithLabelValues(name).Observe(d.Seconds())

	if d > slowOperation {
		evt := m.log.Warn().Str("op", name).Dur("duration", d)
		keys := make([]string, 0, len(tags))
		for k := range tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			evt = evt.Str(k, tags[k])
		}
		evt.Msg("slow operation")
	}
}

func (m *Monitor) TrackRequest(method, path string, status int, d time.Duration) {
	m.reqMu.Lock()
	m.requests.push(requestSample{
		at:       m.now(),
		method:   method,
		path:     path,
		status:   status,
		duration: d,
	})
	m.reqMu.Unlock()

	m.metrics.requests.WithLabelValues(method, fmt.Sprint(status)).Inc()
}

func (m *Monitor) TrackCacheOperation(op string, hit, failed bool) {
	result := "miss"
	m.cacheMu.Lock()
	switch {
	case failed:
		m.cacheErrors++
		result = "error"
	case hit:
		m.cacheHits++
		result = "hit"
	default:
		m.cacheMisses++
	}
	rate := ratio(m.cacheHits, m.cacheHits+m.cacheMisses)
	if !failed {
		m.cacheHistory.push(rate)
	}
	m.cacheMu.Unlock()

	if !failed {
		m.record("cache_hit_rate", rate, "percent", map[string]string{"op": op})
	}

	m.metrics.cacheOps.WithLabelValues(result).Inc()
}

func (m *Monitor) cacheHitRate() float64 {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	return ratio(m.cacheHits, m.cacheHits+m.cacheMisses)
}

func (m *Monitor) Collect(ctx context.Context) error {
	if m.sampler == nil {
		return nil
	}
	snap, err := m.sampler.Sample(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("system sample failed")
		return fmt.Errorf("sample system: %w", err)
	}

	snap.CacheHitRate = m.cacheHitRate()
	if m.cache != nil {
		snap.CacheHitRate = m.cache.Stats(ctx).HitRate
	}

	m.sysMu.Lock()
	m.history.push(snap)
	m.sysMu.Unlock()

	m.record("cpu_usage", snap.CPUPercent, "percent", nil)
	m.record("memory_usage", snap.MemoryPercent, "percent", nil)
	m.record("disk_usage", snap.DiskPercent, "percent", nil)

	m.metrics.observeSystem(snap)
	return nil
}

func (m *Monitor) Latest() (SystemSnapshot, bool) {
	m.sysMu.RLock()
	defer m.sysMu.RUnlock()
	return m.history.last()
}

func (m *Monitor) History() []SystemSnapshot {
	m.sysMu.RLock()
	defer m.sysMu.RUnlock()
	return m.history.values()
}

func (m *Monitor) Interval() time.Duration {
	return m.settings.Interval
}

func withTag(tags map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		out[k] = v
	}
	out[key] = value
	return out
}

func ratio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
