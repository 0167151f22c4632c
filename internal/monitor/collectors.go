package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	requests          *prometheus.CounterVec
	cacheOps          *prometheus.CounterVec

	cpu         prometheus.Gauge
	memory      prometheus.Gauge
	disk        prometheus.Gauge
	connections prometheus.Gauge
}

func newCollectors(reg *prometheus.Registry, m *Monitor) *collectors {
	c := &collectors{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumen_operation_total",
				Help: "Tracked operations by outcome.",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lumen_operation_duration_seconds",
				Help:    "Time spent in tracked operations.",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
			},
			[]string{"operation"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumen_http_requests_total",
				Help: "HTTP requests by method and status code.",
			},
			[]string{"method", "code"},
		),
		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lumen_cache_operations_total",
				Help: "Side cache reads by result.",
			},
			[]string{"result"},
		),
		cpu: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lumen_system_cpu_percent",
			Help: "Host CPU usage at the last sample.",
		}),
		memory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lumen_system_memory_percent",
			Help: "Host memory usage at the last sample.",
		}),
		disk: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lumen_system_disk_percent",
			Help: "Disk usage of the storage filesystem at the last sample.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lumen_system_connections",
			Help: "Open network connections at the last sample.",
		}),
	}

	reg.MustRegister(
		c.operations,
		c.operationDuration,
		c.requests,
		c.cacheOps,
		c.cpu,
		c.memory,
		c.disk,
		c.connections,
	)

	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lumen_http_request_rate",
			Help: "Requests per second over the request window.",
		}, func() float64 { return m.requestSummary().RatePerSec }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lumen_http_error_rate_percent",
			Help: "Share of 5xx responses over the request window.",
		}, func() float64 { return m.requestSummary().ErrorRate }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lumen_http_latency_avg_ms",
			Help: "Mean request latency over the request window.",
		}, func() float64 { return m.requestSummary().AvgMs }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lumen_http_latency_p95_ms",
			Help: "95th percentile request latency over the request window.",
		}, func() float64 { return m.requestSummary().P95Ms }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lumen_cache_hit_rate_percent",
			Help: "Side cache hit rate seen by the monitor.",
		}, m.cacheHitRate),
	)

	if src := m.storage; src != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "lumen_storage_bytes_stored",
				Help: "Bytes written by uploads since start.",
			}, func() float64 { return float64(src.Metrics().BytesStored) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "lumen_storage_used_bytes",
				Help: "Approximate bytes used under the storage root.",
			}, func() float64 { return float64(src.Metrics().UsedBytes) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "lumen_storage_bandwidth_bytes",
				Help: "Bytes served by retrievals since start.",
			}, func() float64 { return float64(src.Metrics().Bandwidth) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "lumen_storage_hot_hit_rate",
				Help: "Hot tier hit rate in percent.",
			}, func() float64 { return src.Metrics().CacheHitRate }),
		)
	}
	return c
}

func (c *collectors) observeSystem(s SystemSnapshot) {
	c.cpu.Set(s.CPUPercent)
	c.memory.Set(s.MemoryPercent)
	c.disk.Set(s.DiskPercent)
	c.connections.Set(float64(s.Connections))
}
