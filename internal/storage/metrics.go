package storage

import (
	"sync/atomic"
	"time"
)

type StorageMetrics struct {
	LastUploadTime     time.Duration `json:"last_upload_time"`
	LastProcessingTime time.Duration `json:"last_processing_time"`
	CacheHits          int64         `json:"cache_hits"`
	CacheMisses        int64         `json:"cache_misses"`
	CacheHitRate       float64       `json:"cache_hit_rate"`
	BytesStored        int64         `json:"bytes_stored"`
	Bandwidth          int64         `json:"bandwidth"`
	Uploads            int64         `json:"uploads"`
	Retrievals         int64         `json:"retrievals"`
	UsedBytes          int64         `json:"used_bytes"`
}

type metricsRecorder struct {
	lastUpload     atomic.Int64
	lastProcessing atomic.Int64
	hits           atomic.Int64
	misses         atomic.Int64
	bytesStored    atomic.Int64
	bandwidth      atomic.Int64
	uploads        atomic.Int64
	retrievals     atomic.Int64
}

func (m *metricsRecorder) recordUpload(d time.Duration, stored int64) {
	m.lastUpload.Store(int64(d))
	m.bytesStored.Add(stored)
	m.uploads.Add(1)
}

func (m *metricsRecorder) recordProcessing(d time.Duration) {
	m.lastProcessing.Store(int64(d))
}

func (m *metricsRecorder) recordRetrieve(n int) {
	m.bandwidth.Add(int64(n))
	m.retrievals.Add(1)
}

func (m *metricsRecorder) snapshot() StorageMetrics {
	hits := m.hits.Load()
	misses := m.misses.Load()

	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total) * 100
	}

	return StorageMetrics{
		LastUploadTime:     time.Duration(m.lastUpload.Load()),
		LastProcessingTime: time.Duration(m.lastProcessing.Load()),
		CacheHits:          hits,
		CacheMisses:        misses,
		CacheHitRate:       rate,
		BytesStored:        m.bytesStored.Load(),
		Bandwidth:          m.bandwidth.Load(),
		Uploads:            m.uploads.Load(),
		Retrievals:         m.retrievals.Load(),
	}
}
