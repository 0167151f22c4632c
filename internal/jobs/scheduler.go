package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/storage"
)

type Evictor interface {
	MaybeEvict(ctx context.Context) (storage.EvictionReport, error)
}

type UsageRefresher interface {
	Refresh(ctx context.Context) (int64, error)
}

type Collector interface {
	Collect(ctx context.Context) error
}

type Intervals struct {
	Eviction     time.Duration
	UsageRefresh time.Duration
	Metrics      time.Duration
}

// Scheduler owns the background loops. A failed run is logged and the job
// fires again on its next tick.
type Scheduler struct {
	cron      *cron.Cron
	evictor   Evictor
	usage     UsageRefresher
	collector Collector
	intervals Intervals
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(evictor Evictor, usage UsageRefresher, collector Collector, intervals Intervals, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(
			cron.Recover(cronLogger{log}),
			cron.SkipIfStillRunning(cronLogger{log}),
		),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:      c,
		evictor:   evictor,
		usage:     usage,
		collector: collector,
		intervals: intervals,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *Scheduler) Start() error {
	if s.evictor != nil && s.intervals.Eviction > 0 {
		if err := s.every(s.intervals.Eviction, s.evict); err != nil {
			return fmt.Errorf("schedule eviction: %w", err)
		}
	}
	if s.usage != nil && s.intervals.UsageRefresh > 0 {
		if err := s.every(s.intervals.UsageRefresh, s.refreshUsage); err != nil {
			return fmt.Errorf("schedule usage refresh: %w", err)
		}
	}
	if s.collector != nil && s.intervals.Metrics > 0 {
		if err := s.every(s.intervals.Metrics, s.collect); err != nil {
			return fmt.Errorf("schedule metrics collection: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) every(d time.Duration, fn func()) error {
	_, err := s.cron.AddFunc("@every "+d.String(), fn)
	return err
}

// Stop cancels running jobs and returns a context that is done once they
// have returned.
func (s *Scheduler) Stop() context.Context {
	s.cancel()
	return s.cron.Stop()
}

func (s *Scheduler) evict() {
	report, err := s.evictor.MaybeEvict(s.ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("eviction failed")
		return
	}
	if report.Skipped {
		s.log.Debug().Msg("eviction skipped, last sweep too recent")
	}
}

func (s *Scheduler) refreshUsage() {
	used, err := s.usage.Refresh(s.ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("usage refresh failed")
		return
	}
	s.log.Debug().Int64("bytes", used).Msg("usage refreshed")
}

func (s *Scheduler) collect() {
	if err := s.collector.Collect(s.ctx); err != nil {
		s.log.Warn().Err(err).Msg("metrics collection failed")
	}
}

type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
