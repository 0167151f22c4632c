package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/cache"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/config"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/log"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/monitor"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/processor"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/security"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/service"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/storage"
)

type app struct {
	cfg     *config.AppConfig
	viper   *viper.Viper
	logger  zerolog.Logger
	signer  *security.URLSigner
	store   *storage.FileSystem
	cache   cache.Service
	monitor *monitor.Monitor
	photos  *service.PhotoService
}

func newApp(ctx context.Context) (*app, error) {
	cfg, v, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := log.New(cfg.Environment, cfg.Logging.Level)

	proc := processor.NewProcessor(processor.Settings{
		Workers:         cfg.Processor.Workers,
		MaxUploadBytes:  cfg.Processor.MaxUploadBytes(),
		WebP:            cfg.Processor.WebP,
		ProgressiveJPEG: cfg.Processor.ProgressiveJPEG,
		JPEGQuality:     cfg.Processor.JPEGQuality,
		WebPQuality:     cfg.Processor.WebPQuality,
	}, logger)

	signer := security.NewURLSigner(cfg.Storage.SigningSecret, cfg.Storage.SignedURLTTL)
	if !signer.Enabled() {
		logger.Warn().Msg("storage.signingsecret is empty, media URLs are unsigned")
	}

	store, err := storage.NewFileSystem(ctx, storage.Settings{
		BasePath:    cfg.Storage.BasePath,
		MaxBytes:    cfg.Storage.MaxStorageBytes(),
		HotCacheTTL: cfg.Storage.HotCacheTTL(),
		MinSweepGap: cfg.Eviction.MinSweepGap,
		BaseURL:     cfg.Storage.BaseURL,
	}, proc, signer, logger)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	// the cache reports into the monitor, which reads the cache back
	var mon *monitor.Monitor
	side := cache.New(ctx, cfg.Redis, logger, cache.WithObserver(func(op string, hit, failed bool) {
		mon.TrackCacheOperation(op, hit, failed)
	}))
	mon = monitor.New(monitor.Settings{
		Interval:      cfg.Monitor.Interval,
		HistorySize:   cfg.Monitor.HistorySize,
		RequestWindow: cfg.Monitor.RequestWindow,
	}, monitor.HostSampler{Path: cfg.Storage.BasePath}, logger,
		monitor.WithStorage(store),
		monitor.WithCache(side),
	)

	return &app{
		cfg:     cfg,
		viper:   v,
		logger:  logger,
		signer:  signer,
		store:   store,
		cache:   side,
		monitor: mon,
		photos:  service.NewPhotoService(store, side, mon, logger),
	}, nil
}

func (a *app) close() {
	if err := a.cache.Close(); err != nil {
		a.logger.Error().Err(err).Msg("cache close error")
	}
}
