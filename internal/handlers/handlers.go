package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/cache"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/models"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/monitor"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/security"
	"github.com/CarlosIrineuCosta/lumen-sub000/internal/storage"
)

type VariantReader interface {
	Variant(ctx context.Context, ownerID, contentID string, size models.Size) ([]byte, error)
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) storage.HealthStatus
}

type Deps struct {
	Environment string
	BaseURL     string
	Variants    VariantReader
	Storage     HealthChecker
	Cache       cache.Service
	Monitor     *monitor.Monitor
	Signer      *security.URLSigner
}

type HandlerSet struct {
	log         zerolog.Logger
	environment string
	baseURL     string
	variants    VariantReader
	storage     HealthChecker
	cache       cache.Service
	monitor     *monitor.Monitor
	signer      *security.URLSigner
	started     time.Time
}

func NewHandlerSet(log zerolog.Logger, deps Deps) HandlerSet {
	if deps.Cache == nil {
		deps.Cache = cache.NewNoop()
	}
	if deps.BaseURL == "" {
		deps.BaseURL = "/media"
	}
	return HandlerSet{
		log:         log.With().Str("component", "http").Logger(),
		environment: deps.Environment,
		baseURL:     deps.BaseURL,
		variants:    deps.Variants,
		storage:     deps.Storage,
		cache:       deps.Cache,
		monitor:     deps.Monitor,
		signer:      deps.Signer,
		started:     time.Now(),
	}
}

func (h HandlerSet) Register(api *gin.RouterGroup, media *gin.RouterGroup) {
	api.GET("/healthz", h.Health)
	api.GET("/metrics", h.Metrics)
	api.GET("/alerts", h.Alerts)

	media.GET("/:size/:owner/:file", h.ServeVariant)
	media.HEAD("/:size/:owner/:file", h.ServeVariant)
}
