package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CarlosIrineuCosta/lumen-sub000/internal/storage"
)

type healthResponse struct {
	Status      string               `json:"status"`
	Storage     storage.HealthStatus `json:"storage"`
	Cache       string               `json:"cache"`
	Environment string               `json:"environment"`
	Uptime      string               `json:"uptime"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := h.storage.HealthCheck(ctx)
	resp := healthResponse{
		Status:      "ok",
		Storage:     status,
		Cache:       h.cache.Stats(ctx).Backend,
		Environment: h.environment,
		Uptime:      time.Since(h.started).Round(time.Second).String(),
	}

	code := http.StatusOK
	if !status.Healthy {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}
