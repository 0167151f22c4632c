package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const prometheusContentType = "text/plain; version=0.0.4; charset=utf-8"

func (h HandlerSet) Metrics(c *gin.Context) {
	format := c.DefaultQuery("format", "json")

	body, err := h.monitor.ExportMetrics(c.Request.Context(), format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_format"})
		return
	}

	contentType := "application/json; charset=utf-8"
	if format == "prometheus" {
		contentType = prometheusContentType
	}
	c.Data(http.StatusOK, contentType, []byte(body))
}

func (h HandlerSet) Alerts(c *gin.Context) {
	alerts := h.monitor.CheckAlerts()
	if alerts == nil {
		c.JSON(http.StatusOK, gin.H{"alerts": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}
