package handler

import (
	"time"

	"github.com/gin-gonic/gin"
)

// SystemHandler serves liveness and version endpoints
type SystemHandler struct {
	BaseHandler
	appName   string
	version   string
	startedAt time.Time
}

// NewSystemHandler creates a system handler
func NewSystemHandler(appName, version string) *SystemHandler {
	return &SystemHandler{
		appName:   appName,
		version:   version,
		startedAt: time.Now(),
	}
}

// RegisterRoutes registers system routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.Health)
}

// Health returns liveness information
func (h *SystemHandler) Health(c *gin.Context) {
	h.Success(c, gin.H{
		"app":     h.appName,
		"version": h.version,
		"status":  "ok",
		"uptime":  time.Since(h.startedAt).String(),
	})
}
