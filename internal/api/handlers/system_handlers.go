package handlers

import (
	"net/http"

	"trace-rescue/internal/db/repository"
	"trace-rescue/internal/jobs"
	"trace-rescue/internal/server/sse"
	"trace-rescue/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// SystemHandler liefert Status- und Gesundheitsinformationen
type SystemHandler struct {
	repo    repository.Repository
	hub     *sse.Hub
	manager *jobs.Manager
}

// NewSystemHandler erstellt einen neuen SystemHandler
func NewSystemHandler(repo repository.Repository, hub *sse.Hub, manager *jobs.Manager) *SystemHandler {
	return &SystemHandler{repo: repo, hub: hub, manager: manager}
}

// RegisterRoutes registriert die System-Routen
func (h *SystemHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.handleRoot)
	router.GET("/api/status", h.handleStatus)
}

func (h *SystemHandler) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Trace and Rescue API is running"})
}

func (h *SystemHandler) handleStatus(c *gin.Context) {
	clients, active := 0, 0
	if h.hub != nil {
		clients = h.hub.ClientCount()
	}
	if h.manager != nil {
		active = h.manager.Active()
	}

	resp := gin.H{"system": utils.GetSystemStats(clients, active)}
	if h.repo != nil {
		stats, err := h.repo.GetStatistics()
		if err != nil {
			log.WithError(err).Warn("Failed to load detection statistics")
		} else {
			resp["detections"] = stats
		}
	}
	c.JSON(http.StatusOK, resp)
}
