package handlers

import (
	"errors"
	"net/http"

	"trace-rescue/internal/jobs"

	"github.com/gin-gonic/gin"
)

// JobHandler startet und überwacht Erkennungsjobs
type JobHandler struct {
	manager *jobs.Manager
}

// NewJobHandler erstellt einen neuen JobHandler. manager darf nil sein,
// wenn kein Erkenner konfiguriert ist.
func NewJobHandler(manager *jobs.Manager) *JobHandler {
	return &JobHandler{manager: manager}
}

// RegisterRoutes registriert die Job-Routen
func (h *JobHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/jobs")
	{
		api.GET("", h.handleList)
		api.POST("/:kind", h.handleStart)
		api.GET("/:id", h.handleGet)
		api.DELETE("/:id", h.handleCancel)
	}

	// Kompatible Kurzformen
	router.POST("/recognize", h.start(jobs.KindRecognize))
	router.POST("/capture-face", h.start(jobs.KindCapture))
	router.POST("/train-model", h.start(jobs.KindTrain))
}

func (h *JobHandler) handleStart(c *gin.Context) {
	h.start(jobs.Kind(c.Param("kind")))(c)
}

func (h *JobHandler) start(kind jobs.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.manager == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "recognition is not configured"})
			return
		}
		job, err := h.manager.Start(kind)
		switch {
		case err == nil:
			c.JSON(http.StatusAccepted, job)
		case errors.Is(err, jobs.ErrUnsupportedJob):
			c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
		case errors.Is(err, jobs.ErrJobRunning):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
	}
}

func (h *JobHandler) handleList(c *gin.Context) {
	if h.manager == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []jobs.Job{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": h.manager.List()})
}

func (h *JobHandler) handleGet(c *gin.Context) {
	if h.manager == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": jobs.ErrNotFound.Error()})
		return
	}
	job, err := h.manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) handleCancel(c *gin.Context) {
	if h.manager == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": jobs.ErrNotFound.Error()})
		return
	}
	if err := h.manager.Cancel(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}
