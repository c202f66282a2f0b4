package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"trace-rescue/internal/core/models"
	"trace-rescue/internal/db/repository"
	"trace-rescue/internal/server/sse"
	"trace-rescue/internal/util/timezone"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// FoundHandler nimmt Funde des Erkenners entgegen und stellt sie dem
// Frontend bereit.
type FoundHandler struct {
	repo      repository.Repository
	hub       *sse.Hub
	foundDir  string
	publicURL string
	maxUpload int64

	mu   sync.RWMutex
	last *models.Detection
}

// NewFoundHandler erstellt den Handler und übernimmt den letzten
// gespeicherten Fund, damit er einen Neustart überlebt.
func NewFoundHandler(repo repository.Repository, hub *sse.Hub, foundDir, publicURL string, maxUploadMiB int) (*FoundHandler, error) {
	if err := os.MkdirAll(foundDir, 0755); err != nil {
		return nil, err
	}
	if maxUploadMiB <= 0 {
		maxUploadMiB = 16
	}
	h := &FoundHandler{
		repo:      repo,
		hub:       hub,
		foundDir:  foundDir,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		maxUpload: int64(maxUploadMiB) << 20,
	}
	last, err := repo.GetLatestDetection()
	if err != nil {
		log.Warnf("Could not restore last detection: %v", err)
	}
	h.last = last
	return h, nil
}

// RegisterRoutes registriert die Fund-Routen
func (h *FoundHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/person-found", h.handlePersonFound)
	router.GET("/get-found-person", h.handleGetFoundPerson)
	router.GET("/get-found-image", h.handleGetFoundImage)

	api := router.Group("/api")
	{
		api.GET("/detections", h.handleListDetections)
		api.GET("/detections/:id/image", h.handleDetectionImage)
		api.GET("/events", h.handleSSE)
	}
}

type uploadMeta struct {
	ClientIP         string `json:"client_ip"`
	OriginalFilename string `json:"original_filename,omitempty"`
	Size             int64  `json:"size,omitempty"`
}

// handlePersonFound speichert einen Fund samt optionalem Snapshot
func (h *FoundHandler) handlePersonFound(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	name := strings.TrimSpace(c.PostForm("name"))
	location := strings.TrimSpace(c.PostForm("location"))
	message := strings.TrimSpace(c.PostForm("message"))
	if name == "" || location == "" || message == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "name, location and message are required"})
		return
	}

	meta := uploadMeta{ClientIP: c.ClientIP()}
	detection := models.Detection{
		Name:       name,
		Location:   location,
		Message:    message,
		ReceivedAt: timezone.Now(),
	}

	file, err := c.FormFile("snapshot")
	switch {
	case err == nil:
		filename := "found_" + uuid.NewString() + ".jpg"
		if err := c.SaveUploadedFile(file, filepath.Join(h.foundDir, filename)); err != nil {
			log.WithError(err).Error("Failed to store snapshot")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store snapshot"})
			return
		}
		detection.ImageFile = filename
		meta.OriginalFilename = file.Filename
		meta.Size = file.Size
	case errors.Is(err, http.ErrMissingFile):
		log.Warn("Detection received without snapshot")
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot upload"})
		return
	}

	if raw, err := json.Marshal(meta); err == nil {
		detection.Metadata = datatypes.JSON(raw)
	}
	if err := h.repo.SaveDetection(&detection); err != nil {
		// Der Fund bleibt im Speicher abrufbar.
		log.WithError(err).Error("Failed to persist detection")
	}

	h.mu.Lock()
	h.last = &detection
	h.mu.Unlock()

	log.WithFields(log.Fields{"name": name, "location": location}).Info("Person found data saved")
	if h.hub != nil {
		h.hub.BroadcastDetection(detection, h.imageURL(&detection))
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Data stored",
		"id":      detection.ID,
		"image":   detection.ImageFile,
	})
}

func (h *FoundHandler) imageURL(d *models.Detection) string {
	if d.ImageFile == "" {
		return ""
	}
	return h.publicURL + "/get-found-image"
}

// handleGetFoundPerson liefert den letzten Fund
func (h *FoundHandler) handleGetFoundPerson(c *gin.Context) {
	h.mu.RLock()
	last := h.last
	h.mu.RUnlock()

	if last == nil {
		c.JSON(http.StatusOK, gin.H{"found": false})
		return
	}

	resp := gin.H{
		"found":     true,
		"name":      last.Name,
		"location":  last.Location,
		"message":   last.Message,
		"timestamp": timezone.RFC3339(last.ReceivedAt),
	}
	if url := h.imageURL(last); url != "" {
		resp["image_url"] = url
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetFoundImage liefert den Snapshot des letzten Funds
func (h *FoundHandler) handleGetFoundImage(c *gin.Context) {
	h.mu.RLock()
	last := h.last
	h.mu.RUnlock()

	if last == nil || last.ImageFile == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No image available"})
		return
	}
	h.serveImage(c, last.ImageFile)
}

func (h *FoundHandler) serveImage(c *gin.Context, file string) {
	path := filepath.Join(h.foundDir, filepath.Base(file))
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No image available"})
		return
	}
	c.File(path)
}

// handleListDetections listet gespeicherte Funde
func (h *FoundHandler) handleListDetections(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	detections, total, err := h.repo.GetDetections(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load detections"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "detections": detections})
}

// handleDetectionImage liefert den Snapshot eines bestimmten Funds
func (h *FoundHandler) handleDetectionImage(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	d, err := h.repo.GetDetectionByID(uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load detection"})
		return
	}
	if d == nil || d.ImageFile == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No image available"})
		return
	}
	h.serveImage(c, d.ImageFile)
}

// handleSSE streamt neue Funde an das Frontend
func (h *FoundHandler) handleSSE(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates unavailable"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	client := make(sse.Client, 10)
	if !h.hub.Register(client) {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	defer h.hub.Unregister(client)

	ctx := c.Request.Context()
	c.Stream(func(_ io.Writer) bool {
		select {
		case msg, ok := <-client:
			if !ok {
				return false
			}
			c.SSEvent("detection", string(msg))
			return true
		case <-ctx.Done():
			return false
		}
	})
}
