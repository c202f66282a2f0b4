// Package reportsink hands confirmed detections to the report server.
package reportsink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"trace-rescue/config"
	"trace-rescue/internal/core/models"
)

// Ack is the report server's reply.
type Ack struct {
	Status string `json:"status"`
	Image  string `json:"image,omitempty"`
	ID     uint   `json:"id,omitempty"`
}

// Client posts detections as multipart forms.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a report sink client.
func NewClient(cfg config.ReportSinkConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Submit sends name, location, message and, if it exists, the snapshot file.
func (c *Client) Submit(ctx context.Context, p models.AlertPayload) (*Ack, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := [][2]string{
		{"name", p.PersonName},
		{"location", p.Location},
		{"message", p.Message},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	if p.HasSnapshot() {
		if err := attachFile(writer, p.SnapshotPath); err != nil {
			log.WithError(err).Warn("Submitting detection without snapshot")
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send detection: %w", err)
	}
	defer resp.Body.Close()
	log.Debugf("Report sink request took %s", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("report sink returned error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var ack Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &ack, nil
}

// Report submits p and only logs failures. It satisfies the detection loop's
// sink interface.
func (c *Client) Report(ctx context.Context, p models.AlertPayload) {
	ack, err := c.Submit(ctx, p)
	if err != nil {
		log.WithError(err).Error("Failed to send detection to report server")
		return
	}
	log.WithField("status", ack.Status).Info("Detection sent to report server")
}

func attachFile(w *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := w.CreateFormFile("snapshot", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}
