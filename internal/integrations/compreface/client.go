package compreface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"trace-rescue/config"

	log "github.com/sirupsen/logrus"
)

// Client für die CompreFace-API
type Client struct {
	config     config.CompreFaceConfig
	httpClient *http.Client
}

// Box ist die Begrenzungsbox eines Gesichts
type Box struct {
	Probability float64 `json:"probability"`
	XMin        int     `json:"x_min"`
	YMin        int     `json:"y_min"`
	XMax        int     `json:"x_max"`
	YMax        int     `json:"y_max"`
}

// Subject ist ein Treffer aus der Galerie
type Subject struct {
	Subject    string  `json:"subject"`
	Similarity float64 `json:"similarity"`
}

// RecognitionResult ist ein erkanntes Gesicht
type RecognitionResult struct {
	Box      Box       `json:"box"`
	Subjects []Subject `json:"subjects"`
}

// RecognitionResponse ist die Antwort von /recognize
type RecognitionResponse struct {
	Result []RecognitionResult `json:"result"`
}

type subjectsResponse struct {
	Subjects []string `json:"subjects"`
}

// NewClient erstellt einen neuen CompreFace-Client
func NewClient(cfg config.CompreFaceConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	apiURL, err := url.JoinPath(c.config.URL, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create API URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", c.config.RecognitionAPIKey)
	return req, nil
}

// Subjects listet alle Personen der Galerie. Dient beim Start auch als
// Verbindungstest.
func (c *Client) Subjects(ctx context.Context) ([]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/recognition/subjects/", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("CompreFace API returned error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var out subjectsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Subjects, nil
}

// Recognize sendet ein Bild zur Gesichtserkennung an CompreFace.
// Ein Bild ohne erkennbares Gesicht liefert eine leere Ergebnisliste.
func (c *Client) Recognize(ctx context.Context, imageData []byte, filename string) (*RecognitionResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/recognition/recognize", body)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("limit", "1")
	q.Set("prediction_count", "1")
	q.Set("det_prob_threshold", fmt.Sprintf("%.2f", c.config.DetProbThreshold))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	log.Debugf("CompreFace recognition request took %s", time.Since(start))

	// CompreFace antwortet mit 400, wenn kein Gesicht gefunden wurde.
	if resp.StatusCode == http.StatusBadRequest {
		var apiErr struct {
			Code int `json:"code"`
		}
		bodyBytes, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(bodyBytes, &apiErr) == nil && apiErr.Code == noFaceCode {
			return &RecognitionResponse{}, nil
		}
		return nil, fmt.Errorf("CompreFace API returned error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("CompreFace API returned error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result RecognitionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	log.Debugf("CompreFace detected %d faces", len(result.Result))
	return &result, nil
}

// noFaceCode ist der CompreFace-Fehlercode für "No face is found".
const noFaceCode = 28
