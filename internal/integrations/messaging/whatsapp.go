package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trace-rescue/config"
)

// WhatsAppTransport sends text messages through the WhatsApp Cloud API.
type WhatsAppTransport struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewWhatsAppTransport builds the transport from configuration.
func NewWhatsAppTransport(cfg config.WhatsAppConfig) *WhatsAppTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WhatsAppTransport{
		endpoint:   strings.TrimSuffix(cfg.APIURL, "/") + "/" + cfg.PhoneNumberID + "/messages",
		token:      cfg.AccessToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (t *WhatsAppTransport) Name() string { return "whatsapp" }

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

func (t *WhatsAppTransport) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(whatsAppRequest{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(msg.Recipient, "+"),
		Type:             "text",
		Text:             whatsAppText{Body: msg.Text},
	})
	if err != nil {
		return fmt.Errorf("failed to encode whatsapp request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
