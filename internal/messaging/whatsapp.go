// Package messaging sends outbound messages through the WhatsApp Cloud API.
// The conversation engine only sees this as its Sender interface; delivery
// failures are logged here and surfaced only when the call itself fails.
package messaging

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
	"strings"
	"time"

	"repairbot/internal/engine"
	"repairbot/internal/util"

	"go.uber.org/zap"
)

// Client talks to the WhatsApp Cloud (Graph) API for one phone number id.
type Client struct {
	messagesURL string
	mediaURL    string
	token       string
	client      *http.Client
	uploader    *http.Client
	logger      *zap.Logger
}

// NewClient creates a WhatsApp sender.
func NewClient(graphVersion, phoneNumberID, token string) *Client {
	base := fmt.Sprintf("https://graph.facebook.com/%s/%s", graphVersion, phoneNumberID)
	return &Client{
		messagesURL: base + "/messages",
		mediaURL:    base + "/media",
		token:       token,
		client:      &http.Client{Timeout: 25 * time.Second},
		// Media uploads carry whole PDFs and get a longer bound.
		uploader: &http.Client{Timeout: 90 * time.Second},
		logger:   util.GetLogger(),
	}
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	return c.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": text},
	})
}

// SendMenu sends an interactive list message. WhatsApp caps header text at
// 60 chars, body at 1024 and row titles at 24; inputs are truncated rather
// than rejected.
func (c *Client) SendMenu(ctx context.Context, to, title, body string, options []engine.MenuOption) error {
	rows := make([]map[string]string, 0, len(options))
	for _, opt := range options {
		row := map[string]string{
			"id":    opt.ID,
			"title": truncate(opt.Title, 24),
		}
		if opt.Description != "" {
			row["description"] = truncate(opt.Description, 72)
		}
		rows = append(rows, row)
	}

	return c.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "list",
			"header": map[string]string{"type": "text", "text": truncate(title, 60)},
			"body":   map[string]string{"text": truncate(body, 1024)},
			"action": map[string]any{
				"button":   "פתח",
				"sections": []map[string]any{{"title": "תפריט", "rows": rows}},
			},
		},
	})
}

// SendDocument uploads the artifact as media and sends it as a document
// message with the given caption.
func (c *Client) SendDocument(ctx context.Context, to, path, caption string) error {
	mediaID, err := c.uploadMedia(ctx, path, "application/pdf")
	if err != nil {
		return err
	}

	return c.post(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "document",
		"document": map[string]string{
			"id":       mediaID,
			"caption":  caption,
			"filename": filepath.Base(path),
		},
	})
}

func (c *Client) uploadMedia(ctx context.Context, path, mimeType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open media file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("failed to read media file: %w", err)
	}
	_ = mw.WriteField("messaging_product", "whatsapp")
	_ = mw.WriteField("type", mimeType)
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.mediaURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.uploader.Do(req)
	if err != nil {
		return "", fmt.Errorf("media upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("media upload failed: status %d: %s", resp.StatusCode, snippet(resp.Body))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("media upload decode failed: %w", err)
	}
	return out.ID, nil
}

func (c *Client) post(ctx context.Context, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("message send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := snippet(resp.Body)
		c.logger.Warn("WhatsApp send rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", body))
		return fmt.Errorf("message send failed: status %d", resp.StatusCode)
	}
	return nil
}

func snippet(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(raw))
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
