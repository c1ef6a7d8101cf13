// Package notify narrates runs to an operator over a bot-API messaging
// channel and listens for remote-control commands on the same channel. All
// outbound delivery is best effort: a dead channel never stops a run.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Notifier is the outbound surface the engine and certificate exporter use.
// chatID "" routes to the default destination.
type Notifier interface {
	SendMessage(ctx context.Context, chatID, text string) error
	SendPhoto(ctx context.Context, chatID string, png []byte, caption string) error
	SendDocument(ctx context.Context, chatID string, data []byte, filename, caption string) error
}

// Nop drops everything; used when no channel is configured.
type Nop struct{}

func (Nop) SendMessage(context.Context, string, string) error                  { return nil }
func (Nop) SendPhoto(context.Context, string, []byte, string) error            { return nil }
func (Nop) SendDocument(context.Context, string, []byte, string, string) error { return nil }

// Client is a bot-API HTTP client (sendMessage / sendPhoto / sendDocument /
// getUpdates).
type Client struct {
	APIBase     string // e.g. https://api.telegram.org/bot<token>
	DefaultChat string
	HTTP        *http.Client
}

func NewClient(apiBase, defaultChat string) *Client {
	return &Client{
		APIBase:     strings.TrimSuffix(apiBase, "/"),
		DefaultChat: defaultChat,
		HTTP:        &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) chat(chatID string) string {
	if chatID != "" {
		return chatID
	}
	return c.DefaultChat
}

func (c *Client) enabled() bool { return c.APIBase != "" && c.DefaultChat != "" }

func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	if !c.enabled() {
		return nil
	}
	body, _ := json.Marshal(map[string]string{
		"chat_id":    c.chat(chatID),
		"text":       text,
		"parse_mode": "HTML",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBase+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doOK(req)
}

func (c *Client) SendPhoto(ctx context.Context, chatID string, png []byte, caption string) error {
	if !c.enabled() {
		return nil
	}
	return c.sendFile(ctx, "/sendPhoto", "photo", "screenshot.png", png, c.chat(chatID), caption)
}

func (c *Client) SendDocument(ctx context.Context, chatID string, data []byte, filename, caption string) error {
	if !c.enabled() {
		return nil
	}
	return c.sendFile(ctx, "/sendDocument", "document", filename, data, c.chat(chatID), caption)
}

func (c *Client) sendFile(ctx context.Context, path, field, filename string, data []byte, chatID, caption string) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("chat_id", chatID)
	if caption != "" {
		_ = mw.WriteField("caption", caption)
	}
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBase+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.doOK(req)
}

func (c *Client) doOK(req *http.Request) error {
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 300))
		return fmt.Errorf("notify %s: %s: %s", req.URL.Path, res.Status, b)
	}
	return nil
}
