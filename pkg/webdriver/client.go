// Package webdriver is a minimal W3C WebDriver wire-protocol client. It talks
// plain HTTP+JSON to a locally running driver (chromedriver, geckodriver) and
// covers only the commands the session adapter needs: navigation, script
// execution, element value/click, window handling, alerts, screenshots and
// print-to-PDF, plus the Chromium CDP escape hatch.
package webdriver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	base string
	http *http.Client
}

type Config struct {
	// URL of the driver, e.g. http://localhost:9515
	URL     string
	Timeout time.Duration
}

func New(cfg Config) *Client {
	h := &http.Client{}
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	} else {
		h.Timeout = 60 * time.Second
	}
	return &Client{base: strings.TrimSuffix(cfg.URL, "/"), http: h}
}

// Session is one browser session. All commands are scoped to it.
type Session struct {
	ID string
	c  *Client
}

type wireError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e *wireError) String() string {
	if e.Message != "" {
		return e.Error + ": " + e.Message
	}
	return e.Error
}

// do performs one wire command and returns the raw "value" member.
func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	} else {
		// WebDriver requires a JSON body on every POST
		rdr = bytes.NewReader([]byte("{}"))
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("webdriver %s %s: %w", method, path, err)
	}
	if res.StatusCode/100 != 2 {
		var we wireError
		if json.Unmarshal(envelope.Value, &we) == nil && we.Error != "" {
			return nil, &CommandError{Status: res.StatusCode, Code: we.Error, Message: we.Message}
		}
		return nil, fmt.Errorf("webdriver %s %s: %s", method, path, res.Status)
	}
	return envelope.Value, nil
}

// CommandError is a failed wire command with the driver's error code intact,
// so callers can branch on e.g. "no such alert" without string scraping.
type CommandError struct {
	Status  int
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("webdriver: %s (%s)", e.Code, e.Message)
}

// Is reports whether err is a CommandError with the given code.
func Is(err error, code string) bool {
	ce, ok := err.(*CommandError)
	return ok && ce.Code == code
}

// Well-known driver error codes this module branches on.
const (
	ErrNoSuchAlert   = "no such alert"
	ErrNoSuchElement = "no such element"
	ErrNoSuchWindow  = "no such window"
	ErrScriptTimeout = "script timeout"
)

// NewSession starts a browser. Options mirror the chromium flags the runner
// has always needed: popups allowed, background throttling off.
func (c *Client) NewSession(ctx context.Context, headless bool) (*Session, error) {
	args := []string{
		"--start-maximized",
		"--disable-popup-blocking",
		"--disable-background-timer-throttling",
		"--disable-backgrounding-occluded-windows",
		"--disable-renderer-backgrounding",
	}
	if headless {
		args = append(args, "--headless=new")
	}
	body := map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": map[string]any{
				"goog:chromeOptions": map[string]any{
					"args":            args,
					"excludeSwitches": []string{"enable-logging"},
				},
				// leave alerts to the supervisor instead of auto-dismissing
				"unhandledPromptBehavior": "ignore",
			},
		},
	}
	v, err := c.do(ctx, http.MethodPost, "/session", body)
	if err != nil {
		return nil, err
	}
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(v, &out); err != nil || out.SessionID == "" {
		return nil, fmt.Errorf("webdriver: no session id in response")
	}
	return &Session{ID: out.SessionID, c: c}, nil
}

func (s *Session) path(suffix string) string { return "/session/" + s.ID + suffix }

func (s *Session) Delete(ctx context.Context) error {
	_, err := s.c.do(ctx, http.MethodDelete, s.path(""), nil)
	return err
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	_, err := s.c.do(ctx, http.MethodPost, s.path("/url"), map[string]string{"url": url})
	return err
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	v, err := s.c.do(ctx, http.MethodGet, s.path("/url"), nil)
	if err != nil {
		return "", err
	}
	var u string
	err = json.Unmarshal(v, &u)
	return u, err
}

func (s *Session) ExecuteScript(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	return s.c.do(ctx, http.MethodPost, s.path("/execute/sync"),
		map[string]any{"script": script, "args": args})
}

func (s *Session) ExecuteAsyncScript(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	return s.c.do(ctx, http.MethodPost, s.path("/execute/async"),
		map[string]any{"script": script, "args": args})
}

const elementKey = "element-6066-11e4-a52e-4f735466cecf"

// FindElement locates one element by CSS selector.
func (s *Session) FindElement(ctx context.Context, selector string) (string, error) {
	v, err := s.c.do(ctx, http.MethodPost, s.path("/element"),
		map[string]string{"using": "css selector", "value": selector})
	if err != nil {
		return "", err
	}
	var ref map[string]string
	if err := json.Unmarshal(v, &ref); err != nil {
		return "", err
	}
	id, ok := ref[elementKey]
	if !ok {
		return "", fmt.Errorf("webdriver: malformed element reference")
	}
	return id, nil
}

func (s *Session) SendKeys(ctx context.Context, elementID, text string) error {
	_, err := s.c.do(ctx, http.MethodPost, s.path("/element/"+elementID+"/value"),
		map[string]string{"text": text})
	return err
}

func (s *Session) Click(ctx context.Context, elementID string) error {
	_, err := s.c.do(ctx, http.MethodPost, s.path("/element/"+elementID+"/click"), nil)
	return err
}

func (s *Session) WindowHandles(ctx context.Context) ([]string, error) {
	v, err := s.c.do(ctx, http.MethodGet, s.path("/window/handles"), nil)
	if err != nil {
		return nil, err
	}
	var handles []string
	err = json.Unmarshal(v, &handles)
	return handles, err
}

func (s *Session) CurrentWindow(ctx context.Context) (string, error) {
	v, err := s.c.do(ctx, http.MethodGet, s.path("/window"), nil)
	if err != nil {
		return "", err
	}
	var h string
	err = json.Unmarshal(v, &h)
	return h, err
}

func (s *Session) SwitchWindow(ctx context.Context, handle string) error {
	_, err := s.c.do(ctx, http.MethodPost, s.path("/window"), map[string]string{"handle": handle})
	return err
}

// CloseWindow closes the current window; remaining handles are returned by the
// driver but callers re-enumerate anyway.
func (s *Session) CloseWindow(ctx context.Context) error {
	_, err := s.c.do(ctx, http.MethodDelete, s.path("/window"), nil)
	return err
}

func (s *Session) AlertText(ctx context.Context) (string, error) {
	v, err := s.c.do(ctx, http.MethodGet, s.path("/alert/text"), nil)
	if err != nil {
		return "", err
	}
	var t string
	err = json.Unmarshal(v, &t)
	return t, err
}

func (s *Session) AcceptAlert(ctx context.Context) error {
	_, err := s.c.do(ctx, http.MethodPost, s.path("/alert/accept"), nil)
	return err
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	v, err := s.c.do(ctx, http.MethodGet, s.path("/screenshot"), nil)
	if err != nil {
		return nil, err
	}
	return decodeB64Value(v)
}

// Print renders the current page to PDF (A4, backgrounds on).
func (s *Session) Print(ctx context.Context) ([]byte, error) {
	body := map[string]any{
		"background": true,
		"page":       map[string]float64{"width": 21.0, "height": 29.7},
		"margin":     map[string]float64{"top": 0, "bottom": 0, "left": 0, "right": 0},
	}
	v, err := s.c.do(ctx, http.MethodPost, s.path("/print"), body)
	if err != nil {
		return nil, err
	}
	return decodeB64Value(v)
}

// CDP executes a raw Chrome DevTools command (chromium drivers only).
func (s *Session) CDP(ctx context.Context, cmd string, params map[string]any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	return s.c.do(ctx, http.MethodPost, s.path("/goog/cdp/execute"),
		map[string]any{"cmd": cmd, "params": params})
}

func decodeB64Value(v json.RawMessage) ([]byte, error) {
	var enc string
	if err := json.Unmarshal(v, &enc); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(enc)
}
