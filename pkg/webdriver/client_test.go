package webdriver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *Session) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{URL: srv.URL})
	return c, &Session{ID: "sess-1", c: c}
}

func TestNewSessionParsesID(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/session" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("bad body: %v", err)
		}
		if _, ok := body["capabilities"]; !ok {
			t.Fatalf("missing capabilities")
		}
		w.Write([]byte(`{"value":{"sessionId":"abc123","capabilities":{}}}`))
	})
	s, err := c.NewSession(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != "abc123" {
		t.Fatalf("session id = %q", s.ID)
	}
}

func TestCommandErrorCarriesDriverCode(t *testing.T) {
	_, s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"value":{"error":"no such alert","message":"no alert open"}}`))
	})
	_, err := s.AlertText(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !Is(err, ErrNoSuchAlert) {
		t.Fatalf("expected no-such-alert code, got %v", err)
	}
}

func TestExecuteScriptRoundTrip(t *testing.T) {
	_, s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session/sess-1/execute/sync" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Script string `json:"script"`
			Args   []any  `json:"args"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("bad body: %v", err)
		}
		if body.Script != "return 1+1;" {
			t.Fatalf("script = %q", body.Script)
		}
		if body.Args == nil {
			t.Fatalf("args must be present even when empty")
		}
		w.Write([]byte(`{"value":2}`))
	})
	v, err := s.ExecuteScript(context.Background(), "return 1+1;")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var n int
	if err := json.Unmarshal(v, &n); err != nil || n != 2 {
		t.Fatalf("value = %s (%v)", v, err)
	}
}

func TestScreenshotDecodesBase64(t *testing.T) {
	_, s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":"aGVsbG8="}`))
	})
	b, err := s.Screenshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("decoded = %q", b)
	}
}
