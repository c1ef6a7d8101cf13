package accounts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func xorEncode(plain, key string) string {
	out := make([]byte, len(plain))
	for i := 0; i < len(plain); i++ {
		out[i] = plain[i] ^ key[i%len(key)]
	}
	return base64.StdEncoding.EncodeToString(out)
}

func TestReadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.csv")
	content := "id,password,chat_route\n" +
		"user1,pw1,12345\n" +
		"user2,pw2\n" +
		",missing-id\n" +
		"user3,\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	accs, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(accs) != 2 {
		t.Fatalf("expected 2 accounts, got %d: %+v", len(accs), accs)
	}
	if accs[0].UserID != "user1" || accs[0].ChatID != "12345" {
		t.Fatalf("first account: %+v", accs[0])
	}
	if accs[1].ChatID != "" {
		t.Fatalf("optional chat route should be empty: %+v", accs[1])
	}
}

func TestQueueFetchPendingDecodesCredentials(t *testing.T) {
	const key = "sekret"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok123" {
			t.Fatalf("token missing from query: %s", r.URL.RawQuery)
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			t.Fatalf("expected signed request, got %q", auth)
		}
		_, err := jwt.Parse(strings.TrimPrefix(auth, "Bearer "), func(*jwt.Token) (any, error) {
			return []byte("signing-secret"), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			t.Fatalf("request token invalid: %v", err)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"user_id": xorEncode("user1", key), "user_pw": xorEncode("pw1", key), "_encrypted": true, "telegram_chat_id": "99"},
			{"user_id": "plain", "user_pw": "plainpw"},
			{"user_id": "", "user_pw": "orphan"},
		})
	}))
	defer srv.Close()

	c := &QueueClient{BaseURL: srv.URL, Token: "tok123", EncryptKey: key, SigningSecret: "signing-secret"}
	accs, err := c.FetchPending(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(accs) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accs))
	}
	if accs[0].UserID != "user1" || accs[0].Password != "pw1" || accs[0].ChatID != "99" {
		t.Fatalf("decoded account: %+v", accs[0])
	}
	if accs[1].UserID != "plain" {
		t.Fatalf("plain account: %+v", accs[1])
	}
}

func TestQueueFetchPendingWrappedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "sheet unavailable"})
	}))
	defer srv.Close()

	c := &QueueClient{BaseURL: srv.URL}
	if _, err := c.FetchPending(context.Background()); err == nil {
		t.Fatalf("expected error from wrapped error response")
	}
}

func TestQueueUpdateStatus(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
	}))
	defer srv.Close()

	c := &QueueClient{BaseURL: srv.URL}
	if err := c.UpdateStatus(context.Background(), "user1", StatusFailed, "max restarts"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["user_id"] != "user1" || got["status"] != "failed" || got["message"] != "max restarts" {
		t.Fatalf("posted body: %v", got)
	}
}

func TestXorDecodeRoundTrip(t *testing.T) {
	const key = "k3y"
	enc := xorEncode("hello world", key)
	dec, err := xorDecode(enc, key)
	if err != nil || dec != "hello world" {
		t.Fatalf("round trip: %q %v", dec, err)
	}
}
