package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/autoedu/coursepilot/internal/status"
)

func TestSendMessagePostsJSON(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "777")
	if err := c.SendMessage(context.Background(), "", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got["chat_id"] != "777" || got["text"] != "hello" {
		t.Errorf("payload = %v", got)
	}
}

func TestSendDocumentMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		if r.FormValue("chat_id") != "42" {
			t.Errorf("chat_id = %s", r.FormValue("chat_id"))
		}
		f, hdr, err := r.FormFile("document")
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		if hdr.Filename != "cert.pdf" {
			t.Errorf("filename = %s", hdr.Filename)
		}
		b, _ := io.ReadAll(f)
		if string(b) != "%PDF-1.4" {
			t.Errorf("body = %q", b)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "42")
	err := c.SendDocument(context.Background(), "", []byte("%PDF-1.4"), "cert.pdf", "certificate")
	if err != nil {
		t.Fatalf("SendDocument: %v", err)
	}
}

func TestSendDisabledWithoutConfig(t *testing.T) {
	c := NewClient("", "")
	if err := c.SendMessage(context.Background(), "", "x"); err != nil {
		t.Fatalf("disabled client should be a no-op, got %v", err)
	}
}

func TestControllerHandlesCommands(t *testing.T) {
	calls := 0
	var sent []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/getUpdates"):
			calls++
			if calls == 1 {
				w.Write([]byte(`{"ok":true,"result":[
					{"update_id":10,"message":{"text":"/status","chat":{"id":777}}},
					{"update_id":11,"message":{"text":"/restart","chat":{"id":777}}},
					{"update_id":12,"message":{"text":"/restart","chat":{"id":999}}}
				]}`))
				return
			}
			if off := r.URL.Query().Get("offset"); off != "13" {
				t.Errorf("offset = %s, want 13", off)
			}
			w.Write([]byte(`{"ok":true,"result":[]}`))
		case r.URL.Path == "/sendMessage":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			sent = append(sent, body["text"])
			w.Write([]byte(`{"ok":true}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	st := status.NewRunnerState(3)
	st.SetCurrent("user-1", "Safety Basics", "lecture 2/5")

	ctrl := NewController(NewClient(srv.URL, "777"), st, nil, "777")
	ctrl.PollTimeout = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() {
		for calls < 2 {
			time.Sleep(10 * time.Millisecond)
		}
		cancel()
	}()
	ctrl.Run(ctx)

	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2 (status reply + restart ack): %v", len(sent), sent)
	}
	if !strings.Contains(sent[0], "user-1") || !strings.Contains(sent[0], "Safety Basics") {
		t.Errorf("status reply = %q", sent[0])
	}
	if !ctrl.RestartRequested() {
		t.Error("restart flag not set")
	}
	if ctrl.RestartRequested() {
		t.Error("restart flag should clear after read")
	}
}

type fakeRequeuer struct{ users []string }

func (f *fakeRequeuer) Requeue(_ context.Context, userID string) error {
	f.users = append(f.users, userID)
	return nil
}

func TestRequeueFailedAccounts(t *testing.T) {
	var sent []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sendMessage" {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			sent = append(sent, body["text"])
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	st := status.NewRunnerState(3)
	st.MarkFailed("user-a")
	st.MarkFailed("user-b")

	q := &fakeRequeuer{}
	ctrl := NewController(NewClient(srv.URL, "777"), st, q, "777")
	ctrl.requeueFailed(context.Background(), "777")

	if len(q.users) != 2 {
		t.Fatalf("requeued = %v", q.users)
	}
	if v := st.Snapshot(); len(v.FailedAccounts) != 0 {
		t.Errorf("failed accounts not cleared: %v", v.FailedAccounts)
	}
	if len(sent) != 1 || !strings.Contains(sent[0], "requeued 2 of 2") {
		t.Errorf("reply = %v", sent)
	}
}
