package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestRunnerStateLifecycle(t *testing.T) {
	s := NewRunnerState(3)
	s.SetCurrent("u1", "Course A", "2/10")

	v := s.Snapshot()
	if v.CurrentUser != "u1" || v.CurrentCourse != "Course A" || v.Progress != "2/10" {
		t.Fatalf("snapshot: %+v", v)
	}

	s.MarkCompleted()
	s.SetCurrent("u2", "", "")
	s.MarkFailed("u2")
	s.MarkFailed("u2") // idempotent for the failed list

	v = s.Snapshot()
	if v.DoneAccounts != 3 {
		t.Fatalf("done = %d, want 3", v.DoneAccounts)
	}
	if len(v.FailedAccounts) != 1 || v.FailedAccounts[0] != "u2" {
		t.Fatalf("failed = %v", v.FailedAccounts)
	}
	if v.CurrentUser != "" {
		t.Fatalf("current user must be cleared after finish")
	}

	s.ClearFailed([]string{"u2"})
	if v := s.Snapshot(); len(v.FailedAccounts) != 0 {
		t.Fatalf("failed after clear = %v", v.FailedAccounts)
	}
}

func TestStatusEndpointAuth(t *testing.T) {
	state := NewRunnerState(1)
	state.SetCurrent("u1", "c1", "")
	hash, err := bcrypt.GenerateFromPassword([]byte("opensesame"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(NewRouter(state, ServerConfig{TokenHash: string(hash)}))
	defer srv.Close()

	res, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", res.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer opensesame")
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d", res.StatusCode)
	}
	var v View
	if err := json.NewDecoder(res.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if v.CurrentUser != "u1" {
		t.Fatalf("view: %+v", v)
	}
}
