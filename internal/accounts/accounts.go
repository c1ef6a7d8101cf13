// Package accounts supplies the engine with accounts to process and carries
// their status back. Two sources exist: a spreadsheet-backed web-app queue
// and a local CSV fallback; both normalize to the same Account list.
package accounts

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Status is the queue-side lifecycle of one account.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Account is one set of site credentials, optionally routed to its own
// notification destination.
type Account struct {
	UserID   string
	Password string
	ChatID   string
}

// Source lists accounts to process, in order.
type Source interface {
	FetchPending(ctx context.Context) ([]Account, error)
}

// Reporter receives best-effort status callbacks. Implementations must treat
// delivery failure as non-fatal; the engine ignores the returned error beyond
// logging it.
type Reporter interface {
	UpdateStatus(ctx context.Context, userID string, status Status, note string) error
}

// NopReporter drops all updates; used when no queue backend is configured.
type NopReporter struct{}

func (NopReporter) UpdateStatus(context.Context, string, Status, string) error { return nil }

// ReadCSV reads the local tabular fallback: header row, then
// (id, password, chat_route?) per line. Rows without both credentials are
// skipped.
func ReadCSV(path string) ([]Account, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseCSV(f)
}

func parseCSV(r io.Reader) ([]Account, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("account file: %w", err)
	}
	var out []Account
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		if len(row) < 2 {
			continue
		}
		acc := Account{
			UserID:   strings.TrimSpace(row[0]),
			Password: strings.TrimSpace(row[1]),
		}
		if acc.UserID == "" || acc.Password == "" {
			continue
		}
		if len(row) >= 3 {
			acc.ChatID = strings.TrimSpace(row[2])
		}
		out = append(out, acc)
	}
	return out, nil
}

// FileSource adapts ReadCSV to the Source interface.
type FileSource struct{ Path string }

func (s FileSource) FetchPending(context.Context) ([]Account, error) { return ReadCSV(s.Path) }
