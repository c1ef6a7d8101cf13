// Package cert exports completion certificates from the profile page as PDF
// documents and ships them over the notification channel. Export is strictly
// best effort and runs after an account completes.
package cert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/autoedu/coursepilot/internal/eventlog"
	"github.com/autoedu/coursepilot/internal/notify"
	"github.com/autoedu/coursepilot/internal/session"
)

type trigger struct {
	Title string `json:"title"`
	JS    string `json:"js"`
}

// Exporter renders each certificate trigger on the profile page into a PDF
// and sends it to the account's chat.
type Exporter struct {
	Events eventlog.Sink
	Notify notify.Notifier
	RunID  string

	sleep func(context.Context, time.Duration)
}

func NewExporter(events eventlog.Sink, notifier notify.Notifier, runID string) *Exporter {
	if events == nil {
		events = eventlog.Discard{}
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Exporter{
		Events: events, Notify: notifier, RunID: runID,
		sleep: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		},
	}
}

// ExportAll scans the profile page for certificate triggers and exports every
// one. Individual failures skip to the next certificate; only a broken page
// scan fails the whole export.
func (e *Exporter) ExportAll(ctx context.Context, sess session.Session, accountID, chatID string) (int, error) {
	if err := sess.GoHome(ctx); err != nil {
		return 0, fmt.Errorf("profile page: %w", err)
	}
	// New windows must not raise the native print dialog; headless export
	// reads the page back as a PDF instead.
	if err := sess.BlockPrintDialog(ctx); err != nil {
		return 0, fmt.Errorf("block print dialog: %w", err)
	}

	v, err := sess.Exec(ctx, session.CertificateScan)
	if err != nil {
		return 0, fmt.Errorf("certificate scan: %w", err)
	}
	var triggers []trigger
	if err := json.Unmarshal(v, &triggers); err != nil {
		return 0, fmt.Errorf("certificate scan: %w", err)
	}

	sent := 0
	for i, tr := range triggers {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if tr.JS == "" {
			continue
		}
		if err := e.exportOne(ctx, sess, accountID, chatID, i, tr); err != nil {
			e.event(ctx, accountID, eventlog.TypeCertificateSent, tr.Title,
				map[string]any{"error": err.Error()})
			continue
		}
		sent++
	}
	return sent, nil
}

// exportOne fires the page's own render trigger, captures the opened window
// as a PDF, ships it, and restores the main window.
func (e *Exporter) exportOne(ctx context.Context, sess session.Session, accountID, chatID string, idx int, tr trigger) error {
	mainWindow, err := sess.CurrentWindow(ctx)
	if err != nil {
		return err
	}
	before, err := sess.Windows(ctx)
	if err != nil {
		return err
	}

	if _, err := sess.Exec(ctx, tr.JS); err != nil {
		return fmt.Errorf("render trigger: %w", err)
	}
	e.sleep(ctx, 3*time.Second)

	popup := newWindow(before, e.currentWindows(ctx, sess))
	if popup != "" {
		if err := sess.SwitchWindow(ctx, popup); err != nil {
			return err
		}
		defer func() {
			_ = sess.CloseWindow(ctx)
			_ = sess.SwitchWindow(ctx, mainWindow)
		}()
	}

	pdf, err := sess.PrintPDF(ctx)
	if err != nil {
		return fmt.Errorf("print: %w", err)
	}

	name := fmt.Sprintf("certificate_%s_%d.pdf", accountID, idx+1)
	caption := tr.Title
	if caption == "" {
		caption = "certificate"
	}
	if err := e.Notify.SendDocument(ctx, chatID, pdf, name, caption); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	e.event(ctx, accountID, eventlog.TypeCertificateSent, tr.Title,
		map[string]any{"bytes": len(pdf)})
	return nil
}

func (e *Exporter) currentWindows(ctx context.Context, sess session.Session) []string {
	ws, err := sess.Windows(ctx)
	if err != nil {
		return nil
	}
	return ws
}

func newWindow(before, after []string) string {
	known := make(map[string]bool, len(before))
	for _, h := range before {
		known[h] = true
	}
	for _, h := range after {
		if !known[h] {
			return h
		}
	}
	return ""
}

func (e *Exporter) event(ctx context.Context, accountID, typ, key string, data map[string]any) {
	_ = e.Events.Append(ctx, eventlog.Event{
		RunID: e.RunID, AccountID: accountID,
		Type: typ, Key: strings.TrimSpace(key), Data: data, CreatedAt: time.Now(),
	})
}
