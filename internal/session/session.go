// Package session defines the interactive-session surface the progression
// engine drives, plus the site-specific script adapter. The engine only ever
// sees the Session interface; tests substitute scripted fakes and production
// wires the WebDriver-backed implementation.
package session

import (
	"context"
	"encoding/json"
)

// Probe is the outcome of a capability check against the page. Checks against
// a remote surface can genuinely fail to decide (dead window, transport hiccup),
// so absence and indeterminacy are distinct.
type Probe int

const (
	ProbeAbsent Probe = iota
	ProbePresent
	ProbeIndeterminate
)

func (p Probe) String() string {
	switch p {
	case ProbePresent:
		return "present"
	case ProbeAbsent:
		return "absent"
	default:
		return "indeterminate"
	}
}

// Session is one authenticated interaction surface against the training site.
// Implementations are not goroutine safe; the engine is strictly sequential.
type Session interface {
	// Authenticate runs the login sequence. False without error means the
	// site rejected the credentials.
	Authenticate(ctx context.Context, userID, password string) (bool, error)
	// LoggedIn is the cheap expiry signal: false when the session has been
	// bounced back to the login surface.
	LoggedIn(ctx context.Context) bool
	// GoHome navigates to the profile page the list APIs are served under.
	GoHome(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)

	// Exec runs a page script and returns its JSON-encoded result.
	Exec(ctx context.Context, script string, args ...any) (json.RawMessage, error)
	// FetchJSON performs an in-page POST so the site's cookies ride along,
	// returning the raw response body.
	FetchJSON(ctx context.Context, url string, form map[string]string) ([]byte, error)

	// AlertProbe observes an interruption prompt without dismissing it.
	AlertProbe(ctx context.Context) (Probe, string)
	DismissAlert(ctx context.Context) error

	Windows(ctx context.Context) ([]string, error)
	CurrentWindow(ctx context.Context) (string, error)
	SwitchWindow(ctx context.Context, handle string) error
	CloseWindow(ctx context.Context) error

	Screenshot(ctx context.Context) ([]byte, error)
	// PrintPDF exports the current surface as a PDF document.
	PrintPDF(ctx context.Context) ([]byte, error)
	// BlockPrintDialog suppresses window.print in windows opened after the
	// call, so print-triggering pages can be exported headlessly.
	BlockPrintDialog(ctx context.Context) error

	// Close tears the whole surface down. Always called between accounts.
	Close(ctx context.Context) error
}

// Factory creates fresh surfaces; a full restart discards the old Session and
// asks the factory for a new one.
type Factory interface {
	New(ctx context.Context) (Session, error)
}
