package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/autoedu/coursepilot/pkg/webdriver"
)

// WebDriverFactory creates WebDriver-backed surfaces against a local driver.
type WebDriverFactory struct {
	Client   *webdriver.Client
	Site     Site
	Headless bool
}

func (f *WebDriverFactory) New(ctx context.Context) (Session, error) {
	s, err := f.Client.NewSession(ctx, f.Headless)
	if err != nil {
		return nil, fmt.Errorf("create browser session: %w", err)
	}
	return &webSession{drv: s, site: f.Site}, nil
}

type webSession struct {
	drv  *webdriver.Session
	site Site
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *webSession) Authenticate(ctx context.Context, userID, password string) (bool, error) {
	if err := w.drv.Navigate(ctx, w.site.LoginURL()); err != nil {
		return false, err
	}
	sleep(ctx, 2*time.Second)

	idEl, err := w.drv.FindElement(ctx, "#userId")
	if err != nil {
		return false, fmt.Errorf("login form: %w", err)
	}
	if err := w.drv.SendKeys(ctx, idEl, userID); err != nil {
		return false, err
	}
	pwEl, err := w.drv.FindElement(ctx, ".ip_pw>input")
	if err != nil {
		return false, fmt.Errorf("login form: %w", err)
	}
	if err := w.drv.SendKeys(ctx, pwEl, password); err != nil {
		return false, err
	}
	if _, err := w.drv.ExecuteScript(ctx, LoginTrigger); err != nil {
		return false, err
	}
	sleep(ctx, 3*time.Second)

	url, err := w.drv.CurrentURL(ctx)
	if err != nil {
		return false, err
	}
	return !strings.Contains(url, LoginBounceMarker), nil
}

func (w *webSession) LoggedIn(ctx context.Context) bool {
	url, err := w.drv.CurrentURL(ctx)
	if err != nil {
		return false
	}
	return !strings.Contains(url, LoginBounceMarker) && !strings.Contains(strings.ToLower(url), "login")
}

func (w *webSession) GoHome(ctx context.Context) error {
	if err := w.drv.Navigate(ctx, w.site.HomeURL()); err != nil {
		return err
	}
	sleep(ctx, 3*time.Second)
	return nil
}

func (w *webSession) CurrentURL(ctx context.Context) (string, error) {
	return w.drv.CurrentURL(ctx)
}

func (w *webSession) Exec(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	return w.drv.ExecuteScript(ctx, script, args...)
}

func (w *webSession) FetchJSON(ctx context.Context, url string, form map[string]string) ([]byte, error) {
	v, err := w.drv.ExecuteAsyncScript(ctx, FetchPostScript, form, url)
	if err != nil {
		return nil, err
	}
	var text string
	if err := json.Unmarshal(v, &text); err != nil {
		return nil, fmt.Errorf("fetch result: %w", err)
	}
	if strings.HasPrefix(text, "FETCH_ERROR:") {
		return nil, fmt.Errorf("in-page fetch: %s", strings.TrimPrefix(text, "FETCH_ERROR:"))
	}
	return []byte(text), nil
}

func (w *webSession) AlertProbe(ctx context.Context) (Probe, string) {
	text, err := w.drv.AlertText(ctx)
	if err == nil {
		return ProbePresent, text
	}
	if webdriver.Is(err, webdriver.ErrNoSuchAlert) {
		return ProbeAbsent, ""
	}
	return ProbeIndeterminate, ""
}

func (w *webSession) DismissAlert(ctx context.Context) error {
	return w.drv.AcceptAlert(ctx)
}

func (w *webSession) Windows(ctx context.Context) ([]string, error) {
	return w.drv.WindowHandles(ctx)
}

func (w *webSession) CurrentWindow(ctx context.Context) (string, error) {
	return w.drv.CurrentWindow(ctx)
}

func (w *webSession) SwitchWindow(ctx context.Context, handle string) error {
	return w.drv.SwitchWindow(ctx, handle)
}

func (w *webSession) CloseWindow(ctx context.Context) error {
	return w.drv.CloseWindow(ctx)
}

func (w *webSession) Screenshot(ctx context.Context) ([]byte, error) {
	return w.drv.Screenshot(ctx)
}

func (w *webSession) PrintPDF(ctx context.Context) ([]byte, error) {
	return w.drv.Print(ctx)
}

func (w *webSession) BlockPrintDialog(ctx context.Context) error {
	_, err := w.drv.CDP(ctx, "Page.addScriptToEvaluateOnNewDocument", map[string]any{
		"source": "window.print = function() {};",
	})
	return err
}

func (w *webSession) Close(ctx context.Context) error {
	return w.drv.Delete(ctx)
}
