package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autoedu/coursepilot/internal/accounts"
	"github.com/autoedu/coursepilot/internal/eventlog"
	"github.com/autoedu/coursepilot/internal/session"
)

// closeGrace bounds session teardown after the run context is already gone.
const closeGrace = 15 * time.Second

// RunAccount drives one account to completion, restarting from a fresh
// session up to MaxRestarts times when the run dies mid-way. Context
// cancellation is never absorbed by the retry loop.
func (e *Engine) RunAccount(ctx context.Context, acct accounts.Account) (Outcome, error) {
	e.event(ctx, acct.UserID, eventlog.TypeAccountStart, acct.UserID, nil)
	e.state.SetCurrent(acct.UserID, "", "starting")
	_ = e.notify.SendMessage(ctx, acct.ChatID, fmt.Sprintf("starting account %s", acct.UserID))

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxRestarts; attempt++ {
		if err := ctx.Err(); err != nil {
			return OutcomeIncomplete, err
		}
		if attempt > 0 {
			e.event(ctx, acct.UserID, eventlog.TypeRestart, acct.UserID,
				map[string]any{"attempt": attempt, "cause": fmt.Sprint(lastErr)})
			_ = e.notify.SendMessage(ctx, acct.ChatID,
				fmt.Sprintf("restarting %s (attempt %d/%d): %v", acct.UserID, attempt+1, e.cfg.MaxRestarts, lastErr))
			e.sleep(ctx, e.cfg.RestartCooldown)
		}

		done, err := e.runOnce(ctx, acct)
		if err == nil && done {
			e.event(ctx, acct.UserID, eventlog.TypeAccountCompleted, acct.UserID, nil)
			e.state.MarkCompleted()
			_ = e.notify.SendMessage(ctx, acct.ChatID, fmt.Sprintf("account %s completed", acct.UserID))
			return OutcomeCompleted, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return OutcomeIncomplete, err
		}
		if err == nil {
			// Ran to the end of its passes with work still pending. A fresh
			// session sometimes unsticks a wedged player or quiz surface.
			lastErr = errors.New("courses still pending after full pass")
		} else {
			lastErr = err
		}
	}

	e.event(ctx, acct.UserID, eventlog.TypeAccountFailed, acct.UserID,
		map[string]any{"cause": fmt.Sprint(lastErr)})
	e.state.MarkFailed(acct.UserID)
	_ = e.notify.SendMessage(ctx, acct.ChatID,
		fmt.Sprintf("account %s failed after %d attempts: %v", acct.UserID, e.cfg.MaxRestarts, lastErr))
	return OutcomeIncomplete, lastErr
}

// runOnce runs one full session lifecycle: create, authenticate, process all
// courses, tear down. Teardown happens even on error paths so a dead surface
// never leaks into the next attempt.
func (e *Engine) runOnce(ctx context.Context, acct accounts.Account) (bool, error) {
	sess, err := e.factory.New(ctx)
	if err != nil {
		return false, fmt.Errorf("new session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeGrace)
		defer cancel()
		_ = sess.Close(closeCtx)
	}()

	ok, err := sess.Authenticate(ctx, acct.UserID, acct.Password)
	if err != nil {
		return false, fmt.Errorf("authenticate: %w", err)
	}
	if !ok {
		// Wrong credentials will not improve with retries but a transient
		// login-page hiccup does, so this stays a retryable error.
		return false, errors.New("login rejected")
	}
	return e.processCourses(ctx, sess, acct)
}

// ensureAuthenticated re-logs a session the site has silently expired. Called
// between courses, where a bounce to the login surface is cheap to detect.
func (e *Engine) ensureAuthenticated(ctx context.Context, sess session.Session, acct accounts.Account) error {
	if sess.LoggedIn(ctx) {
		return nil
	}
	ok, err := sess.Authenticate(ctx, acct.UserID, acct.Password)
	if err != nil {
		return fmt.Errorf("re-authenticate: %w", err)
	}
	if !ok {
		return errors.New("re-authentication rejected")
	}
	e.event(ctx, acct.UserID, eventlog.TypeSessionRenewed, acct.UserID, nil)
	return nil
}
