package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/autoedu/coursepilot/internal/accounts"
	"github.com/autoedu/coursepilot/internal/edu"
	"github.com/autoedu/coursepilot/internal/eventlog"
	"github.com/autoedu/coursepilot/internal/session"
)

// watchLecture opens the item's player window, starts playback, and sits out
// the required watch time before closing the window. Lecture credit is
// accumulated server-side while the player runs; the engine's only jobs are
// starting playback and not leaving early.
func (e *Engine) watchLecture(ctx context.Context, sess session.Session, acct accounts.Account, it edu.ContentItem) error {
	mainWindow, err := sess.CurrentWindow(ctx)
	if err != nil {
		return fmt.Errorf("current window: %w", err)
	}
	before, err := sess.Windows(ctx)
	if err != nil {
		return fmt.Errorf("windows: %w", err)
	}

	if _, err := sess.Exec(ctx, e.cfg.Site.EnterContent(it)); err != nil {
		return fmt.Errorf("enter content: %w", err)
	}
	e.sleep(ctx, 5*time.Second)
	e.drainPrompts(ctx, sess)

	popup := e.awaitNewWindow(ctx, sess, before)
	if popup == "" {
		// Some items play inline instead of opening a window.
		popup = mainWindow
	} else if err := sess.SwitchWindow(ctx, popup); err != nil {
		return fmt.Errorf("switch to player: %w", err)
	}

	// The player sometimes stacks a confirmation modal over the controls.
	if execBool(ctx, sess, session.PlayerDismissModal) {
		e.sleep(ctx, time.Second)
	}
	strategy := execString(ctx, sess, session.PlayerStart)
	if strategy == "" {
		e.event(ctx, acct.UserID, eventlog.TypeLectureFailed, it.ContentsID,
			map[string]any{"title": it.Title, "reason": "no playback control"})
	}

	remaining := e.remainingWatch(ctx, sess, it)
	e.event(ctx, acct.UserID, eventlog.TypeLectureWatched, it.ContentsID,
		map[string]any{"title": it.Title, "wait_sec": int(remaining / time.Second), "start": strategy})

	err = e.superviseWatch(ctx, sess, popup, mainWindow, remaining)

	if popup != mainWindow {
		e.closePlayer(ctx, sess, popup, mainWindow)
	}
	return err
}

// awaitNewWindow polls for a handle that was not present before content entry.
func (e *Engine) awaitNewWindow(ctx context.Context, sess session.Session, before []string) string {
	known := make(map[string]bool, len(before))
	for _, h := range before {
		known[h] = true
	}
	for i := 0; i < 10; i++ {
		after, err := sess.Windows(ctx)
		if err == nil {
			for _, h := range after {
				if !known[h] {
					return h
				}
			}
		}
		if ctx.Err() != nil {
			return ""
		}
		e.sleep(ctx, time.Second)
	}
	return ""
}

// remainingWatch decides how long to sit on the player: discovered duration
// minus what the server already credits, plus slack. Discovery failures fall
// back to the configured default rather than guessing short.
func (e *Engine) remainingWatch(ctx context.Context, sess session.Session, it edu.ContentItem) time.Duration {
	total := e.discoverDuration(ctx, sess)
	if it.RequiredSec > 0 {
		if req := time.Duration(it.RequiredSec) * time.Second; req > total {
			total = req
		}
	}
	watched := time.Duration(it.WatchedSec) * time.Second
	remaining := total - watched
	if remaining < 0 {
		remaining = 0
	}
	return remaining + e.cfg.WatchSlack
}

// superviseWatch waits out the target duration in short polls, leaving early
// when the player window disappears or an interruption prompt fires.
func (e *Engine) superviseWatch(ctx context.Context, sess session.Session, popup, mainWindow string, target time.Duration) error {
	deadline := e.now().Add(target)
	for e.now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait := e.cfg.WatchPoll
		if rest := deadline.Sub(e.now()); rest < wait {
			wait = rest
		}
		e.sleep(ctx, wait)

		// The player raises a prompt when the media finishes; dismissing it
		// ends the watch.
		if p, _ := sess.AlertProbe(ctx); p == session.ProbePresent {
			_ = sess.DismissAlert(ctx)
			return nil
		}
		if popup != mainWindow {
			handles, err := sess.Windows(ctx)
			if err != nil {
				continue
			}
			alive := false
			for _, h := range handles {
				if h == popup {
					alive = true
					break
				}
			}
			if !alive {
				// The player closed itself, usually at end of media.
				return nil
			}
		}
	}
	return nil
}

// closePlayer tears the popup down and restores the main window, tolerating a
// popup that already closed itself.
func (e *Engine) closePlayer(ctx context.Context, sess session.Session, popup, mainWindow string) {
	if err := sess.SwitchWindow(ctx, popup); err == nil {
		_ = sess.CloseWindow(ctx)
	}
	_ = sess.SwitchWindow(ctx, mainWindow)
	e.drainPrompts(ctx, sess)
}
