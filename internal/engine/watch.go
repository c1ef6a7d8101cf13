package engine

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"time"

	"github.com/autoedu/coursepilot/internal/session"
)

// pageTimerRe matches the player's "elapsed / total" timer as it appears in
// the page text, e.g. "0:00:12 / 1:10:00".
var pageTimerRe = regexp.MustCompile(`/\s*(\d+):(\d{2}):(\d{2})`)

// discoverDuration asks the media element first, then scrapes the page timer,
// then falls back to the configured default. The default is deliberately long;
// overshooting wastes minutes, undershooting wastes the whole watch.
func (e *Engine) discoverDuration(ctx context.Context, sess session.Session) time.Duration {
	if v, err := sess.Exec(ctx, session.PlayerDuration); err == nil {
		var secs *float64
		if json.Unmarshal(v, &secs) == nil && secs != nil && *secs > 0 {
			return time.Duration(*secs * float64(time.Second))
		}
	}
	if text := execString(ctx, sess, session.PageText); text != "" {
		if d, ok := parsePageTimer(text); ok {
			return d
		}
	}
	return e.cfg.DefaultLecture
}

// parsePageTimer extracts the total duration from visible page text.
func parsePageTimer(text string) (time.Duration, bool) {
	m := pageTimerRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	d := time.Duration(h)*time.Hour + time.Duration(min)*time.Minute + time.Duration(s)*time.Second
	if d <= 0 {
		return 0, false
	}
	return d, true
}
