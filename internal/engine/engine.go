// Package engine is the unattended progression core: it polls the training
// site for remaining work, acts on one pending unit at a time, and re-verifies
// against fresh server state before claiming progress. The engine is strictly
// sequential; the only shared state it touches is the lock-protected runner
// status.
package engine

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/autoedu/coursepilot/internal/eventlog"
	"github.com/autoedu/coursepilot/internal/notify"
	"github.com/autoedu/coursepilot/internal/quiz"
	"github.com/autoedu/coursepilot/internal/session"
	"github.com/autoedu/coursepilot/internal/status"
)

// Config bounds every loop the engine runs. Zero values take the documented
// defaults.
type Config struct {
	Site session.Site

	CourseRetries int // full passes over one course before aborting it
	QuizAttempts  int // quiz submissions per item; exhaustion is non-fatal
	ItemRetries   int // extra chances for an item that stays pending after action
	MaxRestarts   int // fresh-session restarts per account

	WatchSlack      time.Duration // margin on top of the discovered duration
	WatchPoll       time.Duration
	DefaultLecture  time.Duration // duration fallback when discovery fails
	RestartCooldown time.Duration

	Quiz quiz.Config

	// RestartCheck, when set, is polled between courses; true aborts the
	// current session so the retry loop starts a fresh one. Wired to the
	// operator's remote /restart command.
	RestartCheck func() bool
}

func (c *Config) defaults() {
	if c.CourseRetries <= 0 {
		c.CourseRetries = 3
	}
	if c.QuizAttempts <= 0 {
		c.QuizAttempts = 3
	}
	if c.ItemRetries <= 0 {
		c.ItemRetries = 1
	}
	if c.MaxRestarts <= 0 {
		c.MaxRestarts = 3
	}
	if c.WatchSlack <= 0 {
		c.WatchSlack = 90 * time.Second
	}
	if c.WatchPoll <= 0 {
		c.WatchPoll = 10 * time.Second
	}
	if c.DefaultLecture <= 0 {
		c.DefaultLecture = 70 * time.Minute
	}
	if c.RestartCooldown <= 0 {
		c.RestartCooldown = 30 * time.Second
	}
}

// Outcome is the terminal result of one account run.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeIncomplete
)

func (o Outcome) String() string {
	if o == OutcomeCompleted {
		return "completed"
	}
	return "incomplete"
}

// Engine drives accounts one at a time against sessions from the factory.
type Engine struct {
	cfg     Config
	factory session.Factory
	events  eventlog.Sink
	notify  notify.Notifier
	state   *status.RunnerState
	runID   string

	// seams for tests
	sleep func(context.Context, time.Duration)
	now   func() time.Time
	randn func(n int) int
}

func New(cfg Config, factory session.Factory, events eventlog.Sink, notifier notify.Notifier, state *status.RunnerState, runID string) *Engine {
	cfg.defaults()
	if events == nil {
		events = eventlog.Discard{}
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if state == nil {
		state = status.NewRunnerState(0)
	}
	return &Engine{
		cfg: cfg, factory: factory, events: events,
		notify: notifier, state: state, runID: runID,
		sleep: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		},
		now:   time.Now,
		randn: rand.Intn,
	}
}

func (e *Engine) event(ctx context.Context, accountID, typ, key string, data map[string]any) {
	_ = e.events.Append(ctx, eventlog.Event{
		RunID: e.runID, AccountID: accountID,
		Type: typ, Key: key, Data: data, CreatedAt: e.now(),
	})
}

func execBool(ctx context.Context, sess session.Session, script string, args ...any) bool {
	v, err := sess.Exec(ctx, script, args...)
	if err != nil {
		return false
	}
	var b bool
	return json.Unmarshal(v, &b) == nil && b
}

func execString(ctx context.Context, sess session.Session, script string, args ...any) string {
	v, err := sess.Exec(ctx, script, args...)
	if err != nil {
		return ""
	}
	var s *string
	if json.Unmarshal(v, &s) != nil || s == nil {
		return ""
	}
	return *s
}

// drainPrompts dismisses up to three stacked interruption prompts. A probe
// that cannot decide stops the drain rather than risking a blind dismiss.
func (e *Engine) drainPrompts(ctx context.Context, sess session.Session) {
	for i := 0; i < 3; i++ {
		p, _ := sess.AlertProbe(ctx)
		if p != session.ProbePresent {
			return
		}
		_ = sess.DismissAlert(ctx)
		e.sleep(ctx, time.Second)
	}
}
