package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/autoedu/coursepilot/internal/edu"
	"github.com/autoedu/coursepilot/internal/eventlog"
	"github.com/autoedu/coursepilot/internal/session"
)

// Config bounds the resolver's waits and probes.
type Config struct {
	PayloadWait  time.Duration // max wait for the captured quiz payload
	ModalWait    time.Duration // max wait for the quiz modal to render
	PollInterval time.Duration
	MaxQuestions int // rendered-question probe cap

	// Sleep overrides the resolver's wait primitive; nil uses a timer.
	Sleep func(context.Context, time.Duration)
}

func (c *Config) defaults() {
	if c.PayloadWait <= 0 {
		c.PayloadWait = 15 * time.Second
	}
	if c.ModalWait <= 0 {
		c.ModalWait = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.MaxQuestions <= 0 {
		c.MaxQuestions = 30
	}
}

// Resolver drives one quiz attempt end to end against a live surface.
type Resolver struct {
	sess      session.Session
	site      session.Site
	events    eventlog.Sink
	runID     string
	accountID string
	cfg       Config

	sleep func(context.Context, time.Duration)
}

func NewResolver(sess session.Session, site session.Site, events eventlog.Sink, runID, accountID string, cfg Config) *Resolver {
	cfg.defaults()
	if events == nil {
		events = eventlog.Discard{}
	}
	r := &Resolver{
		sess: sess, site: site, events: events,
		runID: runID, accountID: accountID, cfg: cfg,
		sleep: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		},
	}
	if cfg.Sleep != nil {
		r.sleep = cfg.Sleep
	}
	return r
}

// InstallCaptureHook patches the page's XHR layer so the next quiz entry
// parks its response for reading. Re-run after every failed attempt: quiz
// entry rebuilds enough of the page to lose the patch.
func (r *Resolver) InstallCaptureHook(ctx context.Context) error {
	if _, err := r.sess.Exec(ctx, session.QuizCaptureHook); err != nil {
		return fmt.Errorf("install capture hook: %w", err)
	}
	return nil
}

// ResolveAndSubmit runs one quiz attempt: trigger entry, capture the payload,
// answer every question it can positively match, submit, and close the quiz
// surface. Returns false (with nil error) for failures the caller should
// treat as a plain retry.
func (r *Resolver) ResolveAndSubmit(ctx context.Context, courseID, contentsID string) (bool, error) {
	if _, err := r.sess.Exec(ctx, session.ResetQuizCapture); err != nil {
		return false, err
	}
	if _, err := r.sess.Exec(ctx, r.site.EnterQuiz(courseID, contentsID)); err != nil {
		return false, fmt.Errorf("quiz entry: %w", err)
	}
	r.sleep(ctx, 2*time.Second)

	// Entry may answer with a prompt instead of a quiz ("no quiz registered",
	// session errors). Dismiss and report failure either way.
	if p, text := r.sess.AlertProbe(ctx); p == session.ProbePresent {
		_ = r.sess.DismissAlert(ctx)
		r.event(ctx, eventlog.TypeQuizFailed, contentsID, map[string]any{"prompt": text})
		return false, nil
	}

	payload, err := r.awaitPayload(ctx)
	if err != nil {
		return false, err
	}
	if payload == nil {
		r.event(ctx, eventlog.TypeQuizFailed, contentsID, map[string]any{"reason": "payload timeout"})
		return false, nil
	}
	questions, err := edu.ParseQuizPayload(payload)
	if err != nil || len(questions) == 0 {
		r.event(ctx, eventlog.TypeQuizFailed, contentsID, map[string]any{"reason": "empty payload"})
		return false, nil
	}
	byOrder, flat := BuildAnswerMaps(questions)

	if !r.awaitModal(ctx) {
		r.event(ctx, eventlog.TypeQuizFailed, contentsID, map[string]any{"reason": "modal missing"})
		return false, nil
	}

	total := r.countRendered(ctx)
	if total == 0 {
		r.event(ctx, eventlog.TypeQuizFailed, contentsID, map[string]any{"reason": "no rendered questions"})
		return false, nil
	}

	answered := 0
	for i := 1; i <= total; i++ {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		answer, ok := r.resolveQuestion(ctx, i, byOrder, flat)
		if !ok {
			r.event(ctx, eventlog.TypeQuizUnanswered, contentsID, map[string]any{"question": i})
			continue
		}
		if r.selectOption(ctx, answer, i) {
			answered++
		} else {
			r.event(ctx, eventlog.TypeQuizUnanswered, contentsID,
				map[string]any{"question": i, "reason": "selection did not register"})
		}
	}

	// Submitting nothing would burn an attempt for zero credit.
	if answered == 0 {
		return false, nil
	}

	if !execBool(ctx, r.sess, session.QuizSubmit) {
		r.event(ctx, eventlog.TypeQuizFailed, contentsID, map[string]any{"reason": "submit control missing"})
		return false, nil
	}
	r.sleep(ctx, 2*time.Second)
	r.drainPrompts(ctx)
	if _, err := r.sess.Exec(ctx, session.CloseQuizPopup); err == nil {
		r.sleep(ctx, time.Second)
	}
	r.event(ctx, eventlog.TypeQuizSubmitted, contentsID,
		map[string]any{"answered": answered, "rendered": total})
	return true, nil
}

// awaitPayload polls the parked capture up to PayloadWait.
func (r *Resolver) awaitPayload(ctx context.Context) ([]byte, error) {
	deadline := time.Now().Add(r.cfg.PayloadWait)
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		v, err := r.sess.Exec(ctx, session.ReadQuizCapture)
		if err != nil {
			return nil, err
		}
		var text *string
		if json.Unmarshal(v, &text) == nil && text != nil && *text != "" {
			return []byte(*text), nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		r.sleep(ctx, r.cfg.PollInterval)
	}
}

func (r *Resolver) awaitModal(ctx context.Context) bool {
	deadline := time.Now().Add(r.cfg.ModalWait)
	for {
		if execBool(ctx, r.sess, session.QuizModalVisible) {
			return true
		}
		if ctx.Err() != nil || time.Now().After(deadline) {
			return false
		}
		r.sleep(ctx, r.cfg.PollInterval)
	}
}

// countRendered probes sequential presence of each question's first-option
// control until absence.
func (r *Resolver) countRendered(ctx context.Context) int {
	n := 0
	for i := 1; i <= r.cfg.MaxQuestions; i++ {
		if !execBool(ctx, r.sess, session.QuizQuestionPresent, i) {
			break
		}
		n = i
	}
	return n
}

// resolveQuestion finds the answer index for rendered question i: hidden
// ordinal first, option-text fuzzy match second.
func (r *Resolver) resolveQuestion(ctx context.Context, i int, byOrder map[int]Candidate, flat []Candidate) (int, bool) {
	if v, err := r.sess.Exec(ctx, session.QuizReadOrdinal, i); err == nil {
		var raw *string
		if json.Unmarshal(v, &raw) == nil && raw != nil {
			if ord, err := strconv.Atoi(strings.TrimSpace(*raw)); err == nil {
				if cand, ok := byOrder[ord]; ok {
					return cand.Answer, true
				}
			}
		}
	}
	labels := execStrings(ctx, r.sess, session.QuizReadOptionLabels, i)
	if len(labels) == 0 {
		return 0, false
	}
	return MatchByText(labels, flat)
}

// selectOption activates option answer of question i, verifying the control
// actually registers, with three escalating activation strategies.
func (r *Resolver) selectOption(ctx context.Context, answer, i int) bool {
	strategies := []string{
		session.QuizClickOption,
		session.QuizClickOptionLabel,
		session.QuizForceOption,
	}
	for _, script := range strategies {
		if !execBool(ctx, r.sess, script, answer, i) {
			continue
		}
		r.sleep(ctx, 500*time.Millisecond)
		if execBool(ctx, r.sess, session.QuizOptionChecked, answer, i) {
			return true
		}
	}
	return false
}

// drainPrompts dismisses the confirmation prompt chain after submit.
func (r *Resolver) drainPrompts(ctx context.Context) {
	for attempt := 0; attempt < 3; attempt++ {
		p, _ := r.sess.AlertProbe(ctx)
		if p != session.ProbePresent {
			return
		}
		_ = r.sess.DismissAlert(ctx)
		r.sleep(ctx, time.Second)
	}
}

func (r *Resolver) event(ctx context.Context, typ, key string, data map[string]any) {
	_ = r.events.Append(ctx, eventlog.Event{
		RunID: r.runID, AccountID: r.accountID,
		Type: typ, Key: key, Data: data, CreatedAt: time.Now(),
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

func execStrings(ctx context.Context, sess session.Session, script string, args ...any) []string {
	v, err := sess.Exec(ctx, script, args...)
	if err != nil {
		return nil
	}
	var out []string
	if json.Unmarshal(v, &out) != nil {
		return nil
	}
	return out
}
