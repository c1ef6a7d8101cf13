// Package eventlog is the structured, timestamped event sink the engine
// narrates progress into. Sinks are passed explicitly to every component that
// reports; there is no process-wide output hook.
package eventlog

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// Event is one progress or failure fact. Key is the unit the fact is about
// (course key, content id, account id); Data carries optional structure.
type Event struct {
	RunID     string
	AccountID string
	Type      string
	Key       string
	Data      map[string]any
	CreatedAt time.Time
}

// Event types emitted by the engine. Narration for operators goes through the
// notification channel; these are the machine-readable record.
const (
	TypeAccountStart     = "AccountStart"
	TypeAccountCompleted = "AccountCompleted"
	TypeAccountFailed    = "AccountFailed"
	TypeRestart          = "Restart"
	TypeCourseStart      = "CourseStart"
	TypeCourseDone       = "CourseDone"
	TypeCourseRetried    = "CourseRetried"
	TypeCourseAborted    = "CourseAborted"
	TypeLectureWatched   = "LectureWatched"
	TypeLectureFailed    = "LectureFailed"
	TypeItemDropped      = "ItemDropped"
	TypeQuizSubmitted    = "QuizSubmitted"
	TypeQuizFailed       = "QuizFailed"
	TypeQuizUnanswered   = "QuizUnanswered"
	TypeSurveySubmitted  = "SurveySubmitted"
	TypeSessionRenewed   = "SessionRenewed"
	TypeCertificateSent  = "CertificateSent"
)

// Sink records events. Append must be cheap and must never block the engine on
// a slow reader; failures are the caller's to ignore.
type Sink interface {
	Append(ctx context.Context, e Event) error
}

// ConsoleSink writes events through the standard logger.
type ConsoleSink struct{}

func (ConsoleSink) Append(_ context.Context, e Event) error {
	if len(e.Data) == 0 {
		log.Printf("[%s] %s %s", e.AccountID, e.Type, e.Key)
		return nil
	}
	b, _ := json.Marshal(e.Data)
	log.Printf("[%s] %s %s %s", e.AccountID, e.Type, e.Key, b)
	return nil
}

// Discard drops everything. Used in tests and when no sink is configured.
type Discard struct{}

func (Discard) Append(context.Context, Event) error { return nil }

// Multi fans out to several sinks; the first error wins but later sinks still
// run.
type Multi []Sink

func (m Multi) Append(ctx context.Context, e Event) error {
	var first error
	for _, s := range m {
		if err := s.Append(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
