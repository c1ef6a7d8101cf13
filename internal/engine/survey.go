package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/autoedu/coursepilot/internal/accounts"
	"github.com/autoedu/coursepilot/internal/edu"
	"github.com/autoedu/coursepilot/internal/eventlog"
	"github.com/autoedu/coursepilot/internal/session"
)

// surveyTextPool feeds the free-text survey fields. Entries are generic enough
// to fit any curriculum; the last free-text item always gets the no-comment
// sentinel instead.
var surveyTextPool = []string{
	"유익한 교육이었습니다.",
	"업무에 도움이 되는 내용이었습니다.",
	"강의 내용이 알기 쉽게 구성되어 좋았습니다.",
	"전반적으로 만족스러운 교육 과정이었습니다.",
}

const surveyNoComment = "없습니다."

type surveyItem struct {
	Type  string `json:"type"` // K multiple choice, J free text
	ResNo int    `json:"resNo"`
	Count int    `json:"count,omitempty"`
	ElID  string `json:"elId,omitempty"`
}

// detectSurvey checks for the final-course questionnaire with bounded retries.
// Absent is only reported when the page actually answered; if every check
// fails to run the caller gets indeterminate instead.
func (e *Engine) detectSurvey(ctx context.Context, sess session.Session) session.Probe {
	answered := 0
	for i := 0; i < 3; i++ {
		if v, err := sess.Exec(ctx, session.SurveyDetect); err == nil {
			var marker string
			if json.Unmarshal(v, &marker) == nil {
				if marker != "" {
					return session.ProbePresent
				}
				answered++
			}
		}
		if ctx.Err() != nil {
			return session.ProbeIndeterminate
		}
		e.sleep(ctx, time.Second)
	}
	if answered == 0 {
		return session.ProbeIndeterminate
	}
	return session.ProbeAbsent
}

// submitSurvey fills the rendered questionnaire: a random option per
// multiple-choice group, pooled text per free-text field, and submits. The
// site only shows this form when everything else in the course is credited,
// so a successful submit is the course's completion event.
func (e *Engine) submitSurvey(ctx context.Context, sess session.Session, acct accounts.Account, c edu.Course) error {
	v, err := sess.Exec(ctx, session.SurveyScan)
	if err != nil {
		return err
	}
	var items []surveyItem
	if err := json.Unmarshal(v, &items); err != nil || len(items) == 0 {
		return errors.New("survey detected but no items scanned")
	}

	lastText := -1
	for i, it := range items {
		if it.Type == "J" {
			lastText = i
		}
	}

	filled := 0
	for i, it := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch it.Type {
		case "K":
			if it.Count <= 0 {
				continue
			}
			choice := e.randn(it.Count) + 1
			if _, err := sess.Exec(ctx, session.SurveySelectChoice, choice, it.ResNo); err == nil {
				filled++
			}
		case "J":
			text := surveyTextPool[e.randn(len(surveyTextPool))]
			if i == lastText {
				text = surveyNoComment
			}
			if execBool(ctx, sess, session.SurveyFillText, it.ElID, text) {
				filled++
			}
		}
	}
	if filled == 0 {
		return errors.New("survey form rejected every fill")
	}

	e.sleep(ctx, time.Second)
	fired := execString(ctx, sess, session.SurveySubmit)
	if fired == "" {
		return errors.New("survey submit control missing")
	}
	e.sleep(ctx, 2*time.Second)
	e.drainPrompts(ctx, sess)

	e.event(ctx, acct.UserID, eventlog.TypeSurveySubmitted, c.Key(),
		map[string]any{"items": len(items), "filled": filled, "via": fired})
	return nil
}
