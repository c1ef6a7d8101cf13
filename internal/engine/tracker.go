package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autoedu/coursepilot/internal/accounts"
	"github.com/autoedu/coursepilot/internal/edu"
	"github.com/autoedu/coursepilot/internal/eventlog"
	"github.com/autoedu/coursepilot/internal/quiz"
	"github.com/autoedu/coursepilot/internal/session"
)

// courseOutcome is the result of driving one course.
type courseOutcome int

const (
	courseIncomplete courseOutcome = iota
	courseDone
	courseSurveyed
)

// errCreditLag marks a pass that ran out of actionable items while the server
// still reports the course incomplete. Credit for a fresh watch can trail the
// watch itself, so the course gets re-entered and tried again.
var errCreditLag = errors.New("no pending items but course not credited")

// processCourses walks the enrollment list and drives every unfinished course.
// Returns true when nothing is left pending by the server's own account. A
// submitted final survey ends the run as complete on the spot: the site only
// renders the survey once it considers the curriculum finished, so its
// submission outranks the lagging per-item credits.
func (e *Engine) processCourses(ctx context.Context, sess session.Session, acct accounts.Account) (bool, error) {
	if err := sess.GoHome(ctx); err != nil {
		return false, fmt.Errorf("home: %w", err)
	}
	courses, err := e.fetchCourses(ctx, sess)
	if err != nil {
		return false, err
	}
	if len(courses) == 0 {
		e.event(ctx, acct.UserID, eventlog.TypeAccountCompleted, acct.UserID,
			map[string]any{"note": "no enrollments"})
		return true, nil
	}

	allDone := true
	for _, c := range courses {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if c.Completed() {
			continue
		}
		if e.cfg.RestartCheck != nil && e.cfg.RestartCheck() {
			return false, errors.New("restart requested by operator")
		}
		if err := e.ensureAuthenticated(ctx, sess, acct); err != nil {
			return false, err
		}
		e.state.SetCurrent(acct.UserID, c.Title, "entering course")
		res, err := e.processCourse(ctx, sess, acct, c)
		if err != nil {
			return false, err
		}
		switch res {
		case courseSurveyed:
			return true, nil
		case courseDone:
		default:
			allDone = false
		}
	}
	return allDone, nil
}

func (e *Engine) fetchCourses(ctx context.Context, sess session.Session) ([]edu.Course, error) {
	raw, err := sess.FetchJSON(ctx, e.cfg.Site.EnrollListURL(), map[string]string{"pageIndex": "1"})
	if err != nil {
		return nil, fmt.Errorf("enroll list: %w", err)
	}
	courses, err := edu.ParseCourses(raw)
	if err != nil {
		return nil, fmt.Errorf("enroll list: %w", err)
	}
	return courses, nil
}

func (e *Engine) fetchContents(ctx context.Context, sess session.Session, c edu.Course) ([]edu.ContentItem, error) {
	raw, err := sess.FetchJSON(ctx, e.cfg.Site.ContentListURL(), map[string]string{
		"curriCd":   c.CurriCd,
		"curriYear": c.CurriYear,
		"curriTerm": c.CurriTerm,
		"enrollNo":  c.EnrollNo,
	})
	if err != nil {
		return nil, fmt.Errorf("content list: %w", err)
	}
	items, err := edu.ParseContents(raw)
	if err != nil {
		return nil, fmt.Errorf("content list: %w", err)
	}
	return items, nil
}

// enterClassroom navigates into the course and settles the page.
func (e *Engine) enterClassroom(ctx context.Context, sess session.Session, c edu.Course) error {
	if _, err := sess.Exec(ctx, e.cfg.Site.EnterClassroom(c)); err != nil {
		return fmt.Errorf("enter classroom: %w", err)
	}
	e.sleep(ctx, 3*time.Second)
	e.drainPrompts(ctx, sess)
	return nil
}

// processCourse drives one course with bounded recovery. A pass failure such
// as a broken player window stays inside the course: the session is
// re-authenticated and the classroom re-entered before the pass runs again.
// Only after CourseRetries attempts is this one course abandoned, so the rest
// of the enrollment list still gets its turn. A final-survey prompt anywhere
// in the course means the server considers the curriculum finished.
func (e *Engine) processCourse(ctx context.Context, sess session.Session, acct accounts.Account, c edu.Course) (courseOutcome, error) {
	e.event(ctx, acct.UserID, eventlog.TypeCourseStart, c.Key(), map[string]any{"title": c.Title})

	var lastErr error
	entered := false
	if err := e.enterClassroom(ctx, sess, c); err == nil {
		entered = true
		// Entry itself can land on the final survey when everything else is
		// done.
		if e.detectSurvey(ctx, sess) == session.ProbePresent {
			if err := e.submitSurvey(ctx, sess, acct, c); err != nil {
				return courseIncomplete, err
			}
			e.announceCourseDone(ctx, acct, c, "survey on entry")
			return courseSurveyed, nil
		}
	} else {
		if ctx.Err() != nil {
			return courseIncomplete, ctx.Err()
		}
		lastErr = err
	}

	// attempts counts how often each item was acted on without the server
	// crediting it. Items exceeding their extra retries are dropped for this
	// session rather than looping forever. Both maps survive recovery so a
	// retried pass does not start the counting over.
	attempts := map[string]int{}
	dropped := map[string]bool{}

	for try := 0; try < e.cfg.CourseRetries; try++ {
		if try > 0 || !entered {
			if err := e.recoverCourse(ctx, sess, acct, c); err != nil {
				if ctx.Err() != nil {
					return courseIncomplete, ctx.Err()
				}
				lastErr = err
				continue
			}
		}
		res, err := e.runCoursePass(ctx, sess, acct, c, attempts, dropped)
		if err == nil {
			switch res {
			case courseSurveyed:
				e.announceCourseDone(ctx, acct, c, "survey")
			case courseDone:
				e.announceCourseDone(ctx, acct, c, "no pending items")
			}
			return res, nil
		}
		if ctx.Err() != nil {
			return courseIncomplete, ctx.Err()
		}
		lastErr = err
		e.event(ctx, acct.UserID, eventlog.TypeCourseRetried, c.Key(),
			map[string]any{"title": c.Title, "try": try + 1, "cause": err.Error()})
	}

	e.event(ctx, acct.UserID, eventlog.TypeCourseAborted, c.Key(),
		map[string]any{"title": c.Title, "tries": e.cfg.CourseRetries, "cause": fmt.Sprint(lastErr)})
	return courseIncomplete, nil
}

// recoverCourse restores a usable course context after a failed pass.
func (e *Engine) recoverCourse(ctx context.Context, sess session.Session, acct accounts.Account, c edu.Course) error {
	if err := e.ensureAuthenticated(ctx, sess, acct); err != nil {
		return err
	}
	return e.enterClassroom(ctx, sess, c)
}

// runCoursePass acts on pending work one item at a time, re-reading the
// content list between items so every decision is made against fresh server
// state. It only returns cleanly with a terminal outcome; anything else is an
// error for the caller's recovery loop, including a pass that finished its
// items without the server crediting the course yet.
func (e *Engine) runCoursePass(ctx context.Context, sess session.Session, acct accounts.Account, c edu.Course, attempts map[string]int, dropped map[string]bool) (courseOutcome, error) {
	for {
		if err := ctx.Err(); err != nil {
			return courseIncomplete, err
		}
		items, err := e.fetchContents(ctx, sess, c)
		if err != nil {
			return courseIncomplete, err
		}
		var pending []edu.ContentItem
		for _, it := range items {
			if it.Pending() && !dropped[it.ContentsID] {
				pending = append(pending, it)
			}
		}
		if len(pending) == 0 {
			// The final survey can be the last remaining gate once every
			// item is credited, and its submission settles the course.
			if e.detectSurvey(ctx, sess) == session.ProbePresent {
				if err := e.submitSurvey(ctx, sess, acct, c); err != nil {
					return courseIncomplete, err
				}
				return courseSurveyed, nil
			}
			done, err := e.courseCompleted(ctx, sess, c)
			if err != nil {
				return courseIncomplete, err
			}
			if done {
				return courseDone, nil
			}
			return courseIncomplete, errCreditLag
		}

		it := pending[0]
		if attempts[it.ContentsID] > e.cfg.ItemRetries {
			dropped[it.ContentsID] = true
			e.event(ctx, acct.UserID, eventlog.TypeItemDropped, it.ContentsID,
				map[string]any{"title": it.Title, "attempts": attempts[it.ContentsID]})
			continue
		}
		attempts[it.ContentsID]++
		e.state.SetProgress(fmt.Sprintf("%d pending of %d", len(pending), len(items)))

		if !it.LectureDone() {
			e.state.SetProgress("watching: " + it.Title)
			if err := e.watchLecture(ctx, sess, acct, it); err != nil {
				return courseIncomplete, err
			}
			if e.detectSurvey(ctx, sess) == session.ProbePresent {
				if err := e.submitSurvey(ctx, sess, acct, c); err != nil {
					return courseIncomplete, err
				}
				return courseSurveyed, nil
			}
		}
		if it.QuizNeeded() {
			e.state.SetProgress("quiz: " + it.Title)
			e.attemptQuiz(ctx, sess, acct, c, it)
		}
	}
}

// attemptQuiz gives the item up to QuizAttempts submissions, re-entering the
// classroom before each so the quiz opens from a known page state instead of
// whatever the previous step left behind. Quiz exhaustion is deliberately
// non-fatal: the lecture credit stands either way and the next fetch
// re-checks the gate against fresh server state.
func (e *Engine) attemptQuiz(ctx context.Context, sess session.Session, acct accounts.Account, c edu.Course, it edu.ContentItem) {
	qcfg := e.cfg.Quiz
	qcfg.Sleep = e.sleep
	r := quiz.NewResolver(sess, e.cfg.Site, e.events, e.runID, acct.UserID, qcfg)
	for attempt := 1; attempt <= e.cfg.QuizAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if err := e.enterClassroom(ctx, sess, c); err != nil {
			return
		}
		if err := r.InstallCaptureHook(ctx); err != nil {
			return
		}
		ok, err := r.ResolveAndSubmit(ctx, it.CourseID, it.ContentsID)
		if err != nil || ok {
			return
		}
		e.sleep(ctx, 2*time.Second)
	}
}

func (e *Engine) announceCourseDone(ctx context.Context, acct accounts.Account, c edu.Course, how string) {
	e.event(ctx, acct.UserID, eventlog.TypeCourseDone, c.Key(),
		map[string]any{"title": c.Title, "how": how})
	_ = e.notify.SendMessage(ctx, acct.ChatID, fmt.Sprintf("course done: %s", c.Title))
}

// courseCompleted checks the course against a fresh enrollment list. A course
// that left the list counts as completed: the list only carries active terms.
func (e *Engine) courseCompleted(ctx context.Context, sess session.Session, c edu.Course) (bool, error) {
	if err := sess.GoHome(ctx); err != nil {
		return false, err
	}
	courses, err := e.fetchCourses(ctx, sess)
	if err != nil {
		return false, err
	}
	for _, fresh := range courses {
		if fresh.Key() == c.Key() {
			return fresh.Completed(), nil
		}
	}
	return true, nil
}
