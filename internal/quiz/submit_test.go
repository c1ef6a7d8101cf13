package quiz

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/autoedu/coursepilot/internal/eventlog"
	"github.com/autoedu/coursepilot/internal/session"
)

// fakeSurface scripts the quiz modal's behavior behind the Session interface.
type fakeSurface struct {
	payload       string         // captured quiz payload text; empty = never captured
	rendered      int            // rendered question count
	ordinals      map[int]string // rendered position -> hidden ordinal value
	labels        map[int][]string
	clickRegister bool // whether a plain click registers as checked
	forceRegister bool // whether the force strategy registers

	checked   map[[2]int]bool // {answer, question}
	submitted bool
	entered   []string
	closed    bool
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		ordinals:      map[int]string{},
		labels:        map[int][]string{},
		clickRegister: true,
		forceRegister: true,
		checked:       map[[2]int]bool{},
	}
}

func raw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func argInt(args []any, i int) int {
	if n, ok := args[i].(int); ok {
		return n
	}
	return 0
}

func (f *fakeSurface) Exec(_ context.Context, script string, args ...any) (json.RawMessage, error) {
	switch script {
	case session.ResetQuizCapture, session.QuizCaptureHook:
		return raw(nil), nil
	case session.ReadQuizCapture:
		if f.payload == "" {
			return raw(nil), nil
		}
		return raw(f.payload), nil
	case session.QuizModalVisible:
		return raw(true), nil
	case session.QuizQuestionPresent:
		return raw(argInt(args, 0) <= f.rendered), nil
	case session.QuizReadOrdinal:
		if v, ok := f.ordinals[argInt(args, 0)]; ok {
			return raw(v), nil
		}
		return raw(nil), nil
	case session.QuizReadOptionLabels:
		return raw(f.labels[argInt(args, 0)]), nil
	case session.QuizClickOption, session.QuizClickOptionLabel:
		if f.clickRegister {
			f.checked[[2]int{argInt(args, 0), argInt(args, 1)}] = true
		}
		return raw(true), nil
	case session.QuizForceOption:
		if f.forceRegister {
			f.checked[[2]int{argInt(args, 0), argInt(args, 1)}] = true
		}
		return raw(true), nil
	case session.QuizOptionChecked:
		return raw(f.checked[[2]int{argInt(args, 0), argInt(args, 1)}]), nil
	case session.QuizSubmit:
		f.submitted = true
		return raw(true), nil
	case session.CloseQuizPopup:
		f.closed = true
		return raw(nil), nil
	}
	if strings.HasPrefix(script, "goQuiz(") {
		f.entered = append(f.entered, script)
		return raw(nil), nil
	}
	return raw(nil), nil
}

func (f *fakeSurface) Authenticate(context.Context, string, string) (bool, error) { return true, nil }
func (f *fakeSurface) LoggedIn(context.Context) bool                              { return true }
func (f *fakeSurface) GoHome(context.Context) error                               { return nil }
func (f *fakeSurface) CurrentURL(context.Context) (string, error)                 { return "", nil }
func (f *fakeSurface) FetchJSON(context.Context, string, map[string]string) ([]byte, error) {
	return nil, nil
}
func (f *fakeSurface) AlertProbe(context.Context) (session.Probe, string) {
	return session.ProbeAbsent, ""
}
func (f *fakeSurface) DismissAlert(context.Context) error         { return nil }
func (f *fakeSurface) Windows(context.Context) ([]string, error)  { return []string{"w0"}, nil }
func (f *fakeSurface) CurrentWindow(context.Context) (string, error) {
	return "w0", nil
}
func (f *fakeSurface) SwitchWindow(context.Context, string) error { return nil }
func (f *fakeSurface) CloseWindow(context.Context) error          { return nil }
func (f *fakeSurface) Screenshot(context.Context) ([]byte, error) { return nil, nil }
func (f *fakeSurface) PrintPDF(context.Context) ([]byte, error)   { return nil, nil }
func (f *fakeSurface) BlockPrintDialog(context.Context) error     { return nil }
func (f *fakeSurface) Close(context.Context) error                { return nil }

func newTestResolver(f *fakeSurface) *Resolver {
	r := NewResolver(f, session.Site{BaseURL: "https://edu.example.com"},
		eventlog.Discard{}, "run-1", "acct-1",
		Config{PayloadWait: 50 * time.Millisecond, ModalWait: 50 * time.Millisecond, PollInterval: time.Millisecond})
	r.sleep = func(context.Context, time.Duration) {}
	return r
}

const onePayload = `{"dataList2":[{"quizOrder":1,"answer":3,"contents":"Q1",
 "example1":"alpha one","example2":"beta two","example3":"gamma three","example4":"delta four","example5":""}]}`

func TestResolveAndSubmitPrimaryStrategy(t *testing.T) {
	f := newFakeSurface()
	f.payload = onePayload
	f.rendered = 1
	f.ordinals[1] = "1"
	// labels deliberately unrelated: a primary hit must never fall through to fuzzy
	f.labels[1] = []string{"unrelated", "labels", "entirely"}

	ok, err := newTestResolver(f).ResolveAndSubmit(context.Background(), "co1", "ct1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected submission")
	}
	if !f.checked[[2]int{3, 1}] {
		t.Fatalf("option 3 of question 1 not selected: %v", f.checked)
	}
	if !f.submitted || !f.closed {
		t.Fatalf("submitted=%v closed=%v", f.submitted, f.closed)
	}
}

func TestResolveAndSubmitFallbackStrategy(t *testing.T) {
	f := newFakeSurface()
	f.payload = onePayload
	f.rendered = 1
	// no hidden ordinal; option texts match payload question 1
	f.labels[1] = []string{"alpha one", "beta two", "gamma three", "delta four"}

	ok, err := newTestResolver(f).ResolveAndSubmit(context.Background(), "co1", "ct1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || !f.checked[[2]int{3, 1}] {
		t.Fatalf("fallback did not select option 3: ok=%v checked=%v", ok, f.checked)
	}
}

func TestResolveAndSubmitNothingAnsweredIsFailure(t *testing.T) {
	f := newFakeSurface()
	f.payload = onePayload
	f.rendered = 1
	f.labels[1] = []string{"completely", "different", "options"}

	ok, err := newTestResolver(f).ResolveAndSubmit(context.Background(), "co1", "ct1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("zero answered questions must not be submitted")
	}
	if f.submitted {
		t.Fatalf("submit control must not be clicked with zero answers")
	}
}

func TestResolveAndSubmitPayloadTimeout(t *testing.T) {
	f := newFakeSurface()
	f.rendered = 1

	ok, err := newTestResolver(f).ResolveAndSubmit(context.Background(), "co1", "ct1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("missing payload must fail the attempt")
	}
	if len(f.entered) != 1 {
		t.Fatalf("quiz entry should have been triggered once, got %d", len(f.entered))
	}
}

func TestSelectOptionEscalatesStrategies(t *testing.T) {
	f := newFakeSurface()
	f.payload = onePayload
	f.rendered = 1
	f.ordinals[1] = "1"
	f.clickRegister = false // plain click and label click never register
	f.forceRegister = true

	ok, err := newTestResolver(f).ResolveAndSubmit(context.Background(), "co1", "ct1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || !f.checked[[2]int{3, 1}] {
		t.Fatalf("force strategy should have registered the selection")
	}
}
