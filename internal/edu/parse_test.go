package edu

import "testing"

func TestParseCoursesSkipsNothingButKeepsCompleteDate(t *testing.T) {
	raw := []byte(`{"dataList":[
		{"curriCd":"C1","curriYear":2024,"curriTerm":"1","curriNm":"Distribution Basics","completeDate":""},
		{"curriCd":"C2","curriYear":"2024","curriTerm":2,"curriNm":"Ethics","completeDate":"2024-01-01"},
		{"curriNm":"broken row, no code"}
	]}`)
	courses, err := ParseCourses(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(courses) != 2 {
		t.Fatalf("expected 2 courses, got %d", len(courses))
	}
	if courses[0].CurriYear != "2024" {
		t.Fatalf("numeric year not normalized: %q", courses[0].CurriYear)
	}
	if courses[0].EnrollNo != "1" {
		t.Fatalf("missing enrollNo should default to 1, got %q", courses[0].EnrollNo)
	}
	if courses[0].Completed() || !courses[1].Completed() {
		t.Fatalf("completion flags wrong: %v %v", courses[0].Completed(), courses[1].Completed())
	}
}

func TestParseContentsDerivedFlags(t *testing.T) {
	raw := []byte(`{"dataList":[
		{"contentsType":"F","contentsId":"ct1","courseId":"co1","contentsNm":"Unit 1",
		 "curriPercent":"100","showTime":600,"totalTime":"0","quizYn":"Y","quizPass":"N"},
		{"contentsType":"F","contentsId":"ct2","courseId":"co1","contentsNm":"Unit 2",
		 "curriPercent":"42.5","showTime":600,"totalTime":"700","quizYn":"N"},
		{"contentsType":"N","contentsId":"notice","courseId":"co1"}
	]}`)
	items, err := ParseContents(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("non-lecture rows must be dropped; got %d items", len(items))
	}

	// percent 100, quiz unpassed: lecture done but still pending
	u1 := items[0]
	if !u1.LectureDone() || !u1.QuizNeeded() || !u1.Pending() {
		t.Fatalf("unit1 flags: done=%v quiz=%v pending=%v", u1.LectureDone(), u1.QuizNeeded(), u1.Pending())
	}

	// watched >= required with required > 0: done via duration, no quiz
	u2 := items[1]
	if !u2.LectureDone() || u2.QuizNeeded() || u2.Pending() {
		t.Fatalf("unit2 flags: done=%v quiz=%v pending=%v", u2.LectureDone(), u2.QuizNeeded(), u2.Pending())
	}
	if u2.Percent != 42.5 {
		t.Fatalf("string percent not parsed: %v", u2.Percent)
	}
	if u1.Ordinal != 1 || u2.Ordinal != 2 {
		t.Fatalf("ordinals: %d %d", u1.Ordinal, u2.Ordinal)
	}
}

func TestPendingPredicate(t *testing.T) {
	cases := []struct {
		name    string
		it      ContentItem
		pending bool
	}{
		{"fresh", ContentItem{RequiredSec: 600}, true},
		{"watched enough", ContentItem{RequiredSec: 600, WatchedSec: 600}, false},
		{"no required duration, no percent", ContentItem{WatchedSec: 900}, true},
		{"percent done", ContentItem{Percent: 100}, false},
		{"percent done, quiz open", ContentItem{Percent: 100, HasQuiz: true}, true},
		{"percent done, quiz passed", ContentItem{Percent: 100, HasQuiz: true, QuizPassed: true}, false},
	}
	for _, tc := range cases {
		if got := tc.it.Pending(); got != tc.pending {
			t.Errorf("%s: pending=%v, want %v", tc.name, got, tc.pending)
		}
	}
}

func TestParseQuizPayload(t *testing.T) {
	raw := []byte(`{"dataList2":[
		{"quizOrder":1,"answer":"3","contents":"<p>Which&nbsp;rule?</p>",
		 "example1":"<b>first</b>","example2":"second","example3":"third","example4":"","example5":""},
		{"quizOrder":2,"contents":"no answer field, must be dropped","example1":"a"}
	]}`)
	qs, err := ParseQuizPayload(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(qs) != 1 {
		t.Fatalf("expected 1 usable question, got %d", len(qs))
	}
	q := qs[0]
	if q.Order != 1 || q.Answer != 3 {
		t.Fatalf("order/answer: %d/%d", q.Order, q.Answer)
	}
	if q.Text != "Which rule?" {
		t.Fatalf("html not stripped: %q", q.Text)
	}
	if len(q.Options) != 3 || q.Options[0] != "first" {
		t.Fatalf("options: %v", q.Options)
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("  <div> a &amp; b\n\t c </div>")
	if got != "a & b c" {
		t.Fatalf("got %q", got)
	}
}
