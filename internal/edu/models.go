package edu

// Read models for the remote training site. Everything here is an ephemeral
// snapshot reconstructed on each poll; the server is the only source of truth.
// The parsers below build these by hand from the loosely-typed ajax envelopes,
// so no field carries wire tags.

// Course is one curriculum unit the account is enrolled in. A non-empty
// CompleteDate means the server considers it finished.
type Course struct {
	CurriCd      string
	CurriYear    string
	CurriTerm    string
	EnrollNo     string
	Title        string
	CompleteDate string
}

func (c Course) Completed() bool { return c.CompleteDate != "" }

// Key identifies the course across polls.
func (c Course) Key() string { return c.CurriCd + "/" + c.CurriYear + "/" + c.CurriTerm }

// ContentItem is one watchable lecture unit within a course, optionally gated
// by a quiz. Raw* fields are carried verbatim because the site's content-entry
// trigger wants them back unmodified.
type ContentItem struct {
	CourseID   string
	ContentsID string
	Title      string
	Ordinal    int

	WatchedSec  int
	RequiredSec int
	Percent     float64

	HasQuiz    bool
	QuizPassed bool

	RawWidth       string
	RawHeight      string
	RawStudyStatus string
	RawWatched     string
	RawRequired    string
	RawPercent     string
	RawEncrypted   string
	RawMediaKey    string
	RawSizeApp     string
}

// LectureDone reports whether the server already credits the lecture itself.
func (it ContentItem) LectureDone() bool {
	return it.Percent >= 100 || (it.RequiredSec > 0 && it.WatchedSec >= it.RequiredSec)
}

// QuizNeeded reports whether a quiz gate still blocks this item.
func (it ContentItem) QuizNeeded() bool { return it.HasQuiz && !it.QuizPassed }

// Pending is the single actionable predicate the tracker partitions on.
func (it ContentItem) Pending() bool { return !it.LectureDone() || it.QuizNeeded() }

// QuizQuestion is one entry of the privileged quiz payload. The payload,
// unusually, carries the correct answer alongside the question; Answer is the
// 1-based index into Options.
type QuizQuestion struct {
	Order   int
	Answer  int
	Text    string
	Options []string
}
