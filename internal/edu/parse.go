package edu

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// The remote endpoints return loosely typed records: numerics arrive sometimes
// as numbers, sometimes as strings, and field sets drift between deployments.
// Parsers in this file turn them into typed values with default-on-missing
// behavior instead of failing the whole poll.

// quiz pass marker used by the content-list endpoint
const quizPassMarker = "P"

// contentsType value that marks a real lecture unit (as opposed to notices,
// attachments and other classroom rows)
const lectureContentsType = "F"

type listEnvelope struct {
	DataList  []map[string]any `json:"dataList"`
	DataList2 []map[string]any `json:"dataList2"`
}

// ParseCourses decodes an enrollment-list response. Records without a course
// code are dropped; EnrollNo defaults to "1" the way the site's own pages do.
func ParseCourses(raw []byte) ([]Course, error) {
	var env listEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("enroll list: %w", err)
	}
	out := make([]Course, 0, len(env.DataList))
	for _, rec := range env.DataList {
		c := Course{
			CurriCd:      fieldStr(rec, "curriCd"),
			CurriYear:    fieldStr(rec, "curriYear"),
			CurriTerm:    fieldStr(rec, "curriTerm"),
			EnrollNo:     fieldStr(rec, "enrollNo"),
			Title:        fieldStr(rec, "curriNm"),
			CompleteDate: fieldStr(rec, "completeDate"),
		}
		if c.CurriCd == "" {
			continue
		}
		if c.EnrollNo == "" {
			c.EnrollNo = "1"
		}
		out = append(out, c)
	}
	return out, nil
}

// ParseContents decodes a content-list response, keeping only lecture rows.
func ParseContents(raw []byte) ([]ContentItem, error) {
	var env listEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("content list: %w", err)
	}
	out := make([]ContentItem, 0, len(env.DataList))
	ordinal := 0
	for _, rec := range env.DataList {
		if fieldStr(rec, "contentsType") != lectureContentsType {
			continue
		}
		ordinal++
		it := ContentItem{
			CourseID:    fieldStr(rec, "courseId"),
			ContentsID:  fieldStr(rec, "contentsId"),
			Title:       fieldStr(rec, "contentsNm"),
			Ordinal:     ordinal,
			WatchedSec:  fieldInt(rec, "totalTime"),
			RequiredSec: fieldInt(rec, "showTime"),
			Percent:     fieldFloat(rec, "curriPercent"),
			HasQuiz:     fieldStr(rec, "quizYn") == "Y",
			QuizPassed:  fieldStr(rec, "quizPass") == quizPassMarker,

			RawWidth:       fieldStr(rec, "contentsWidth"),
			RawHeight:      fieldStr(rec, "contentsHeight"),
			RawStudyStatus: fieldStr(rec, "studyStatus"),
			RawWatched:     fieldStr(rec, "totalTime"),
			RawRequired:    fieldStr(rec, "showTime"),
			RawPercent:     fieldStr(rec, "curriPercent"),
			RawEncrypted:   fieldStrOr(rec, "encryptedYn", "N"),
			RawMediaKey:    fieldStr(rec, "mediaContentsKey"),
			RawSizeApp:     fieldStrOr(rec, "sizeApp", "N"),
		}
		out = append(out, it)
	}
	return out, nil
}

// ParseQuizPayload decodes the captured quiz-entry response. Options are the
// non-empty example1..example5 fields, HTML-stripped. Questions with no
// resolvable answer index are dropped rather than guessed at.
func ParseQuizPayload(raw []byte) ([]QuizQuestion, error) {
	var env listEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("quiz payload: %w", err)
	}
	out := make([]QuizQuestion, 0, len(env.DataList2))
	for _, rec := range env.DataList2 {
		q := QuizQuestion{
			Order:  fieldInt(rec, "quizOrder"),
			Answer: fieldInt(rec, "answer"),
			Text:   StripHTML(fieldStr(rec, "contents")),
		}
		for i := 1; i <= 5; i++ {
			if ex := StripHTML(fieldStr(rec, fmt.Sprintf("example%d", i))); ex != "" {
				q.Options = append(q.Options, ex)
			}
		}
		if q.Answer <= 0 {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

var (
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// StripHTML removes markup and collapses whitespace so rendered and payload
// texts compare on content alone.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	clean := tagRe.ReplaceAllString(s, "")
	clean = strings.ReplaceAll(clean, "&nbsp;", " ")
	clean = strings.ReplaceAll(clean, "&amp;", "&")
	clean = strings.ReplaceAll(clean, "&lt;", "<")
	clean = strings.ReplaceAll(clean, "&gt;", ">")
	return strings.TrimSpace(spaceRe.ReplaceAllString(clean, " "))
}

func fieldStr(rec map[string]any, key string) string {
	switch v := rec[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "Y"
		}
		return "N"
	default:
		return ""
	}
}

func fieldStrOr(rec map[string]any, key, def string) string {
	if s := fieldStr(rec, key); s != "" {
		return s
	}
	return def
}

func fieldFloat(rec map[string]any, key string) float64 {
	switch v := rec[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func fieldInt(rec map[string]any, key string) int {
	return int(fieldFloat(rec, key))
}
