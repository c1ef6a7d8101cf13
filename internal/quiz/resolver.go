// Package quiz resolves and submits quiz attempts. The quiz-entry response
// carries the correct answer for every question, so resolution is a matching
// problem, not a knowledge problem: map each rendered question back to its
// payload record, primarily by the hidden ordinal, with fuzzy option-text
// matching as the fallback.
package quiz

import (
	"strings"
	"unicode"

	"github.com/autoedu/coursepilot/internal/edu"
)

// Candidate is one payload record in matching form.
type Candidate struct {
	Order    int
	Answer   int
	Question string
	Options  []string
}

// MinFuzzyScore is the minimum number of mutually matching options required
// before a fuzzy match is accepted. Below this, coincidental short-text
// overlap produces false positives.
const MinFuzzyScore = 2

// BuildAnswerMaps turns the payload question list into the two lookup
// structures the resolver works from: ordinal -> record for the primary
// strategy, and a flat candidate list for the fuzzy fallback.
func BuildAnswerMaps(qs []edu.QuizQuestion) (map[int]Candidate, []Candidate) {
	byOrder := make(map[int]Candidate, len(qs))
	flat := make([]Candidate, 0, len(qs))
	for _, q := range qs {
		c := Candidate{Order: q.Order, Answer: q.Answer, Question: q.Text, Options: q.Options}
		byOrder[q.Order] = c
		flat = append(flat, c)
	}
	return byOrder, flat
}

// normalizeOption strips all whitespace and casefolds, so rendered labels and
// payload options compare on characters alone regardless of markup reflow.
func normalizeOption(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// MatchByText maps a rendered question to a payload candidate by comparing
// option texts. Each rendered label that substring-matches (either direction)
// some candidate option counts one point; the strictly best candidate wins,
// and only with at least MinFuzzyScore points. Returns the answer index and
// whether a match was accepted.
func MatchByText(renderedOptions []string, candidates []Candidate) (int, bool) {
	rendered := make([]string, 0, len(renderedOptions))
	for _, o := range renderedOptions {
		if n := normalizeOption(o); n != "" {
			rendered = append(rendered, n)
		}
	}
	if len(rendered) == 0 {
		return 0, false
	}

	best := -1
	bestScore := 0
	tied := false
	for i, cand := range candidates {
		score := 0
		opts := make([]string, 0, len(cand.Options))
		for _, o := range cand.Options {
			opts = append(opts, normalizeOption(o))
		}
		for _, r := range rendered {
			for _, o := range opts {
				if r == "" || o == "" {
					continue
				}
				if strings.Contains(o, r) || strings.Contains(r, o) {
					score++
					break
				}
			}
		}
		switch {
		case score > bestScore:
			bestScore = score
			best = i
			tied = false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if best < 0 || bestScore < MinFuzzyScore || tied {
		return 0, false
	}
	return candidates[best].Answer, true
}
