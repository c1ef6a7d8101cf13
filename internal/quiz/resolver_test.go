package quiz

import (
	"testing"

	"github.com/autoedu/coursepilot/internal/edu"
)

func candidates() []Candidate {
	return []Candidate{
		{Order: 1, Answer: 3, Question: "q1", Options: []string{"alpha one", "beta two", "gamma three", "delta four"}},
		{Order: 2, Answer: 1, Question: "q2", Options: []string{"red", "green", "blue", "yellow"}},
	}
}

func TestMatchByTextPicksStrictlyHighestScore(t *testing.T) {
	rendered := []string{"alpha one", "beta two", "gamma three"}
	answer, ok := MatchByText(rendered, candidates())
	if !ok {
		t.Fatalf("expected a match")
	}
	if answer != 3 {
		t.Fatalf("answer = %d, want 3", answer)
	}
}

func TestMatchByTextRejectsBelowMinScore(t *testing.T) {
	// only one option overlaps: score 1 < MinFuzzyScore
	rendered := []string{"alpha one", "totally different", "nothing here"}
	if _, ok := MatchByText(rendered, candidates()); ok {
		t.Fatalf("score 1 must not be accepted")
	}
}

func TestMatchByTextRejectsTies(t *testing.T) {
	cands := []Candidate{
		{Order: 1, Answer: 1, Options: []string{"shared a", "shared b"}},
		{Order: 2, Answer: 2, Options: []string{"shared a", "shared b"}},
	}
	if _, ok := MatchByText([]string{"shared a", "shared b"}, cands); ok {
		t.Fatalf("tied candidates must not be accepted")
	}
}

func TestMatchByTextIgnoresWhitespaceAndCase(t *testing.T) {
	rendered := []string{" Alpha One ", "BETA\ttwo", "ga mma three"}
	answer, ok := MatchByText(rendered, candidates())
	if !ok || answer != 3 {
		t.Fatalf("got %d/%v, want 3/true", answer, ok)
	}
}

func TestMatchByTextSubstringContainmentBothWays(t *testing.T) {
	// rendered labels truncated relative to payload options
	rendered := []string{"alpha", "beta", "gamma"}
	answer, ok := MatchByText(rendered, candidates())
	if !ok || answer != 3 {
		t.Fatalf("got %d/%v, want 3/true", answer, ok)
	}
}

func TestMatchByTextScorePreference(t *testing.T) {
	cands := []Candidate{
		{Order: 1, Answer: 5, Options: []string{"one", "two", "three", "four"}},
		{Order: 2, Answer: 2, Options: []string{"one", "unrelated x", "unrelated y"}},
	}
	// overlap 3 with first candidate, 1 with second
	answer, ok := MatchByText([]string{"one", "two", "three"}, cands)
	if !ok || answer != 5 {
		t.Fatalf("got %d/%v, want 5/true", answer, ok)
	}
}

func TestBuildAnswerMaps(t *testing.T) {
	qs := []edu.QuizQuestion{
		{Order: 1, Answer: 3, Text: "q1", Options: []string{"a", "b", "c"}},
		{Order: 4, Answer: 2, Text: "q4", Options: []string{"d", "e"}},
	}
	byOrder, flat := BuildAnswerMaps(qs)
	if len(byOrder) != 2 || len(flat) != 2 {
		t.Fatalf("sizes: %d %d", len(byOrder), len(flat))
	}
	if byOrder[4].Answer != 2 {
		t.Fatalf("order map lost answer: %+v", byOrder[4])
	}
}
