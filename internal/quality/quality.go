// Package quality scores candidate replies against a deterministic rubric.
// The verdict drives the pipeline's single bounded regeneration pass.
package quality

import (
	"regexp"
	"strings"

	"github.com/mrviduus/ReplyMate-sub000/internal/cleaner"
)

// Reason explains why a candidate failed the rubric.
type Reason string

const (
	ReasonTooShort              Reason = "too_short"
	ReasonTooLong               Reason = "too_long"
	ReasonNoTerminalPunctuation Reason = "no_terminal_punctuation"
	ReasonHasPreamble           Reason = "has_preamble"
	ReasonGenericPhrasing       Reason = "generic_phrasing"
)

// Verdict is the rubric outcome for one candidate. Computed fresh per
// candidate, never persisted.
type Verdict struct {
	Valid  bool
	Reason Reason
	Score  int
}

// Bounds configure the rubric. Zero values take the defaults.
type Bounds struct {
	MinWords int
	MaxWords int
}

const (
	defaultMinWords = 4
	defaultMaxWords = 60
)

// genericPhrases are low-information praise a model falls back to when it
// has nothing to say about the source.
var genericPhrases = []string{
	"great post",
	"nice post",
	"thanks for sharing",
	"thank you for sharing",
	"very insightful",
	"well said",
	"love this",
	"so true",
	"interesting post",
	"couldn't agree more",
}

var numberPattern = regexp.MustCompile(`\d`)

// Evaluate scores a cleaned candidate reply.
//
// Scoring starts at 100 and deducts per failed check; small bonuses reward
// a trailing question or concrete figures. The verdict is invalid when any
// hard check fails, with Reason set to the first failure.
func Evaluate(s string) Verdict {
	return EvaluateWithBounds(s, Bounds{})
}

// EvaluateWithBounds is Evaluate with explicit word-count bounds.
func EvaluateWithBounds(s string, b Bounds) Verdict {
	if b.MinWords <= 0 {
		b.MinWords = defaultMinWords
	}
	if b.MaxWords <= 0 {
		b.MaxWords = defaultMaxWords
	}

	text := strings.TrimSpace(s)
	words := len(strings.Fields(text))
	score := 100
	valid := true
	var reason Reason

	fail := func(r Reason, penalty int) {
		score -= penalty
		if valid {
			valid = false
			reason = r
		}
	}

	if words < b.MinWords {
		fail(ReasonTooShort, 50)
	}
	if words > b.MaxWords {
		fail(ReasonTooLong, 30)
	}
	if !hasTerminalPunctuation(text) {
		fail(ReasonNoTerminalPunctuation, 20)
	}
	if cleaner.HasPreamble(text) {
		fail(ReasonHasPreamble, 30)
	}
	if isGeneric(text) {
		fail(ReasonGenericPhrasing, 25)
	}

	if strings.HasSuffix(text, "?") {
		score += 10
	}
	if numberPattern.MatchString(text) {
		score += 10
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	return Verdict{Valid: valid, Reason: reason, Score: score}
}

func hasTerminalPunctuation(s string) bool {
	if s == "" {
		return false
	}
	return cleaner.EnsureTerminalPunctuation(s) == s
}

// isGeneric flags replies that are little more than a stock phrase: the
// phrase must dominate the reply, not merely appear in it.
func isGeneric(s string) bool {
	lower := strings.ToLower(s)
	for _, phrase := range genericPhrases {
		if !strings.Contains(lower, phrase) {
			continue
		}
		extraWords := len(strings.Fields(lower)) - len(strings.Fields(phrase))
		if extraWords <= 4 {
			return true
		}
	}
	return false
}
