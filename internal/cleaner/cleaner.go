// Package cleaner normalizes raw model output into a short, presentable
// reply: it strips instruction-following preambles, drops meta-commentary,
// clamps sentence count and enforces terminal punctuation.
package cleaner

import (
	"strings"
	"unicode"
)

// MaxSentences is the default sentence budget for a cleaned reply.
const MaxSentences = 2

// Cleaner applies a rule set followed by structural normalization.
type Cleaner struct {
	rules        []Rule
	maxSentences int
}

// New creates a Cleaner with the built-in rules plus any extras.
func New(extra ...Rule) *Cleaner {
	return &Cleaner{
		rules:        append(DefaultRules(), extra...),
		maxSentences: MaxSentences,
	}
}

// Clean runs the full normalization pass over raw model output.
func (c *Cleaner) Clean(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	s = dropMetaLines(s)
	s = unwrap(s)
	s = applyRules(s, c.rules)
	s = collapseWhitespace(s)
	s = clampSentences(s, c.maxSentences)
	s = EnsureTerminalPunctuation(s)
	return strings.TrimSpace(s)
}

// Clean applies the default rule set. Convenience for callers that do not
// carry extra rules.
func Clean(raw string) string {
	return New().Clean(raw)
}

// TrimReply strips leading preamble and truncates to maxChars at a word
// boundary. This is the lighter pass each provider applies before the
// pipeline's full Clean.
func TrimReply(raw string, maxChars int) string {
	s := strings.TrimSpace(raw)
	s = unwrap(s)
	s = applyRules(s, defaultRules)
	s = strings.TrimSpace(s)

	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}

	cut := s[:maxChars]
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " \t\n,;:-")
}

// HasPreamble reports whether text still starts with a known preamble
// phrase. Used by the quality rubric.
func HasPreamble(s string) bool {
	t := strings.TrimSpace(s)
	for _, r := range defaultRules {
		if loc := r.Pattern.FindStringIndex(t); loc != nil && loc[1] > loc[0] {
			return true
		}
	}
	return false
}

func applyRules(s string, rules []Rule) string {
	// Preambles stack ("Sure! Here's a reply: ..."), so keep rewriting
	// until no rule matches.
	for {
		before := s
		for _, r := range rules {
			s = r.Pattern.ReplaceAllString(s, r.Replace)
		}
		s = strings.TrimSpace(s)
		if s == before {
			return s
		}
	}
}

func unwrap(s string) string {
	for _, re := range unwrapRules {
		if m := re.FindStringSubmatch(s); m != nil {
			s = strings.TrimSpace(m[1])
		}
	}
	return s
}

func dropMetaLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isMetaLine(trimmed) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, " ")
}

func isMetaLine(line string) bool {
	for _, re := range metaRules {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// clampSentences keeps at most n sentences. Splitting respects closing
// quotes after the terminal mark so `He said "go!"` stays one sentence.
func clampSentences(s string, n int) string {
	if n <= 0 {
		return s
	}
	sentences := SplitSentences(s)
	if len(sentences) <= n {
		return s
	}
	return strings.TrimSpace(strings.Join(sentences[:n], " "))
}

// SplitSentences splits text on sentence-terminal punctuation.
func SplitSentences(s string) []string {
	var out []string
	var sb strings.Builder
	runes := []rune(s)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		sb.WriteRune(r)

		if !isTerminal(r) {
			continue
		}
		// Consume trailing closers and repeated punctuation ("?!", `."`).
		for i+1 < len(runes) && (isTerminal(runes[i+1]) || isCloser(runes[i+1])) {
			i++
			sb.WriteRune(runes[i])
		}
		// Sentence ends only if followed by whitespace or end of text.
		if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
			out = append(out, strings.TrimSpace(sb.String()))
			sb.Reset()
		}
	}
	if rest := strings.TrimSpace(sb.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

// EnsureTerminalPunctuation appends a period when the text does not already
// end in a sentence-terminal mark (allowing a trailing quote).
func EnsureTerminalPunctuation(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return t
	}
	runes := []rune(t)
	last := runes[len(runes)-1]
	if isCloser(last) && len(runes) > 1 {
		last = runes[len(runes)-2]
	}
	if isTerminal(last) {
		return t
	}
	return strings.TrimRight(t, ",;:- ") + "."
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isCloser(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == '”' || r == '’'
}
