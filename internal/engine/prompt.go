package engine

import (
	"regexp"
	"strings"
)

const systemPrompt = `You write short, professional social replies. ` +
	`Reply in at most two sentences. ` +
	`Be specific to the post; never be sycophantic or generic. ` +
	`Output only the reply text with no preamble, labels, or quotation marks.`

var digitPattern = regexp.MustCompile(`\d`)

// buildUserPrompt assembles the generation prompt from the source text,
// optional prior-context lines, and content-derived hints.
func buildUserPrompt(source string, context []string) string {
	var sb strings.Builder

	if len(context) > 0 {
		sb.WriteString("Earlier in the thread:\n")
		for _, line := range context {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			sb.WriteString("- ")
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}

	sb.WriteString("Post:\n")
	sb.WriteString(strings.TrimSpace(source))
	sb.WriteString("\n\nWrite a reply.")

	if hints := promptHints(source); len(hints) > 0 {
		sb.WriteByte(' ')
		sb.WriteString(strings.Join(hints, " "))
	}
	return sb.String()
}

// promptHints derives steering hints from the post content itself.
func promptHints(source string) []string {
	var hints []string
	if strings.Contains(source, "?") {
		hints = append(hints, "The post asks a question; address it directly.")
	}
	if digitPattern.MatchString(source) {
		hints = append(hints, "Reference the specific figures mentioned.")
	}
	return hints
}
