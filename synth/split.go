package synth

import (
	"regexp"
	"strings"
)

var (
	boldRe    = regexp.MustCompile(`\*\*([^*]*)\*\*`)
	italicRe  = regexp.MustCompile(`\*([^*]*)\*`)
	codeRe    = regexp.MustCompile("`([^`]*)`")
	headingRe = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	bulletRe  = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
)

// CleanupMarkdown strips formatting the model tends to emit even when
// told not to. The output goes straight to a speech synthesizer, which
// would read asterisks aloud.
func CleanupMarkdown(text string) string {
	s := boldRe.ReplaceAllString(text, "$1")
	s = italicRe.ReplaceAllString(s, "$1")
	s = codeRe.ReplaceAllString(s, "$1")
	s = headingRe.ReplaceAllString(s, "")
	s = bulletRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// sentence terminators, Japanese and Latin
var terminators = map[rune]bool{
	'。': true, '！': true, '？': true,
	'.': true, '!': true, '?': true,
	'\n': true,
}

// SplitSentences cuts text at terminal punctuation and newlines. An
// unterminated trailing fragment is dropped rather than spoken, since
// it is usually a truncation artifact.
func SplitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	for _, r := range text {
		if terminators[r] {
			if r != '\n' {
				cur.WriteRune(r)
			}
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	return out
}
