package tts

import (
	"regexp"
	"strings"
)

var (
	codeBlockRe = regexp.MustCompile("(?s)```.*?```")
	mathBlockRe = regexp.MustCompile(`(?s)\$\$.*?\$\$|\\\[.*?\\\]`)
	markupRe    = regexp.MustCompile("[*_`#>|]+")
	sentenceRe  = regexp.MustCompile(`[^.!?\n]+[.!?]*`)
)

// SplitSentences strips markdown that should not be read aloud and splits
// the rest into sentences.
func SplitSentences(text string) []string {
	text = codeBlockRe.ReplaceAllString(text, " ")
	text = mathBlockRe.ReplaceAllString(text, " ")
	text = markupRe.ReplaceAllString(text, "")

	var out []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		s = strings.Join(strings.Fields(s), " ")
		if strings.Trim(s, ".!? ") == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
