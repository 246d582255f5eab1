package stt

import (
	"errors"
	"regexp"
	"strings"
)

var ErrNoSpeech = errors.New("no speech detected")

// whisper emits markers like [BLANK_AUDIO], (music) or [ Silence ] for
// non-speech.
var markerRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\*[^*]*\*`)

var spaceRe = regexp.MustCompile(`\s+`)

func cleanText(s string) string {
	s = markerRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func joinSegments(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := cleanText(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
