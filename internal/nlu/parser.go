package nlu

import (
	"regexp"
	"strings"

	"rollcage/internal/state"
)

type trigger struct {
	re  *regexp.Regexp
	cmd string
}

// Spoken forms of the argument-free commands. Commands that carry a name
// (voice swap, save as, load as, convert tensor) are only captured, never
// rewritten.
var triggers = []trigger{
	phrase("swap", "/swap"),
	phrase("quit", "/quit"),
	phrase("create", "/ollama create"),
	phrase("listen on", "/listen on"),
	phrase("listen off", "/listen off"),
	phrase("speech on", "/speech on"),
	phrase("speech off", "/speech off"),
	phrase("leap on", "/leap on"),
	phrase("leap off", "/leap off"),
	phrase("latex on", "/latex on"),
	phrase("latex off", "/latex off"),
	phrase("llava flow", "/llava flow"),
	phrase("llava freeze", "/llava freeze"),
	phrase("splice on", "/splice on"),
	phrase("splice off", "/splice off"),
	phrase("auto on", "/auto on"),
	phrase("auto off", "/auto off"),
	phrase("command auto on", "/command auto on"),
	phrase("command auto off", "/command auto off"),
	phrase("ollama create", "/ollama create"),
	phrase("ollama show", "/ollama show"),
	phrase("ollama template", "/ollama template"),
	phrase("ollama license", "/ollama license"),
	phrase("ollama list", "/ollama list"),
	phrase("convert gguf", "/convert gguf"),
	phrase("write modelfile", "/write modelfile"),
	phrase("copy", "/copy"),
	phrase("help", "/help"),
}

func phrase(words, cmd string) trigger {
	pattern := `(?i)\bactivate\s+` + strings.ReplaceAll(regexp.QuoteMeta(words), ` `, `\s+`) + `\b`
	return trigger{re: regexp.MustCompile(pattern), cmd: cmd}
}

var (
	voiceRe  = regexp.MustCompile(`(?i)(activate voice swap|/voice swap) ([^/.]*)`)
	saveRe   = regexp.MustCompile(`(?i)(activate save as|/save as) ([^/.]*)`)
	loadRe   = regexp.MustCompile(`(?i)(activate load as|/load as) ([^/.]*)`)
	tensorRe = regexp.MustCompile(`(?i)(activate convert tensor|/convert tensor) ([^\s]*)`)
)

// Normalize rewrites spoken trigger phrases into canonical slash-commands and
// extracts the names carried by name-bearing commands.
func Normalize(line string) (string, state.Captures) {
	for _, t := range triggers {
		line = t.re.ReplaceAllString(line, t.cmd)
	}

	return line, state.Captures{
		Voice:  capture(voiceRe, line),
		Save:   capture(saveRe, line),
		Load:   capture(loadRe, line),
		Tensor: capture(tensorRe, line),
	}
}

func capture(re *regexp.Regexp, line string) *string {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	name := SanitizeName(m[2])
	if name == "" {
		return nil
	}
	return &name
}

var (
	spaceRun = regexp.MustCompile(`\s+`)
	reserved = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\x7f]`)
)

// SanitizeName turns free text into a single safe path component.
// SanitizeName(SanitizeName(x)) == SanitizeName(x).
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = spaceRun.ReplaceAllString(name, "_")
	name = reserved.ReplaceAllString(name, "_")
	return strings.Trim(name, "._")
}
