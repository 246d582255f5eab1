// Package logging installs the colored slog handler used by both binaries.
package logging

import (
	"fmt"
	"io"
	log "log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func ParseLevel(s string) (log.Level, error) {
	lvl, ok := logLevelMap[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return log.LevelInfo, fmt.Errorf("unknown log level %q (debug, info, warn, error)", s)
	}
	return lvl, nil
}

type fder interface {
	Fd() uintptr
}

// Setup makes a tint handler on w the default logger. Colors are dropped
// when w is not a terminal.
func Setup(w io.Writer, level string) error {
	lvl, err := ParseLevel(level)

	noColor := true
	if f, ok := w.(fder); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}

	log.SetDefault(log.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	})))
	return err
}
