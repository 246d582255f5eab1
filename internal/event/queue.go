// Package event is the single entry point into the chat loop. Producers
// (stdin, hotkey socket, remote hub) publish; only the loop consumes.
package event

import (
	"bufio"
	"context"
	"fmt"
	"io"
	log "log/slog"
	"strings"
)

type Kind uint

const (
	KindLine Kind = iota
	KindAuto
	KindChunk
	KindEOF
)

func (k Kind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindAuto:
		return "auto"
	case KindChunk:
		return "chunk"
	case KindEOF:
		return "eof"
	}
	return fmt.Sprintf("kind(%d)", uint(k))
}

// ParseKind maps a hotkey command name to its kind.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "line":
		return KindLine, true
	case "auto", "trigger":
		return KindAuto, true
	case "chunk":
		return KindChunk, true
	}
	return 0, false
}

type Event struct {
	Kind   Kind
	Text   string
	Source string
}

type Queue struct {
	ch chan Event
}

func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan Event, size)}
}

// Publish blocks until the loop has room for ev or ctx is done.
func (q *Queue) Publish(ctx context.Context, ev Event) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish drops ev when the queue is full. Hotkeys use it so a stuck
// loop never blocks a socket handler.
func (q *Queue) TryPublish(ev Event) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		log.Warn("Event dropped", "kind", ev.Kind, "source", ev.Source)
		return false
	}
}

func (q *Queue) Events() <-chan Event {
	return q.ch
}

// ReadLines publishes every line of r and a final KindEOF. It returns when
// r is exhausted or ctx is done.
func ReadLines(ctx context.Context, r io.Reader, q *Queue, source string) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		if err := q.Publish(ctx, Event{Kind: KindLine, Text: sc.Text(), Source: source}); err != nil {
			return err
		}
	}

	err := sc.Err()
	if perr := q.Publish(ctx, Event{Kind: KindEOF, Source: source}); perr != nil && err == nil {
		err = perr
	}
	return err
}
