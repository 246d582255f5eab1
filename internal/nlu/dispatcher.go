package nlu

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Command is one canonical slash-command. args is whatever followed the
// command name on the line, trimmed.
type Command interface {
	Execute(ctx context.Context, args string) error
}

type CommandFunc func(ctx context.Context, args string) error

func (f CommandFunc) Execute(ctx context.Context, args string) error {
	return f(ctx, args)
}

// Registry maps canonical command names to commands. Lookup picks the
// longest registered name the line starts with, so "/ollama show" never
// shadows a longer "/ollama show x".
type Registry struct {
	commands map[string]Command
	byLength []string
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

func (r *Registry) Register(name string, cmd Command) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || cmd == nil {
		panic(fmt.Sprintf("nlu: invalid command registration %q", name))
	}

	if _, ok := r.commands[name]; !ok {
		r.byLength = append(r.byLength, name)
		sort.SliceStable(r.byLength, func(i, j int) bool {
			if len(r.byLength[i]) != len(r.byLength[j]) {
				return len(r.byLength[i]) > len(r.byLength[j])
			}
			return r.byLength[i] < r.byLength[j]
		})
	}
	r.commands[name] = cmd
}

// Lookup finds the command for line. A name matches when the line equals it
// or continues with whitespace after it.
func (r *Registry) Lookup(line string) (name, args string, ok bool) {
	line = strings.TrimSpace(line)
	for _, n := range r.byLength {
		if len(line) < len(n) || !strings.EqualFold(line[:len(n)], n) {
			continue
		}
		rest := line[len(n):]
		if rest != "" && !unicode.IsSpace(rune(rest[0])) {
			continue
		}
		return n, strings.TrimSpace(rest), true
	}
	return "", "", false
}

// Dispatch runs at most one command. handled is false when line is not a
// command and should go to the chat session unchanged.
func (r *Registry) Dispatch(ctx context.Context, line string) (handled bool, err error) {
	name, args, ok := r.Lookup(line)
	if !ok {
		return false, nil
	}
	return true, r.commands[name].Execute(ctx, args)
}

// Names lists the registered commands alphabetically.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.byLength...)
	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	_, ok := r.commands[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
