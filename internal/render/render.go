// Package render prints the conversation to the terminal. Replies are
// rendered as markdown when stdout is a terminal and printed verbatim
// otherwise.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

const defaultWidth = 80

var (
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	botStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	infoStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
)

type Printer struct {
	mu    sync.Mutex
	out   io.Writer
	tty   bool
	width int
	md    *glamour.TermRenderer
}

// New writes to out. Styling is enabled only when out is a terminal.
func New(out io.Writer) *Printer {
	p := &Printer{out: out, width: defaultWidth}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.tty = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			p.width = w
		}
	}
	return p
}

// Plain forces unstyled output, e.g. when replies are piped.
func (p *Printer) Plain() *Printer {
	p.tty = false
	return p
}

func (p *Printer) renderer() *glamour.TermRenderer {
	if p.md != nil {
		return p.md
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(p.width-2),
		glamour.WithPreservedNewLines(),
	)
	if err != nil {
		return nil
	}
	p.md = md
	return md
}

// Reply prints a model reply.
func (p *Printer) Reply(model, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.tty {
		fmt.Fprintf(p.out, "%s: %s\n", model, text)
		return
	}
	fmt.Fprintln(p.out, botStyle.Render(model))
	if md := p.renderer(); md != nil {
		if out, err := md.Render(text); err == nil {
			fmt.Fprint(p.out, out)
			return
		}
	}
	fmt.Fprintln(p.out, text)
}

// User echoes what was heard or read, so voice input is visible.
func (p *Printer) User(text string) {
	p.line(userStyle, "> "+text)
}

func (p *Printer) Info(format string, args ...any) {
	p.line(infoStyle, fmt.Sprintf(format, args...))
}

// Error prints a message already formatted by errors.Display.
func (p *Printer) Error(msg string) {
	p.line(errorStyle, msg)
}

func (p *Printer) Prompt(question string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := strings.TrimRight(question, " ") + " "
	if p.tty {
		q = promptStyle.Render(q)
	}
	fmt.Fprint(p.out, q)
}

func (p *Printer) line(style lipgloss.Style, s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty {
		s = style.Render(s)
	}
	fmt.Fprintln(p.out, s)
}
