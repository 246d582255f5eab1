// Package latex exports the math found in replies as standalone .tex files.
package latex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	rcerrors "rollcage/internal/errors"
)

type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// Block is one math fragment. Display blocks are set on their own line.
type Block struct {
	Body    string
	Display bool
}

var (
	displayRe = regexp.MustCompile(`(?s)\$\$(.+?)\$\$|\\\[(.+?)\\\]`)
	inlineRe  = regexp.MustCompile(`\$([^$\n]+?)\$|\\\((.+?)\\\)`)
	fenceRe   = regexp.MustCompile("(?s)```.*?```")
)

// Extract returns the math blocks of text in order of appearance. Code
// fences are skipped.
func Extract(text string) []Block {
	text = fenceRe.ReplaceAllString(text, "")

	type hit struct {
		at int
		b  Block
	}
	var hits []hit
	for _, m := range displayRe.FindAllStringSubmatchIndex(text, -1) {
		hits = append(hits, hit{m[0], Block{Body: group(text, m), Display: true}})
	}
	rest := displayRe.ReplaceAllStringFunc(text, func(s string) string {
		return strings.Repeat(" ", len(s))
	})
	for _, m := range inlineRe.FindAllStringSubmatchIndex(rest, -1) {
		hits = append(hits, hit{m[0], Block{Body: group(rest, m)}})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })

	var out []Block
	for _, h := range hits {
		if body := strings.TrimSpace(h.b.Body); body != "" {
			out = append(out, Block{Body: body, Display: h.b.Display})
		}
	}
	return out
}

func group(s string, m []int) string {
	for i := 2; i+1 < len(m); i += 2 {
		if m[i] >= 0 {
			return s[m[i]:m[i+1]]
		}
	}
	return ""
}

// Document wraps blocks in a minimal article.
func Document(blocks []Block) string {
	var b strings.Builder
	b.WriteString("\\documentclass{article}\n")
	b.WriteString("\\usepackage{amsmath,amssymb}\n")
	b.WriteString("\\begin{document}\n\n")
	for _, blk := range blocks {
		if blk.Display {
			fmt.Fprintf(&b, "\\[\n%s\n\\]\n\n", blk.Body)
		} else {
			fmt.Fprintf(&b, "$%s$\n\n", blk.Body)
		}
	}
	b.WriteString("\\end{document}\n")
	return b.String()
}

type Exporter struct {
	Dir      string
	Renderer string // optional, run with the .tex path as last argument
	Args     []string
	Runner   Runner
	now      func() time.Time
}

func NewExporter(dir, renderer string, args []string, r Runner) *Exporter {
	return &Exporter{Dir: dir, Renderer: renderer, Args: args, Runner: r, now: time.Now}
}

// Export writes the math in reply to <dir>/<agent>/<timestamp>.tex and runs
// the renderer on it. It returns an empty path when reply has no math.
func (e *Exporter) Export(ctx context.Context, agent, reply string) (string, error) {
	blocks := Extract(reply)
	if len(blocks) == 0 {
		return "", nil
	}

	dir := filepath.Join(e.Dir, agent)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", rcerrors.NewFileError(dir, err)
	}
	path := filepath.Join(dir, e.now().Format("20060102-150405.000")+".tex")
	if err := os.WriteFile(path, []byte(Document(blocks)), 0o644); err != nil {
		return "", rcerrors.NewFileError(path, err)
	}

	if e.Renderer == "" {
		return path, nil
	}
	args := append(append([]string(nil), e.Args...), filepath.Base(path))
	if out, err := e.Runner.Run(ctx, dir, e.Renderer, args...); err != nil {
		return path, rcerrors.NewCommandError(e.Renderer, strings.TrimSpace(string(out)), err)
	}
	return path, nil
}
