// Package screen takes the screenshots fed to the vision model and keeps the
// splice library of past captures.
package screen

import (
	"context"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	rcerrors "rollcage/internal/errors"
)

const shotName = "screenshot.png"

type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// Capturer runs an external screenshot tool. The output path is appended to
// Args.
type Capturer struct {
	Command   string
	Args      []string
	LlavaDir  string
	SpliceDir string
	Runner    Runner
}

// Capture clears the llava directory, takes a screenshot into it and returns
// the PNG bytes. With splice the shot is also kept as <uuid>.png.
func (c *Capturer) Capture(ctx context.Context, splice bool) ([]byte, error) {
	if err := resetDir(c.LlavaDir); err != nil {
		return nil, rcerrors.NewFileError(c.LlavaDir, err)
	}

	out := filepath.Join(c.LlavaDir, shotName)
	args := append(append([]string(nil), c.Args...), out)
	if output, err := c.Runner.Run(ctx, c.LlavaDir, c.Command, args...); err != nil {
		return nil, rcerrors.NewCommandError(c.Command, strings.TrimSpace(string(output)), err)
	}

	png, err := os.ReadFile(out)
	if err != nil {
		return nil, rcerrors.NewFileError(out, err)
	}

	if splice {
		if path, err := c.keep(out); err != nil {
			log.Warn("Failed to splice screenshot", "err", err)
		} else {
			log.Debug("Spliced screenshot", "path", path)
		}
	}
	return png, nil
}

func (c *Capturer) keep(src string) (string, error) {
	if err := os.MkdirAll(c.SpliceDir, 0o755); err != nil {
		return "", rcerrors.NewFileError(c.SpliceDir, err)
	}
	dst := filepath.Join(c.SpliceDir, uuid.NewString()+".png")
	if err := copyFile(src, dst); err != nil {
		return "", rcerrors.NewFileError(dst, err)
	}
	return dst, nil
}

func resetDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("no llava directory configured")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
