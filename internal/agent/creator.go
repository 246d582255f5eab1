package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	rcerrors "rollcage/internal/errors"
	"rollcage/internal/nlu"
)

const modelfileName = "modelfile"

// Prompter asks the user one question and returns the answer, typed or
// transcribed.
type Prompter interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Runner runs an external program in dir and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// ConverterConfig describes the safetensors to GGUF converter. Args are
// text/template strings over ConvertArgs.
type ConverterConfig struct {
	Command string
	Args    []string
}

type ConvertArgs struct {
	Name      string
	ModelsDir string
	Input     string
	Output    string
}

type Creator struct {
	AgentsDir string
	ModelsDir string
	Ollama    string
	Converter ConverterConfig
	Runner    Runner
}

func NewCreator(agentsDir, modelsDir, ollama string, conv ConverterConfig) *Creator {
	if ollama == "" {
		ollama = "ollama"
	}
	return &Creator{
		AgentsDir: agentsDir,
		ModelsDir: modelsDir,
		Ollama:    ollama,
		Converter: conv,
		Runner:    ExecRunner{},
	}
}

// Collect asks for the agent name, temperature and system prompt.
func (c *Creator) Collect(ctx context.Context, p Prompter) (Definition, error) {
	raw, err := p.Ask(ctx, "PROVIDE NEW AGENT NAME TO CREATE")
	if err != nil {
		return Definition{}, fmt.Errorf("ask name: %w", err)
	}
	name := nlu.SanitizeName(raw)
	if name == "" {
		return Definition{}, fmt.Errorf("agent name %q is empty after sanitizing", raw)
	}

	raw, err = p.Ask(ctx, fmt.Sprintf("PROVIDE NEW AGENT TEMPERATURE (%.1f - %.1f)", MinTemperature, MaxTemperature))
	if err != nil {
		return Definition{}, fmt.Errorf("ask temperature: %w", err)
	}
	temp, err := ParseTemperature(raw)
	if err != nil {
		return Definition{}, err
	}

	system, err := p.Ask(ctx, "PROVIDE SYSTEM PROMPT")
	if err != nil {
		return Definition{}, fmt.Errorf("ask system prompt: %w", err)
	}

	return Definition{
		Name:        name,
		Temperature: temp,
		System:      strings.TrimSpace(system),
	}, nil
}

// CreateFromModel builds an agent on top of an installed model, reusing
// its template, and registers it.
func (c *Creator) CreateFromModel(ctx context.Context, p Prompter, base, tmpl string) (Definition, error) {
	def, err := c.Collect(ctx, p)
	if err != nil {
		return Definition{}, err
	}
	def.From = base
	def.Template = tmpl

	path, err := c.write(def)
	if err != nil {
		return Definition{}, err
	}
	return def, c.register(ctx, def.Name, path)
}

// CreateFromGGUF builds an agent from <models>/converted/<gguf>.gguf. The
// artifact is copied next to the modelfile before registering.
func (c *Creator) CreateFromGGUF(ctx context.Context, p Prompter) (Definition, error) {
	raw, err := p.Ask(ctx, "PROVIDE SAFETENSOR CONVERTED GGUF NAME (without .gguf)")
	if err != nil {
		return Definition{}, fmt.Errorf("ask gguf name: %w", err)
	}
	gguf := strings.TrimSuffix(nlu.SanitizeName(raw), ".gguf")
	if gguf == "" {
		return Definition{}, fmt.Errorf("gguf name %q is empty after sanitizing", raw)
	}

	def, err := c.Collect(ctx, p)
	if err != nil {
		return Definition{}, err
	}
	def.From = "./" + gguf + ".gguf"

	src := filepath.Join(c.ModelsDir, "converted", gguf+".gguf")
	dst := filepath.Join(c.AgentsDir, def.Name, gguf+".gguf")
	if err := copyFile(src, dst); err != nil {
		return Definition{}, err
	}

	path, err := c.write(def)
	if err != nil {
		return Definition{}, err
	}
	return def, c.register(ctx, def.Name, path)
}

// WriteModelfile collects a definition and writes it without registering.
func (c *Creator) WriteModelfile(ctx context.Context, p Prompter, base, tmpl string) (string, error) {
	def, err := c.Collect(ctx, p)
	if err != nil {
		return "", err
	}
	def.From = base
	def.Template = tmpl
	return c.write(def)
}

// ConvertTensor runs the configured converter on <models>/<name>.
func (c *Creator) ConvertTensor(ctx context.Context, name string) (string, error) {
	name = nlu.SanitizeName(name)
	if name == "" {
		return "", errors.New("no tensor name given")
	}
	if c.Converter.Command == "" {
		return "", rcerrors.NewCommandError("convert", "", errors.New("no converter configured"))
	}

	data := ConvertArgs{
		Name:      name,
		ModelsDir: c.ModelsDir,
		Input:     filepath.Join(c.ModelsDir, name),
		Output:    filepath.Join(c.ModelsDir, "converted", name+".gguf"),
	}
	args, err := expandArgs(c.Converter.Args, data)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(data.Output), 0o755); err != nil {
		return "", rcerrors.NewFileError(filepath.Dir(data.Output), err)
	}

	log.Info("Converting tensor", "name", name, "cmd", c.Converter.Command)
	out, err := c.Runner.Run(ctx, c.ModelsDir, c.Converter.Command, args...)
	if err != nil {
		return "", rcerrors.NewCommandError(c.Converter.Command, strings.TrimSpace(string(out)), err)
	}
	return data.Output, nil
}

func (c *Creator) ModelfilePath(name string) string {
	return filepath.Join(c.AgentsDir, name, modelfileName)
}

func (c *Creator) write(def Definition) (string, error) {
	path := c.ModelfilePath(def.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", rcerrors.NewFileError(path, err)
	}
	if err := os.WriteFile(path, []byte(def.Modelfile()), 0o644); err != nil {
		return "", rcerrors.NewFileError(path, err)
	}
	return path, nil
}

func (c *Creator) register(ctx context.Context, name, modelfile string) error {
	log.Info("Registering agent", "name", name, "modelfile", modelfile)

	out, err := c.Runner.Run(ctx, filepath.Dir(modelfile), c.Ollama, "create", name, "-f", modelfile)
	if err != nil {
		return rcerrors.NewCommandError(c.Ollama+" create", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func expandArgs(args []string, data ConvertArgs) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, a := range args {
		t, err := template.New("arg").Option("missingkey=error").Parse(a)
		if err != nil {
			return nil, fmt.Errorf("converter arg %q: %w", a, err)
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("converter arg %q: %w", a, err)
		}
		out = append(out, buf.String())
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rcerrors.NewFileError(src, rcerrors.ErrNotFound)
		}
		return rcerrors.NewFileError(src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return rcerrors.NewFileError(dst, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return rcerrors.NewFileError(dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return rcerrors.NewFileError(dst, err)
	}
	if err := out.Close(); err != nil {
		return rcerrors.NewFileError(dst, err)
	}
	return nil
}
