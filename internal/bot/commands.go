package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rollcage/internal/agent"
	rcerrors "rollcage/internal/errors"
	"rollcage/internal/history"
	"rollcage/internal/nlu"
	"rollcage/internal/state"
)

func (b *Bot) registerCommands() {
	r := b.registry
	cmd := func(name string, f func(ctx context.Context, args string) error) {
		r.Register(name, nlu.CommandFunc(f))
	}
	flag := func(name, label string, t state.Transition) {
		cmd(name, func(context.Context, string) error {
			b.apply(t)
			b.out.Info("%s", label)
			return nil
		})
	}

	cmd("/swap", b.swap)
	cmd("/voice swap", b.voiceSwap)
	cmd("/save as", b.save)
	cmd("/load as", b.load)

	flag("/listen on", "Voice input on", state.SetListen(true))
	flag("/listen off", "Voice input off", state.SetListen(false))
	flag("/leap on", "Spoken replies off", state.SetLeap(true))
	flag("/leap off", "Spoken replies on", state.SetLeap(false))
	flag("/speech on", "Voice input and spoken replies on", state.SetSpeech(true))
	flag("/speech off", "Voice input and spoken replies off", state.SetSpeech(false))
	flag("/latex on", "LaTeX export on", state.SetLatex(true))
	flag("/latex off", "LaTeX export off", state.SetLatex(false))
	flag("/llava flow", "Screen vision on", state.SetLlava(true))
	flag("/llava freeze", "Screen vision off", state.SetLlava(false))
	flag("/splice on", "Keeping screenshots", state.SetSplice(true))
	flag("/splice off", "Not keeping screenshots", state.SetSplice(false))
	flag("/auto on", "Recording armed", state.SetAutoSpeech(true))
	flag("/auto off", "Recording disarmed", state.SetAutoSpeech(false))
	flag("/command auto on", "Command classification on", state.SetAutoCommands(true))
	flag("/command auto off", "Command classification off", state.SetAutoCommands(false))

	cmd("/ollama create", b.ollamaCreate)
	cmd("/ollama show", b.ollamaShow)
	cmd("/ollama template", b.ollamaTemplate)
	cmd("/ollama license", b.ollamaLicense)
	cmd("/ollama list", b.ollamaList)

	cmd("/convert tensor", b.convertTensor)
	cmd("/convert gguf", b.convertGGUF)
	cmd("/write modelfile", b.writeModelfile)

	cmd("/copy", b.copyReply)
	cmd("/help", b.help)
	cmd("/quit", func(context.Context, string) error { return rcerrors.ErrQuit })
}

// swap switches to another agent and starts a fresh conversation. Agent
// names are model names like "user/model:tag" and stay unsanitized; the
// history store sanitizes its path components.
func (b *Bot) swap(ctx context.Context, args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		raw, err := b.prompter().Ask(ctx, "PROVIDE AGENT NAME")
		if err != nil {
			return err
		}
		name = strings.TrimSpace(raw)
	}
	if name == "" {
		return errors.New("no agent name given")
	}

	b.apply(state.SetModel(name))
	b.session.SetModel(name)
	b.session.Reset()
	b.template = ""
	b.out.Info("Swapped to %s", name)
	return nil
}

// voiceSwap reports the voice captured from the line; capture already
// updated the state.
func (b *Bot) voiceSwap(context.Context, string) error {
	b.out.Info("Voice is %s", b.state.VoiceName)
	return nil
}

func (b *Bot) save(_ context.Context, args string) error {
	name := b.state.SaveName
	if name == "" {
		name = nlu.SanitizeName(args)
	}
	if name == "" {
		name = history.DefaultName
	}
	if err := b.store.Save(b.state.Model, name, b.session.History()); err != nil {
		return err
	}
	b.out.Info("Saved to %s", b.store.Path(b.state.Model, name))
	return nil
}

// load replaces the history only after the file was read successfully.
func (b *Bot) load(_ context.Context, args string) error {
	name := b.state.LoadName
	if name == "" {
		name = nlu.SanitizeName(args)
	}
	if name == "" {
		names, err := b.store.List(b.state.Model)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			b.out.Info("No saved conversations for %s", b.state.Model)
			return nil
		}
		b.out.Info("Saved conversations: %s", strings.Join(names, ", "))
		return nil
	}

	msgs, err := b.store.Load(b.state.Model, name)
	if err != nil {
		return err
	}
	b.session.Replace(msgs)
	b.out.Info("Loaded %s (%d messages)", name, len(msgs))
	return nil
}

func (b *Bot) ollamaCreate(ctx context.Context, _ string) error {
	base := b.state.Model
	if b.template == "" {
		info, err := b.models.Show(ctx, base)
		if err != nil {
			return err
		}
		b.template = info.Template
	}

	def, err := b.creator.CreateFromModel(ctx, b.prompter(), base, b.template)
	if err != nil {
		return err
	}
	b.out.Info("Created agent %s from %s", def.Name, base)
	return nil
}

func (b *Bot) ollamaShow(ctx context.Context, _ string) error {
	info, err := b.models.Show(ctx, b.state.Model)
	if err != nil {
		return err
	}
	b.out.Reply(b.state.Model, fence(info.Modelfile))
	return nil
}

func (b *Bot) ollamaTemplate(ctx context.Context, _ string) error {
	info, err := b.models.Show(ctx, b.state.Model)
	if err != nil {
		return err
	}
	b.template = info.Template
	b.out.Reply(b.state.Model, fence(info.Template))
	return nil
}

func (b *Bot) ollamaLicense(ctx context.Context, _ string) error {
	info, err := b.models.Show(ctx, b.state.Model)
	if err != nil {
		return err
	}
	b.out.Reply(b.state.Model, fence(info.License))
	return nil
}

func (b *Bot) ollamaList(ctx context.Context, _ string) error {
	models, err := b.models.List(ctx)
	if err != nil {
		return err
	}
	var sb strings.Builder
	for _, m := range models {
		fmt.Fprintf(&sb, "- %s (%s)\n", m.Name, humanSize(m.Size))
	}
	if sb.Len() == 0 {
		sb.WriteString("no models installed")
	}
	b.out.Reply("ollama", sb.String())
	return nil
}

func (b *Bot) convertTensor(ctx context.Context, args string) error {
	name := b.state.TensorName
	if name == "" {
		name = args
	}
	out, err := b.creator.ConvertTensor(ctx, name)
	if err != nil {
		return err
	}
	b.out.Info("Converted %s to %s", name, out)
	return nil
}

func (b *Bot) convertGGUF(ctx context.Context, _ string) error {
	def, err := b.creator.CreateFromGGUF(ctx, b.prompter())
	if err != nil {
		return err
	}
	b.out.Info("Created agent %s from %s", def.Name, def.From)
	return nil
}

func (b *Bot) writeModelfile(ctx context.Context, _ string) error {
	path, err := b.creator.WriteModelfile(ctx, b.prompter(), b.state.Model, b.template)
	if err != nil {
		return err
	}
	b.out.Info("Wrote %s", path)
	return nil
}

func (b *Bot) copyReply(context.Context, string) error {
	reply, ok := b.session.LastReply()
	if !ok {
		b.out.Info("Nothing to copy yet")
		return nil
	}
	if b.clipboard == nil {
		return errors.New("clipboard unavailable")
	}
	if err := b.clipboard(reply); err != nil {
		return fmt.Errorf("copy reply: %w", err)
	}
	b.out.Info("Copied last reply")
	return nil
}

func (b *Bot) help(context.Context, string) error {
	b.out.Info("Commands: %s", strings.Join(b.registry.Names(), ", "))
	return nil
}

func (b *Bot) prompter() agent.Prompter {
	if b.state.Listen && b.speech != nil {
		// one capture at a time: the answer takes the mic from a running take
		b.cancelRecording()
		b.apply(state.SetAutoSpeech(false))
		return voicePrompter{b}
	}
	return textPrompter{b}
}

func fence(s string) string {
	return "```\n" + strings.TrimRight(s, "\n") + "\n```"
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
