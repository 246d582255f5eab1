// Package bot runs the chat loop: it reads events from the queue, turns
// lines into commands or prompts, and presents the results.
package bot

import (
	"context"
	"errors"
	log "log/slog"
	"strings"

	"rollcage/internal/agent"
	"rollcage/internal/chat"
	rcerrors "rollcage/internal/errors"
	"rollcage/internal/event"
	"rollcage/internal/history"
	"rollcage/internal/nlu"
	"rollcage/internal/ollama"
	"rollcage/internal/render"
	"rollcage/internal/state"
)

// Sources of input lines. Typed lines are not echoed back.
const (
	SourceStdin  = "stdin"
	SourceVoice  = "voice"
	SourceIPC    = "ipc"
	SourceRemote = "remote"
)

type Speech interface {
	Listen(ctx context.Context, stop <-chan struct{}, chunk bool) (string, error)
	Speak(ctx context.Context, text, voice string) error
}

type Models interface {
	Show(ctx context.Context, model string) (ollama.ModelInfo, error)
	List(ctx context.Context) ([]ollama.ModelSummary, error)
}

type Screen interface {
	Capture(ctx context.Context, splice bool) ([]byte, error)
}

type Latex interface {
	Export(ctx context.Context, agent, reply string) (string, error)
}

type Classifier interface {
	Classify(ctx context.Context, commands []string, transcript string) (nlu.Intent, error)
}

type Replier interface {
	Reply(content string) error
}

// Options wires the bot. Session, Store, Creator, Models, Out and Queue are
// required; the rest disable their feature when nil.
type Options struct {
	Session *chat.Session
	Store   *history.Store
	Creator *agent.Creator
	Models  Models
	Out     *render.Printer
	Queue   *event.Queue
	State   state.State

	Speech    Speech
	Screen    Screen
	Latex     Latex
	Intent    Classifier
	Remote    Replier
	Clipboard func(string) error
}

type Bot struct {
	session *chat.Session
	store   *history.Store
	creator *agent.Creator
	models  Models
	out     *render.Printer
	queue   *event.Queue

	speech    Speech
	screen    Screen
	latex     Latex
	intent    Classifier
	remote    Replier
	clipboard func(string) error

	registry *nlu.Registry
	state    state.State
	template string // cached by /ollama template, used by /ollama create

	rec *recording
}

func New(opt Options) *Bot {
	b := &Bot{
		session:   opt.Session,
		store:     opt.Store,
		creator:   opt.Creator,
		models:    opt.Models,
		out:       opt.Out,
		queue:     opt.Queue,
		speech:    opt.Speech,
		screen:    opt.Screen,
		latex:     opt.Latex,
		intent:    opt.Intent,
		remote:    opt.Remote,
		clipboard: opt.Clipboard,
		registry:  nlu.NewRegistry(),
	}
	if opt.State.Model == "" {
		opt.State.Model = opt.Session.Model()
	}
	b.state = state.Apply(opt.State)
	b.session.SetModel(b.state.Model)
	b.registerCommands()
	return b
}

func (b *Bot) State() state.State { return b.state }

func (b *Bot) Commands() []string { return b.registry.Names() }

// apply runs transitions on the loop state. Turning voice input off drops
// a take that is still running.
func (b *Bot) apply(ts ...state.Transition) {
	b.state = state.Apply(b.state, ts...)
	if !b.state.Listen {
		b.cancelRecording()
	}
}

// Run consumes the queue until ctx is done, stdin is closed or /quit.
func (b *Bot) Run(ctx context.Context) error {
	log.Info("Chat loop started", "model", b.state.Model, "listen", b.state.Listen)
	defer b.cancelRecording()

	for {
		b.maybeRecord(ctx)

		var err error
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-b.queue.Events():
			err = b.handle(ctx, ev)

		case res := <-b.rec.result():
			b.rec.cancel()
			b.rec = nil
			b.apply(state.SetAutoSpeech(false))
			if res.err != nil {
				b.report(res.err)
				continue
			}
			err = b.Process(ctx, res.text, SourceVoice)
		}

		switch {
		case err == nil:
		case errors.Is(err, rcerrors.ErrQuit), errors.Is(err, errEOF):
			log.Info("Chat loop finished")
			return nil
		default:
			return err
		}
	}
}

var errEOF = errors.New("input closed")

func (b *Bot) handle(ctx context.Context, ev event.Event) error {
	log.Debug("Event", "kind", ev.Kind, "source", ev.Source)

	switch ev.Kind {
	case event.KindLine:
		return b.Process(ctx, ev.Text, ev.Source)
	case event.KindAuto:
		if !b.state.Listen {
			b.out.Info("Voice input is off, use /listen on")
			return nil
		}
		b.apply(state.SetAutoSpeech(true))
	case event.KindChunk:
		if b.rec != nil {
			b.rec.cut()
			return nil
		}
		b.apply(state.SetChunk(true))
	case event.KindEOF:
		if ev.Source == SourceStdin {
			return errEOF
		}
	}
	return nil
}

// Process handles one input line: a command when one matches, otherwise a
// chat prompt.
func (b *Bot) Process(ctx context.Context, line, source string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if source != SourceStdin {
		b.out.User(line)
	}

	normalized, caps := nlu.Normalize(line)
	b.apply(state.WithCaptures(caps))

	handled, err := b.registry.Dispatch(ctx, normalized)
	if handled {
		if errors.Is(err, rcerrors.ErrQuit) {
			return err
		}
		if err != nil {
			b.report(err)
		}
		return nil
	}

	// A spoken name without its command only records the name.
	if names := capturedNames(caps); names != "" {
		b.out.Info("Noted %s", names)
		return nil
	}

	if b.state.AutoCommands && b.intent != nil {
		handled, err := b.classify(ctx, line)
		if handled {
			if errors.Is(err, rcerrors.ErrQuit) {
				return err
			}
			if err != nil {
				b.report(err)
			}
			return nil
		}
	}

	b.prompt(ctx, line, source)
	return nil
}

func (b *Bot) classify(ctx context.Context, line string) (bool, error) {
	intent, err := b.intent.Classify(ctx, b.registry.Names(), line)
	if err != nil {
		log.Warn("Failed to classify", "err", err)
		return false, nil
	}
	if intent.Command == "" || !b.registry.Has(intent.Command) {
		return false, nil
	}
	log.Info("Classified as command", "cmd", intent.Command, "args", intent.Args)
	return b.registry.Dispatch(ctx, intent.Line())
}

func (b *Bot) prompt(ctx context.Context, line, source string) {
	var shot []byte
	if b.state.Llava && b.screen != nil {
		png, err := b.screen.Capture(ctx, b.state.Splice)
		if err != nil {
			log.Warn("Failed to capture screen", "kind", rcerrors.Kind(err), "err", err)
		}
		shot = png
	}

	reply, err := b.session.Send(ctx, line, shot)
	if err != nil {
		b.report(err)
		return
	}

	b.out.Reply(b.state.Model, reply)

	if source == SourceRemote && b.remote != nil {
		if err := b.remote.Reply(reply); err != nil {
			log.Warn("Failed to reply to hub", "err", err)
		}
	}

	if b.state.Latex && b.latex != nil {
		path, err := b.latex.Export(ctx, b.state.Model, reply)
		switch {
		case err != nil:
			b.report(err)
		case path != "":
			b.out.Info("LaTeX written to %s", path)
		}
	}

	if !b.state.Leap && b.speech != nil {
		if err := b.speech.Speak(ctx, reply, b.state.VoiceName); err != nil {
			b.report(err)
		}
	}
}

func capturedNames(c state.Captures) string {
	var parts []string
	for _, n := range []struct {
		label string
		value *string
	}{
		{"voice", c.Voice},
		{"save name", c.Save},
		{"load name", c.Load},
		{"tensor", c.Tensor},
	} {
		if n.value != nil {
			parts = append(parts, n.label+" "+*n.value)
		}
	}
	return strings.Join(parts, ", ")
}

// report logs err and shows it to the user. The loop always continues.
func (b *Bot) report(err error) {
	log.Error("Turn failed", "kind", rcerrors.Kind(err), "err", err)
	b.out.Error(rcerrors.Display(err))
}
