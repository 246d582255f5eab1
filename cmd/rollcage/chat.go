package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/spf13/cobra"

	log "log/slog"

	"rollcage/internal/agent"
	"rollcage/internal/audio"
	"rollcage/internal/bot"
	"rollcage/internal/chat"
	"rollcage/internal/config"
	"rollcage/internal/event"
	"rollcage/internal/history"
	"rollcage/internal/ipc"
	"rollcage/internal/latex"
	"rollcage/internal/nlu"
	"rollcage/internal/notify"
	"rollcage/internal/ollama"
	"rollcage/internal/proxy"
	"rollcage/internal/remote"
	"rollcage/internal/render"
	"rollcage/internal/screen"
	"rollcage/internal/speech"
	"rollcage/internal/state"
	"rollcage/internal/tts"
	"rollcage/pkg/stt"
)

const (
	queueSize = 64
	duckFade  = 300 * time.Millisecond
	speechWPM = 175
)

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	log.Info("Booting up", "model", cfg.Ollama.Model, "ollama", cfg.Ollama.URL)

	httpClient, err := proxy.NewClient(cfg.Ollama.Proxy, config.Duration(cfg.Ollama.Timeout, 5*time.Minute))
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	client := ollama.New(cfg.Ollama.URL, httpClient, 0)

	queue := event.NewQueue(queueSize)
	runner := agent.ExecRunner{}

	opt := bot.Options{
		Session: chat.NewSession(client, cfg.Ollama.Model, cfg.Ollama.VisionModel),
		Store:   history.NewStore(cfg.Library.Conversations),
		Creator: agent.NewCreator(cfg.Library.Agents, cfg.Library.Models, cfg.Ollama.Binary, agent.ConverterConfig{
			Command: cfg.Converter.Command,
			Args:    cfg.Converter.Args,
		}),
		Models: client,
		Out:    render.New(os.Stdout),
		Queue:  queue,
		State:  initialState(cfg),
		Screen: &screen.Capturer{
			Command:   cfg.Screenshot.Command,
			Args:      cfg.Screenshot.Args,
			LlavaDir:  cfg.Library.Llava,
			SpliceDir: cfg.Library.Splice,
			Runner:    runner,
		},
		Latex:     latex.NewExporter(cfg.Library.Latex, cfg.Latex.Command, cfg.Latex.Args, runner),
		Intent:    newClassifier(cfg, httpClient),
		Clipboard: clipboard.WriteAll,
	}

	if p, closeSpeech, err := newSpeech(cfg); err != nil {
		log.Warn("Voice disabled", "err", err)
	} else {
		defer closeSpeech()
		opt.Speech = p
	}

	socket := cfg.IPC.Socket
	if socket == "" {
		socket = ipc.DefaultSocketPath()
	}
	srv, err := ipc.StartServer(ctx, socket, func(msg ipc.ControlMessage) {
		ev, ok := controlEvent(msg)
		if !ok {
			log.Warn("Unknown command", "cmd", msg.Cmd)
			return
		}
		queue.TryPublish(ev)
	})
	if err != nil {
		log.Warn("Hotkey socket disabled", "path", socket, "err", err)
	} else {
		defer srv.Close()
		log.Debug("Listening for hotkeys", "path", socket)
	}

	if cfg.Hub.URL != "" {
		hub, err := remote.Dial(ctx, remote.Config{
			URL:       cfg.Hub.URL,
			Name:      cfg.Hub.Name,
			Reconnect: config.Duration(cfg.Hub.Reconnect, 2*time.Second),
		})
		if err != nil {
			log.Warn("Hub disabled", "url", cfg.Hub.URL, "err", err)
		} else {
			defer hub.Close()
			opt.Remote = hub
			go func() {
				if err := hub.Run(ctx, queue); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("Hub stopped", "err", err)
				}
			}()
		}
	}

	// The stdin reader stays blocked in Read until the process exits.
	go func() {
		if err := event.ReadLines(ctx, os.Stdin, queue, bot.SourceStdin); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Failed to read stdin", "err", err)
		}
	}()

	b := bot.New(opt)
	log.Info("Boot up - successful", "commands", len(b.Commands()))

	err = b.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func initialState(cfg *config.Config) state.State {
	s := state.Default(cfg.Ollama.Model)
	s.Listen = cfg.Flags.Listen
	s.Leap = cfg.Flags.Leap
	s.Latex = cfg.Flags.Latex
	s.Llava = cfg.Flags.Llava
	s.Splice = cfg.Flags.Splice
	s.AutoCommands = cfg.Flags.AutoCommands
	if cfg.Speech.Voice != "" {
		s.VoiceName = cfg.Speech.Voice
	}
	return state.Apply(s)
}

// controlEvent turns a rollcage-ctl message into a loop event.
func controlEvent(msg ipc.ControlMessage) (event.Event, bool) {
	kind, ok := event.ParseKind(msg.Cmd)
	if !ok {
		return event.Event{}, false
	}
	if kind == event.KindLine && strings.TrimSpace(msg.Text) == "" {
		return event.Event{}, false
	}
	return event.Event{Kind: kind, Text: msg.Text, Source: bot.SourceIPC}, true
}

func newClassifier(cfg *config.Config, httpClient *http.Client) *nlu.Classifier {
	client := openai.NewClient(
		option.WithBaseURL(cfg.Intent.URL),
		option.WithAPIKey(cfg.Intent.APIKey),
		option.WithHTTPClient(httpClient),
	)
	return nlu.NewClassifier(client, cfg.Intent.Model)
}

func newSpeech(cfg *config.Config) (*speech.Pipeline, func(), error) {
	vad := audio.DefaultVAD()
	vad.Threshold = cfg.Speech.SilenceThreshold
	vad.Silence = config.Duration(cfg.Speech.SilenceDuration, vad.Silence)
	vad.Max = config.Duration(cfg.Speech.MaxDuration, vad.Max)

	rec := audio.NewRecorder(vad)
	if err := rec.Init(); err != nil {
		return nil, nil, fmt.Errorf("init audio: %w", err)
	}

	tr, err := stt.NewTranscriber(cfg.Speech.WhisperModel)
	if err != nil {
		rec.Close()
		return nil, nil, fmt.Errorf("init whisper: %w", err)
	}

	p := speech.NewPipeline(rec, tr, tts.NewEspeak(speechWPM), speech.Config{
		STT: stt.Options{
			Language: cfg.Speech.Language,
			Threads:  cfg.Speech.Threads,
		},
		DuckFactor: cfg.Speech.DuckFactor,
		DuckFade:   duckFade,
		KeepDir:    cfg.Speech.KeepRecordings,
	})
	p.WithCue(notify.NewCue(cfg.Speech.Cue).Play).
		WithNotify(notify.NewDesktop(cfg.Speech.Notify).Notify)
	if cfg.Speech.Duck {
		p.WithDucker(audio.NewDucker([]string{"rollcage", "espeak-ng", "espeak"}, 5))
	}

	log.Debug("Loaded voice", "whisper", cfg.Speech.WhisperModel)
	return p, func() {
		tr.Close()
		rec.Close()
	}, nil
}
