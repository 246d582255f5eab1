// Package speech turns the microphone into text and replies into sound:
// cue, duck other audio, record, transcribe; and sentence-wise synthesis.
package speech

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"rollcage/internal/audio"
	rcerrors "rollcage/internal/errors"
	"rollcage/pkg/stt"
)

type Recorder interface {
	RecordAuto(ctx context.Context, stop <-chan struct{}) ([]float32, error)
	RecordUntil(ctx context.Context, stop <-chan struct{}) ([]float32, error)
}

type Transcriber interface {
	TranscribePCM(ctx context.Context, pcm16k []float32, opt stt.Options) (stt.Result, error)
}

type Synthesizer interface {
	SpeakSentences(ctx context.Context, text, voice string) error
}

type Ducker interface {
	DuckOthers(ctx context.Context, factor float64, duration time.Duration) error
	UnduckOthers(ctx context.Context, duration time.Duration) error
}

type Config struct {
	STT        stt.Options
	DuckFactor float64
	DuckFade   time.Duration
	KeepDir    string // save every take as <uuid>.wav when set
}

type Pipeline struct {
	rec    Recorder
	tr     Transcriber
	synth  Synthesizer
	ducker Ducker // optional
	cue    func() error
	notify func(string)
	cfg    Config
}

func NewPipeline(rec Recorder, tr Transcriber, synth Synthesizer, cfg Config) *Pipeline {
	return &Pipeline{
		rec:    rec,
		tr:     tr,
		synth:  synth,
		cue:    func() error { return nil },
		notify: func(string) {},
		cfg:    cfg,
	}
}

func (p *Pipeline) WithDucker(d Ducker) *Pipeline {
	p.ducker = d
	return p
}

func (p *Pipeline) WithCue(play func() error) *Pipeline {
	p.cue = play
	return p
}

func (p *Pipeline) WithNotify(n func(string)) *Pipeline {
	p.notify = n
	return p
}

// Listen records one take and returns its transcript. With chunk the take
// ends only when stop is closed; otherwise trailing silence ends it too.
// Every failure is a *errors.SpeechError.
func (p *Pipeline) Listen(ctx context.Context, stop <-chan struct{}, chunk bool) (string, error) {
	if err := p.cue(); err != nil {
		log.Warn("Failed to play cue", "err", err)
	}
	p.notify("Listening...")

	p.duck(ctx)
	var (
		pcm []float32
		err error
	)
	if chunk {
		pcm, err = p.rec.RecordUntil(ctx, stop)
	} else {
		pcm, err = p.rec.RecordAuto(ctx, stop)
	}
	p.unduck(ctx)

	if err != nil {
		return "", asSpeechError("record", err)
	}
	log.Debug("Recorded", "samples", len(pcm))

	if p.cfg.KeepDir != "" {
		path := filepath.Join(p.cfg.KeepDir, uuid.NewString()+".wav")
		if err := audio.SaveWAV(path, pcm, audio.SampleRate); err != nil {
			log.Warn("Failed to keep recording", "path", path, "err", err)
		}
	}

	res, err := p.tr.TranscribePCM(ctx, pcm, p.cfg.STT)
	if err != nil {
		if errors.Is(err, stt.ErrNoSpeech) {
			err = fmt.Errorf("%w: %w", rcerrors.ErrNoSpeech, err)
		}
		return "", asSpeechError("recognize", err)
	}

	log.Info("Transcribed", "text", res.Text, "lang", res.Language)
	return res.Text, nil
}

// Speak says text with voice, ducking other streams meanwhile.
func (p *Pipeline) Speak(ctx context.Context, text, voice string) error {
	if text == "" {
		return nil
	}
	p.duck(ctx)
	defer p.unduck(ctx)

	if err := p.synth.SpeakSentences(ctx, text, voice); err != nil {
		return asSpeechError("speak", err)
	}
	return nil
}

func (p *Pipeline) duck(ctx context.Context) {
	if p.ducker == nil {
		return
	}
	if err := p.ducker.DuckOthers(ctx, p.cfg.DuckFactor, p.cfg.DuckFade); err != nil {
		log.Debug("Failed to duck", "err", err)
	}
}

func (p *Pipeline) unduck(ctx context.Context) {
	if p.ducker == nil {
		return
	}
	// restore volume even when ctx was canceled mid-take
	ctx = context.WithoutCancel(ctx)
	if err := p.ducker.UnduckOthers(ctx, p.cfg.DuckFade); err != nil {
		log.Debug("Failed to unduck", "err", err)
	}
}

func asSpeechError(op string, err error) error {
	var se *rcerrors.SpeechError
	if errors.As(err, &se) {
		return err
	}
	return rcerrors.NewSpeechError(op, err)
}
