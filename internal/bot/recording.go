package bot

import (
	"context"
	"sync"

	log "log/slog"
)

type recResult struct {
	text string
	err  error
}

// recording is one voice take running off the loop goroutine. The loop
// keeps reading the queue meanwhile so a chunk hotkey can cut it.
type recording struct {
	cancel context.CancelFunc
	stop   chan struct{}
	once   sync.Once
	done   chan recResult
}

// result is nil for a nil recording, so selecting on it blocks.
func (r *recording) result() <-chan recResult {
	if r == nil {
		return nil
	}
	return r.done
}

func (r *recording) cut() {
	r.once.Do(func() { close(r.stop) })
}

// maybeRecord starts a take when one is armed and none is running.
func (b *Bot) maybeRecord(ctx context.Context) {
	if b.rec != nil || b.speech == nil || !b.state.Listen || !b.state.AutoSpeech {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	rec := &recording{
		cancel: cancel,
		stop:   make(chan struct{}),
		done:   make(chan recResult, 1),
	}
	chunk := b.state.Chunk
	b.rec = rec

	log.Debug("Recording", "chunk", chunk)
	if chunk {
		b.out.Info("Recording, press chunk again to stop")
	} else {
		b.out.Info("Listening...")
	}

	go func() {
		text, err := b.speech.Listen(ctx, rec.stop, chunk)
		rec.done <- recResult{text: text, err: err}
	}()
}

func (b *Bot) cancelRecording() {
	if b.rec == nil {
		return
	}
	b.rec.cancel()
	b.rec.cut()
	<-b.rec.done
	b.rec = nil
}
