package bot

import (
	"context"
	"errors"
	"io"
	"strings"

	log "log/slog"

	"rollcage/internal/event"
)

// textPrompter reads the answer as the next line from the queue. It runs on
// the loop goroutine, so nothing else consumes the queue meanwhile.
type textPrompter struct{ b *Bot }

func (p textPrompter) Ask(ctx context.Context, question string) (string, error) {
	p.b.out.Prompt(question)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev := <-p.b.queue.Events():
			switch ev.Kind {
			case event.KindLine:
				return strings.TrimSpace(ev.Text), nil
			case event.KindEOF:
				if ev.Source == SourceStdin {
					return "", io.ErrUnexpectedEOF
				}
			default:
				log.Debug("Ignoring hotkey while prompting", "kind", ev.Kind)
			}
		}
	}
}

// voicePrompter records one take per question.
type voicePrompter struct{ b *Bot }

func (p voicePrompter) Ask(ctx context.Context, question string) (string, error) {
	p.b.out.Info("%s", question)
	if !p.b.state.Leap {
		if err := p.b.speech.Speak(ctx, question, p.b.state.VoiceName); err != nil {
			log.Warn("Failed to speak question", "err", err)
		}
	}

	text, err := p.b.speech.Listen(ctx, nil, false)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty answer")
	}
	p.b.out.User(text)
	return text, nil
}
