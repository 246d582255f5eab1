// Package chat keeps the conversation with the model service: the main
// history and a short side history for the vision model.
package chat

import (
	"context"
	"encoding/base64"
	"errors"
	log "log/slog"
	"sync"

	rcerrors "rollcage/internal/errors"
)

const (
	VisionPrompt = "what objects are in this screen share image?"
	VisionNote   = "LLAVA_DATA: "

	visionKeep = 2
)

type Session struct {
	mu sync.Mutex

	client      Client
	model       string
	visionModel string

	history []Message
	vision  []Message
}

func NewSession(client Client, model, visionModel string) *Session {
	return &Session{
		client:      client,
		model:       model,
		visionModel: visionModel,
	}
}

// Send appends text as a user message, calls the model with the full history
// and appends the reply. With a screenshot, the vision model's observation is
// spliced in as an assistant note before the call. On failure the history
// keeps the user message and no assistant entry.
func (s *Session) Send(ctx context.Context, text string, screenshot []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, UserMessage(text))

	if screenshot != nil {
		note, err := s.see(ctx, screenshot)
		if err != nil {
			log.Warn("Vision prompt failed", "model", s.visionModel, "err", err)
		} else {
			s.history = append(s.history, AssistantMessage(VisionNote+note))
		}
	}

	reply, err := s.client.Chat(ctx, s.model, clone(s.history))
	if err != nil {
		return "", serviceError(s.model, err)
	}
	if reply.Role == "" {
		reply.Role = RoleAssistant
	}

	s.history = append(s.history, reply)
	return reply.Content, nil
}

// Vision asks the vision model what is on the screenshot. Only the last two
// vision entries are kept between calls.
func (s *Session) Vision(ctx context.Context, png []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.see(ctx, png)
}

func (s *Session) see(ctx context.Context, png []byte) (string, error) {
	defer func() { s.vision = lastN(s.vision, visionKeep) }()

	s.vision = append(s.vision, Message{
		Role:    RoleUser,
		Content: VisionPrompt,
		Images:  []string{base64.StdEncoding.EncodeToString(png)},
	})

	reply, err := s.client.Chat(ctx, s.visionModel, clone(s.vision))
	if err != nil {
		return "", serviceError(s.visionModel, err)
	}
	if reply.Role == "" {
		reply.Role = RoleAssistant
	}

	s.vision = append(s.vision, reply)
	return reply.Content, nil
}

func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.history)
}

func (s *Session) VisionHistory() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.vision)
}

// Replace swaps the whole history, as after loading a saved conversation.
func (s *Session) Replace(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = clone(msgs)
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.vision = nil
}

func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

func (s *Session) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

// LastReply is the content of the newest assistant message, if any.
func (s *Session) LastReply() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Role == RoleAssistant {
			return s.history[i].Content, true
		}
	}
	return "", false
}

func serviceError(model string, err error) error {
	var se *rcerrors.ServiceError
	if errors.As(err, &se) {
		return err
	}
	return rcerrors.NewServiceError(model, 0, err)
}

func clone(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	return append([]Message(nil), msgs...)
}

func lastN(msgs []Message, n int) []Message {
	if len(msgs) <= n {
		return msgs
	}
	return append([]Message(nil), msgs[len(msgs)-n:]...)
}
