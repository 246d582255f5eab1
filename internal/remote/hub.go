// Package remote connects the bot to a websocket hub. Prompts and hotkeys
// from the hub enter the loop through the event queue; replies go back to
// whoever sent the last prompt.
package remote

import (
	"context"
	"encoding/json"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"rollcage/internal/event"
)

const (
	KindPrompt = "prompt"
	KindHotkey = "hotkey"
	KindReply  = "reply"

	Broadcast = "ALL"
)

type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

type Config struct {
	URL       string
	Name      string
	Reconnect time.Duration
}

type Hub struct {
	cfg Config

	mu       sync.Mutex
	conn     *ws.Conn
	lastFrom string
}

func Dial(ctx context.Context, cfg Config) (*Hub, error) {
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = time.Second
	}
	log.Debug("Dialing hub", "url", cfg.URL)

	conn, _, err := ws.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, err
	}

	log.Info("Connected to hub", "url", cfg.URL, "name", cfg.Name)
	return &Hub{cfg: cfg, conn: conn}, nil
}

// Run reads the hub until ctx is done, reconnecting on close.
func (h *Hub) Run(ctx context.Context, q *event.Queue) error {
	stop := context.AfterFunc(ctx, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.conn.Close()
	})
	defer stop()

	for {
		_, data, err := h.current().ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isClosed(err) {
				log.Warn("Hub connection closed, reconnecting", "url", h.cfg.URL, "err", err)
			} else {
				log.Error("Failed to read hub", "err", err)
			}
			if err := h.reconnect(ctx); err != nil {
				return err
			}
			log.Info("Reconnected to hub")
			continue
		}

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn("Failed to parse hub message", "msg", string(data), "err", err)
			continue
		}
		if m.To != h.cfg.Name && m.To != Broadcast {
			continue
		}

		ev, ok := h.toEvent(m)
		if !ok {
			log.Warn("Unsupported hub message", "kind", m.Kind, "content", m.Content)
			continue
		}
		if err := q.Publish(ctx, ev); err != nil {
			return err
		}
	}
}

func (h *Hub) toEvent(m Message) (event.Event, bool) {
	switch m.Kind {
	case KindPrompt:
		h.mu.Lock()
		h.lastFrom = m.From
		h.mu.Unlock()
		return event.Event{Kind: event.KindLine, Text: m.Content, Source: "remote"}, true
	case KindHotkey:
		kind, ok := event.ParseKind(m.Content)
		if !ok || kind == event.KindLine {
			return event.Event{}, false
		}
		return event.Event{Kind: kind, Source: "remote"}, true
	}
	return event.Event{}, false
}

// Reply sends content to the sender of the last prompt. Without one it is a
// no-op.
func (h *Hub) Reply(content string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.lastFrom == "" {
		return nil
	}

	data, err := json.Marshal(Message{
		From:    h.cfg.Name,
		To:      h.lastFrom,
		Kind:    KindReply,
		Content: content,
	})
	if err != nil {
		return err
	}
	log.Debug("Write hub", "to", h.lastFrom)
	return h.conn.WriteMessage(ws.TextMessage, data)
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn.Close()
}

func (h *Hub) current() *ws.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn
}

func (h *Hub) reconnect(ctx context.Context) error {
	t := time.NewTicker(h.cfg.Reconnect)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}

		conn, _, err := ws.DefaultDialer.DialContext(ctx, h.cfg.URL, nil)
		if err != nil {
			log.Debug("Reconnect failed", "err", err)
			continue
		}

		h.mu.Lock()
		h.conn.Close()
		h.conn = conn
		h.mu.Unlock()
		return nil
	}
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
