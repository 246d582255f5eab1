// Package ollama talks to the native HTTP API of a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"rollcage/internal/chat"
	rcerrors "rollcage/internal/errors"
)

const DefaultEndpoint = "http://localhost:11434"

type Client struct {
	endpoint string
	http     *http.Client
}

// New returns a client for endpoint. A nil httpClient gets a plain client
// with timeout; pass one from proxy.NewSocksClient to go through a proxy.
func New(endpoint string, httpClient *http.Client, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     httpClient,
	}
}

func (c *Client) Endpoint() string { return c.endpoint }

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chat.Message `json:"messages"`
	Stream   bool           `json:"stream"`
}

// Chat sends the whole history in one non-streaming call.
func (c *Client) Chat(ctx context.Context, model string, messages []chat.Message) (chat.Message, error) {
	if messages == nil {
		messages = []chat.Message{}
	}
	body, err := c.do(ctx, http.MethodPost, "/api/chat", model, chatRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return chat.Message{}, err
	}

	msg := gjson.GetBytes(body, "message")
	content := msg.Get("content")
	if !msg.IsObject() || !content.Exists() {
		return chat.Message{}, invalid(model, body)
	}

	role := chat.Role(msg.Get("role").String())
	if !role.Valid() {
		role = chat.RoleAssistant
	}
	return chat.Message{Role: role, Content: content.String()}, nil
}

// ModelInfo is the subset of /api/show the bot prints or reuses.
type ModelInfo struct {
	Modelfile  string
	Template   string
	License    string
	Parameters string
	System     string
}

func (c *Client) Show(ctx context.Context, model string) (ModelInfo, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/show", model, map[string]string{"model": model})
	if err != nil {
		return ModelInfo{}, err
	}

	res := gjson.ParseBytes(body)
	if !res.IsObject() {
		return ModelInfo{}, invalid(model, body)
	}

	return ModelInfo{
		Modelfile:  res.Get("modelfile").String(),
		Template:   res.Get("template").String(),
		License:    res.Get("license").String(),
		Parameters: res.Get("parameters").String(),
		System:     res.Get("system").String(),
	}, nil
}

type ModelSummary struct {
	Name       string
	Size       int64
	ModifiedAt string
}

// List returns the locally installed models.
func (c *Client) List(ctx context.Context) ([]ModelSummary, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/tags", "", nil)
	if err != nil {
		return nil, err
	}

	models := gjson.GetBytes(body, "models")
	if !models.IsArray() {
		return nil, invalid("", body)
	}

	var out []ModelSummary
	models.ForEach(func(_, m gjson.Result) bool {
		out = append(out, ModelSummary{
			Name:       m.Get("name").String(),
			Size:       m.Get("size").Int(),
			ModifiedAt: m.Get("modified_at").String(),
		})
		return true
	})
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path, model string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, rcerrors.NewServiceError(model, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rcerrors.NewServiceError(model, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	if msg := gjson.GetBytes(body, "error"); msg.Exists() {
		return nil, rcerrors.NewServiceError(model, resp.StatusCode, errors.New(msg.String()))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, rcerrors.NewServiceError(model, resp.StatusCode, errors.New(snippet(body)))
	}
	if !gjson.ValidBytes(body) {
		return nil, invalid(model, body)
	}
	return body, nil
}

func invalid(model string, body []byte) error {
	return rcerrors.NewServiceError(model, 0, fmt.Errorf("%w: %s", rcerrors.ErrInvalidResponse, snippet(body)))
}

const snippetLen = 200

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > snippetLen {
		cut := snippetLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}
