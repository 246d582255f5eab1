package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

// Intent is the classifier's verdict for an utterance that did not match a
// command literally. Command is empty when the utterance is a chat prompt.
type Intent struct {
	Command string `json:"command"`
	Args    string `json:"args"`
}

const systemPrompt = `
You are the command router of a voice chatbot.
Your ONLY job is to decide whether the user's utterance asks for one of the
commands below, and output a minimal JSON object.

RULES:
1. Do NOT converse.
2. Do NOT answer the question.
3. Output ONLY JSON. No markdown.
4. Never invent commands that are not listed.

OUTPUT FORMAT:
{
  "command": "<one of the commands, or empty string>",
  "args": "<argument text for the command, or empty string>"
}

COMMANDS:
%s

If the utterance is an ordinary question or statement, output
{"command": "", "args": ""}.
`

type Classifier struct {
	client openai.Client
	model  string
}

func NewClassifier(client openai.Client, model string) *Classifier {
	return &Classifier{client: client, model: model}
}

// Classify asks the model which of commands, if any, transcript requests.
func (c *Classifier) Classify(ctx context.Context, commands []string, transcript string) (Intent, error) {
	prompt := fmt.Sprintf(systemPrompt, "- "+strings.Join(commands, "\n- "))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt),
			openai.UserMessage(transcript),
		},
		Model: openai.ChatModel(c.model),
	})
	if err != nil {
		return Intent{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Intent{}, fmt.Errorf("no choices in response")
	}

	content := stripFence(resp.Choices[0].Message.Content)
	if content == "" {
		return Intent{}, fmt.Errorf("empty message content")
	}

	log.Debug("Classified", "data", content)

	var out Intent
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return Intent{}, fmt.Errorf("unmarshal intent: %w (raw: %s)", err, content)
	}
	out.Command = strings.ToLower(strings.TrimSpace(out.Command))
	out.Args = strings.TrimSpace(out.Args)

	return out, nil
}

// Line renders the intent as an input line for the dispatcher.
func (i Intent) Line() string {
	if i.Args == "" {
		return i.Command
	}
	return i.Command + " " + i.Args
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
