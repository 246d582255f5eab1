package chat

//go:generate mockgen -destination=./client_mock_test.go -package=chat -source=client.go

import "context"

// Client is the chat-completion service. Chat sends the whole history in one
// non-streaming call and returns the assistant message.
type Client interface {
	Chat(ctx context.Context, model string, messages []Message) (Message, error)
}
