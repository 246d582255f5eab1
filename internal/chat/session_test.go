package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	rcerrors "rollcage/internal/errors"
)

func setupSessionTest(t *testing.T) (*Session, *MockClient) {
	ctrl := gomock.NewController(t)
	client := NewMockClient(ctrl)
	return NewSession(client, "llama3", "llava"), client
}

func TestSendAppendsReply(t *testing.T) {
	s, client := setupSessionTest(t)

	client.EXPECT().
		Chat(gomock.Any(), "llama3", []Message{UserMessage("hello")}).
		Return(Message{Role: RoleAssistant, Content: "hi!"}, nil).
		Times(1)

	reply, err := s.Send(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "hi!", reply)

	want := []Message{UserMessage("hello"), AssistantMessage("hi!")}
	if diff := cmp.Diff(want, s.History()); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestSendSendsAccumulatedHistory(t *testing.T) {
	s, client := setupSessionTest(t)
	s.Replace([]Message{UserMessage("one"), AssistantMessage("1")})

	client.EXPECT().
		Chat(gomock.Any(), "llama3", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, msgs []Message) (Message, error) {
			assert.Len(t, msgs, 3)
			assert.Equal(t, UserMessage("two"), msgs[2])
			return Message{Content: "2"}, nil
		})

	_, err := s.Send(context.Background(), "two", nil)
	require.NoError(t, err)

	history := s.History()
	require.Len(t, history, 4)
	assert.Equal(t, RoleAssistant, history[3].Role, "missing role defaults to assistant")
}

func TestSendServiceErrorKeepsOnlyUserMessage(t *testing.T) {
	s, client := setupSessionTest(t)

	client.EXPECT().
		Chat(gomock.Any(), "llama3", gomock.Any()).
		Return(Message{}, errors.New("dial tcp 127.0.0.1:11434: connection refused"))

	reply, err := s.Send(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.Empty(t, reply)

	var se *rcerrors.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "llama3", se.Model)
	assert.True(t, strings.HasPrefix(rcerrors.Display(err), "Error:"))

	assert.Equal(t, []Message{UserMessage("hello")}, s.History())
}

func TestSendWithScreenshotSplicesVisionNote(t *testing.T) {
	s, client := setupSessionTest(t)

	gomock.InOrder(
		client.EXPECT().
			Chat(gomock.Any(), "llava", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, msgs []Message) (Message, error) {
				require.Len(t, msgs, 1)
				assert.Equal(t, VisionPrompt, msgs[0].Content)
				assert.Equal(t, []string{"iVBORw=="}, msgs[0].Images)
				return AssistantMessage("a terminal window"), nil
			}),
		client.EXPECT().
			Chat(gomock.Any(), "llama3", gomock.Any()).
			Return(AssistantMessage("I see your terminal."), nil),
	)

	png := []byte{0x89, 0x50, 0x4e, 0x47}
	reply, err := s.Send(context.Background(), "what am I doing?", png)
	require.NoError(t, err)
	assert.Equal(t, "I see your terminal.", reply)

	history := s.History()
	require.Len(t, history, 3)
	assert.Equal(t, AssistantMessage(VisionNote+"a terminal window"), history[1])
}

func TestSendVisionFailureStillChats(t *testing.T) {
	s, client := setupSessionTest(t)

	gomock.InOrder(
		client.EXPECT().Chat(gomock.Any(), "llava", gomock.Any()).Return(Message{}, errors.New("model not found")),
		client.EXPECT().Chat(gomock.Any(), "llama3", gomock.Any()).Return(AssistantMessage("ok"), nil),
	)

	_, err := s.Send(context.Background(), "hi", []byte("png"))
	require.NoError(t, err)
	assert.Len(t, s.History(), 2)
}

func TestVisionHistoryNeverExceedsTwo(t *testing.T) {
	s, client := setupSessionTest(t)

	calls := 0
	client.EXPECT().
		Chat(gomock.Any(), "llava", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, msgs []Message) (Message, error) {
			calls++
			assert.LessOrEqual(t, len(msgs), 3)
			if calls%3 == 0 {
				return Message{}, errors.New("timeout")
			}
			return AssistantMessage("objects"), nil
		}).
		Times(7)

	for i := 0; i < 7; i++ {
		_, _ = s.Vision(context.Background(), []byte("png"))
		assert.LessOrEqual(t, len(s.VisionHistory()), 2)
	}
	assert.Empty(t, s.History(), "vision calls leave the main history alone")
}

func TestReplaceAndLastReply(t *testing.T) {
	s, _ := setupSessionTest(t)

	_, ok := s.LastReply()
	assert.False(t, ok)

	msgs := []Message{UserMessage("q"), AssistantMessage("a"), UserMessage("q2")}
	s.Replace(msgs)
	msgs[1].Content = "mutated"

	last, ok := s.LastReply()
	require.True(t, ok)
	assert.Equal(t, "a", last)

	s.Reset()
	assert.Empty(t, s.History())
}

func TestSetModel(t *testing.T) {
	s, _ := setupSessionTest(t)
	s.SetModel("mistral")
	assert.Equal(t, "mistral", s.Model())
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleSystem.Valid())
	assert.False(t, Role("model").Valid())
}
