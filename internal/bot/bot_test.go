package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcage/internal/agent"
	"rollcage/internal/chat"
	"rollcage/internal/event"
	"rollcage/internal/history"
	"rollcage/internal/nlu"
	"rollcage/internal/ollama"
	"rollcage/internal/render"
	"rollcage/internal/state"
)

type chatCall struct {
	Model    string         `json:"model"`
	Messages []chat.Message `json:"messages"`
}

// fakeOllama serves /api/chat, /api/show and /api/tags.
type fakeOllama struct {
	mu    sync.Mutex
	calls []chatCall
	fail  bool
	seen  chan string
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/chat":
		var req chatCall
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.calls = append(f.calls, req)
		fail := f.fail
		f.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"model crashed"}`))
			return
		}
		last := req.Messages[len(req.Messages)-1].Content
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "echo: " + last},
		})
		if f.seen != nil {
			f.seen <- last
		}
	case "/api/show":
		w.Write([]byte(`{"modelfile":"FROM llama3:latest","template":"{{ .Prompt }}","license":"META LLAMA 3"}`))
	case "/api/tags":
		w.Write([]byte(`{"models":[{"name":"llama3:latest","size":4661224676},{"name":"llava:latest","size":4733363377}]}`))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeOllama) chats() []chatCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatCall(nil), f.calls...)
}

type runnerCall struct {
	name string
	args []string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []runnerCall
}

func (r *fakeRunner) Run(_ context.Context, _ string, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, runnerCall{name: name, args: args})
	return nil, nil
}

type fixture struct {
	bot    *Bot
	out    *bytes.Buffer
	queue  *event.Queue
	server *fakeOllama
	store  *history.Store
	runner *fakeRunner
	root   string
}

func setupBot(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()

	srv := &fakeOllama{}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	root := t.TempDir()
	client := ollama.New(ts.URL, ts.Client(), 0)
	runner := &fakeRunner{}
	creator := agent.NewCreator(filepath.Join(root, "agents"), filepath.Join(root, "models"), "ollama", agent.ConverterConfig{})
	creator.Runner = runner

	out := &bytes.Buffer{}
	q := event.NewQueue(16)
	opt := Options{
		Session: chat.NewSession(client, "llama3", "llava"),
		Store:   history.NewStore(filepath.Join(root, "conversations")),
		Creator: creator,
		Models:  client,
		Out:     render.New(out),
		Queue:   q,
		State:   state.Default("llama3"),
	}
	if mutate != nil {
		mutate(&opt)
	}

	return &fixture{
		bot:    New(opt),
		out:    out,
		queue:  q,
		server: srv,
		store:  opt.Store,
		runner: runner,
		root:   root,
	}
}

func (f *fixture) process(t *testing.T, line string) {
	t.Helper()
	require.NoError(t, f.bot.Process(context.Background(), line, SourceStdin))
}

func TestActivateLeapOn(t *testing.T) {
	f := setupBot(t, func(o *Options) { o.State.Leap = false })

	f.process(t, "activate leap on")

	assert.True(t, f.bot.State().Leap)
	assert.Empty(t, f.server.chats(), "a command never reaches the model")
}

func TestActivateSaveAsOnlyRecordsName(t *testing.T) {
	f := setupBot(t, nil)

	f.process(t, "activate save as notes")

	assert.Equal(t, "notes", f.bot.State().SaveName)
	assert.Empty(t, f.server.chats())
	assert.NoFileExists(t, f.store.Path("llama3", "notes"))
}

func TestChatTurn(t *testing.T) {
	f := setupBot(t, nil)

	f.process(t, "hello there")

	calls := f.server.chats()
	require.Len(t, calls, 1)
	assert.Equal(t, "llama3", calls[0].Model)
	assert.Contains(t, f.out.String(), "llama3: echo: hello there")

	want := []chat.Message{chat.UserMessage("hello there"), chat.AssistantMessage("echo: hello there")}
	if diff := cmp.Diff(want, f.bot.session.History()); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestSendFailurePrintsError(t *testing.T) {
	f := setupBot(t, nil)
	f.server.fail = true

	f.process(t, "hello")

	assert.Contains(t, f.out.String(), "Error: model llama3: status 500: model crashed")
	assert.Equal(t, []chat.Message{chat.UserMessage("hello")}, f.bot.session.History())
}

func TestSaveAndLoad(t *testing.T) {
	f := setupBot(t, nil)

	f.process(t, "first")
	f.process(t, "/save as notes")
	require.FileExists(t, f.store.Path("llama3", "notes"))
	saved := f.bot.session.History()

	f.process(t, "second")
	before := f.bot.session.History()

	f.process(t, "/load as missing")
	assert.Contains(t, f.out.String(), "Error: file ")
	assert.Equal(t, before, f.bot.session.History(), "failed load keeps history")

	f.process(t, "/load as notes")
	if diff := cmp.Diff(saved, f.bot.session.History()); diff != "" {
		t.Errorf("loaded history mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveWithoutNameUsesDefault(t *testing.T) {
	f := setupBot(t, nil)

	f.process(t, "/save as")
	assert.FileExists(t, f.store.Path("llama3", history.DefaultName))

	f.out.Reset()
	f.process(t, "/load as")
	assert.Contains(t, f.out.String(), "Saved conversations: default")
}

func TestFlagCommands(t *testing.T) {
	f := setupBot(t, nil)

	f.process(t, "/speech on")
	s := f.bot.State()
	assert.True(t, s.Listen)
	assert.False(t, s.Leap)

	f.process(t, "/auto on")
	assert.True(t, f.bot.State().AutoSpeech)

	f.process(t, "activate listen off")
	s = f.bot.State()
	assert.False(t, s.Listen)
	assert.False(t, s.AutoSpeech, "recording cannot stay armed without voice input")

	f.process(t, "/latex on")
	f.process(t, "/llava flow")
	f.process(t, "/splice on")
	f.process(t, "/command auto on")
	s = f.bot.State()
	assert.True(t, s.Latex)
	assert.True(t, s.Llava)
	assert.True(t, s.Splice)
	assert.True(t, s.AutoCommands)

	f.process(t, "/llava freeze")
	assert.False(t, f.bot.State().Llava)
	assert.Empty(t, f.server.chats())
}

func TestVoiceSwapIsSticky(t *testing.T) {
	f := setupBot(t, nil)

	f.process(t, "/voice swap de")
	assert.Equal(t, "de", f.bot.State().VoiceName)
	assert.Contains(t, f.out.String(), "Voice is de")

	f.process(t, "/leap off")
	assert.Equal(t, "de", f.bot.State().VoiceName)
}

func TestSwap(t *testing.T) {
	f := setupBot(t, nil)
	f.process(t, "hello")

	f.process(t, "/swap mistral:7b")

	assert.Equal(t, "mistral:7b", f.bot.State().Model)
	assert.Equal(t, "mistral:7b", f.bot.session.Model())
	assert.Empty(t, f.bot.session.History())

	f.process(t, "hi")
	calls := f.server.chats()
	assert.Equal(t, "mistral:7b", calls[len(calls)-1].Model)
}

func TestSwapAsksForName(t *testing.T) {
	f := setupBot(t, nil)
	require.True(t, f.queue.TryPublish(event.Event{Kind: event.KindLine, Text: "phi3"}))

	f.process(t, "activate swap")

	assert.Equal(t, "phi3", f.bot.State().Model)
	assert.Contains(t, f.out.String(), "PROVIDE AGENT NAME ")
}

func TestOllamaCommands(t *testing.T) {
	f := setupBot(t, nil)

	f.process(t, "/ollama list")
	assert.Contains(t, f.out.String(), "- llama3:latest (4.3 GiB)")

	f.process(t, "/ollama license")
	assert.Contains(t, f.out.String(), "META LLAMA 3")

	f.process(t, "/ollama template")
	assert.Equal(t, "{{ .Prompt }}", f.bot.template)

	for _, answer := range []string{"borch", "0.7.", "You are a helpful pirate."} {
		require.True(t, f.queue.TryPublish(event.Event{Kind: event.KindLine, Text: answer}))
	}
	f.process(t, "activate create")

	modelfile, err := os.ReadFile(filepath.Join(f.root, "agents", "borch", "modelfile"))
	require.NoError(t, err)
	assert.Contains(t, string(modelfile), "FROM llama3")
	assert.Contains(t, string(modelfile), "PARAMETER temperature 0.7")
	assert.Contains(t, string(modelfile), `TEMPLATE """`)

	require.Len(t, f.runner.calls, 1)
	assert.Equal(t, "ollama", f.runner.calls[0].name)
	assert.Equal(t, []string{"create", "borch", "-f", filepath.Join(f.root, "agents", "borch", "modelfile")}, f.runner.calls[0].args)
	assert.Contains(t, f.out.String(), "Created agent borch from llama3")
}

func TestConvertGGUFMissingArtifact(t *testing.T) {
	f := setupBot(t, nil)
	for _, answer := range []string{"qwen", "borch", "1", "sys"} {
		require.True(t, f.queue.TryPublish(event.Event{Kind: event.KindLine, Text: answer}))
	}

	f.process(t, "/convert gguf")

	assert.Contains(t, f.out.String(), "Error: file ")
	assert.Empty(t, f.runner.calls)
}

func TestConvertTensorNotConfigured(t *testing.T) {
	f := setupBot(t, nil)

	f.process(t, "activate convert tensor mistral-7b")
	assert.Equal(t, "mistral-7b", f.bot.State().TensorName)
	assert.Contains(t, f.out.String(), "Noted tensor mistral-7b")

	f.process(t, "/convert tensor")
	assert.Contains(t, f.out.String(), "Error: command convert")
}

func TestCopy(t *testing.T) {
	var copied string
	f := setupBot(t, func(o *Options) {
		o.Clipboard = func(s string) error { copied = s; return nil }
	})

	f.process(t, "/copy")
	assert.Contains(t, f.out.String(), "Nothing to copy yet")

	f.process(t, "what is go")
	f.process(t, "/copy")
	assert.Equal(t, "echo: what is go", copied)
}

func TestQuit(t *testing.T) {
	f := setupBot(t, nil)
	require.True(t, f.queue.TryPublish(event.Event{Kind: event.KindLine, Text: "activate quit", Source: SourceStdin}))

	assert.NoError(t, f.bot.Run(context.Background()))
}

func TestRunEndsOnStdinEOF(t *testing.T) {
	f := setupBot(t, nil)
	require.NoError(t, event.ReadLines(context.Background(), strings.NewReader("hello\n"), f.queue, SourceStdin))

	require.NoError(t, f.bot.Run(context.Background()))
	assert.Len(t, f.server.chats(), 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := setupBot(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, f.bot.Run(ctx), context.Canceled)
}

type fakeClassifier struct {
	intent nlu.Intent
	err    error
	seen   []string
}

func (c *fakeClassifier) Classify(_ context.Context, commands []string, transcript string) (nlu.Intent, error) {
	c.seen = commands
	return c.intent, c.err
}

func TestAutoCommands(t *testing.T) {
	cls := &fakeClassifier{intent: nlu.Intent{Command: "/leap off"}}
	f := setupBot(t, func(o *Options) {
		o.Intent = cls
		o.State.AutoCommands = true
	})

	f.process(t, "please start talking to me")
	assert.False(t, f.bot.State().Leap)
	assert.Empty(t, f.server.chats())
	assert.Contains(t, cls.seen, "/leap off")

	cls.intent = nlu.Intent{Command: "/not a command"}
	f.process(t, "tell me a joke")
	assert.Len(t, f.server.chats(), 1)

	cls.err = errors.New("classifier down")
	f.process(t, "another joke")
	assert.Len(t, f.server.chats(), 2)
}

type fakeScreen struct{ splice []bool }

func (s *fakeScreen) Capture(_ context.Context, splice bool) ([]byte, error) {
	s.splice = append(s.splice, splice)
	return []byte{0x89, 0x50, 0x4e, 0x47}, nil
}

type fakeLatex struct{ replies []string }

func (l *fakeLatex) Export(_ context.Context, agent, reply string) (string, error) {
	l.replies = append(l.replies, agent+":"+reply)
	return "/tmp/x.tex", nil
}

func TestLlavaAndLatex(t *testing.T) {
	screen := &fakeScreen{}
	tex := &fakeLatex{}
	f := setupBot(t, func(o *Options) {
		o.Screen = screen
		o.Latex = tex
		o.State.Llava = true
		o.State.Splice = true
		o.State.Latex = true
	})

	f.process(t, "what is on my screen")

	calls := f.server.chats()
	require.Len(t, calls, 2)
	assert.Equal(t, "llava", calls[0].Model)
	assert.Equal(t, []string{"iVBORw=="}, calls[0].Messages[len(calls[0].Messages)-1].Images)

	assert.Equal(t, "llama3", calls[1].Model)
	msgs := calls[1].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.UserMessage("what is on my screen"), msgs[0])
	assert.True(t, strings.HasPrefix(msgs[1].Content, chat.VisionNote))

	assert.Equal(t, []bool{true}, screen.splice)
	assert.Len(t, tex.replies, 1)
	assert.Contains(t, f.out.String(), "LaTeX written to /tmp/x.tex")
}

type fakeSpeech struct {
	mu      sync.Mutex
	started chan bool
	text    string
	said    []string
	onSpeak func()

	active    int
	maxActive int
}

func (s *fakeSpeech) Listen(ctx context.Context, stop <-chan struct{}, chunk bool) (string, error) {
	s.mu.Lock()
	s.active++
	s.maxActive = max(s.maxActive, s.active)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if s.started != nil {
		s.started <- chunk
	}
	if chunk {
		select {
		case <-stop:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.text, nil
}

func (s *fakeSpeech) Speak(_ context.Context, text, voice string) error {
	s.mu.Lock()
	s.said = append(s.said, voice+":"+text)
	s.mu.Unlock()
	if s.onSpeak != nil {
		s.onSpeak()
	}
	return nil
}

func TestHotkeyRecordsAndSpeaks(t *testing.T) {
	sp := &fakeSpeech{text: "what time is it"}
	f := setupBot(t, func(o *Options) {
		o.Speech = sp
		o.State = state.Apply(o.State, state.SetSpeech(true))
	})
	sp.onSpeak = func() {
		f.queue.TryPublish(event.Event{Kind: event.KindLine, Text: "/quit", Source: SourceIPC})
	}

	require.True(t, f.queue.TryPublish(event.Event{Kind: event.KindAuto, Source: SourceIPC}))
	require.NoError(t, f.bot.Run(context.Background()))

	assert.Equal(t, []string{"en:echo: what time is it"}, sp.said)
	assert.Contains(t, f.out.String(), "> what time is it")
	assert.False(t, f.bot.State().AutoSpeech)
}

func TestChunkCutsRecording(t *testing.T) {
	sp := &fakeSpeech{text: "long dictation", started: make(chan bool, 1)}
	f := setupBot(t, func(o *Options) {
		o.Speech = sp
		o.State.Listen = true
	})
	f.server.seen = make(chan string, 1)

	done := make(chan error, 1)
	go func() { done <- f.bot.Run(context.Background()) }()

	require.True(t, f.queue.TryPublish(event.Event{Kind: event.KindChunk, Source: SourceIPC}))

	select {
	case chunk := <-sp.started:
		assert.True(t, chunk, "chunk hotkey arms a manual take")
	case <-time.After(5 * time.Second):
		t.Fatal("recording never started")
	}

	require.True(t, f.queue.TryPublish(event.Event{Kind: event.KindChunk, Source: SourceIPC}))

	select {
	case got := <-f.server.seen:
		assert.Equal(t, "long dictation", got)
	case <-time.After(5 * time.Second):
		t.Fatal("take was never sent")
	}

	require.True(t, f.queue.TryPublish(event.Event{Kind: event.KindLine, Text: "/quit", Source: SourceIPC}))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestAutoWithoutListenIsIgnored(t *testing.T) {
	f := setupBot(t, func(o *Options) { o.Speech = &fakeSpeech{} })

	require.NoError(t, f.bot.handle(context.Background(), event.Event{Kind: event.KindAuto}))

	assert.False(t, f.bot.State().AutoSpeech)
	assert.Contains(t, f.out.String(), "Voice input is off")
}

func TestPromptTakesMicFromRunningTake(t *testing.T) {
	sp := &fakeSpeech{text: "mistral", started: make(chan bool, 4)}
	f := setupBot(t, func(o *Options) {
		o.Speech = sp
		o.State.Listen = true
	})

	done := make(chan error, 1)
	go func() { done <- f.bot.Run(context.Background()) }()

	require.True(t, f.queue.TryPublish(event.Event{Kind: event.KindChunk, Source: SourceIPC}))
	select {
	case <-sp.started:
	case <-time.After(5 * time.Second):
		t.Fatal("recording never started")
	}

	require.True(t, f.queue.TryPublish(event.Event{Kind: event.KindLine, Text: "/swap", Source: SourceIPC}))
	require.True(t, f.queue.TryPublish(event.Event{Kind: event.KindLine, Text: "/quit", Source: SourceIPC}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not finish")
	}

	assert.Equal(t, 1, sp.maxActive)
	assert.Equal(t, "mistral", f.bot.State().Model)
	assert.False(t, f.bot.State().AutoSpeech)
	assert.Empty(t, f.server.chats(), "the cut take is not sent")
}

func TestListenOffDropsRunningTake(t *testing.T) {
	sp := &fakeSpeech{text: "stale dictation", started: make(chan bool, 1)}
	f := setupBot(t, func(o *Options) {
		o.Speech = sp
		o.State = state.Apply(o.State, state.SetListen(true), state.SetChunk(true))
	})
	ctx := context.Background()

	f.bot.maybeRecord(ctx)
	require.NotNil(t, f.bot.rec)
	select {
	case <-sp.started:
	case <-time.After(5 * time.Second):
		t.Fatal("recording never started")
	}

	f.process(t, "/listen off")

	assert.Nil(t, f.bot.rec)
	assert.False(t, f.bot.State().Listen)
	assert.False(t, f.bot.State().Chunk)
	assert.Empty(t, f.server.chats())
	assert.NotContains(t, f.out.String(), "stale dictation")
}
