package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"rollcage/internal/chat"
	rcerrors "rollcage/internal/errors"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	msgs := []chat.Message{
		chat.UserMessage("what is a monad?"),
		chat.AssistantMessage(chat.VisionNote + "a terminal window"),
		chat.AssistantMessage("a monoid in the category of endofunctors ✨"),
		{Role: chat.RoleUser, Content: "and this?", Images: []string{"aW1n"}},
	}

	require.NoError(t, store.Save("llama3", "notes", msgs))

	got, err := store.Load("llama3", "notes")
	require.NoError(t, err)
	if diff := cmp.Diff(msgs, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveWritesIndentedArray(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	require.NoError(t, store.Save("llama3", "notes", []chat.Message{chat.UserMessage("hi")}))

	data, err := os.ReadFile(filepath.Join(root, "llama3", "notes.json"))
	require.NoError(t, err)

	assert.True(t, gjson.ValidBytes(data))
	assert.True(t, gjson.ParseBytes(data).IsArray())
	assert.Equal(t, "user", gjson.GetBytes(data, "0.role").String())
	assert.Contains(t, string(data), "\n  {\n    \"role\": \"user\"")
	assert.False(t, gjson.GetBytes(data, "0.images").Exists())
}

func TestSaveOverwrites(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save("a", "n", []chat.Message{chat.UserMessage("one"), chat.AssistantMessage("1")}))
	require.NoError(t, store.Save("a", "n", []chat.Message{chat.UserMessage("two")}))

	got, err := store.Load("a", "n")
	require.NoError(t, err)
	assert.Equal(t, []chat.Message{chat.UserMessage("two")}, got)

	entries, err := os.ReadDir(filepath.Dir(store.Path("a", "n")))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Load("llama3", "nothing")
	require.Error(t, err)
	assert.ErrorIs(t, err, rcerrors.ErrNotFound)
	assert.Equal(t, "file", rcerrors.Kind(err))
}

func TestLoadRejectsBadRole(t *testing.T) {
	store := NewStore(t.TempDir())
	path := store.Path("a", "bad")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`[{"role":"wizard","content":"x"}]`), 0o644))

	_, err := store.Load("a", "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, rcerrors.ErrNotFound)
}

func TestPath(t *testing.T) {
	store := NewStore("/lib")

	tests := []struct {
		name  string
		agent string
		save  string
		want  string
	}{
		{"plain", "llama3", "notes", "/lib/llama3/notes.json"},
		{"nested agent", "borch/mistral", "notes", "/lib/borch/mistral/notes.json"},
		{"traversal", "../../etc", "../passwd", "/lib/etc/passwd.json"},
		{"empty name", "llama3", "", "/lib/llama3/default.json"},
		{"spaces", "llama3", "my notes", "/lib/llama3/my_notes.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), store.Path(tt.agent, tt.save))
		})
	}
}

func TestList(t *testing.T) {
	store := NewStore(t.TempDir())

	names, err := store.List("llama3")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, store.Save("llama3", "b", nil))
	require.NoError(t, store.Save("llama3", "a", nil))
	require.NoError(t, store.Save("mistral", "c", nil))

	names, err = store.List("llama3")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}
