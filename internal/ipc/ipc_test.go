package ipc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSendAndReceive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")
	got := make(chan ControlMessage, 2)

	srv, err := StartServer(context.Background(), path, func(msg ControlMessage) {
		got <- msg
	})
	require.NoError(t, err)
	defer srv.Close()

	require.NoError(t, SendCommand(path, ControlMessage{Cmd: "auto"}))
	require.NoError(t, SendCommand(path, ControlMessage{Cmd: "line", Text: "/leap on"}))

	for _, want := range []ControlMessage{{Cmd: "auto"}, {Cmd: "line", Text: "/leap on"}} {
		select {
		case msg := <-got:
			assert.Equal(t, want, msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("no message %v", want)
		}
	}
}

func TestSendWithoutServer(t *testing.T) {
	err := SendCommand(filepath.Join(t.TempDir(), "none.sock"), ControlMessage{Cmd: "auto"})
	assert.Error(t, err)
}

func TestServerStopsOnContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")
	ctx, cancel := context.WithCancel(context.Background())

	srv, err := StartServer(ctx, path, func(ControlMessage) {})
	require.NoError(t, err)

	cancel()
	require.NoError(t, srv.Close())

	assert.Error(t, SendCommand(path, ControlMessage{Cmd: "auto"}))
}
