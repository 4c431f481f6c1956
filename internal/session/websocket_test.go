package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/meetingmind-streamer/internal/protocol"
	"github.com/Raikerian/meetingmind-streamer/internal/session"
	"github.com/Raikerian/meetingmind-streamer/internal/transport"
)

// newStalledServer accepts one handshake and then never reads again.
func newStalledServer(t *testing.T) string {
	t.Helper()

	stalled := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		_, _, _ = ws.ReadMessage()
		<-stalled
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(stalled) })

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStop_PeerStoppedReading(t *testing.T) {
	url := newStalledServer(t)

	logger := zaptest.NewLogger(t)
	h := baseHarness(nil)
	h.cfg.Server.WriteTimeout = 100 * time.Millisecond
	dialer := transport.NewWebSocketDialer(logger, h.cfg.Server.WriteTimeout)
	h.build(t, protocol.NewClient(logger, dialer, url, nil))

	_, mic := startLive(t, h, session.StartOptions{})
	for range 16 {
		mic.Push(frame(1<<20, 0.1))
	}

	stopped := make(chan struct{})
	go func() {
		h.ctrl.Stop(context.Background())
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("stop blocked behind a peer that stopped reading")
	}

	h.waitState(t, session.StateIdle)
	assert.Equal(t, 1, mic.Closes())
	require.Eventually(t, func() bool { return len(h.api.Stopped()) == 1 }, waitFor, 2*time.Millisecond)
	assert.Len(t, h.ctrl.History(), 1)
}
