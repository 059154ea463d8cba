package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pegbot/internal/domain"
)

type chanBus struct {
	domain.SignalBus
	chans map[string]chan []byte
}

func newChanBus() *chanBus {
	b := &chanBus{chans: map[string]chan []byte{}}
	for _, ch := range Channels {
		b.chans[ch] = make(chan []byte, 4)
	}
	return b
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	return b.chans[channel], nil
}

type staticStatus map[string]any

func (s staticStatus) Snapshot() any { return map[string]any(s) }

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubRelaysSubscribedChannels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newChanBus()
	hub := NewHub(bus, staticStatus{"mode": "bot"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(httpHandler(hub))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	status := readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelStatus, status.Channel)
	assert.JSONEq(t, `{"mode":"bot"}`, string(status.Payload))

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelEvaluation}}))
	// The unsubscribe is applied asynchronously; give the read pump a moment.
	time.Sleep(100 * time.Millisecond)

	bus.chans[domain.ChannelEvaluation] <- []byte(`{"bot":"ust"}`)
	bus.chans[domain.ChannelExecution] <- []byte(`{"tx_hash":"ABC"}`)

	env := readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelExecution, env.Channel)
	assert.JSONEq(t, `{"tx_hash":"ABC"}`, string(env.Payload))
}

func TestIsSubscribedWildcard(t *testing.T) {
	c := &client{subs: map[string]bool{"arb:*": true}}
	assert.True(t, c.isSubscribed(domain.ChannelExecution))
	assert.False(t, c.isSubscribed(domain.ChannelStatus))
}

func httpHandler(h *Hub) http.Handler { return http.HandlerFunc(h.HandleWS) }
