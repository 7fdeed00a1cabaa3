package hub

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func startHub(t *testing.T) (*Hub, string, chan Message) {
	t.Helper()
	inbound := make(chan Message, 16)
	h := New(func(_ context.Context, m Message) { inbound <- m })

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http"), inbound
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func writeJSON(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

func readJSON(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func receive(t *testing.T, ch chan Message) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("no inbound message")
		return Message{}
	}
}

func TestQueuedMessagesFlushOnRegister(t *testing.T) {
	h, url, _ := startHub(t)
	ctx := context.Background()

	require.NoError(t, h.Send(ctx, "com.example.counter", map[string]any{"event": "first"}))
	require.NoError(t, h.Send(ctx, "com.example.counter", map[string]any{"event": "second"}))
	require.NoError(t, h.Send(ctx, "com.example.other", map[string]any{"event": "other"}))
	assert.Equal(t, 2, h.Queued("com.example.counter"))
	assert.False(t, h.Connected("com.example.counter"))

	c := dial(t, url)
	writeJSON(t, c, registerEvent{Event: EventRegisterPlugin, UUID: "com.example.counter"})

	assert.Equal(t, "first", readJSON(t, c)["event"])
	assert.Equal(t, "second", readJSON(t, c)["event"])

	require.Eventually(t, func() bool { return h.Connected("com.example.counter") }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, h.Queued("com.example.counter"))
	assert.Equal(t, 1, h.Queued("com.example.other"))

	require.NoError(t, h.Send(ctx, "com.example.counter", map[string]any{"event": "live"}))
	assert.Equal(t, "live", readJSON(t, c)["event"])
}

func TestInboundMessagesReachHandler(t *testing.T) {
	_, url, inbound := startHub(t)

	c := dial(t, url)
	writeJSON(t, c, registerEvent{Event: EventRegisterPlugin, UUID: "com.example.counter"})
	writeJSON(t, c, map[string]any{"event": "setSettings", "context": "d.p.Keypad.0.0", "payload": map[string]any{}})

	m := receive(t, inbound)
	assert.Equal(t, PeerPlugin, m.Kind)
	assert.Equal(t, "com.example.counter", m.ID)
	assert.Contains(t, string(m.Data), "setSettings")
}

func TestInspectorRegistration(t *testing.T) {
	h, url, inbound := startHub(t)
	ctx := context.Background()
	actionCtx := "pk-01.Default.Keypad.4.0"

	require.NoError(t, h.SendToInspector(ctx, actionCtx, map[string]any{"event": "didReceiveSettings"}))

	c := dial(t, url)
	writeJSON(t, c, registerEvent{Event: EventRegisterInspector, UUID: actionCtx})
	assert.Equal(t, "didReceiveSettings", readJSON(t, c)["event"])

	writeJSON(t, c, map[string]any{"event": "getSettings", "context": actionCtx})
	m := receive(t, inbound)
	assert.Equal(t, PeerInspector, m.Kind)
	assert.Equal(t, actionCtx, m.ID)

	assert.False(t, h.Connected(actionCtx), "inspectors are not plugins")
}

func TestUnregisteredFirstMessage(t *testing.T) {
	_, url, inbound := startHub(t)

	c := dial(t, url)
	writeJSON(t, c, map[string]any{"event": "openUrl", "payload": map[string]any{"url": "https://example.com"}})

	m := receive(t, inbound)
	assert.Equal(t, PeerPlugin, m.Kind)
	assert.Empty(t, m.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestDisconnectQueuesAgain(t *testing.T) {
	h, url, _ := startHub(t)

	c := dial(t, url)
	writeJSON(t, c, registerEvent{Event: EventRegisterPlugin, UUID: "p"})
	require.Eventually(t, func() bool { return h.Connected("p") }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return !h.Connected("p") }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Send(context.Background(), "p", map[string]any{"event": "later"}))
	assert.Equal(t, 1, h.Queued("p"))
}

func TestServeStopsOnCancel(t *testing.T) {
	h := New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
