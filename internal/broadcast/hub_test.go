package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"messager/internal/storage"
)

var testUpgrader = websocket.Upgrader{}

func startHub(t *testing.T) *Hub {
	t.Helper()

	hub := NewHub(zap.NewNop().Sugar())
	go hub.Run()
	t.Cleanup(func() {
		hub.Shutdown(time.Second)
	})

	return hub
}

// gatewayServer exposes the hub over a real websocket endpoint the way the
// HTTP layer does in production.
func gatewayServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(NewConn(sock, hub, r.RemoteAddr))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
	})

	return client
}

func readEvent(t *testing.T, client *websocket.Conn) map[string]interface{} {
	t.Helper()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := client.ReadMessage()
	require.NoError(t, err)

	var ev map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &ev))

	return ev
}

func TestRegisterAddsConnection(t *testing.T) {
	hub := startHub(t)
	srv := gatewayServer(t, hub)

	dial(t, srv)

	require.Eventually(t, func() bool {
		return hub.ConnCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnectRemovesConnection(t *testing.T) {
	hub := startHub(t)
	srv := gatewayServer(t, hub)

	client := dial(t, srv)
	require.Eventually(t, func() bool {
		return hub.ConnCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	client.Close()

	require.Eventually(t, func() bool {
		return hub.ConnCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastReachesEveryConnection(t *testing.T) {
	hub := startHub(t)
	srv := gatewayServer(t, hub)

	first := dial(t, srv)
	second := dial(t, srv)
	third := dial(t, srv)

	require.Eventually(t, func() bool {
		return hub.ConnCount() == 3
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(NewMessage(storage.Message{ID: 1, ChannelID: 2, AuthorID: 3, Content: "hello", Username: "alice"}))

	for _, client := range []*websocket.Conn{first, second, third} {
		ev := readEvent(t, client)
		require.Equal(t, KindNewMessage, ev["type"])

		msg, ok := ev["message"].(map[string]interface{})
		require.True(t, ok)
		require.EqualValues(t, 1, msg["id"])
		require.EqualValues(t, 2, msg["channel_id"])
		require.Equal(t, "hello", msg["content"])
		require.Equal(t, "alice", msg["username"])
	}
}

func TestFanOutSurvivesDeadConnection(t *testing.T) {
	hub := startHub(t)
	srv := gatewayServer(t, hub)

	doomed := dial(t, srv)
	healthy := dial(t, srv)
	other := dial(t, srv)

	require.Eventually(t, func() bool {
		return hub.ConnCount() == 3
	}, 2*time.Second, 10*time.Millisecond)

	// simulate a vanished client
	doomed.Close()

	hub.Broadcast(MessageDeleted(7, 2))

	for _, client := range []*websocket.Conn{healthy, other} {
		ev := readEvent(t, client)
		require.Equal(t, KindMessageDeleted, ev["type"])
		require.EqualValues(t, 7, ev["id"])
		require.EqualValues(t, 2, ev["channel_id"])
	}

	require.Eventually(t, func() bool {
		return hub.ConnCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInboundPayloadsAreDiscarded(t *testing.T) {
	hub := startHub(t)
	srv := gatewayServer(t, hub)

	client := dial(t, srv)
	other := dial(t, srv)

	require.Eventually(t, func() bool {
		return hub.ConnCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	// inbound frames are a liveness signal only; nothing is echoed or relayed
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"new_message"}`)))

	hub.Broadcast(ChannelDeleted(5))

	ev := readEvent(t, other)
	require.Equal(t, KindChannelDeleted, ev["type"])
	require.EqualValues(t, 5, ev["id"])

	ev = readEvent(t, client)
	require.Equal(t, KindChannelDeleted, ev["type"])
}

func TestShutdownClosesConnections(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())
	go hub.Run()
	srv := gatewayServer(t, hub)

	client := dial(t, srv)
	require.Eventually(t, func() bool {
		return hub.ConnCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Shutdown(2*time.Second))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
}

func TestEventPayloads(t *testing.T) {
	t.Parallel()

	ev := MessageDeleted(41, 12)
	require.Equal(t, KindMessageDeleted, ev.Kind)
	require.JSONEq(t, `{"type":"message_deleted","id":41,"channel_id":12}`, string(ev.Payload))

	ev = ChannelDeleted(12)
	require.Equal(t, KindChannelDeleted, ev.Kind)
	require.JSONEq(t, `{"type":"channel_deleted","id":12}`, string(ev.Payload))
}
