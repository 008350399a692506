package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-robotics/rappd/internal/infrastructure/logging"
	"github.com/meridian-robotics/rappd/internal/shared/types"
)

type wireMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

func newFeedServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(logging.NewNop(), nil)
	t.Cleanup(hub.Close)

	router := gin.New()
	router.GET("/ws", hub.HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func installedFeed(names ...string) AppListFeed {
	feed := AppListFeed{}
	for _, n := range names {
		feed.Apps = append(feed.Apps, types.RappInfo{Name: n, Status: types.StatusStopped})
	}
	return feed
}

func TestLateSubscriberReceivesRetainedTopics(t *testing.T) {
	hub, srv := newFeedServer(t)

	hub.Publish(TopicInstalledApps, installedFeed("teleop", "mapping"))
	hub.Publish(TopicRunnableApps, installedFeed("teleop"))

	conn := dial(t, srv)

	got := map[string]wireMessage{}
	for range 2 {
		msg := readMessage(t, conn)
		got[msg.Type] = msg
	}

	require.Contains(t, got, TopicInstalledApps)
	require.Contains(t, got, TopicRunnableApps)

	var feed AppListFeed
	require.NoError(t, json.Unmarshal(got[TopicInstalledApps].Data, &feed))
	require.Len(t, feed.Apps, 2)
	assert.Equal(t, "teleop", feed.Apps[0].Name)
}

func TestRetainedTopicKeepsOnlyLatest(t *testing.T) {
	hub, srv := newFeedServer(t)

	hub.Publish(TopicRunnableApps, installedFeed("old"))
	hub.Publish(TopicRunnableApps, installedFeed("new"))

	conn := dial(t, srv)
	msg := readMessage(t, conn)
	require.Equal(t, TopicRunnableApps, msg.Type)

	var feed AppListFeed
	require.NoError(t, json.Unmarshal(msg.Data, &feed))
	require.Len(t, feed.Apps, 1)
	assert.Equal(t, "new", feed.Apps[0].Name)
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	hub, srv := newFeedServer(t)

	first := dial(t, srv)
	second := dial(t, srv)

	// Connections register asynchronously with respect to Dial
	// returning; wait until the hub sees both.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.Lock()
		n := len(hub.clients)
		hub.mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	running := AppListFeed{Apps: []types.RappInfo{{Name: "teleop", Status: types.StatusRunning}}, Running: "teleop"}
	hub.Publish(TopicRunnableApps, running)

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, TopicRunnableApps, msg.Type)

		var feed AppListFeed
		require.NoError(t, json.Unmarshal(msg.Data, &feed))
		assert.Equal(t, "teleop", feed.Running)
	}
}

func TestPingPong(t *testing.T) {
	_, srv := newFeedServer(t)

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	msg := readMessage(t, conn)
	assert.Equal(t, "pong", msg.Type)
}

func TestCloseDisconnectsSubscribers(t *testing.T) {
	hub, srv := newFeedServer(t)

	conn := dial(t, srv)
	hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "subscriber should see the connection drop")
}
