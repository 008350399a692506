package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meridian-robotics/rappd/internal/infrastructure/logging"
	"github.com/meridian-robotics/rappd/internal/infrastructure/monitoring"
	"github.com/meridian-robotics/rappd/internal/shared/types"
)

// Feed topics carried over the WebSocket endpoint.
const (
	TopicInstalledApps = "installed_apps_list"
	TopicRunnableApps  = "runnable_apps_list"
)

const (
	writeTimeout = 10 * time.Second
	sendBuffer   = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev
	},
}

// AppListFeed is the payload carried by both application list topics.
type AppListFeed struct {
	Apps    []types.RappInfo `json:"apps"`
	Running string           `json:"running"`
}

type feedMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	out  chan []byte
}

// Hub fans feed messages out to WebSocket subscribers. The last
// message of every topic is retained and replayed to new subscribers,
// so a late joiner always knows the current lists without asking.
type Hub struct {
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	clients  map[*client]struct{}
	retained map[string][]byte
	closed   bool
}

// NewHub creates an empty feed hub.
func NewHub(log *logging.Logger, metrics *monitoring.Metrics) *Hub {
	return &Hub{
		log:      log.Component("ws"),
		metrics:  metrics,
		clients:  map[*client]struct{}{},
		retained: map[string][]byte{},
	}
}

// Publish broadcasts one topic message and retains it for future
// subscribers.
func (h *Hub) Publish(topic string, payload interface{}) {
	msg, err := sonic.Marshal(feedMessage{
		Type:      topic,
		Data:      payload,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		h.log.Error("failed to encode feed message", zap.String("topic", topic), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.retained[topic] = msg
	for cl := range h.clients {
		h.enqueueLocked(cl, msg)
	}
}

// HandleConnection upgrades one request and serves it until the peer
// goes away. Retained topic messages are delivered before anything
// published later.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	cl := &client{conn: conn, out: make(chan []byte, sendBuffer)}
	if !h.add(cl) {
		return
	}
	defer h.remove(cl)

	go cl.writePump()

	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type == "ping" {
			pong, _ := sonic.Marshal(feedMessage{Type: "pong", Timestamp: time.Now().Unix()})
			h.send(cl, pong)
		}
	}
}

// add registers a subscriber and queues the retained messages.
func (h *Hub) add(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl] = struct{}{}
	for _, msg := range h.retained {
		h.enqueueLocked(cl, msg)
	}
	h.metrics.SetWSConnections(len(h.clients))
	return true
}

// remove drops a subscriber. Safe to call more than once.
func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	close(cl.out)
	h.metrics.SetWSConnections(len(h.clients))
}

// send enqueues to one subscriber if it is still registered.
func (h *Hub) send(cl *client, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; !ok {
		return
	}
	h.enqueueLocked(cl, msg)
}

// enqueueLocked queues without blocking; a subscriber that cannot keep
// up is dropped rather than allowed to stall the publisher. Caller
// holds mu.
func (h *Hub) enqueueLocked(cl *client, msg []byte) {
	select {
	case cl.out <- msg:
	default:
		h.log.Warn("dropping slow websocket subscriber")
		delete(h.clients, cl)
		close(cl.out)
		h.metrics.SetWSConnections(len(h.clients))
	}
}

// Close drops every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.out)
	}
	h.metrics.SetWSConnections(0)
}

func (cl *client) writePump() {
	defer cl.conn.Close()
	for msg := range cl.out {
		cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
