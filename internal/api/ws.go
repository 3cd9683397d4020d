package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wagateway/internal/notify"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
	wsQueueSize  = 64
)

type wsMessage struct {
	Type      string          `json:"type"`
	ChannelID string          `json:"channelId,omitempty"`
	TenantID  string          `json:"tenantId,omitempty"`
	Event     *notify.Event   `json:"event,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// errPushBacklog is returned when a socket is too slow to keep up.
var errPushBacklog = errors.New("push socket backlog full")

// wsChannel is a push channel backed by one websocket connection. Every
// outgoing message goes through out and is written by pump, so Deliver
// never waits on the network.
type wsChannel struct {
	id   string
	conn *websocket.Conn
	out  chan wsMessage
	// mu orders a registration reply before the events it enables.
	mu sync.Mutex
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{id: "ws-" + uuid.NewString(), conn: conn, out: make(chan wsMessage, wsQueueSize)}
}

func (c *wsChannel) ID() string { return c.id }

func (c *wsChannel) Deliver(ctx context.Context, evt notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueue(wsMessage{Type: "event", Event: &evt})
}

func (c *wsChannel) enqueue(m wsMessage) error {
	select {
	case c.out <- m:
		return nil
	default:
		return errPushBacklog
	}
}

// reply queues an answer to a client message.
func (c *wsChannel) reply(m wsMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueue(m)
}

// register binds the channel and queues the acknowledgement in one step.
func (c *wsChannel) register(registry *notify.Registry, tenant string) (notify.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := registry.Register(tenant, c)
	return prev, c.enqueue(wsMessage{Type: "registered", ChannelID: c.id, TenantID: tenant})
}

// pump is the only writer on the connection. A failed write closes it,
// which ends the read loop.
func (c *wsChannel) pump(done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		var err error
		select {
		case <-done:
			return
		case m := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err = c.conn.WriteJSON(m)
		case <-ticker.C:
			err = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
		}
		if err != nil {
			_ = c.conn.Close()
			return
		}
	}
}

// PushWSHandler handles GET /v1/ws. The client sends {"type":"register"} to
// become the tenant's push channel; closing the socket unregisters it.
func (s *Server) PushWSHandler(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	ch := newWSChannel(conn)
	registry := s.Orch.Notifier().Registry()
	defer registry.Unregister(ch)
	log := s.log.With("tenant", tenant, "channel", ch.ID())

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })

	done := make(chan struct{})
	defer close(done)
	go ch.pump(done)

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Debug("push socket closed", "err", err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		var err error
		switch msg.Type {
		case "register":
			var prev notify.Channel
			prev, err = ch.register(registry, tenant)
			if prev != nil && prev.ID() != ch.ID() {
				log.Info("push channel replaced", "previous", prev.ID())
			}
			log.Info("push channel registered")
		case "unregister":
			registry.Unregister(ch)
			err = ch.reply(wsMessage{Type: "unregistered", ChannelID: ch.ID()})
		case "ping":
			err = ch.reply(wsMessage{Type: "pong"})
		default:
			err = ch.reply(wsMessage{Type: "error", Payload: json.RawMessage(`{"message":"unknown message type"}`)})
		}
		if err != nil {
			log.Warn("push socket dropped", "err", err)
			return
		}
	}
}
