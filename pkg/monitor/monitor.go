// Package monitor fans uplink traffic out to websocket clients, for
// watching a gateway's received packets live in a browser.
package monitor

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/radiotalks/lora.go/pkg/gateway"
	"github.com/radiotalks/lora.go/pkg/gateway/mqtt"
)

// Hub tracks connected websocket clients and broadcasts messages to
// them.
type Hub struct {
	lock    sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan []byte)}
}

// Broadcast queues msg to every connected client. Slow clients drop
// messages rather than stall the hub.
func (h *Hub) Broadcast(msg []byte) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Handler returns the websocket handler streaming broadcasts to each
// client until it disconnects.
func (h *Hub) Handler() websocket.Handler {
	return func(conn *websocket.Conn) {
		ch := make(chan []byte, 64)
		h.lock.Lock()
		h.clients[conn] = ch
		n := len(h.clients)
		h.lock.Unlock()
		glog.V(1).Infof("monitor client connected (%d total)", n)

		defer func() {
			h.lock.Lock()
			delete(h.clients, conn)
			h.lock.Unlock()
		}()
		for msg := range ch {
			if err := websocket.Message.Send(conn, string(msg)); err != nil {
				return
			}
		}
	}
}

// Monitor subscribes to a gateway's uplink topic and serves the
// stream over websocket.
type Monitor struct {
	Addr      string
	GatewayID string
	Queue     *mqtt.Queue
	Hub       *Hub
}

// New creates a Monitor listening on addr.
func New(addr, gatewayID string, queue *mqtt.Queue) *Monitor {
	return &Monitor{
		Addr:      addr,
		GatewayID: gatewayID,
		Queue:     queue,
		Hub:       NewHub(),
	}
}

// Run implements run.Runnable.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Queue.Connect(); err != nil {
		return err
	}
	defer m.Queue.Close()

	topic := m.GatewayID + gateway.TopicUp
	if m.GatewayID == "" {
		topic = "+" + gateway.TopicUp // all gateways under the prefix
	}
	if err := m.Queue.Sub(topic, func(topic string, payload []byte) {
		m.Hub.Broadcast(payload)
	}); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", m.Addr)
	if err != nil {
		return err
	}
	glog.Infof("monitor listening on %s", ln.Addr())

	mux := http.NewServeMux()
	mux.Handle("/ws", m.Hub.Handler())
	srv := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.Serve(ln); err != http.ErrServerClosed && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}
