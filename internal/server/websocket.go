package server

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kode4food/flowrun/internal/events"
	"github.com/kode4food/flowrun/pkg/api"
	"github.com/kode4food/flowrun/pkg/log"
)

// Client is a WebSocket connection streaming run events
type Client struct {
	conn     *websocket.Conn
	consumer *events.Consumer
	done     chan struct{}
	once     sync.Once
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	wsBufferSize   = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleWebSocket(c *gin.Context) {
	filter := BuildFilter(
		api.FlowRunID(c.Query("flow_run_id")), c.Query("types"),
	)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed",
			log.Error(err))
		return
	}

	client := &Client{
		conn:     conn,
		consumer: s.hub.NewConsumer(filter),
		done:     make(chan struct{}),
	}
	s.registerWebSocket(client)

	go func() {
		defer s.unregisterWebSocket(client)
		client.run()
	}()
}

// BuildFilter selects events for one flow run and a comma-separated list
// of event types. Empty arguments match everything
func BuildFilter(id api.FlowRunID, types string) events.EventFilter {
	var filters []events.EventFilter
	if id != "" {
		filters = append(filters, events.FilterFlowRun(id))
	}
	if types != "" {
		var evTypes []api.EventType
		for _, t := range strings.Split(types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				evTypes = append(evTypes, api.EventType(t))
			}
		}
		filters = append(filters, events.FilterEvents(evTypes...))
	}
	if len(filters) == 0 {
		return events.AllEvents
	}
	return events.AndFilters(filters...)
}

// Close stops the client and closes its connection
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Client) run() {
	defer func() {
		c.consumer.Close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	closed := make(chan struct{})
	go c.readMessages(closed)

	for {
		select {
		case <-closed:
			return

		case <-c.done:
			c.sendClose()
			return

		case ev, ok := <-c.consumer.Receive():
			if !ok {
				c.sendClose()
				return
			}
			if !c.sendEvent(ev) {
				return
			}

		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

// readMessages drains inbound frames so control messages are processed,
// and signals when the peer goes away
func (c *Client) readMessages(closed chan struct{}) {
	defer close(closed)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) sendEvent(ev *api.RunEvent) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(ev); err != nil {
		slog.Error("WebSocket write failed",
			log.FlowRunID(ev.FlowRunID),
			log.Error(err))
		return false
	}
	return true
}

func (c *Client) sendPing() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(websocket.PingMessage, nil)
	return err == nil
}

func (c *Client) sendClose() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
