package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait   = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.

	// SDP offers routinely exceed the usual chat-message limit.
	maxMessageSize = 16 * 1024
)

var errSendBufferFull = errors.New("send buffer full")

// Client is the websocket-backed Conn implementation: a middleman between
// one websocket connection and the relay.
type Client struct {
	id    string
	relay *Relay
	conn  *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte
}

func NewClient(r *Relay, conn *websocket.Conn) *Client {
	return &Client{
		id:    uuid.NewString(),
		relay: r,
		conn:  conn,
		send:  make(chan []byte, 256),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues one envelope for delivery. It never blocks: when the client
// cannot drain its buffer the frame is dropped and the caller gets an error
// to log, keeping one slow connection from stalling a broadcast.
func (c *Client) Send(event string, data json.RawMessage) error {
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

// ReadPump pumps frames from the websocket to the relay. One goroutine per
// connection; the serial loop is what gives each connection FIFO ordering
// over its own events. On transport loss it tells the relay to evict the
// connection, which triggers presence cleanup and the offline broadcast.
func (c *Client) ReadPump() {
	defer func() {
		c.relay.Disconnect(context.Background(), c.id)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("relay: conn %s read error: %v", c.id, err)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("relay: conn %s sent malformed frame: %v", c.id, err)
			continue
		}
		c.relay.HandleEvent(context.Background(), c, env)
	}
}

// WritePump pumps queued frames to the websocket and keeps the connection
// alive with pings. Exits when a write fails, which happens shortly after
// ReadPump closes the underlying connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
