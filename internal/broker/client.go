package broker

import (
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Client is one attached transport connection. The Send channel is buffered
// and written to with a non-blocking send: a client that stops reading loses
// realtime frames but never stalls the broker, and it recovers from the
// persisted store on its next fetch.
type Client struct {
	Id   string
	Conn ConnLike
	Send chan []byte

	// Heartbeat settings; zero disables the ping ticker (tests).
	PingInterval time.Duration
	ReadTimeout  time.Duration
}

// ConnLike is the slice of *websocket.Conn the broker needs, so pumps and
// fan-out are testable without a network stack.
type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

func (c *Client) trySend(data []byte) {
	select {
	case c.Send <- data:
	default:
	}
}

// ReadPump decodes envelopes off the wire and hands them to the broker loop.
// Any read error, graceful close or heartbeat timeout alike, ends in the
// same unregister path.
func (c *Client) ReadPump(b *Broker) {
	if c.ReadTimeout > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
		c.Conn.SetPongHandler(func(string) error {
			return c.Conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
		})
	}
	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			b.Unregister(c)
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			b.log.Debug().Str("conn", c.Id).Msg("unparseable frame dropped")
			continue
		}
		b.Dispatch(c, env.Event, env.Data)
	}
}

// WritePump drains the Send channel onto the wire and keeps the connection
// alive with periodic pings.
func (c *Client) WritePump() {
	var ping <-chan time.Time
	if c.PingInterval > 0 {
		ticker := time.NewTicker(c.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer func() { _ = c.Conn.Close() }()
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
