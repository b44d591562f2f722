package hub

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultSendBuffer is the per-client outbound queue length.
const DefaultSendBuffer = 256

// Client is one participant's websocket connection. It implements Channel.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	participantID string
	send          chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient creates a Client. bufferSize <= 0 uses DefaultSendBuffer.
func NewClient(hub *Hub, conn *websocket.Conn, participantID string, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}
	return &Client{
		hub:           hub,
		conn:          conn,
		participantID: participantID,
		send:          make(chan []byte, bufferSize),
	}
}

func (c *Client) ParticipantID() string { return c.participantID }

// Send queues frame without blocking. A full queue or a closed client drops it.
func (c *Client) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		logrus.WithField("participant_id", c.participantID).Warn("Client send channel full, dropping frame")
		return false
	}
}

// Close closes the send queue; WritePump then sends a close frame and exits.
// Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Run registers the client with the hub and starts its pumps.
func (c *Client) Run() {
	c.hub.Connect(c.participantID, c)
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump routes frames from the websocket connection through the hub, in
// the order they arrive. It runs in its own goroutine.
func (c *Client) ReadPump() {
	logCtx := logrus.WithField("participant_id", c.participantID)
	defer func() {
		c.hub.Disconnect(c.participantID, c)
		c.conn.Close()
		logCtx.Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			logCtx.Debugf("Received non-text message type: %d", messageType)
			continue
		}
		c.hub.Route(context.Background(), c.participantID, c, message)
	}
}

// WritePump writes queued frames to the websocket connection and keeps it
// alive with pings. It runs in its own goroutine.
func (c *Client) WritePump() {
	logCtx := logrus.WithField("participant_id", c.participantID)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logCtx.Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}
