package server

import (
	"sync"
	"time"

	"market-pulse/src/logger"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Pump settings
// -----------------------------------------------------------------------------

type pumpSettings struct {
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64
	sendBuffer     int
}

func newPumpSettings(writeWait, pongWait time.Duration, maxMessageSize int64, sendBuffer int) pumpSettings {
	return pumpSettings{
		writeWait:      writeWait,
		pongWait:       pongWait,
		pingPeriod:     (pongWait * 9) / 10,
		maxMessageSize: maxMessageSize,
		sendBuffer:     sendBuffer,
	}
}

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

// Client owns one websocket and its outbound queue. It implements Sender.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	settings pumpSettings
	logger   *logger.Logger

	mu        sync.Mutex
	closed    bool
	closeCode int
}

// -----------------------------------------------------------------------------

func newClient(conn *websocket.Conn, settings pumpSettings, log *logger.Logger) *Client {
	return &Client{
		conn:      conn,
		send:      make(chan []byte, settings.sendBuffer),
		settings:  settings,
		logger:    log,
		closeCode: websocket.CloseGoingAway,
	}
}

// -----------------------------------------------------------------------------

// Send queues a frame without blocking
func (c *Client) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// -----------------------------------------------------------------------------

// Close stops the write pump, which sends a going-away close frame
func (c *Client) Close() {
	c.CloseWith(websocket.CloseGoingAway)
}

// CloseWith is Close with an explicit close code
func (c *Client) CloseWith(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	close(c.send)
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Act as a Watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump(onMessage func([]byte)) {
	c.conn.SetReadLimit(c.settings.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.settings.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.settings.pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Info("WebSocket error: %v", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		onMessage(message)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends queued frames and keeps the connection alive with pings
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(c.settings.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.settings.writeWait))
			if !ok {
				c.mu.Lock()
				code := c.closeCode
				c.mu.Unlock()
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Info("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.settings.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
