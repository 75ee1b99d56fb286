package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"market-pulse/src/logger"
	"market-pulse/src/models"
	"market-pulse/src/protocol"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// State of the reconnecting client
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

var ErrNotConnected = errors.New("not connected")

// -----------------------------------------------------------------------------
// Transport
// -----------------------------------------------------------------------------

// Conn is the part of *websocket.Conn the client uses
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a transport to url
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket
type WebsocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

type Options struct {
	URL         string
	BaseDelay   time.Duration // first reconnect delay, doubled per attempt
	MaxAttempts int           // reconnect attempts before giving up
	SettleDelay time.Duration // wait after open before replaying interest
	DialTimeout time.Duration
	Dialer      Dialer
	Clock       clock.Clock
	Logger      *logger.Logger
}

func (o *Options) applyDefaults() {
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 100 * time.Millisecond
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = WebsocketDialer{}
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = logger.NewLogger(nil, "client")
	}
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// Client keeps one websocket alive across drops. The desired interest is
// owned here and replayed in full after every open, since the server keeps
// no state between connections.
type Client struct {
	opts   Options
	logger *logger.Logger

	onFrame func(event models.EventType, data []byte)
	onState func(State)

	mu          sync.Mutex
	state       State
	conn        Conn
	generation  uint64
	attempts    int
	backoff     *backoff.ExponentialBackOff
	timer       *clock.Timer
	intentional bool
	clientID    string
	symbols     map[string]struct{}
	events      map[string]struct{}

	writeMu sync.Mutex
}

// -----------------------------------------------------------------------------

func New(opts Options) *Client {
	opts.applyDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Reset()

	return &Client{
		opts:    opts,
		logger:  opts.Logger,
		state:   StateDisconnected,
		backoff: b,
		symbols: make(map[string]struct{}),
		events:  make(map[string]struct{}),
	}
}

// -----------------------------------------------------------------------------

// OnFrame installs the frame handler. Must be called before Connect.
func (c *Client) OnFrame(fn func(event models.EventType, data []byte)) {
	c.onFrame = fn
}

// OnStateChange installs the state handler. Must be called before Connect.
func (c *Client) OnStateChange(fn func(State)) {
	c.onState = fn
}

// -----------------------------------------------------------------------------

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts is the number of reconnect attempts since the last open
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// ClientID is the id from the latest connection_status frame
func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// Desired returns the desired interest, sorted
func (c *Client) Desired() (symbols, events []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.symbols), sortedKeys(c.events)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Connect opens the first connection. A failed dial enters the reconnect
// cycle like any abnormal close; the error is still returned.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("client is %s", c.state)
	}
	c.intentional = false
	c.attempts = 0
	c.backoff.Reset()
	c.mu.Unlock()

	return c.dial(ctx)
}

// -----------------------------------------------------------------------------

// Disconnect cancels any pending reconnect and closes with the normal
// closure code. The client stays disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.stopTimerLocked()
	conn := c.conn
	c.conn = nil
	c.generation++
	changed := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	c.notify(changed)
}

// -----------------------------------------------------------------------------

func (c *Client) dial(ctx context.Context) error {
	c.mu.Lock()
	changed := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	c.notify(changed)

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	conn, err := c.opts.Dialer.Dial(dialCtx, c.opts.URL)
	cancel()

	c.mu.Lock()
	if c.intentional || c.state != StateConnecting {
		// disconnected while dialing
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return err
	}
	if err != nil {
		gen := c.generation
		c.mu.Unlock()
		c.logger.Warning("Dial %s failed: %v", c.opts.URL, err)
		c.handleClose(gen, websocket.CloseAbnormalClosure)
		return err
	}
	c.openLocked(conn)
	c.mu.Unlock()
	c.notify(StateConnected)
	return nil
}

// -----------------------------------------------------------------------------

// openLocked moves to connected, resets the backoff and schedules the
// interest replay after the settle delay.
func (c *Client) openLocked(conn Conn) {
	c.generation++
	gen := c.generation
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.backoff.Reset()

	go c.readLoop(gen, conn)

	if len(c.symbols) > 0 || len(c.events) > 0 {
		c.stopTimerLocked()
		c.timer = c.opts.Clock.AfterFunc(c.opts.SettleDelay, func() { c.replay(gen) })
	}
	c.logger.Info("Connected to %s", c.opts.URL)
}

// -----------------------------------------------------------------------------

func (c *Client) replay(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	msg := models.SubscribeMessage{Symbols: sortedKeys(c.symbols), Events: sortedKeys(c.events)}
	c.mu.Unlock()

	if err := c.send(msg); err != nil {
		c.logger.Warning("Interest replay failed: %v", err)
	}
}

// -----------------------------------------------------------------------------

func (c *Client) readLoop(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
			}
			c.handleClose(gen, code)
			return
		}

		event, err := protocol.FrameType(data)
		if err != nil {
			c.logger.Debug("Ignoring undecodable frame: %v", err)
			continue
		}
		if event == models.EventConnectStatus {
			var status models.ConnectionStatusFrame
			if err := json.Unmarshal(data, &status); err == nil {
				c.mu.Lock()
				c.clientID = status.ClientID
				c.mu.Unlock()
			}
		}
		if c.onFrame != nil {
			c.onFrame(event, data)
		}
	}
}

// -----------------------------------------------------------------------------

// handleClose reacts to the end of connection gen. Code 1000 or an explicit
// Disconnect ends the session; anything else schedules the next attempt at
// BaseDelay * 2^(n-1) until MaxAttempts is exceeded.
func (c *Client) handleClose(gen uint64, code int) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	if code == websocket.CloseNormalClosure || c.intentional {
		changed := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		c.logger.Info("Connection closed normally")
		c.notify(changed)
		return
	}

	c.attempts++
	if c.attempts > c.opts.MaxAttempts {
		changed := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		c.logger.Error("Giving up after %d reconnect attempts", c.opts.MaxAttempts)
		c.notify(changed)
		return
	}

	delay := c.backoff.NextBackOff()
	attempt := c.attempts
	changed := c.setStateLocked(StateReconnecting)
	c.stopTimerLocked()
	c.timer = c.opts.Clock.AfterFunc(delay, func() { c.reconnect(gen) })
	c.mu.Unlock()

	c.logger.Warning("Connection lost (code %d), reconnect attempt %d in %s", code, attempt, delay)
	c.notify(changed)
}

// -----------------------------------------------------------------------------

func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	_ = c.dial(context.Background())
}

// -----------------------------------------------------------------------------
// Interest
// -----------------------------------------------------------------------------

// Subscribe adds to the desired interest and, when connected, sends the
// subscribe frame right away.
func (c *Client) Subscribe(symbols, events []string) error {
	c.mu.Lock()
	for _, s := range symbols {
		if s = models.NormalizeSymbol(s); s != "" {
			c.symbols[s] = struct{}{}
		}
	}
	for _, e := range events {
		c.events[e] = struct{}{}
	}
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.send(models.SubscribeMessage{Symbols: symbols, Events: events})
}

// -----------------------------------------------------------------------------

// Unsubscribe removes from the desired interest and, when connected, sends
// the unsubscribe frame.
func (c *Client) Unsubscribe(symbols, events []string) error {
	c.mu.Lock()
	for _, s := range symbols {
		delete(c.symbols, models.NormalizeSymbol(s))
	}
	for _, e := range events {
		delete(c.events, e)
	}
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.send(models.UnsubscribeMessage{Symbols: symbols, Events: events})
}

// -----------------------------------------------------------------------------

func (c *Client) RequestSignal(symbol, strategy string) error {
	return c.send(models.RequestSignalMessage{Symbol: symbol, Strategy: strategy})
}

func (c *Client) RequestHistorical(symbol string, days int) error {
	return c.send(models.RequestHistoricalMessage{Symbol: symbol, Days: days})
}

// -----------------------------------------------------------------------------

func (c *Client) send(msg models.ClientMessage) error {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// setStateLocked returns the new state when it changed, "" otherwise
func (c *Client) setStateLocked(s State) State {
	if c.state == s {
		return ""
	}
	c.state = s
	return s
}

func (c *Client) notify(s State) {
	if s != "" && c.onState != nil {
		c.onState(s)
	}
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
