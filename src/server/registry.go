package server

import (
	"errors"
	"sort"
	"sync"
	"time"

	"market-pulse/src/metrics"
	"market-pulse/src/models"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrSendBufferFull    = errors.New("send buffer full")
)

// Sender is the transport half of a connection. Send must not block: a
// full buffer or a closed transport is reported as an error.
type Sender interface {
	Send(frame []byte) error
	Close()
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

// Connection is one live transport session and its interest sets. An empty
// symbol set means every symbol.
type Connection struct {
	ID          string
	ConnectedAt time.Time

	sender Sender

	mu           sync.RWMutex
	symbols      map[string]struct{}
	events       map[models.EventType]struct{}
	lastActivity time.Time
}

// ConnectionInfo is a point-in-time copy of a connection's state
type ConnectionInfo struct {
	ID           string    `json:"id"`
	Symbols      []string  `json:"subscribedSymbols"`
	Events       []string  `json:"subscribedEvents"`
	LastActivity time.Time `json:"lastActivity"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

// -----------------------------------------------------------------------------

// Matches is the single delivery predicate: the event must be in the event
// interest, and the symbol must be absent, or the symbol interest empty, or
// the symbol one of the symbol interest.
func (c *Connection) Matches(event models.EventType, symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.events[event]; !ok {
		return false
	}
	if symbol == "" || len(c.symbols) == 0 {
		return true
	}
	_, ok := c.symbols[symbol]
	return ok
}

// -----------------------------------------------------------------------------

func (c *Connection) Send(frame []byte) error {
	return c.sender.Send(frame)
}

func (c *Connection) Close() {
	c.sender.Close()
}

// Touch records inbound activity
func (c *Connection) Touch(t time.Time) {
	c.mu.Lock()
	c.lastActivity = t
	c.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (c *Connection) Info() ConnectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	symbols := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	events := make([]string, 0, len(c.events))
	for e := range c.events {
		events = append(events, string(e))
	}
	sort.Strings(events)

	return ConnectionInfo{
		ID:           c.ID,
		Symbols:      symbols,
		Events:       events,
		LastActivity: c.lastActivity,
		ConnectedAt:  c.ConnectedAt,
	}
}

// -----------------------------------------------------------------------------

func (c *Connection) apply(symbols, events []string, add bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range symbols {
		s = models.NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if add {
			c.symbols[s] = struct{}{}
		} else {
			delete(c.symbols, s)
		}
	}

	for _, name := range events {
		e, ok := models.ParseEventType(name)
		if !ok {
			continue
		}
		if add {
			c.events[e] = struct{}{}
		} else {
			delete(c.events, e)
		}
	}
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// Registry tracks every live connection. Lookups and filtering take a read
// lock on the map; interest mutation only locks the connection concerned.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*Connection
	clock   clock.Clock
	metrics *metrics.Metrics
	newID   func() string
}

// -----------------------------------------------------------------------------

func NewRegistry(clk clock.Clock, m *metrics.Metrics) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{
		conns:   make(map[string]*Connection),
		clock:   clk,
		metrics: m,
		newID:   uuid.NewString,
	}
}

// -----------------------------------------------------------------------------

// Register adds a connection with the default event interest
func (r *Registry) Register(sender Sender) *Connection {
	now := r.clock.Now()
	conn := &Connection{
		ID:           r.newID(),
		ConnectedAt:  now,
		sender:       sender,
		symbols:      make(map[string]struct{}),
		events:       make(map[models.EventType]struct{}),
		lastActivity: now,
	}
	for _, e := range models.DefaultEventInterest() {
		conn.events[e] = struct{}{}
	}

	r.mu.Lock()
	r.conns[conn.ID] = conn
	r.mu.Unlock()

	r.metrics.ConnectionOpened()
	return conn
}

// -----------------------------------------------------------------------------

// Subscribe unions symbols and events into the connection interest sets and
// returns the full resulting state. Unknown event names are ignored.
func (r *Registry) Subscribe(id string, symbols, events []string) (ConnectionInfo, error) {
	conn, ok := r.Get(id)
	if !ok {
		return ConnectionInfo{}, ErrUnknownConnection
	}
	conn.apply(symbols, events, true)
	return conn.Info(), nil
}

// -----------------------------------------------------------------------------

// Unsubscribe removes symbols and events; absent entries are a no-op
func (r *Registry) Unsubscribe(id string, symbols, events []string) (ConnectionInfo, error) {
	conn, ok := r.Get(id)
	if !ok {
		return ConnectionInfo{}, ErrUnknownConnection
	}
	conn.apply(symbols, events, false)
	return conn.Info(), nil
}

// -----------------------------------------------------------------------------

// Deregister removes the connection. It reports true only for the call that
// actually removed it.
func (r *Registry) Deregister(id string) bool {
	r.mu.Lock()
	_, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()

	if ok {
		r.metrics.ConnectionClosed()
	}
	return ok
}

// -----------------------------------------------------------------------------

func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// -----------------------------------------------------------------------------

// MatchingConnections returns a snapshot of every connection for which
// Matches(event, symbol) holds. The slice is safe to use after the call.
func (r *Registry) MatchingConnections(event models.EventType, symbol string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		if conn.Matches(event, symbol) {
			out = append(out, conn)
		}
	}
	return out
}

// -----------------------------------------------------------------------------

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// -----------------------------------------------------------------------------

// Snapshot lists diagnostics for every connection, oldest first
func (r *Registry) Snapshot() []ConnectionInfo {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	infos := make([]ConnectionInfo, len(conns))
	for i, c := range conns {
		infos[i] = c.Info()
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ConnectedAt.Equal(infos[j].ConnectedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// -----------------------------------------------------------------------------

// All returns every registered connection
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// -----------------------------------------------------------------------------

// StatusFrame renders the connection_status reply for info
func StatusFrame(info ConnectionInfo, ts int64) models.ConnectionStatusFrame {
	return models.ConnectionStatusFrame{
		Type:              models.EventConnectStatus,
		Status:            models.StatusConnected,
		ClientID:          info.ID,
		SubscribedSymbols: info.Symbols,
		SubscribedEvents:  info.Events,
		Timestamp:         ts,
	}
}
