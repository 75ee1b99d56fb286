package server

import (
	"errors"
	"fmt"
	"time"

	"market-pulse/src/interfaces"
	"market-pulse/src/logger"
	"market-pulse/src/metrics"
	"market-pulse/src/models"
	"market-pulse/src/protocol"

	"github.com/benbjohnson/clock"
)

// Broadcaster fans frames out to the registry. A payload is encoded once per
// publish and the same bytes go to every recipient.
type Broadcaster struct {
	registry *Registry
	logger   *logger.Logger
	metrics  *metrics.Metrics
	clock    clock.Clock
	mirrors  []interfaces.IFrameMirror
}

// -----------------------------------------------------------------------------

func NewBroadcaster(registry *Registry, log *logger.Logger, m *metrics.Metrics, clk clock.Clock) *Broadcaster {
	if clk == nil {
		clk = clock.New()
	}
	return &Broadcaster{
		registry: registry,
		logger:   log,
		metrics:  m,
		clock:    clk,
	}
}

// -----------------------------------------------------------------------------

// AddMirror registers a sink that receives a copy of every published frame.
// Must be called before the scheduler starts.
func (b *Broadcaster) AddMirror(mirror interfaces.IFrameMirror) {
	if mirror != nil {
		b.mirrors = append(b.mirrors, mirror)
	}
}

// -----------------------------------------------------------------------------

func (b *Broadcaster) Publish(event models.EventType, payload any, symbol string) int {
	return b.publish(event, payload, symbol, "")
}

// -----------------------------------------------------------------------------

func (b *Broadcaster) PublishWith(event models.EventType, payload any, symbol, requesterID string) int {
	return b.publish(event, payload, symbol, requesterID)
}

// -----------------------------------------------------------------------------

func (b *Broadcaster) publish(event models.EventType, payload any, symbol, requesterID string) int {
	start := b.clock.Now()

	frame, err := protocol.Encode(payload)
	if err != nil {
		b.logger.Error("Failed to encode %s frame: %v", event, err)
		return 0
	}

	targets := b.registry.MatchingConnections(event, symbol)
	if requesterID != "" {
		found := false
		for _, c := range targets {
			if c.ID == requesterID {
				found = true
				break
			}
		}
		if !found {
			if c, ok := b.registry.Get(requesterID); ok {
				targets = append(targets, c)
			}
		}
	}

	sent, failed := 0, 0
	for _, conn := range targets {
		if err := conn.Send(frame); err != nil {
			failed++
			b.drop(conn, event, err)
			continue
		}
		sent++
	}

	for _, mirror := range b.mirrors {
		if err := mirror.Mirror(event, frame); err != nil {
			b.metrics.RecordMirrorFailure(string(event))
			b.logger.Warning("Mirror failed for %s: %v", event, err)
		}
	}

	b.metrics.RecordPublish(string(event), sent, failed, b.clock.Since(start))
	if len(targets) > 0 {
		b.logger.Debug("Published %s (symbol=%q) to %d/%d connections", event, symbol, sent, len(targets))
	}
	return sent
}

// -----------------------------------------------------------------------------

// SendTo delivers payload to one connection. A send failure deregisters it
// like any other failed delivery.
func (b *Broadcaster) SendTo(connID string, payload any) error {
	conn, ok := b.registry.Get(connID)
	if !ok {
		return ErrUnknownConnection
	}

	frame, err := protocol.Encode(payload)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	if err := conn.Send(frame); err != nil {
		b.drop(conn, "direct", err)
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

// SendError emits an error frame to one connection
func (b *Broadcaster) SendError(connID, code, message string) {
	b.metrics.RecordErrorFrame(code)
	frame := models.NewErrorFrame(code, message, b.clock.Now().UnixMilli())
	if err := b.SendTo(connID, frame); err != nil {
		b.logger.Debug("Error frame %s to %s not delivered: %v", code, connID, err)
	}
}

// -----------------------------------------------------------------------------

// drop handles a failed send. A connection that closed concurrently is a
// benign race; either way it leaves the registry.
func (b *Broadcaster) drop(conn *Connection, event models.EventType, err error) {
	if b.registry.Deregister(conn.ID) {
		if errors.Is(err, ErrConnectionClosed) {
			b.logger.Debug("Connection %s closed before %s delivery", conn.ID, event)
		} else {
			b.logger.Warning("Dropping connection %s after failed %s delivery: %v", conn.ID, event, err)
		}
	}
	conn.Close()
}

// -----------------------------------------------------------------------------

// Now returns the broadcaster clock time
func (b *Broadcaster) Now() time.Time {
	return b.clock.Now()
}
