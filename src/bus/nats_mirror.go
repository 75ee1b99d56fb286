package bus

import (
	"fmt"
	"sync/atomic"
	"time"

	"market-pulse/src/logger"
	"market-pulse/src/models"

	"github.com/nats-io/nats.go"
)

// -----------------------------------------------------------------------------
// NATSMirror copies every broadcast frame onto <prefix>.<event>
// -----------------------------------------------------------------------------

// natsConn is the subset of *nats.Conn the mirror needs
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type NATSMirror struct {
	name   string
	prefix string
	logger *logger.Logger

	nc        natsConn
	connected atomic.Bool
}

// -----------------------------------------------------------------------------

// NewNATSMirror connects to url. The connection retries in the background
// and frames published while it is down are rejected, never queued.
func NewNATSMirror(url, prefix, clientName string, log *logger.Logger) (*NATSMirror, error) {
	m := &NATSMirror{name: clientName, prefix: prefix, logger: log}

	opts := []nats.Option{
		nats.Name(clientName),
		nats.Timeout(5 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),

		// Connection Event Handlers
		nats.RetryOnFailedConnect(true),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Warning("%s : NATS connection closed", m.name)
			m.connected.Store(false)
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warning("%s : NATS disconnected, attempting reconnect: %v", m.name, err)
			m.connected.Store(false)
		}),
		nats.ConnectHandler(func(nc *nats.Conn) {
			log.Info("%s : NATS connected to %s", m.name, nc.ConnectedUrl())
			m.connected.Store(true)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("%s : NATS reconnected to %s", m.name, nc.ConnectedUrl())
			m.connected.Store(true)
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connection failed: %w", err)
	}
	m.nc = nc
	m.connected.Store(nc.IsConnected())

	log.Info("%s : mirroring frames to NATS at %s (prefix %q)", m.name, url, prefix)
	return m, nil
}

// -----------------------------------------------------------------------------

// Subject is the NATS subject for event
func (m *NATSMirror) Subject(event models.EventType) string {
	if m.prefix == "" {
		return string(event)
	}
	return m.prefix + "." + string(event)
}

// -----------------------------------------------------------------------------

// Mirror publishes frame fire-and-forget
func (m *NATSMirror) Mirror(event models.EventType, frame []byte) error {
	if !m.connected.Load() {
		return fmt.Errorf("nats client not connected")
	}
	return m.nc.Publish(m.Subject(event), frame)
}

// -----------------------------------------------------------------------------

// Close drains pending publishes and closes the connection
func (m *NATSMirror) Close() error {
	if m.nc == nil {
		return nil
	}
	m.connected.Store(false)
	return m.nc.Drain()
}
