package server

import (
	"context"
	"fmt"
	"sync"

	"market-pulse/src/helpers"
	"market-pulse/src/interfaces"
	"market-pulse/src/logger"
	"market-pulse/src/metrics"
	"market-pulse/src/models"
	"market-pulse/src/protocol"
)

// -----------------------------------------------------------------------------
// Dispatcher
// -----------------------------------------------------------------------------

// Dispatcher routes decoded inbound frames for a connection. Malformed frames
// produce an error frame and leave the connection open.
type Dispatcher struct {
	registry    *Registry
	broadcaster *Broadcaster
	onDemand    interfaces.IOnDemand
	logger      *logger.Logger
	metrics     *metrics.Metrics

	// in-flight on-demand requests
	wg sync.WaitGroup
}

// -----------------------------------------------------------------------------

func NewDispatcher(registry *Registry, broadcaster *Broadcaster, onDemand interfaces.IOnDemand, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		registry:    registry,
		broadcaster: broadcaster,
		onDemand:    onDemand,
		logger:      log,
		metrics:     m,
	}
}

// -----------------------------------------------------------------------------

// HandleClientMessage processes one raw inbound frame. ctx bounds on-demand
// work and is cancelled when the connection goes away.
func (d *Dispatcher) HandleClientMessage(ctx context.Context, conn *Connection, data []byte) {
	conn.Touch(d.broadcaster.Now())

	msg, err := protocol.Decode(data)
	if err != nil {
		code := helpers.ErrorCode(err, models.ErrCodeParse)
		d.metrics.RecordInbound("invalid")
		d.logger.Debug("Rejected frame from %s: %v", conn.ID, err)
		d.broadcaster.SendError(conn.ID, code, err.Error())
		return
	}
	d.metrics.RecordInbound(msg.MessageType())

	switch m := msg.(type) {
	case models.SubscribeMessage:
		d.logUnknownEvents(conn.ID, m.Events)
		info, err := d.registry.Subscribe(conn.ID, m.Symbols, m.Events)
		d.replyStatus(conn.ID, info, err)

	case models.UnsubscribeMessage:
		info, err := d.registry.Unsubscribe(conn.ID, m.Symbols, m.Events)
		d.replyStatus(conn.ID, info, err)

	case models.RequestSignalMessage:
		symbol := models.NormalizeSymbol(m.Symbol)
		if symbol == "" {
			d.broadcaster.SendError(conn.ID, models.ErrCodeInvalidRequest, "symbol is required")
			return
		}
		d.runOnDemand(ctx, conn.ID, models.ErrCodeAISignal, func(ctx context.Context) error {
			return d.onDemand.RequestSignal(ctx, conn.ID, symbol, m.Strategy)
		})

	case models.RequestHistoricalMessage:
		symbol := models.NormalizeSymbol(m.Symbol)
		if symbol == "" {
			d.broadcaster.SendError(conn.ID, models.ErrCodeInvalidRequest, "symbol is required")
			return
		}
		d.runOnDemand(ctx, conn.ID, models.ErrCodeHistorical, func(ctx context.Context) error {
			return d.onDemand.RequestHistorical(ctx, conn.ID, symbol, m.Days)
		})

	default:
		d.broadcaster.SendError(conn.ID, models.ErrCodeUnknownMessage, fmt.Sprintf("unhandled message type: %s", msg.MessageType()))
	}
}

// -----------------------------------------------------------------------------

func (d *Dispatcher) replyStatus(connID string, info ConnectionInfo, err error) {
	if err != nil {
		d.logger.Debug("Interest change for %s ignored: %v", connID, err)
		return
	}
	frame := StatusFrame(info, d.broadcaster.Now().UnixMilli())
	if err := d.broadcaster.SendTo(connID, frame); err != nil {
		d.logger.Debug("Status frame to %s not delivered: %v", connID, err)
	}
}

// -----------------------------------------------------------------------------

// runOnDemand executes fn off the read loop. Failures, including an invalid
// request rejected by the handler, are reported to the requester only.
func (d *Dispatcher) runOnDemand(ctx context.Context, connID, failureCode string, fn func(context.Context) error) {
	if d.onDemand == nil {
		d.broadcaster.SendError(connID, failureCode, "on-demand requests are not available")
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("On-demand request for %s panicked: %v", connID, r)
				d.broadcaster.SendError(connID, failureCode, "internal error")
			}
		}()

		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			code := helpers.ErrorCode(err, failureCode)
			d.logger.Warning("On-demand request for %s failed: %v", connID, err)
			d.broadcaster.SendError(connID, code, err.Error())
		}
	}()
}

// -----------------------------------------------------------------------------

func (d *Dispatcher) logUnknownEvents(connID string, events []string) {
	for _, name := range events {
		if _, ok := models.ParseEventType(name); !ok {
			d.logger.Debug("Connection %s subscribed to unknown event %q", connID, name)
		}
	}
}

// -----------------------------------------------------------------------------

// Wait blocks until in-flight on-demand requests finish
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
