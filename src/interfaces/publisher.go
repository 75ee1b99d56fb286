package interfaces

import "market-pulse/src/models"

// -----------------------------------------------------------------------------
// IPublisher is the delivery primitive used by the scheduler.
// -----------------------------------------------------------------------------

type IPublisher interface {

	// Publish serializes payload once and sends it to every connection whose
	// interest matches event and symbol. An empty symbol matches every
	// connection subscribed to event. Returns the number of deliveries.
	Publish(event models.EventType, payload any, symbol string) int

	// -----------------------------------------------------------------------------

	// PublishWith behaves like Publish and additionally delivers to the
	// connection identified by requesterID even when its interest does not
	// match. Each connection receives the frame at most once.
	PublishWith(event models.EventType, payload any, symbol, requesterID string) int

	// -----------------------------------------------------------------------------

	// SendTo delivers payload to a single connection only.
	SendTo(connID string, payload any) error
}

// -----------------------------------------------------------------------------
// IFrameMirror receives a copy of every broadcast frame (e.g. a message bus).
// -----------------------------------------------------------------------------

type IFrameMirror interface {
	Mirror(event models.EventType, frame []byte) error
	Close() error
}
