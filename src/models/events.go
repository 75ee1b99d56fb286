package models

import "strings"

// EventType is the kind of push a connection can opt into
type EventType string

const (
	EventPriceUpdate   EventType = "price_update"
	EventMoversUpdate  EventType = "market_movers_update"
	EventTrending      EventType = "trending_update"
	EventAISignal      EventType = "ai_signal"
	EventHistorical    EventType = "historical_update"
	EventConnectStatus EventType = "connection_status"
	EventError         EventType = "error"
)

// SubscribableEvents lists the event kinds accepted in subscribe frames
var SubscribableEvents = []EventType{
	EventPriceUpdate,
	EventMoversUpdate,
	EventTrending,
	EventAISignal,
	EventHistorical,
}

// DefaultEventInterest is applied to every freshly accepted connection
func DefaultEventInterest() []EventType {
	return []EventType{EventPriceUpdate, EventMoversUpdate}
}

// ParseEventType accepts only subscribable kinds
func ParseEventType(s string) (EventType, bool) {
	e := EventType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range SubscribableEvents {
		if e == known {
			return e, true
		}
	}
	return "", false
}

// NormalizeSymbol upper-cases and trims a ticker
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
