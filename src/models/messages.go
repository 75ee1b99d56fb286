package models

// -----------------------------------------------------------------------------
// Inbound frames (client -> server)
// -----------------------------------------------------------------------------

const (
	MsgSubscribe         = "subscribe"
	MsgUnsubscribe       = "unsubscribe"
	MsgRequestAISignal   = "request_ai_signal"
	MsgRequestHistorical = "request_historical"
)

// ClientMessage is the closed set of frames a client may send. The
// unexported marker keeps the set to the variants declared here.
type ClientMessage interface {
	MessageType() string
	clientMessage()
}

type SubscribeMessage struct {
	Symbols []string `json:"symbols,omitempty"`
	Events  []string `json:"events,omitempty"`
}

type UnsubscribeMessage struct {
	Symbols []string `json:"symbols,omitempty"`
	Events  []string `json:"events,omitempty"`
}

type RequestSignalMessage struct {
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy,omitempty"`
}

type RequestHistoricalMessage struct {
	Symbol string `json:"symbol"`
	Days   int    `json:"days,omitempty"`
}

func (SubscribeMessage) MessageType() string         { return MsgSubscribe }
func (UnsubscribeMessage) MessageType() string       { return MsgUnsubscribe }
func (RequestSignalMessage) MessageType() string     { return MsgRequestAISignal }
func (RequestHistoricalMessage) MessageType() string { return MsgRequestHistorical }

func (SubscribeMessage) clientMessage()         {}
func (UnsubscribeMessage) clientMessage()       {}
func (RequestSignalMessage) clientMessage()     {}
func (RequestHistoricalMessage) clientMessage() {}

// -----------------------------------------------------------------------------
// Outbound frames (server -> client)
// -----------------------------------------------------------------------------

type ConnectionState string

const (
	StatusConnected    ConnectionState = "connected"
	StatusDisconnected ConnectionState = "disconnected"
	StatusReconnecting ConnectionState = "reconnecting"
)

// Error codes carried in error frames
const (
	ErrCodeParse          = "PARSE_ERROR"
	ErrCodeUnknownMessage = "UNKNOWN_MESSAGE"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeAISignal       = "AI_SIGNAL_ERROR"
	ErrCodeHistorical     = "HISTORICAL_ERROR"
)

type ConnectionStatusFrame struct {
	Type              EventType       `json:"type"`
	Status            ConnectionState `json:"status"`
	ClientID          string          `json:"clientId"`
	SubscribedSymbols []string        `json:"subscribedSymbols"`
	SubscribedEvents  []string        `json:"subscribedEvents"`
	Timestamp         int64           `json:"timestamp"`
}

// PriceUpdateFrame flattens the quote fields next to the type tag
type PriceUpdateFrame struct {
	Type EventType `json:"type"`
	Quote
}

type MoversUpdateFrame struct {
	Type      EventType `json:"type"`
	Gainers   []Mover   `json:"gainers"`
	Losers    []Mover   `json:"losers"`
	Timestamp int64     `json:"timestamp"`
}

type TrendingUpdateFrame struct {
	Type      EventType       `json:"type"`
	Symbols   []TrendingEntry `json:"symbols"`
	Timestamp int64           `json:"timestamp"`
}

type SignalFrame struct {
	Type      EventType `json:"type"`
	Signal    Signal    `json:"signal"`
	Timestamp int64     `json:"timestamp"`
}

type HistoricalUpdateFrame struct {
	Type      EventType `json:"type"`
	Symbol    string    `json:"symbol"`
	Data      []Bar     `json:"data"`
	Interval  string    `json:"interval"`
	Timestamp int64     `json:"timestamp"`
}

type ErrorFrame struct {
	Type      EventType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp int64     `json:"timestamp"`
}

func NewPriceUpdate(q Quote) PriceUpdateFrame {
	return PriceUpdateFrame{Type: EventPriceUpdate, Quote: q}
}

func NewMoversUpdate(s MoversSnapshot) MoversUpdateFrame {
	return MoversUpdateFrame{Type: EventMoversUpdate, Gainers: s.Gainers, Losers: s.Losers, Timestamp: s.Timestamp}
}

func NewTrendingUpdate(entries []TrendingEntry, ts int64) TrendingUpdateFrame {
	return TrendingUpdateFrame{Type: EventTrending, Symbols: entries, Timestamp: ts}
}

func NewSignalFrame(s Signal, ts int64) SignalFrame {
	return SignalFrame{Type: EventAISignal, Signal: s, Timestamp: ts}
}

func NewHistoricalUpdate(series HistoricalSeries, ts int64) HistoricalUpdateFrame {
	return HistoricalUpdateFrame{Type: EventHistorical, Symbol: series.Symbol, Data: series.Bars, Interval: series.Interval, Timestamp: ts}
}

func NewErrorFrame(code, message string, ts int64) ErrorFrame {
	return ErrorFrame{Type: EventError, Code: code, Message: message, Timestamp: ts}
}
