package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"market-pulse/src/helpers"
	"market-pulse/src/models"
)

// -----------------------------------------------------------------------------

type envelope struct {
	Type string `json:"type"`
}

// -----------------------------------------------------------------------------

// Decode turns one inbound text frame into a ClientMessage. Malformed JSON
// yields PARSE_ERROR, an unknown or missing type yields UNKNOWN_MESSAGE.
func Decode(data []byte) (models.ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, helpers.NewProtocolError(models.ErrCodeParse, "invalid JSON frame", err)
	}

	switch env.Type {
	case models.MsgSubscribe:
		var m models.SubscribeMessage
		if err := decodeInto(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case models.MsgUnsubscribe:
		var m models.UnsubscribeMessage
		if err := decodeInto(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case models.MsgRequestAISignal:
		var m models.RequestSignalMessage
		if err := decodeInto(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case models.MsgRequestHistorical:
		var m models.RequestHistoricalMessage
		if err := decodeInto(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "":
		return nil, helpers.NewProtocolError(models.ErrCodeUnknownMessage, "missing message type", nil)
	default:
		return nil, helpers.NewProtocolError(models.ErrCodeUnknownMessage, fmt.Sprintf("unknown message type: %s", env.Type), nil)
	}
}

// -----------------------------------------------------------------------------

func decodeInto(data []byte, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return helpers.NewProtocolError(models.ErrCodeParse, "invalid message fields", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Encode marshals an outbound frame. The result is shared by every recipient
// of a publish and must not be mutated.
func Encode(frame any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(frame); err != nil {
		return nil, fmt.Errorf("json marshal error: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// -----------------------------------------------------------------------------

// FrameType peeks at the type tag of an outbound frame (client side).
func FrameType(data []byte) (models.EventType, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("json unmarshal error: %w", err)
	}
	return models.EventType(env.Type), nil
}

// -----------------------------------------------------------------------------

// EncodeMessage renders an inbound-kind message as the client sends it, with
// its type tag alongside the message fields.
func EncodeMessage(m models.ClientMessage) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("json marshal error: %w", err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("json unmarshal error: %w", err)
	}
	tag, _ := json.Marshal(m.MessageType())
	fields["type"] = tag

	return Encode(fields)
}
