package protocol

import (
	"testing"

	"market-pulse/src/helpers"
	"market-pulse/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want models.ClientMessage
	}{
		{"subscribe", `{"type":"subscribe","symbols":["AAPL"],"events":["ai_signal"]}`,
			models.SubscribeMessage{Symbols: []string{"AAPL"}, Events: []string{"ai_signal"}}},
		{"unsubscribe", `{"type":"unsubscribe","symbols":["AAPL"]}`,
			models.UnsubscribeMessage{Symbols: []string{"AAPL"}}},
		{"signal", `{"type":"request_ai_signal","symbol":"MSFT","strategy":"breakout"}`,
			models.RequestSignalMessage{Symbol: "MSFT", Strategy: "breakout"}},
		{"historical", `{"type":"request_historical","symbol":"TSLA","days":7}`,
			models.RequestHistoricalMessage{Symbol: "TSLA", Days: 7}},
		{"extra fields ignored", `{"type":"subscribe","foo":1}`, models.SubscribeMessage{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		code string
	}{
		{"not json", `hello`, models.ErrCodeParse},
		{"array", `[1,2]`, models.ErrCodeParse},
		{"no type", `{}`, models.ErrCodeUnknownMessage},
		{"unknown type", `{"type":"price_update"}`, models.ErrCodeUnknownMessage},
		{"bad days", `{"type":"request_historical","symbol":"A","days":"ten"}`, models.ErrCodeParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.Equal(t, tt.code, helpers.ErrorCode(err, ""))
		})
	}
}

func TestEncodeKeepsMarkupAndDropsNewline(t *testing.T) {
	out, err := Encode(models.NewErrorFrame(models.ErrCodeParse, "<bad>", 5))
	require.NoError(t, err)
	assert.Equal(t, `{"type":"error","code":"PARSE_ERROR","message":"<bad>","timestamp":5}`, string(out))
}

func TestEncodeMessageAddsTypeTag(t *testing.T) {
	out, err := EncodeMessage(models.SubscribeMessage{Symbols: []string{"AAPL"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"subscribe","symbols":["AAPL"]}`, string(out))

	back, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, models.SubscribeMessage{Symbols: []string{"AAPL"}}, back)
}

func TestFrameType(t *testing.T) {
	kind, err := FrameType([]byte(`{"type":"price_update","symbol":"AAPL"}`))
	require.NoError(t, err)
	assert.Equal(t, models.EventPriceUpdate, kind)

	_, err = FrameType([]byte(`nope`))
	assert.Error(t, err)
}
