package server

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"market-pulse/src/logger"
	"market-pulse/src/models"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender records frames in memory
type fakeSender struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
	closed int
}

func (f *fakeSender) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSender) Close() {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
}

func (f *fakeSender) Frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

func testLogger() *logger.Logger {
	return logger.NewLoggerWithWriter(io.Discard, "ERROR", "server-test")
}

func newTestRegistry() (*Registry, *clock.Mock) {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC))
	return NewRegistry(clk, nil), clk
}

func TestRegisterAppliesDefaultInterest(t *testing.T) {
	reg, clk := newTestRegistry()
	conn := reg.Register(&fakeSender{})

	info := conn.Info()
	assert.NotEmpty(t, info.ID)
	assert.Empty(t, info.Symbols)
	assert.Equal(t, []string{"market_movers_update", "price_update"}, info.Events)
	assert.Equal(t, clk.Now(), info.ConnectedAt)
	assert.Equal(t, 1, reg.Len())

	other := reg.Register(&fakeSender{})
	assert.NotEqual(t, conn.ID, other.ID)
}

func TestSubscribeIsIdempotentUnion(t *testing.T) {
	reg, _ := newTestRegistry()
	conn := reg.Register(&fakeSender{})

	first, err := reg.Subscribe(conn.ID, []string{"aapl", " msft "}, []string{"ai_signal"})
	require.NoError(t, err)
	second, err := reg.Subscribe(conn.ID, []string{"AAPL", "MSFT"}, []string{"ai_signal"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"AAPL", "MSFT"}, second.Symbols)
	assert.Equal(t, []string{"ai_signal", "market_movers_update", "price_update"}, second.Events)
}

func TestSubscribeIgnoresUnknownEventsAndEmptySymbols(t *testing.T) {
	reg, _ := newTestRegistry()
	conn := reg.Register(&fakeSender{})

	info, err := reg.Subscribe(conn.ID, []string{"", "  "}, []string{"bogus"})
	require.NoError(t, err)
	assert.Empty(t, info.Symbols)
	assert.Equal(t, []string{"market_movers_update", "price_update"}, info.Events)
}

func TestUnsubscribeRestoresPreviousState(t *testing.T) {
	reg, _ := newTestRegistry()
	conn := reg.Register(&fakeSender{})
	before := conn.Info()

	_, err := reg.Subscribe(conn.ID, []string{"TSLA"}, []string{"trending_update"})
	require.NoError(t, err)
	after, err := reg.Unsubscribe(conn.ID, []string{"TSLA"}, []string{"trending_update"})
	require.NoError(t, err)

	assert.Equal(t, before.Symbols, after.Symbols)
	assert.Equal(t, before.Events, after.Events)

	// removing absent entries is a no-op
	again, err := reg.Unsubscribe(conn.ID, []string{"NVDA"}, []string{"ai_signal"})
	require.NoError(t, err)
	assert.Equal(t, after, again)
}

func TestInterestChangeOnUnknownConnection(t *testing.T) {
	reg, _ := newTestRegistry()

	_, err := reg.Subscribe("missing", []string{"AAPL"}, nil)
	assert.True(t, errors.Is(err, ErrUnknownConnection))
	_, err = reg.Unsubscribe("missing", nil, nil)
	assert.True(t, errors.Is(err, ErrUnknownConnection))
}

func TestMatchingConnectionsPredicate(t *testing.T) {
	reg, _ := newTestRegistry()

	all := reg.Register(&fakeSender{})
	apple := reg.Register(&fakeSender{})
	_, err := reg.Subscribe(apple.ID, []string{"AAPL"}, nil)
	require.NoError(t, err)
	signals := reg.Register(&fakeSender{})
	_, err = reg.Subscribe(signals.ID, []string{"MSFT"}, []string{"ai_signal"})
	require.NoError(t, err)

	ids := func(conns []*Connection) []string {
		out := make([]string, 0, len(conns))
		for _, c := range conns {
			out = append(out, c.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		event  models.EventType
		symbol string
		want   []string
	}{
		{"price for subscribed symbol", models.EventPriceUpdate, "AAPL", []string{all.ID, apple.ID}},
		{"price for other symbol", models.EventPriceUpdate, "MSFT", []string{all.ID, signals.ID}},
		{"symbol-less movers", models.EventMoversUpdate, "", []string{all.ID, apple.ID, signals.ID}},
		{"signal only where opted in", models.EventAISignal, "MSFT", []string{signals.ID}},
		{"signal for unsubscribed symbol", models.EventAISignal, "AAPL", []string{}},
		{"trending nobody wants", models.EventTrending, "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, ids(reg.MatchingConnections(tt.event, tt.symbol)))
		})
	}
}

func TestDeregisterHappensOnce(t *testing.T) {
	reg, _ := newTestRegistry()
	conn := reg.Register(&fakeSender{})

	assert.True(t, reg.Deregister(conn.ID))
	assert.False(t, reg.Deregister(conn.ID))
	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.MatchingConnections(models.EventPriceUpdate, ""))

	_, ok := reg.Get(conn.ID)
	assert.False(t, ok)
}

func TestSnapshotOrderedByConnectTime(t *testing.T) {
	reg, clk := newTestRegistry()
	first := reg.Register(&fakeSender{})
	clk.Add(time.Second)
	second := reg.Register(&fakeSender{})

	snap := reg.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, first.ID, snap[0].ID)
	assert.Equal(t, second.ID, snap[1].ID)
}

func TestConcurrentInterestChanges(t *testing.T) {
	reg, _ := newTestRegistry()
	conn := reg.Register(&fakeSender{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = reg.Subscribe(conn.ID, []string{"AAPL"}, []string{"ai_signal"})
		}()
		go func() {
			defer wg.Done()
			_ = reg.MatchingConnections(models.EventAISignal, "AAPL")
		}()
	}
	wg.Wait()

	assert.True(t, conn.Matches(models.EventAISignal, "AAPL"))
}
