package server

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"market-pulse/src/metrics"
	"market-pulse/src/models"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMirror struct {
	mu     sync.Mutex
	events []models.EventType
	err    error
}

func (m *recordingMirror) Mirror(event models.EventType, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func (m *recordingMirror) Close() error { return nil }

func newTestBroadcaster(m *metrics.Metrics) (*Registry, *Broadcaster) {
	clk := clock.NewMock()
	reg := NewRegistry(clk, m)
	return reg, NewBroadcaster(reg, testLogger(), m, clk)
}

func samplePrice(symbol string) models.PriceUpdateFrame {
	return models.NewPriceUpdate(models.Quote{Symbol: symbol, Price: 187.5, Change: 1.25, ChangePercent: 0.67, Volume: 1000, Timestamp: 1700000000000})
}

func TestPublishSendsIdenticalBytes(t *testing.T) {
	reg, b := newTestBroadcaster(nil)
	s1, s2, s3 := &fakeSender{}, &fakeSender{}, &fakeSender{}
	reg.Register(s1)
	reg.Register(s2)
	c3 := reg.Register(s3)
	_, err := reg.Subscribe(c3.ID, []string{"MSFT"}, nil)
	require.NoError(t, err)

	sent := b.Publish(models.EventPriceUpdate, samplePrice("AAPL"), "AAPL")

	assert.Equal(t, 2, sent)
	require.Len(t, s1.Frames(), 1)
	require.Len(t, s2.Frames(), 1)
	assert.Empty(t, s3.Frames())
	assert.Equal(t, s1.Frames()[0], s2.Frames()[0])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(s1.Frames()[0], &decoded))
	assert.Equal(t, "price_update", decoded["type"])
	assert.Equal(t, "AAPL", decoded["symbol"])
	assert.Equal(t, 187.5, decoded["price"])
}

func TestPublishWithNoMatchesIsNotAnError(t *testing.T) {
	_, b := newTestBroadcaster(nil)
	assert.Equal(t, 0, b.Publish(models.EventTrending, models.NewTrendingUpdate(nil, 1), ""))
}

func TestFailedSendDeregistersOnlyThatConnection(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	registry, b := newTestBroadcaster(m)

	healthy := &fakeSender{}
	broken := &fakeSender{err: ErrSendBufferFull}
	good := registry.Register(healthy)
	bad := registry.Register(broken)

	sent := b.Publish(models.EventMoversUpdate, models.NewMoversUpdate(models.MoversSnapshot{Timestamp: 1}), "")

	assert.Equal(t, 1, sent)
	assert.Len(t, healthy.Frames(), 1)
	assert.Equal(t, 1, broken.closed)

	_, ok := registry.Get(bad.ID)
	assert.False(t, ok)
	_, ok = registry.Get(good.ID)
	assert.True(t, ok)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendFailures.WithLabelValues("market_movers_update")))

	// the next publish reaches the survivor only
	assert.Equal(t, 1, b.Publish(models.EventMoversUpdate, models.NewMoversUpdate(models.MoversSnapshot{Timestamp: 2}), ""))
	assert.Len(t, healthy.Frames(), 2)
}

func TestSendToClosedConnectionIsBenign(t *testing.T) {
	registry, b := newTestBroadcaster(nil)
	closed := &fakeSender{err: ErrConnectionClosed}
	conn := registry.Register(closed)

	assert.Equal(t, 0, b.Publish(models.EventPriceUpdate, samplePrice("AAPL"), "AAPL"))
	_, ok := registry.Get(conn.ID)
	assert.False(t, ok)
}

func TestPublishWithIncludesRequesterOnce(t *testing.T) {
	registry, b := newTestBroadcaster(nil)
	reqSender, otherSender, watcherSender := &fakeSender{}, &fakeSender{}, &fakeSender{}
	requester := registry.Register(reqSender)
	registry.Register(otherSender)
	watcher := registry.Register(watcherSender)
	_, err := registry.Subscribe(watcher.ID, []string{"NVDA"}, []string{"ai_signal"})
	require.NoError(t, err)

	frame := models.NewSignalFrame(models.Signal{Symbol: "NVDA", Action: models.ActionBuy, Confidence: 70}, 1)
	sent := b.PublishWith(models.EventAISignal, frame, "NVDA", requester.ID)

	assert.Equal(t, 2, sent)
	assert.Len(t, reqSender.Frames(), 1)
	assert.Len(t, watcherSender.Frames(), 1)
	assert.Empty(t, otherSender.Frames())

	// a requester that already matches gets a single copy
	sent = b.PublishWith(models.EventAISignal, frame, "NVDA", watcher.ID)
	assert.Equal(t, 1, sent)
	assert.Len(t, watcherSender.Frames(), 2)
}

func TestMirrorReceivesFramesAndFailuresAreIsolated(t *testing.T) {
	registry, b := newTestBroadcaster(nil)
	sender := &fakeSender{}
	registry.Register(sender)

	mirror := &recordingMirror{err: errors.New("bus down")}
	b.AddMirror(mirror)

	assert.Equal(t, 1, b.Publish(models.EventPriceUpdate, samplePrice("AAPL"), "AAPL"))
	assert.Equal(t, []models.EventType{models.EventPriceUpdate}, mirror.events)
	assert.Len(t, sender.Frames(), 1)
}

func TestSendErrorReachesOnlyTarget(t *testing.T) {
	registry, b := newTestBroadcaster(nil)
	target, bystander := &fakeSender{}, &fakeSender{}
	conn := registry.Register(target)
	registry.Register(bystander)

	b.SendError(conn.ID, models.ErrCodeParse, "invalid JSON frame")

	require.Len(t, target.Frames(), 1)
	assert.Empty(t, bystander.Frames())

	var frame models.ErrorFrame
	require.NoError(t, json.Unmarshal(target.Frames()[0], &frame))
	assert.Equal(t, models.EventError, frame.Type)
	assert.Equal(t, models.ErrCodeParse, frame.Code)
}
