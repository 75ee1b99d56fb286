package bus

import (
	"errors"
	"io"
	"sync"
	"testing"

	"market-pulse/src/logger"
	"market-pulse/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakeNATS struct {
	mu      sync.Mutex
	msgs    []published
	err     error
	drained bool
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func (f *fakeNATS) Drain() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drained = true
	return nil
}

func newTestMirror(prefix string, nc *fakeNATS) *NATSMirror {
	m := &NATSMirror{
		name:   "test",
		prefix: prefix,
		logger: logger.NewLoggerWithWriter(io.Discard, "ERROR", "bus-test"),
		nc:     nc,
	}
	m.connected.Store(true)
	return m
}

func TestMirrorPublishesOnEventSubject(t *testing.T) {
	nc := &fakeNATS{}
	m := newTestMirror("marketpulse", nc)

	frame := []byte(`{"type":"price_update","symbol":"AAPL"}`)
	require.NoError(t, m.Mirror(models.EventPriceUpdate, frame))

	require.Len(t, nc.msgs, 1)
	assert.Equal(t, "marketpulse.price_update", nc.msgs[0].subject)
	assert.Equal(t, frame, nc.msgs[0].data)
}

func TestSubjectWithoutPrefix(t *testing.T) {
	m := newTestMirror("", &fakeNATS{})
	assert.Equal(t, "ai_signal", m.Subject(models.EventAISignal))
}

func TestMirrorRejectsWhileDisconnected(t *testing.T) {
	nc := &fakeNATS{}
	m := newTestMirror("mp", nc)
	m.connected.Store(false)

	assert.Error(t, m.Mirror(models.EventTrending, []byte(`{}`)))
	assert.Empty(t, nc.msgs)
}

func TestMirrorSurfacesPublishErrors(t *testing.T) {
	nc := &fakeNATS{err: errors.New("slow consumer")}
	m := newTestMirror("mp", nc)
	assert.Error(t, m.Mirror(models.EventTrending, []byte(`{}`)))
}

func TestCloseDrains(t *testing.T) {
	nc := &fakeNATS{}
	m := newTestMirror("mp", nc)

	require.NoError(t, m.Close())
	assert.True(t, nc.drained)
	assert.Error(t, m.Mirror(models.EventPriceUpdate, []byte(`{}`)))
}
