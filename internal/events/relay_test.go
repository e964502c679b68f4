package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mock implementations ---

type mockTx struct{}

func (mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockStore struct {
	mu      sync.Mutex
	pending []Message
	sent    []int64
}

func (m *mockStore) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockStore) Pending(_ context.Context, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, msg := range m.pending {
		if len(out) == limit {
			break
		}
		out = append(out, msg)
	}
	return out, nil
}

func (m *mockStore) MarkSent(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, ids...)
	keep := m.pending[:0]
	for _, msg := range m.pending {
		sent := false
		for _, id := range ids {
			if msg.ID == id {
				sent = true
			}
		}
		if !sent {
			keep = append(keep, msg)
		}
	}
	m.pending = keep
	return nil
}

type mockPublisher struct {
	published []Message
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, msgs ...Message) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, msgs...)
	return nil
}

// --- Helpers ---

func newTestRelay(store Store, pub Publisher, batch int) (*Relay, *RelayMetrics) {
	metrics := NewRelayMetrics(prometheus.NewRegistry())
	return NewRelay(mockTx{}, store, pub, RelayConfig{Interval: 10 * time.Millisecond, BatchSize: batch}, metrics, zap.NewNop()), metrics
}

func messages(n int) []Message {
	out := make([]Message, n)
	for i := range out {
		out[i] = Message{ID: int64(i + 1), Topic: "emart.orders", Key: "o1", Payload: []byte(`{}`)}
	}
	return out
}

// --- Tests ---

func TestRelay_Flush(t *testing.T) {
	store := &mockStore{pending: messages(3)}
	pub := &mockPublisher{}
	relay, metrics := newTestRelay(store, pub, 2)

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, store.sent)

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, pub.published, 3)
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.Published))

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelay_PublishFailureKeepsRows(t *testing.T) {
	store := &mockStore{pending: messages(2)}
	pub := &mockPublisher{err: errors.New("broker down")}
	relay, _ := newTestRelay(store, pub, 10)

	_, err := relay.Flush(context.Background())
	require.Error(t, err)
	assert.Empty(t, store.sent)
	assert.Len(t, store.pending, 2)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := &mockStore{pending: messages(5)}
	pub := &mockPublisher{}
	relay, _ := newTestRelay(store, pub, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		return store.sentCount() == 5
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, ParseBrokers(""))
}
