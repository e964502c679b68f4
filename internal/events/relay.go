package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// RelayConfig tunes the relay loop.
type RelayConfig struct {
	Interval  time.Duration
	BatchSize int
}

// RelayMetrics counts relay outcomes.
type RelayMetrics struct {
	Published prometheus.Counter
	Failures  prometheus.Counter
}

// NewRelayMetrics creates relay counters and registers them with reg.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emart",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events published to the broker.",
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emart",
			Subsystem: "outbox",
			Name:      "failures_total",
			Help:      "Relay iterations that failed and will be retried.",
		}),
	}
	reg.MustRegister(m.Published, m.Failures)
	return m
}

// Relay moves outbox rows to the broker.
type Relay struct {
	tx      Transactor
	store   Store
	pub     Publisher
	cfg     RelayConfig
	metrics *RelayMetrics
	lg      *zap.Logger
}

// NewRelay creates a Relay. Zero config values fall back to one second and
// one hundred rows.
func NewRelay(tx Transactor, store Store, pub Publisher, cfg RelayConfig, metrics *RelayMetrics, lg *zap.Logger) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Relay{tx: tx, store: store, pub: pub, cfg: cfg, metrics: metrics, lg: lg}
}

// Run polls until ctx is done. A full batch is followed immediately by the
// next one; otherwise the relay waits for the interval.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		n, err := r.Flush(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.metrics.Failures.Inc()
			r.lg.Warn("Outbox relay failed", zap.Error(err))
		}
		if n == r.cfg.BatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch and returns how many rows were sent. Rows stay
// unsent if publishing fails.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var sent int
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		msgs, err := r.store.Pending(ctx, r.cfg.BatchSize)
		if err != nil {
			return errors.Wrap(err, "fetch pending")
		}
		if len(msgs) == 0 {
			return nil
		}

		if err := r.pub.Publish(ctx, msgs...); err != nil {
			return errors.Wrap(err, "publish")
		}

		ids := make([]int64, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		if err := r.store.MarkSent(ctx, ids); err != nil {
			return errors.Wrap(err, "mark sent")
		}
		sent = len(msgs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if sent > 0 {
		r.metrics.Published.Add(float64(sent))
	}
	return sent, nil
}
