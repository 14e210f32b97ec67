// Package metrics records backfill and replay counters on a private
// Prometheus registry. Commands are short-lived batch jobs, so the registry is
// pushed to a Pushgateway at the end of a run instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Outcome labels shared by backfill items and replay deliveries.
const (
	OutcomeInserted  = "inserted"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeDelivered = "delivered"
)

// Recorder owns the audit engine collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry        *prometheus.Registry
	gapsDetected    prometheus.Counter
	backfillItems   *prometheus.CounterVec
	batchCommits    prometheus.Counter
	replayMatched   prometheus.Counter
	deliveries      *prometheus.CounterVec
	deliverySeconds prometheus.Histogram
}

// New builds a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		gapsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paysignal",
			Subsystem: "audit",
			Name:      "gaps_detected_total",
			Help:      "Transactions found without any audit trail entry.",
		}),
		backfillItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paysignal",
			Subsystem: "audit",
			Name:      "backfill_items_total",
			Help:      "Backfill items by outcome.",
		}, []string{"outcome"}),
		batchCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paysignal",
			Subsystem: "audit",
			Name:      "backfill_commits_total",
			Help:      "Backfill batch commits.",
		}),
		replayMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paysignal",
			Subsystem: "audit",
			Name:      "replay_matched_total",
			Help:      "Audit entries matched by replay filters.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paysignal",
			Subsystem: "audit",
			Name:      "replay_deliveries_total",
			Help:      "Replay delivery attempts by outcome.",
		}, []string{"channel", "outcome"}),
		deliverySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "paysignal",
			Subsystem: "audit",
			Name:      "replay_delivery_duration_seconds",
			Help:      "Latency of single replay delivery calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	r.registry.MustRegister(
		r.gapsDetected,
		r.backfillItems,
		r.batchCommits,
		r.replayMatched,
		r.deliveries,
		r.deliverySeconds,
	)
	return r
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// GapsDetected adds n detected gaps.
func (r *Recorder) GapsDetected(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.gapsDetected.Add(float64(n))
}

// BackfillItem counts one backfill item outcome.
func (r *Recorder) BackfillItem(outcome string) {
	if r == nil {
		return
	}
	r.backfillItems.WithLabelValues(outcome).Inc()
}

// BatchCommitted counts one backfill commit.
func (r *Recorder) BatchCommitted() {
	if r == nil {
		return
	}
	r.batchCommits.Inc()
}

// ReplayMatched adds n entries selected for replay.
func (r *Recorder) ReplayMatched(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.replayMatched.Add(float64(n))
}

// Delivery counts one delivery attempt and its latency.
func (r *Recorder) Delivery(channel, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.deliveries.WithLabelValues(channel, outcome).Inc()
	r.deliverySeconds.Observe(elapsed.Seconds())
}

// Push sends the registry to a Pushgateway. An empty URL is a no-op.
func (r *Recorder) Push(ctx context.Context, gatewayURL, job string) error {
	if r == nil || strings.TrimSpace(gatewayURL) == "" {
		return nil
	}
	if strings.TrimSpace(job) == "" {
		return fmt.Errorf("pushgateway job name is required")
	}
	if err := push.New(gatewayURL, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
