// Package metrics exposes the bridge's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every counter and histogram the core records.
type Metrics struct {
	IngestFrames       *prometheus.CounterVec
	IngestRejected     *prometheus.CounterVec
	MergeWinnerChanges prometheus.Counter
	MergeSourceExpired prometheus.Counter
	UpdatesEnqueued    prometheus.Counter
	UpdatesDeduped     prometheus.Counter
	Sends              *prometheus.CounterVec
	SendFailures       *prometheus.CounterVec
	DeadLetters        *prometheus.CounterVec
	Polls              *prometheus.CounterVec
	PollFailures       *prometheus.CounterVec
	DiscoveryResponses *prometheus.CounterVec
	InvalidPayloads    *prometheus.CounterVec
	SendDuration       prometheus.Histogram
}

// New creates and registers the bridge metrics on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_ingest_frames_total",
			Help: "DMX frames accepted by protocol.",
		}, []string{"protocol"}),
		IngestRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_ingest_rejected_total",
			Help: "Malformed DMX packets dropped by protocol.",
		}, []string{"protocol"}),
		MergeWinnerChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_merge_winner_changes_total",
			Help: "Universe winner transitions in the priority merger.",
		}),
		MergeSourceExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_merge_source_expired_total",
			Help: "Sources aged out by the data-loss timeout.",
		}),
		UpdatesEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_updates_enqueued_total",
			Help: "Device state updates enqueued after debounce.",
		}),
		UpdatesDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_updates_deduped_total",
			Help: "Updates dropped by change detection.",
		}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_sends_total",
			Help: "Commands sent to devices by protocol.",
		}, []string{"protocol"}),
		SendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_send_failures_total",
			Help: "Failed send attempts by protocol.",
		}, []string{"protocol"}),
		DeadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_dead_letters_total",
			Help: "Payloads parked as dead letters by reason.",
		}, []string{"reason"}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_polls_total",
			Help: "Device liveness polls by protocol.",
		}, []string{"protocol"}),
		PollFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_poll_failures_total",
			Help: "Failed liveness polls by protocol.",
		}, []string{"protocol"}),
		DiscoveryResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_discovery_responses_total",
			Help: "Discovery responses recorded by protocol.",
		}, []string{"protocol"}),
		InvalidPayloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_invalid_payload_total",
			Help: "Discovery or poll responses with unknown payload shapes.",
		}, []string{"protocol"}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_send_duration_seconds",
			Help:    "Wall time of a device send including batch spacing.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	reg.MustRegister(
		m.IngestFrames, m.IngestRejected,
		m.MergeWinnerChanges, m.MergeSourceExpired,
		m.UpdatesEnqueued, m.UpdatesDeduped,
		m.Sends, m.SendFailures, m.DeadLetters,
		m.Polls, m.PollFailures,
		m.DiscoveryResponses, m.InvalidPayloads,
		m.SendDuration,
	)
	return m
}

// NewNop creates metrics on a private registry, for tests and tools that
// don't scrape.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
