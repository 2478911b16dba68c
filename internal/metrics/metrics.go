package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "svlm_build_info",
			Help: "Build information of the Solana vote latency monitor",
		},
		[]string{"version", "commit", "date"},
	)

	DiscoveryRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svlm_discovery_refresh_total",
			Help: "Total number of validator fleet refreshes",
		},
		[]string{"status"},
	)

	DiscoveryRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "svlm_discovery_refresh_duration_seconds",
			Help:    "Duration of validator fleet refreshes",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	DiscoveryActiveValidators = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "svlm_discovery_active_validators",
			Help: "Number of validators currently in the active set",
		},
	)

	SubscriptionReconnectTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svlm_subscription_reconnect_total",
			Help: "Total number of gRPC subscription (re)connect attempts",
		},
		[]string{"reason"},
	)

	SubscriptionActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "svlm_subscription_active_streams",
			Help: "Number of currently connected validator subscription streams",
		},
	)

	SubscriptionHighestSlot = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "svlm_subscription_highest_slot",
			Help: "Highest slot observed across all subscriptions",
		},
	)

	VoteDecodeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svlm_vote_decode_total",
			Help: "Total number of vote instruction decode attempts by kind and outcome",
		},
		[]string{"variant", "status"},
	)

	LatencyComputeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svlm_latency_compute_total",
			Help: "Total number of latency computations by outcome",
		},
		[]string{"status"},
	)

	LatencySlotsObserved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "svlm_latency_slots_observed",
			Help:    "Distribution of observed vote latency, in slots",
			Buckets: prometheus.LinearBuckets(0, 8, 32),
		},
	)

	StoreWriteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svlm_store_write_total",
			Help: "Total number of batched writes by backend and outcome",
		},
		[]string{"backend", "status"},
	)

	StoreWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "svlm_store_write_duration_seconds",
			Help:    "Duration of batched store writes",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"backend"},
	)

	StoreDedupDropTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "svlm_store_dedup_drop_total",
			Help: "Total number of vote latency points dropped as duplicates",
		},
	)

	StoreBufferDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "svlm_store_buffer_depth",
			Help: "Current number of buffered points awaiting flush",
		},
	)
)
