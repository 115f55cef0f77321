package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	mintMetricsOnce sync.Once
	mintRegistry    *MintMetrics

	gatewayMetricsOnce sync.Once
	gatewayRegistry    *GatewayMetrics

	auditMetricsOnce sync.Once
	auditRegistry    *AuditdMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "mintgate",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" or
// "auth_required" so dashboards and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// MintMetrics captures collectors for the drop mint and settlement paths.
type MintMetrics struct {
	mints    *prometheus.CounterVec
	tokens   *prometheus.CounterVec
	settled  *prometheus.CounterVec
	rejects  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	replays  prometheus.Counter
	supplies *prometheus.GaugeVec
}

// Mint exposes the metrics registry for drop engine activity.
func Mint() *MintMetrics {
	mintMetricsOnce.Do(func() {
		mintRegistry = &MintMetrics{
			mints: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "drop",
				Name:      "mints_total",
				Help:      "Count of mint operations segmented by stage kind and outcome.",
			}, []string{"stage", "outcome"}),
			tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "drop",
				Name:      "tokens_minted_total",
				Help:      "Count of tokens minted segmented by stage kind.",
			}, []string{"stage"}),
			settled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "drop",
				Name:      "settlement_value_total",
				Help:      "Cumulative settled value segmented by destination (fee or creator).",
			}, []string{"destination"}),
			rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "drop",
				Name:      "rejections_total",
				Help:      "Count of rejected mint operations segmented by stage kind and reason.",
			}, []string{"stage", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "mintgate",
				Subsystem: "drop",
				Name:      "mint_duration_seconds",
				Help:      "Latency distribution for mint operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"stage"}),
			replays: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "drop",
				Name:      "signature_replays_total",
				Help:      "Count of mint attempts rejected because the signed payload digest was already consumed.",
			}),
			supplies: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "mintgate",
				Subsystem: "drop",
				Name:      "collection_total_supply",
				Help:      "Latest observed total supply per collection.",
			}, []string{"collection"}),
		}
		prometheus.MustRegister(
			mintRegistry.mints,
			mintRegistry.tokens,
			mintRegistry.settled,
			mintRegistry.rejects,
			mintRegistry.latency,
			mintRegistry.replays,
			mintRegistry.supplies,
		)
	})
	return mintRegistry
}

// ObserveMint records one mint attempt. Stage should be a stable kind such as
// "signed" or "public"; reason carries the normalized failure cause when the
// attempt was rejected.
func (m *MintMetrics) ObserveMint(stage string, quantity uint64, duration time.Duration, reason string) {
	if m == nil {
		return
	}
	stage = labelStage(stage)
	outcome := "success"
	if reason != "" {
		outcome = "error"
		m.rejects.WithLabelValues(stage, reason).Inc()
	} else if quantity > 0 {
		m.tokens.WithLabelValues(stage).Add(float64(quantity))
	}
	m.mints.WithLabelValues(stage, outcome).Inc()
	m.latency.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordSettlement accumulates the fee and creator portions of a settled mint.
func (m *MintMetrics) RecordSettlement(fee, creator *big.Int) {
	if m == nil {
		return
	}
	if v := bigToFloat(fee); v > 0 {
		m.settled.WithLabelValues("fee").Add(v)
	}
	if v := bigToFloat(creator); v > 0 {
		m.settled.WithLabelValues("creator").Add(v)
	}
}

// RecordReplay increments the replay rejection counter.
func (m *MintMetrics) RecordReplay() {
	if m == nil {
		return
	}
	m.replays.Inc()
}

// RecordSupply updates the supply gauge for a collection.
func (m *MintMetrics) RecordSupply(collection string, supply uint64) {
	if m == nil {
		return
	}
	if collection = strings.TrimSpace(collection); collection == "" {
		collection = "unknown"
	}
	m.supplies.WithLabelValues(collection).Set(float64(supply))
}

// GatewayMetrics bundles collectors for the storefront gateway.
type GatewayMetrics struct {
	submissions *prometheus.CounterVec
	idempotent  prometheus.Counter
	upstream    *prometheus.HistogramVec
}

// Gateway exposes the metrics registry for the storefront gateway.
func Gateway() *GatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "gateway",
				Name:      "submissions_total",
				Help:      "Count of mint submissions accepted by the gateway segmented by kind and outcome.",
			}, []string{"kind", "outcome"}),
			idempotent: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "gateway",
				Name:      "idempotent_replays_total",
				Help:      "Count of submissions answered from the idempotency store without reaching the node.",
			}),
			upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "mintgate",
				Subsystem: "gateway",
				Name:      "upstream_duration_seconds",
				Help:      "Latency distribution for upstream node RPC calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.submissions,
			gatewayRegistry.idempotent,
			gatewayRegistry.upstream,
		)
	})
	return gatewayRegistry
}

// ObserveSubmission records one gateway submission attempt.
func (m *GatewayMetrics) ObserveSubmission(kind string, err error) {
	if m == nil {
		return
	}
	if kind = strings.TrimSpace(kind); kind == "" {
		kind = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.submissions.WithLabelValues(kind, outcome).Inc()
}

// RecordIdempotentReplay counts a submission served from the idempotency store.
func (m *GatewayMetrics) RecordIdempotentReplay() {
	if m == nil {
		return
	}
	m.idempotent.Inc()
}

// ObserveUpstream records the latency of one upstream RPC call.
func (m *GatewayMetrics) ObserveUpstream(method string, duration time.Duration) {
	if m == nil {
		return
	}
	if method = strings.TrimSpace(method); method == "" {
		method = "unknown"
	}
	m.upstream.WithLabelValues(method).Observe(duration.Seconds())
}

// AuditdMetrics bundles collectors for the audit indexer.
type AuditdMetrics struct {
	indexed    *prometheus.CounterVec
	duplicates prometheus.Counter
	exports    *prometheus.CounterVec
	checkpoint prometheus.Gauge
	lag        prometheus.Gauge
}

// Auditd exposes the metrics registry for mint-auditd.
func Auditd() *AuditdMetrics {
	auditMetricsOnce.Do(func() {
		auditRegistry = &AuditdMetrics{
			indexed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "auditd",
				Name:      "events_indexed_total",
				Help:      "Count of node events persisted by the indexer segmented by event type.",
			}, []string{"type"}),
			duplicates: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "auditd",
				Name:      "duplicates_skipped_total",
				Help:      "Count of stream events skipped because their content hash was already indexed.",
			}),
			exports: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "auditd",
				Name:      "exports_total",
				Help:      "Count of export runs segmented by format and outcome.",
			}, []string{"format", "outcome"}),
			checkpoint: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "mintgate",
				Subsystem: "auditd",
				Name:      "checkpoint_sequence",
				Help:      "Last event sequence the indexer has durably checkpointed.",
			}),
			lag: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "mintgate",
				Subsystem: "auditd",
				Name:      "stream_lag_seconds",
				Help:      "Age in seconds of the most recently indexed event relative to local time.",
			}),
		}
		prometheus.MustRegister(
			auditRegistry.indexed,
			auditRegistry.duplicates,
			auditRegistry.exports,
			auditRegistry.checkpoint,
			auditRegistry.lag,
		)
	})
	return auditRegistry
}

// RecordIndexed counts a persisted event and refreshes the lag gauge.
func (m *AuditdMetrics) RecordIndexed(eventType string, age time.Duration) {
	if m == nil {
		return
	}
	if eventType = strings.TrimSpace(eventType); eventType == "" {
		eventType = "unknown"
	}
	m.indexed.WithLabelValues(eventType).Inc()
	seconds := age.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.lag.Set(seconds)
}

// RecordDuplicate counts an event skipped by content-hash deduplication.
func (m *AuditdMetrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

// RecordExport counts one export run.
func (m *AuditdMetrics) RecordExport(format string, err error) {
	if m == nil {
		return
	}
	if format = strings.TrimSpace(format); format == "" {
		format = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.exports.WithLabelValues(format, outcome).Inc()
}

// RecordCheckpoint updates the checkpoint gauge to the supplied sequence.
func (m *AuditdMetrics) RecordCheckpoint(seq uint64) {
	if m == nil {
		return
	}
	m.checkpoint.Set(float64(seq))
}

func labelStage(stage string) string {
	trimmed := strings.TrimSpace(stage)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
