package main

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type auditMetrics struct {
	indexed    *prometheus.CounterVec
	duplicates prometheus.Counter
	reconnects prometheus.Counter
	exportRuns *prometheus.CounterVec
	exportRows prometheus.Counter
	lag        prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *auditMetrics
)

func metrics() *auditMetrics {
	metricsOnce.Do(func() {
		metricsInst = &auditMetrics{
			indexed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "auditd",
				Name:      "events_indexed_total",
				Help:      "Events written to the audit index, by event type.",
			}, []string{"type"}),
			duplicates: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "auditd",
				Name:      "events_duplicate_total",
				Help:      "Stream events skipped by the content-hash ledger.",
			}),
			reconnects: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "auditd",
				Name:      "stream_reconnects_total",
				Help:      "Reconnections to the node event stream.",
			}),
			exportRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "auditd",
				Name:      "export_runs_total",
				Help:      "Report export runs, by outcome.",
			}, []string{"status"}),
			exportRows: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "auditd",
				Name:      "export_rows_total",
				Help:      "Mint rows written to export files.",
			}),
			lag: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "mintgate",
				Subsystem: "auditd",
				Name:      "stream_last_sequence",
				Help:      "Last stream sequence committed to the index.",
			}),
		}
		prometheus.MustRegister(
			metricsInst.indexed,
			metricsInst.duplicates,
			metricsInst.reconnects,
			metricsInst.exportRuns,
			metricsInst.exportRows,
			metricsInst.lag,
		)
	})
	return metricsInst
}
