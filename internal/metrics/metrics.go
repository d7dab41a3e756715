// Package metrics exposes Prometheus instrumentation for the signal service.
package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal service.
type Metrics struct {
	CyclesTotal      prometheus.Counter
	AnalyzeDur       prometheus.Histogram
	IndicatorDur     prometheus.Histogram
	SignalsGenerated *prometheus.CounterVec // labels: symbol, direction
	SignalsClosed    *prometheus.CounterVec // labels: status
	OpenSignals      prometheus.Gauge
	FetchErrors      *prometheus.CounterVec // labels: kind=candles|price
	DeliveredTotal   prometheus.Counter
	PersistErrors    prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_cycles_total",
			Help: "Total completed analysis cycles",
		}),
		AnalyzeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_analyze_duration_seconds",
			Help:    "Per-symbol analysis latency (fetch + indicators + scoring)",
			Buckets: prometheus.DefBuckets,
		}),
		IndicatorDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_indicator_compute_duration_seconds",
			Help:    "Indicator engine compute latency per window",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		SignalsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_signals_generated_total",
			Help: "Signals emitted (by symbol and direction)",
		}, []string{"symbol", "direction"}),
		SignalsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_signals_closed_total",
			Help: "Signals closed (by terminal status)",
		}, []string{"status"}),
		OpenSignals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_open_signals",
			Help: "Signals currently being monitored",
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_fetch_errors_total",
			Help: "Market data fetch failures (by kind)",
		}, []string{"kind"}),
		DeliveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_messages_delivered_total",
			Help: "Signal/closure messages delivered to subscribers",
		}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_persist_errors_total",
			Help: "Signal store save failures",
		}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.AnalyzeDur,
		m.IndicatorDur,
		m.SignalsGenerated,
		m.SignalsClosed,
		m.OpenSignals,
		m.FetchErrors,
		m.DeliveredTotal,
		m.PersistErrors,
	)

	return m
}

// Serve starts the /metrics endpoint on addr. Blocks; run in a goroutine.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("[metrics] serving on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("[metrics] server error: %v", err)
	}
}
