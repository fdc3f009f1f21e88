// Package metrics holds the Prometheus collectors for parsing and submission.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics is passed to the components that record metrics. A nil *Metrics is a no-op.
type Metrics struct {
	gatherer prometheus.Gatherer

	linesTotal    *prometheus.CounterVec
	chunksTotal   *prometheus.CounterVec
	chunkDuration prometheus.Histogram
	rpcRetries    *prometheus.CounterVec
	tokensSent    *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWith(reg, reg)
}

// NewWith registers collectors on registry; gatherer serves /metrics.
func NewWith(registry prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		gatherer: gatherer,
		linesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multisender_lines_total",
				Help: "Recipient lines parsed, by result (accepted or the rejection reason)",
			},
			[]string{"result"},
		),
		chunksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multisender_chunks_total",
				Help: "Batch chunks by terminal status",
			},
			[]string{"status"},
		),
		chunkDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "multisender_chunk_duration_seconds",
				Help:    "Time from signing a chunk to its terminal receipt",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
			},
		),
		rpcRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multisender_rpc_retries_total",
				Help: "Retried read-only RPC calls by method",
			},
			[]string{"method"},
		),
		tokensSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multisender_recipients_paid_total",
				Help: "Recipients covered by confirmed chunks, by token symbol",
			},
			[]string{"token"},
		),
	}
}

func (m *Metrics) RecordLine(result string) {
	if m == nil {
		return
	}
	m.linesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordChunk(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.chunksTotal.WithLabelValues(status).Inc()
	if d > 0 {
		m.chunkDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) RecordRPCRetry(method string) {
	if m == nil {
		return
	}
	m.rpcRetries.WithLabelValues(method).Inc()
}

func (m *Metrics) RecordRecipientsPaid(token string, n int) {
	if m == nil {
		return
	}
	m.tokensSent.WithLabelValues(token).Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done. Empty addr disables it.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("starting metrics HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}()
}
