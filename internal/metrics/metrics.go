// Package metrics exposes pipeline counters over Prometheus. The
// collector registry is private to the process; Serve is optional and
// off by default.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fyrsmithlabs/diagramd/internal/logging"
	"go.uber.org/zap"
)

// Metrics holds every collector the pipeline updates.
type Metrics struct {
	reg *prometheus.Registry

	ProviderCalls   *prometheus.CounterVec
	ProviderRetries prometheus.Counter
	TokensEstimated prometheus.Counter
	WindowWaits     prometheus.Counter
	Diagrams        *prometheus.CounterVec
	BatchesFailed   prometheus.Counter
	NodeDuration    *prometheus.HistogramVec
}

// New builds a fresh registry and collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diagramd",
			Name:      "provider_calls_total",
			Help:      "LLM provider calls by outcome.",
		}, []string{"outcome"}),
		ProviderRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "diagramd",
			Name:      "provider_retries_total",
			Help:      "Transient provider failures that were retried.",
		}),
		TokensEstimated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "diagramd",
			Name:      "tokens_estimated_total",
			Help:      "Estimated tokens consumed against the rate window.",
		}),
		WindowWaits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "diagramd",
			Name:      "rate_window_waits_total",
			Help:      "Times an admission had to wait for window capacity.",
		}),
		Diagrams: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diagramd",
			Name:      "diagrams_total",
			Help:      "Diagram outcomes by status.",
		}, []string{"status"}),
		BatchesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "diagramd",
			Name:      "summarizer_batches_failed_total",
			Help:      "Summarizer batches that failed even after degrading to a single file.",
		}),
		NodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "diagramd",
			Name:      "node_duration_seconds",
			Help:      "Wall time per pipeline node.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"node"}),
	}
}

// Serve exposes /metrics on addr until ctx is canceled. Errors other
// than a clean shutdown are logged, not fatal; metrics are advisory.
func (m *Metrics) Serve(ctx context.Context, addr string, log *logging.Logger) {
	if addr == "" {
		return
	}
	if log == nil {
		log = logging.Nop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Info(ctx, "metrics listener started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(ctx, "metrics listener failed", zap.Error(err))
		}
	}()
}
