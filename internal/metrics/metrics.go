// Package metrics exposes the agent's Prometheus counters/gauges —
// plans_ready, plans_sent, plans_error, session_notional_usd — on an
// internal /metrics handle. Grounded on the prometheus usage in the
// retrieval pack's josephblackelite-nhbchain/observability package
// (CounterVec/GaugeVec registered once behind a package-level registry),
// narrowed to the handful of series spec.md §5 actually names. It registers
// the series, and Serve runs a minimal HTTP server exposing them at
// /metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector holds the process-wide liquidation metrics. One Collector is
// shared by every chain agent; series are labeled by chain so multi-chain
// counts stay distinguishable.
type Collector struct {
	plansReady *prometheus.CounterVec
	plansSent  *prometheus.CounterVec
	plansError *prometheus.CounterVec
	notional   *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewCollector builds a Collector on its own registry, so repeated test
// construction never collides with prometheus's global DefaultRegisterer.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		plansReady: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liquidationd",
			Name:      "plans_ready_total",
			Help:      "Plans accepted by the scorer and readied for submission.",
		}, []string{"chain"}),
		plansSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liquidationd",
			Name:      "plans_sent_total",
			Help:      "Plans successfully submitted on-chain.",
		}, []string{"chain"}),
		plansError: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liquidationd",
			Name:      "plans_error_total",
			Help:      "Plan submissions that returned an error, hf-recovered reverts included.",
		}, []string{"chain"}),
		notional: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "liquidationd",
			Name:      "session_notional_usd",
			Help:      "Cumulative USD notional committed this process session.",
		}, []string{"chain"}),
		registry: reg,
	}
	reg.MustRegister(c.plansReady, c.plansSent, c.plansError, c.notional)
	return c
}

// IncPlanReady records one accepted-plan event for chain.
func (c *Collector) IncPlanReady(chain string) { c.plansReady.WithLabelValues(chain).Inc() }

// IncPlanSent records one successful submission for chain.
func (c *Collector) IncPlanSent(chain string) { c.plansSent.WithLabelValues(chain).Inc() }

// IncPlanError records one failed submission for chain.
func (c *Collector) IncPlanError(chain string) { c.plansError.WithLabelValues(chain).Inc() }

// SetNotionalUSD sets the session-notional gauge for chain to usd.
func (c *Collector) SetNotionalUSD(chain string, usd float64) {
	c.notional.WithLabelValues(chain).Set(usd)
}

// Observe records one chainagent.Report's worth of outcome, dispatched by
// event type. plan_sent, send_error and dry_run each count one ready plan;
// other event types (agent_start, halt, shutdown, plan_skipped) are not
// counted, so a plan stopped by a session cap is not in plans_ready.
func (c *Collector) Observe(chain, eventType string) {
	switch eventType {
	case "plan_sent":
		c.IncPlanSent(chain)
		c.IncPlanReady(chain)
	case "send_error":
		c.IncPlanError(chain)
		c.IncPlanReady(chain)
	case "dry_run":
		c.IncPlanReady(chain)
	}
}

// Handler returns the HTTP handler serving this Collector's registry in the
// Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server on addr exposing /metrics, returning once ctx
// is cancelled. A blank addr disables metrics serving entirely.
func Serve(ctx context.Context, addr string, collector *Collector, log *zap.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics server starting", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("metrics server stopped", zap.Error(err))
	}
}
