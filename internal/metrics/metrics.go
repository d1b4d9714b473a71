package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mikey/greylist-filter/internal/core"
)

// Collector counts decisions and store failures. It implements core.Metrics.
type Collector struct {
	registry    *prometheus.Registry
	decisions   *prometheus.CounterVec
	storeErrors *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greylist_decisions_total",
			Help: "Greylist decisions by result and reason.",
		}, []string{"result", "reason"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greylist_store_errors_total",
			Help: "Failed greylist store operations.",
		}, []string{"op"}),
	}
	c.registry.MustRegister(c.decisions, c.storeErrors)
	return c
}

// ObserveDecision implements core.Metrics
func (c *Collector) ObserveDecision(d core.Decision) {
	c.decisions.WithLabelValues(resultLabel(d), reasonLabel(d.Reason)).Inc()
}

// ObserveStoreError implements core.Metrics
func (c *Collector) ObserveStoreError(op string) {
	c.storeErrors.WithLabelValues(op).Inc()
}

// Handler serves the collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func resultLabel(d core.Decision) string {
	switch {
	case d.Skipped:
		return "skipped"
	case d.Greylisted():
		return "greylisted"
	default:
		return "accepted"
	}
}

// reasonLabel maps a reason to a bounded label value; whitelist reasons carry the entry
func reasonLabel(reason string) string {
	switch reason {
	case "":
		return "first_contact"
	case core.ReasonNotSpam:
		return "not_spam"
	case core.ReasonReputable:
		return "reputable"
	case core.ReasonNotExpired:
		return "not_expired"
	case core.ReasonElapsed:
		return "elapsed"
	case core.ReasonStoreUnavailable:
		return "store_unavailable"
	}
	if strings.HasSuffix(reason, " triggered") {
		return "whitelisted"
	}
	return "other"
}

// Server exposes /metrics over HTTP
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer creates a metrics server for c on addr
func NewServer(addr string, c *Collector, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background
func (s *Server) Start() error {
	s.logger.Info("Metrics server starting", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
