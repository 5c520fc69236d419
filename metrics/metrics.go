// Package metrics exposes the service counters in Prometheus format:
//
//	otrace_reconcile_ticks_total{result}    idle|claimed|error
//	otrace_retry_decisions_total{decision}  reprice|cancel|manual|failed
//	otrace_ingest_items_total{result}       updated|skipped|failed
//	otrace_stream_reconnects_total
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otrace_reconcile_ticks_total",
			Help: "Reconciliation ticks by result",
		},
		[]string{"result"},
	)

	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otrace_retry_decisions_total",
			Help: "Retry decisions taken on claimed orders",
		},
		[]string{"decision"},
	)

	IngestItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otrace_ingest_items_total",
			Help: "Venue order snapshots ingested by result",
		},
		[]string{"result"},
	)

	Reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "otrace_stream_reconnects_total",
			Help: "Venue stream reconnects",
		},
	)
)

func init() {
	prometheus.MustRegister(Ticks, Decisions, IngestItems, Reconnects)
}

// Server serves /metrics until Shutdown.
type Server struct {
	Sugar *zap.SugaredLogger
	srv   *http.Server
}

func NewServer(addr string, sugar *zap.SugaredLogger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		Sugar: sugar,
		srv:   &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
	}
}

func (s *Server) Start() {
	go func() {
		s.Sugar.Infof("metrics listen on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.Sugar.Errorf("metrics server error: %s", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
