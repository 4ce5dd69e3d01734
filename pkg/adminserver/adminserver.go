// Package adminserver exposes a small introspection HTTP surface:
// /status for a liveness/identity check and /metrics for Prometheus
// scraping, following the gorilla/mux routing style used elsewhere in
// the codebase's HTTP-facing packages.
package adminserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bftcore/pkg/helper/log"
)

// StatusProvider supplies the live facts /status reports. Implemented by
// the node's top-level wiring (cmd/bftnode) so this package stays free
// of a dependency on any particular component.
type StatusProvider interface {
	ReplicaID() uint32
	LastExecutedSeq() uint64
	LiveKeyGenerations() int
}

// Server is a minimal admin HTTP server.
type Server struct {
	httpServer *http.Server
	logger     log.Logger
}

// New constructs a Server bound to addr, registering /status (backed by
// status) and /metrics (backed by reg).
func New(addr string, reg *prometheus.Registry, status StatusProvider, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewBasicLogger(log.InfoLevel)
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"replica_id":           status.ReplicaID(),
			"last_executed_seq":    status.LastExecutedSeq(),
			"live_key_generations": status.LiveKeyGenerations(),
		})
	}).Methods(http.MethodGet)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving in the background, logging an error-level message
// if the listener fails for any reason other than a clean shutdown.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("adminserver: listener exited unexpectedly", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
