package obs

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// StatusServer exposes /health, /metrics (JSON) and /metrics/prometheus for a
// running keeper.
type StatusServer struct {
	metrics *Metrics
	router  *mux.Router
	handler http.Handler
	srv     *http.Server
	logger  *zap.Logger
	started time.Time
}

func NewStatusServer(addr string, metrics *Metrics, logger *zap.Logger) *StatusServer {
	s := &StatusServer{
		metrics: metrics,
		router:  mux.NewRouter(),
		logger:  logger,
		started: time.Now(),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(metrics))
	s.router.Handle("/metrics/prometheus", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.handler = cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet},
	}).Handler(s.router)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *StatusServer) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is done.
func (s *StatusServer) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("status_server_starting", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("status_server_failed", zap.Error(err))
	}
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).String(),
	})
}

func (s *StatusServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, v any) {
	payload, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}
