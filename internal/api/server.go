// Package api provides the engine's operational HTTP surface: a
// read-only status/metrics server for dashboards and health checks.
// It never makes a trading decision and never writes to the store —
// every handler is a read-through view of Store/CircuitBreaker state.
// Grounded on the teacher's internal/api/server.go (gorilla/mux router,
// rs/cors middleware, gorilla/websocket upgrader for a push channel),
// trimmed from a full trading-dashboard/backtest API down to the
// handful of read-only endpoints an options-engine operator needs.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/atlas-desktop/options-engine/internal/domain"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Store is the narrow read-only slice the status server needs.
type Store interface {
	OpenPositions(ctx context.Context) ([]domain.Position, error)
	TradeHistory(ctx context.Context, limit int) ([]domain.Trade, error)
	ActiveCircuitBreakerEvent(ctx context.Context) (*domain.CircuitBreakerEvent, error)
}

var openPositionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "options_engine_open_positions",
	Help: "Number of positions currently OPEN in the store.",
})

// StatusServer exposes /healthz, /positions, /trades, /circuit-breaker,
// /metrics and a best-effort /ws push channel over the same router.
type StatusServer struct {
	logger     *zap.Logger
	addr       string
	store      Store
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// NewStatusServer builds the status server; call Run to start serving.
func NewStatusServer(logger *zap.Logger, addr string, store Store) *StatusServer {
	s := &StatusServer{
		logger: logger.Named("api"),
		addr:   addr,
		store:  store,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *StatusServer) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	s.router.HandleFunc("/trades", s.handleTrades).Methods(http.MethodGet)
	s.router.HandleFunc("/circuit-breaker", s.handleCircuitBreaker).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Run serves until ctx is cancelled, then shuts down within 5s.
func (s *StatusServer) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      cors.Default().Handler(s.router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *StatusServer) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.OpenPositions(r.Context())
	if err != nil {
		s.logger.Warn("status: open positions query failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	openPositionsGauge.Set(float64(len(positions)))
	writeJSON(w, http.StatusOK, positions)
}

func (s *StatusServer) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.store.TradeHistory(r.Context(), 100)
	if err != nil {
		s.logger.Warn("status: trade history query failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *StatusServer) handleCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	event, err := s.store.ActiveCircuitBreakerEvent(r.Context())
	if err != nil {
		s.logger.Warn("status: circuit breaker query failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": event})
}

// handleWS upgrades to a WebSocket and pushes the open-position count
// every 5s until the client disconnects. Best-effort only: a write
// failure just closes the connection, matching the Notifier façade's
// "never retried" delivery policy.
func (s *StatusServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("status: websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		positions, err := s.store.OpenPositions(r.Context())
		if err != nil {
			return
		}
		if err := conn.WriteJSON(map[string]any{"open_positions": len(positions), "at": time.Now().UTC()}); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
