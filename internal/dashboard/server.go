// Package dashboard serves a read-only JSON view of the running strategy.
package dashboard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/delta_neutral/internal/models"
	"github.com/eddiefleurent/delta_neutral/internal/strategy"
)

// StatusSource provides the published strategy status
type StatusSource interface {
	Status() strategy.Status
}

// Server is the status HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	source    StatusSource
	logger    logrus.FieldLogger
	started   time.Time
	authToken string
	port      int
}

// Config holds server settings
type Config struct {
	AuthToken string
	Port      int
}

// StatusView is the /api/status payload
type StatusView struct {
	UpdatedAt      time.Time            `json:"updated_at"`
	PositionID     string               `json:"position_id"`
	State          models.PositionState `json:"state"`
	Description    string               `json:"description"`
	StateSince     time.Time            `json:"state_since,omitempty"`
	Managed        bool                 `json:"managed"`
	Call           *LegView             `json:"call,omitempty"`
	Put            *LegView             `json:"put,omitempty"`
	Wings          []LegView            `json:"wings,omitempty"`
	RealizedPnL    float64              `json:"realized_pnl"`
	UnrealizedPnL  float64              `json:"unrealized_pnl"`
	TotalPnL       float64              `json:"total_pnl"`
	MarginBase     float64              `json:"margin_base"`
	NetDelta       float64              `json:"net_delta"`
	RebalanceCount int                  `json:"rebalance_count"`
}

// LegView describes one held option
type LegView struct {
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"`
	Strike     float64 `json:"strike"`
	EntryPrice float64 `json:"entry_price"`
	Delta      float64 `json:"delta"`
	Contracts  int     `json:"contracts"`
}

func legView(l *models.Leg) *LegView {
	if l == nil {
		return nil
	}
	return &LegView{
		Symbol:     l.Symbol,
		Type:       string(l.Contract.Type),
		Strike:     l.Contract.Strike,
		EntryPrice: l.EntryPrice,
		Delta:      l.Delta,
		Contracts:  l.Contracts,
	}
}

// NewServer creates a status server
func NewServer(cfg Config, source StatusSource, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		router:    chi.NewRouter(),
		source:    source,
		logger:    logger,
		started:   time.Now().UTC(),
		authToken: cfg.AuthToken,
		port:      cfg.Port,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/status", s.handleStatus)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start serves until Shutdown; a clean shutdown returns nil, including a
// Shutdown that happens before Start.
func (s *Server) Start() error {
	s.logger.Infof("Starting status server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.source.Status()
	view := StatusView{
		UpdatedAt:      st.UpdatedAt,
		State:          st.State,
		Description:    st.Description,
		RealizedPnL:    st.RealizedPnL,
		UnrealizedPnL:  st.UnrealizedPnL,
		TotalPnL:       st.RealizedPnL + st.UnrealizedPnL,
		MarginBase:     st.MarginBase,
		NetDelta:       st.NetDelta,
		RebalanceCount: st.RebalanceCount,
	}
	if pos := st.Position; pos != nil {
		view.PositionID = pos.ID
		if sm := pos.StateMachine; sm != nil {
			view.StateSince = sm.GetTransitionTime()
			view.Managed = sm.IsManaged()
		}
		view.Call = legView(pos.Call)
		view.Put = legView(pos.Put)
		for i := range pos.Wings {
			view.Wings = append(view.Wings, *legView(&pos.Wings[i]))
		}
	}
	s.writeJSON(w, view)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
