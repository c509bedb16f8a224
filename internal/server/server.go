// Package server exposes a shared trajectory ring buffer over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"trajectory-rl/internal/buffer"
)

// Server serves the enqueue, batch, stats and metrics endpoints of one
// shared buffer.
type Server struct {
	shared   *buffer.Shared
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	requests *prometheus.CounterVec
}

// New builds the server and registers its request counter on reg.
func New(shared *buffer.Shared, reg *prometheus.Registry, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trajectory",
		Subsystem: "server",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by route and status",
	}, []string{"route", "status"})
	if err := reg.Register(requests); err != nil {
		return nil, err
	}
	return &Server{
		shared:   shared,
		logger:   logger,
		gatherer: reg,
		requests: requests,
	}, nil
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/enqueue", s.handleEnqueue)
	mux.HandleFunc("/batch", s.handleBatch)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.status(w, "/healthz", http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.status(w, "/stats", http.StatusMethodNotAllowed)
		return
	}
	keys := s.shared.Keys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	s.writeJSON(w, "/stats", http.StatusOK, map[string]any{
		"size":     s.shared.Size(),
		"capacity": s.shared.Capacity(),
		"keys":     names,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.status(w, "/config", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, "/config", http.StatusOK, map[string]any{
		"capacity": s.shared.Capacity(),
	})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.status(w, "/enqueue", http.StatusMethodNotAllowed)
		return
	}

	var req buffer.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Debug("bad enqueue body", zap.Error(err))
		s.status(w, "/enqueue", http.StatusBadRequest)
		return
	}

	absorbed, err := s.shared.AbsorbTrajectories(req.Trajectories)
	if err != nil {
		if errors.Is(err, buffer.ErrShapeMismatch) || errors.Is(err, buffer.ErrInvalidTensor) {
			s.logger.Warn("rejected trajectories", zap.Error(err))
			s.status(w, "/enqueue", http.StatusUnprocessableEntity)
			return
		}
		s.logger.Error("absorb trajectories", zap.Error(err))
		s.status(w, "/enqueue", http.StatusInternalServerError)
		return
	}

	occupancy := s.shared.Size()
	s.logger.Debug("absorbed trajectories",
		zap.Int("trajectories", len(req.Trajectories)),
		zap.Int("steps", absorbed),
		zap.Int("occupancy", occupancy),
	)
	s.writeJSON(w, "/enqueue", http.StatusAccepted, buffer.EnqueueResponse{
		Absorbed:  absorbed,
		Occupancy: occupancy,
	})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.status(w, "/batch", http.StatusMethodNotAllowed)
		return
	}
	window := s.shared.Window()
	if window.Size == 0 {
		s.status(w, "/batch", http.StatusNoContent)
		return
	}
	s.writeJSON(w, "/batch", http.StatusOK, window)
}

func (s *Server) status(w http.ResponseWriter, route string, code int) {
	s.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	s.logger.Debug("request", zap.String("route", route), zap.Int("status", code))
	w.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, route string, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("encode response", zap.String("route", route), zap.Error(err))
		s.status(w, route, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	s.status(w, route, code)
	_, _ = w.Write(body)
}
