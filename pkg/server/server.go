// Package server exposes a small read-only HTTP API over the
// checkpoint store: period status and finalized rankings.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DragonSun329/briefAI-sub001/internal/checkpoint"
	"github.com/DragonSun329/briefAI-sub001/pkg/item"
)

// Server provides the HTTP API.
type Server struct {
	store checkpoint.Store
	port  int
	log   *slog.Logger
}

// New creates a new HTTP server.
func New(store checkpoint.Store, port int, log *slog.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: store, port: port, log: log}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1/periods/{periodID}", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/report", s.handleReport)
	})
	return r
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("server listening", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	PeriodID string              `json:"period_id"`
	Sealed   bool                `json:"sealed"`
	Archived bool                `json:"archived"`
	Counts   map[item.Status]int `json:"counts"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	periodID := chi.URLParam(r, "periodID")

	info, err := s.store.Period(r.Context(), periodID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	counts, err := s.store.CountByStatus(r.Context(), periodID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		PeriodID: periodID,
		Sealed:   info.Sealed,
		Archived: info.Archived,
		Counts:   counts,
	})
}

type reportResponse struct {
	PeriodID string      `json:"period_id"`
	Items    []item.Item `json:"items"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	periodID := chi.URLParam(r, "periodID")

	info, err := s.store.Period(r.Context(), periodID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !info.Sealed {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "period not finalized yet"})
		return
	}

	items, err := s.store.LoadPeriod(r.Context(), periodID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var ranked []item.Item
	for _, it := range items {
		if it.Status == item.StatusFullyScored && it.FinalScore != nil {
			ranked = append(ranked, it)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if *ranked[i].FinalScore != *ranked[j].FinalScore {
			return *ranked[i].FinalScore > *ranked[j].FinalScore
		}
		return ranked[i].ID < ranked[j].ID
	})

	writeJSON(w, http.StatusOK, reportResponse{PeriodID: periodID, Items: ranked})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, checkpoint.ErrNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
