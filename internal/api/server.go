// Package api serves the read-only JSON endpoints consumed by the
// presentation layer, plus the websocket endpoint for live terminals.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"shellscribe/internal/channel"
	"shellscribe/internal/query"
	"shellscribe/internal/store"
)

// Server routes HTTP requests to the query service and the live channel hub.
type Server struct {
	queries *query.Service
	hub     *channel.Hub
	logger  *zap.Logger
}

// NewServer builds the HTTP server over the query service. hub may be nil
// when live capture is disabled.
func NewServer(queries *query.Service, hub *channel.Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{queries: queries, hub: hub, logger: logger}
}

// Routes builds the handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /api/sessions/{id}/timeline", s.handleTimeline)
	mux.HandleFunc("GET /api/sessions/{id}/patterns", s.handleSessionPatterns)
	mux.HandleFunc("GET /api/sessions/{id}/insights", s.handleInsights)
	mux.HandleFunc("GET /api/sessions/{id}/export", s.handleExport)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/patterns", s.handlePatterns)
	if s.hub != nil {
		mux.Handle("/ws", s.hub)
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	sessions, err := s.queries.ListSessions(limit)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	detail, err := s.queries.GetSession(r.PathValue("id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if detail == nil {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	s.respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	timeline, err := s.queries.Timeline(r.PathValue("id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, timeline)
}

func (s *Server) handleSessionPatterns(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.Patterns(r.PathValue("id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := s.queries.Insights(r.PathValue("id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, insights)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	format := r.URL.Query().Get("format")

	if format == "text" {
		transcript, err := s.queries.ExportTranscript(id)
		if errors.Is(err, query.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "session not found")
			return
		}
		if err != nil {
			s.respondStoreError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(transcript))
		return
	}

	record, err := s.queries.ExportRecord(id)
	if errors.Is(err, query.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, record)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := store.SearchFilters{SessionID: q.Get("session")}
	if exit := q.Get("exit"); exit != "" {
		if code, err := strconv.Atoi(exit); err == nil {
			filters.ExitCode = &code
		}
	}
	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filters.From = t
		}
	}
	if until := q.Get("until"); until != "" {
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			filters.To = t
		}
	}

	results, err := s.queries.Search(strings.TrimSpace(q.Get("q")), filters)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queries.Statistics()
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.Patterns("")
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		payload = []interface{}{}
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError surfaces authoritative-store failures as 500s; by the
// error taxonomy these are fatal to the caller.
func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	s.logger.Error("store query failed", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, "store unavailable")
}

func intQuery(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
