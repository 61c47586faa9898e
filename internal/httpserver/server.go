// Package httpserver is the read path: it serves the merged timeline and
// the hashtag endpoints as JSON, with conditional-GET semantics tied to the
// engine's update cadence.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tagmirror/internal/config"
	"tagmirror/internal/domain"
)

// Server serves the HTTP API.
type Server struct {
	cfg        *config.Config
	statuses   *domain.StatusService
	hashtags   *domain.HashtagService
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates the HTTP server over the domain services.
func NewServer(cfg *config.Config, statuses *domain.StatusService, hashtags *domain.HashtagService, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		statuses: statuses,
		hashtags: hashtags,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /timeline", s.handleTimeline)
	mux.HandleFunc("GET /timeline/popular", s.handlePopularTimeline)
	mux.HandleFunc("GET /tags", s.handleListTags)
	mux.HandleFunc("POST /tags", s.handleSuggestTag)
	mux.HandleFunc("GET /tags/popular", s.handlePopularTags)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening. It blocks until the server is shut down or fails.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTimeline serves the merged cached timeline. ?tags=a,b filters to
// those hashtags; ?limit= caps the result. An If-Modified-Since no older
// than the freshest status short-circuits to 304.
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	tags := parseTags(r.URL.Query().Get("tags"))
	limit, err := s.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	statuses, err := s.statuses.RetrieveStatuses(r.Context(), tags, limit)
	if err != nil {
		s.logger.Error("failed to retrieve timeline", "tags", tags, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to retrieve timeline")
		return
	}

	s.writeStatuses(w, r, statuses)
}

// handlePopularTimeline serves statuses ordered by engagement over the last
// ?days= (default 1) rolling window.
func (s *Server) handlePopularTimeline(w http.ResponseWriter, r *http.Request) {
	tags := parseTags(r.URL.Query().Get("tags"))
	limit, err := s.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	days := 1
	if d := r.URL.Query().Get("days"); d != "" {
		days, err = strconv.Atoi(d)
		if err != nil || days < 1 {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "days must be a positive integer")
			return
		}
	}
	since := time.Now().AddDate(0, 0, -days)

	statuses, err := s.statuses.PopularStatuses(r.Context(), tags, since, limit)
	if err != nil {
		s.logger.Error("failed to retrieve popular timeline", "tags", tags, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to retrieve popular timeline")
		return
	}

	s.writeStatuses(w, r, statuses)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.hashtags.ListHashtags(r.Context())
	if err != nil {
		s.logger.Error("failed to list hashtags", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to list hashtags")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hashtags": tags})
}

func (s *Server) handleSuggestTag(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "invalid form body")
		return
	}

	name := r.PostFormValue("hashtag")
	if err := s.hashtags.SuggestHashtag(r.Context(), name); err != nil {
		s.logger.Error("failed to record hashtag suggestion", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to record suggestion")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePopularTags(w http.ResponseWriter, r *http.Request) {
	counts, err := s.statuses.PopularTags(r.Context(), []int{7, 30}, 5)
	if err != nil {
		s.logger.Error("failed to compute popular tags", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to compute popular tags")
		return
	}

	resp := make(map[string][]map[string]any, len(counts))
	for days, tags := range counts {
		entries := make([]map[string]any, len(tags))
		for i, tc := range tags {
			entries[i] = map[string]any{"name": tc.Name, "count": tc.Count}
		}
		resp[strconv.Itoa(days)] = entries
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeStatuses applies conditional-GET semantics and writes the raw status
// documents as a JSON array.
func (s *Server) writeStatuses(w http.ResponseWriter, r *http.Request, statuses []*domain.Status) {
	var freshest time.Time
	for _, status := range statuses {
		if status.CreatedAt.After(freshest) {
			freshest = status.CreatedAt
		}
	}

	var ifModifiedSince time.Time
	if h := r.Header.Get("If-Modified-Since"); h != "" {
		if t, err := http.ParseTime(h); err == nil {
			ifModifiedSince = t
		}
	}

	decision := domain.EvaluateFreshness(
		freshest,
		ifModifiedSince,
		s.cfg.Timeline.UpdateFrequency,
		s.cfg.Timeline.StaleWhileRevalidate,
	)

	w.Header().Set("Cache-Control", decision.CacheControl)
	if !decision.LastModified.IsZero() {
		w.Header().Set("Last-Modified", decision.LastModified.Format(http.TimeFormat))
	}
	if decision.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	docs := make([]json.RawMessage, len(statuses))
	for i, status := range statuses {
		docs[i] = status.Raw
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) parseLimit(raw string) (int, error) {
	limit := s.cfg.Timeline.StatusesCount
	if raw == "" {
		return limit, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if parsed < limit {
		limit = parsed
	}
	return limit, nil
}

func parseTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
