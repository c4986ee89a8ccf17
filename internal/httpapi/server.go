// Package httpapi exposes triggers, reports, feeds and stored audio over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"podcaster/internal/domain"
	"podcaster/internal/feed"
	"podcaster/internal/trigger"
)

const maxEventBytes = 1 << 20

type Dispatcher interface {
	Dispatch(ctx context.Context, ev trigger.Event) trigger.Response
	DispatchJSON(ctx context.Context, data []byte) trigger.Response
}

type AudioStore interface {
	Download(ctx context.Context, key string, w io.Writer) (int64, error)
}

type EpisodeLookup interface {
	EpisodeStatus(ctx context.Context, episodeID string) (map[string]any, error)
}

type Config struct {
	Addr           string
	PublicURL      string
	RateLimit      float64
	RateBurst      int
	RequestTimeout time.Duration
	FeedLimit      int
}

type Dependencies struct {
	Dispatcher Dispatcher
	Catalog    domain.SeriesLookup
	Feeds      feed.Source
	Audio      AudioStore
	Episodes   EpisodeLookup
}

type Server struct {
	cfg    Config
	deps   Dependencies
	router *mux.Router
	logger *slog.Logger
}

func NewServer(cfg Config, deps Dependencies, logger *slog.Logger) *Server {
	if cfg.FeedLimit <= 0 {
		cfg.FeedLimit = 50
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Minute
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: mux.NewRouter(),
		logger: logger.With("component", "httpapi"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	limiter := NewRateLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst, s.logger)

	s.router.Handle("/trigger", limiter.Middleware(http.HandlerFunc(s.handleTrigger))).Methods(http.MethodPost)
	s.router.HandleFunc("/status", s.handleAction(trigger.ActionStatus)).Methods(http.MethodGet)
	s.router.HandleFunc("/validate", s.handleAction(trigger.ActionValidate)).Methods(http.MethodGet)
	s.router.HandleFunc("/feeds/{series}.xml", s.handleFeed).Methods(http.MethodGet)
	s.router.HandleFunc("/audio/{key:.+}", s.handleAudio).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/episodes/{id}", s.handleEpisode).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	s.writeResponse(w, s.deps.Dispatcher.DispatchJSON(ctx, body))
}

func (s *Server) handleAction(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeResponse(w, s.deps.Dispatcher.Dispatch(r.Context(), trigger.Event{Action: action}))
	}
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	seriesID := mux.Vars(r)["series"]

	series, ok := s.deps.Catalog.Lookup(seriesID)
	if !ok {
		http.Error(w, "Series not found", http.StatusNotFound)
		return
	}

	episodes, err := s.deps.Feeds.ListRecent(r.Context(), seriesID, s.cfg.FeedLimit)
	if err != nil {
		s.logger.Error("failed to list episodes", "series_id", seriesID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	rss, err := feed.GenerateRSS(series, episodes, s.baseURL(r), time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to generate rss", "series_id", seriesID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml")
	w.Write([]byte(rss))
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var buf bytes.Buffer
	if _, err := s.deps.Audio.Download(r.Context(), key, &buf); err != nil {
		if errors.Is(err, domain.ErrArtifactNotFound) {
			http.Error(w, "Audio not found", http.StatusNotFound)
			return
		}
		s.logger.Error("failed to download audio", "key", key, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", domain.AudioMIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if r.Method == http.MethodHead {
		return
	}
	w.Write(buf.Bytes())
}

func (s *Server) handleEpisode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	status, err := s.deps.Episodes.EpisodeStatus(r.Context(), id)
	if err != nil {
		s.logger.Warn("failed to get episode status", "episode_id", id, "error", err)
		writeJSON(w, http.StatusBadGateway, trigger.ErrorBody{
			Error:     "Episode lookup failed",
			Kind:      domain.Kind(err),
			Message:   err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeResponse(w http.ResponseWriter, resp trigger.Response) {
	writeJSON(w, resp.StatusCode, resp.Body)
}

func (s *Server) baseURL(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
