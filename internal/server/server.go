// Package server exposes the refresh loop over HTTP: a JSON API, a
// websocket stream, Prometheus metrics and a server-rendered status card.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/unklstewy/adsb-closest/internal/refresh"
	"github.com/unklstewy/adsb-closest/pkg/adsb"
	"github.com/unklstewy/adsb-closest/pkg/closest"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

// Source is the view of the refresh loop the server needs.
type Source interface {
	Current() refresh.State
	Refresh()
	Notify(fn func(refresh.State))
}

// Options configures a Server.
type Options struct {
	Source Source

	// Metrics serves /metrics; nil disables the endpoint.
	Metrics http.Handler

	// CORSOrigins lists allowed origins; empty allows all.
	CORSOrigins []string

	// Title is shown on the status page (typically the observer name).
	Title string

	Logger *slog.Logger
}

// Server holds the HTTP router and its dependencies
type Server struct {
	router  *chi.Mux
	source  Source
	metrics http.Handler
	origins []string
	title   string
	hub     *hub
	logger  *slog.Logger
}

// New builds the router and subscribes to state updates.
func New(opts Options) (*Server, error) {
	if opts.Source == nil {
		return nil, errors.New("server: state source is required")
	}

	s := &Server{
		router:  chi.NewRouter(),
		source:  opts.Source,
		metrics: opts.Metrics,
		origins: opts.CORSOrigins,
		title:   opts.Title,
		logger:  opts.Logger,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	if s.title == "" {
		s.title = "Nearest Flight"
	}

	s.hub = newHub(s.logger)
	s.source.Notify(func(state refresh.State) {
		payload, err := json.Marshal(newClosestResponse(state))
		if err != nil {
			s.logger.Error("failed to encode state", "error", err)
			return
		}
		s.hub.broadcast(payload)
	})

	s.setupRoutes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	s.hub.closeAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Websocket upgrades need the raw connection, so they bypass compression.
	r.Get("/api/v1/ws", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.Get("/health", s.handleHealth)
		r.Get("/", s.handleIndex)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/closest", s.handleGetClosest)
			r.Post("/refresh", s.handleRefresh)
		})

		if s.metrics != nil {
			r.Handle("/metrics", s.metrics)
		}
	})
}

// errorBody is the error member of a closest response.
type errorBody struct {
	Kind       closest.ErrorKind `json:"kind"`
	Reason     string            `json:"reason"`
	StatusCode int               `json:"status_code,omitempty"`
}

// closestResponse is the JSON form of a refresh.State.
type closestResponse struct {
	Status     string         `json:"status"`
	Aircraft   *adsb.Aircraft `json:"aircraft,omitempty"`
	Error      *errorBody     `json:"error,omitempty"`
	Fetching   bool           `json:"fetching"`
	UpdatedAt  *time.Time     `json:"updated_at,omitempty"`
	Cycle      uint64         `json:"cycle"`
	Tracked    int            `json:"tracked"`
	Positioned int            `json:"positioned"`
}

func newClosestResponse(state refresh.State) closestResponse {
	res := state.Result
	resp := closestResponse{
		Status:     res.Outcome.String(),
		Fetching:   state.Fetching,
		Cycle:      state.Cycle,
		Tracked:    res.Tracked,
		Positioned: res.Positioned,
	}
	if !state.UpdatedAt.IsZero() {
		updated := state.UpdatedAt.UTC()
		resp.UpdatedAt = &updated
	}

	switch res.Outcome {
	case closest.OutcomeFound:
		resp.Aircraft = res.Aircraft
	case closest.OutcomeError:
		if res.Failure != nil {
			resp.Error = &errorBody{
				Kind:       res.Failure.Kind,
				Reason:     res.Failure.Reason,
				StatusCode: res.Failure.StatusCode,
			}
		}
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.source.Current()
	body := map[string]interface{}{
		"status":   "ok",
		"cycle":    state.Cycle,
		"outcome":  state.Result.Outcome.String(),
		"fetching": state.Fetching,
	}
	if !state.UpdatedAt.IsZero() {
		body["last_update"] = state.UpdatedAt.UTC()
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleGetClosest(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, newClosestResponse(s.source.Current()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.source.Refresh()
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "accepted",
	})
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
					"remote", r.RemoteAddr,
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
