// Package server exposes the scanner over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/raceway-cad/internal/core/health"
	middleware "github.com/mohammed-shakir/raceway-cad/internal/core/middleware"
	"github.com/mohammed-shakir/raceway-cad/internal/core/model"
	"github.com/mohammed-shakir/raceway-cad/internal/logger"
	"github.com/mohammed-shakir/raceway-cad/internal/scan"
)

// maxBody bounds a POST /scan request.
const maxBody = 1 << 20

type Scanner interface {
	Scan(ctx context.Context, paths []string, q scan.Query) ([]model.DrawingScanResult, error)
}

type Deps struct {
	Logger  *slog.Logger
	Metrics http.Handler
	Scanner Scanner
	Ready   map[string]health.Check
	// MaxPaths caps the drawings accepted per request; zero means 500.
	MaxPaths int
}

type scanRequest struct {
	Paths           []string `json:"paths"`
	Pattern         string   `json:"pattern,omitempty"`
	Names           []string `json:"names,omitempty"`
	IncludeGeometry bool     `json:"includeGeometry,omitempty"`
}

type scanResponse struct {
	RunID   string                    `json:"runId"`
	Results []model.DrawingScanResult `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.MaxPaths <= 0 {
		d.MaxPaths = 500
	}

	r := chi.NewRouter()
	r.Use(middleware.Recover(d.Logger))
	r.Use(middleware.Logging(d.Logger))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Ready))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	if d.Scanner != nil {
		r.Post("/scan", handleScan(d))
	}
	return r
}

func handleScan(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scanRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad request body: " + err.Error()})
			return
		}
		switch {
		case len(req.Paths) == 0:
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "paths is required"})
			return
		case len(req.Paths) > d.MaxPaths:
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "too many paths"})
			return
		}

		q := scan.Query{Pattern: req.Pattern, Names: req.Names, IncludeGeometry: req.IncludeGeometry}
		results, err := d.Scanner.Scan(r.Context(), req.Paths, q)
		if errors.Is(err, scan.ErrConfig) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		if err != nil {
			d.Logger.ErrorContext(r.Context(), "scan failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "scan failed"})
			return
		}
		writeJSON(w, http.StatusOK, scanResponse{RunID: logger.RunID(r.Context()), Results: results})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Run serves handler on addr until ctx is done.
func Run(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
