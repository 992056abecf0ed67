package handler

import (
	"log/slog"
	"net/http"

	"github.com/wadjakorntonsri/tinylink/pkg/config"
	"github.com/wadjakorntonsri/tinylink/pkg/ports"
)

// NewRouter creates and configures the main application router
func NewRouter(cfg *config.Config, service ports.LinkService, log *slog.Logger) http.Handler {
	h := NewHTTPHandler(service, cfg.BaseURL, log)
	mw := NewMiddleware(log, cfg.RequestTimeout)

	mux := http.NewServeMux()

	// Public Routes
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /r/{code}", h.Redirect)

	// API
	mux.HandleFunc("POST /api/links", h.Create)
	mux.HandleFunc("GET /api/links", h.List)
	mux.HandleFunc("GET /api/links/{code}", h.Get)
	mux.HandleFunc("PUT /api/links/{code}", h.Rename)
	mux.HandleFunc("DELETE /api/links/{id}", h.Delete)
	mux.HandleFunc("GET /api/stats", h.Stats)

	return mw.Wrap(mux)
}
