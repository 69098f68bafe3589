// Package server implements the galleryd HTTP server and routes.
package server

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"log/slog"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/galleryd/galleryd/internal/assets"
	"github.com/galleryd/galleryd/internal/auth"
	"github.com/galleryd/galleryd/internal/blob"
	"github.com/galleryd/galleryd/internal/config"
	apperr "github.com/galleryd/galleryd/internal/errors"
	"github.com/galleryd/galleryd/internal/handlers"
	"github.com/galleryd/galleryd/internal/jsonutil"
	"github.com/galleryd/galleryd/internal/metadata"
)

// Server is the galleryd HTTP server. Mutating asset routes sit behind the
// session auth middleware; reads, login, health, docs, and metrics do not.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	api        huma.API
	meta       metadata.Store
	blobs      blob.Store
	sessions   *auth.SessionManager
	assetH     *handlers.AssetHandler
	authH      *handlers.AuthHandler
	httpServer *http.Server
}

// HealthBody is the JSON body returned by the health check endpoint.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

// HealthOutput is the Huma output struct for the health check endpoint.
type HealthOutput struct {
	Body HealthBody
}

// New creates a Server and wires up all routes.
func New(cfg *config.Config, meta metadata.Store, blobs blob.Store, coord *assets.Coordinator, ordering *assets.Ordering, sessions *auth.SessionManager) *Server {
	router := chi.NewMux()

	humaConfig := huma.DefaultConfig("galleryd Asset API", "1.0.0")
	humaConfig.DocsPath = "/docs"
	humaConfig.OpenAPIPath = "/openapi"
	api := humachi.New(router, humaConfig)

	s := &Server{
		cfg:      cfg,
		router:   router,
		api:      api,
		meta:     meta,
		blobs:    blobs,
		sessions: sessions,
		assetH:   handlers.NewAssetHandler(coord, ordering, cfg.Server.MaxUploadSize),
		authH:    handlers.NewAuthHandler(sessions),
	}

	s.registerRoutes()
	return s
}

// ListenAndServe starts the HTTP server on the given address.
// Middleware chain: metricsMiddleware -> commonHeaders -> router.
func (s *Server) ListenAndServe(addr string) error {
	var handler http.Handler = s.router
	handler = commonHeaders(handler)
	handler = metricsMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	return s.httpServer.ListenAndServe()
}

// Handler returns the fully wrapped handler, for tests driving the server
// through httptest.
func (s *Server) Handler() http.Handler {
	return metricsMiddleware(commonHeaders(s.router))
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes configures all routes on the Chi router. /health goes
// through Huma so it lands in the generated OpenAPI document alongside
// /docs and /openapi.json.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the galleryd server.",
		Tags:        []string{"System"},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		status := "ok"
		if err := s.meta.Ping(ctx); err != nil {
			slog.Error("Health check metadata ping failed", "error", err)
			status = "degraded"
		}
		return &HealthOutput{Body: HealthBody{Status: status}}, nil
	})

	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Post("/auth/login", s.authH.Login)
	s.router.Get("/assets", s.assetH.List)

	// Mutating routes require a live session token.
	s.router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.sessions))
		r.Post("/assets", s.assetH.Upload)
		r.Put("/assets/order", s.assetH.Reorder)
		r.Delete("/assets/{id}", s.assetH.Delete)
	})

	// When blobs live on the local filesystem the server itself serves
	// them, so the public URLs handed to clients resolve.
	if local, ok := s.blobs.(*blob.LocalStore); ok {
		s.router.Get("/blobs/*", func(w http.ResponseWriter, r *http.Request) {
			serveLocalBlob(w, r, local, chi.URLParam(r, "*"))
		})
	}
}

func serveLocalBlob(w http.ResponseWriter, r *http.Request, local *blob.LocalStore, key string) {
	f, err := local.Open(key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			jsonutil.WriteError(w, r, apperr.NotFound("no blob at %q", key))
			return
		}
		jsonutil.WriteError(w, r, apperr.Storage(err, "opening blob %q", key))
		return
	}
	defer f.Close()

	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := io.Copy(w, f); err != nil {
		slog.Error("Serving blob", "key", key, "error", err)
	}
}

// ShutdownTimeout returns the configured graceful shutdown window.
func (s *Server) ShutdownTimeout() time.Duration {
	return time.Duration(s.cfg.Server.ShutdownTimeout) * time.Second
}
