// Package server assembles the HTTP router and runs the API server.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/edulms/media/internal/media"
	appMiddleware "github.com/edulms/media/internal/middleware"
	"github.com/edulms/media/internal/response"
	"github.com/edulms/media/internal/storage"

	_ "github.com/edulms/media/docs/swagger"
)

// Deps are the collaborators the router serves.
type Deps struct {
	Media   *media.Handler
	Storage storage.Config
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Ping checks the database for /health. Nil skips the check.
	Ping func(ctx context.Context) error
	Log  *zap.Logger
}

// Health is the /health payload.
type Health struct {
	Status   string `json:"status"`
	Storage  string `json:"storage"`
	Database string `json:"database,omitempty"`
}

// NewRouter wires middleware and routes.
func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", health(d))

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	// Swagger UI at /swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// Files written by the filesystem backend are served from the upload root.
	if d.Storage.Kind == storage.KindFilesystem && d.Storage.UploadDir != "" {
		prefix := "/" + strings.Trim(d.Storage.URLPrefix, "/")
		if prefix == "/" {
			prefix = storage.DefaultURLPrefix
		}
		fs := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(d.Storage.UploadDir)))
		r.Handle(prefix+"/*", noDirListing(fs))
	}

	r.Route("/api/v1", func(r chi.Router) {
		d.Media.Routes(r)
	})

	return r
}

func health(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := Health{Status: "ok", Storage: string(d.Storage.Kind)}
		if d.Ping == nil {
			response.JSON(w, http.StatusOK, h)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := d.Ping(ctx); err != nil {
			h.Status = "degraded"
			h.Database = "unreachable"
			response.JSON(w, http.StatusServiceUnavailable, h)
			return
		}
		h.Database = "ok"
		response.JSON(w, http.StatusOK, h)
	}
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
