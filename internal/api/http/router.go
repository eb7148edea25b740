package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shortly/internal/auth"
	"shortly/internal/metrics"
	"shortly/internal/models"
	"shortly/internal/ratelimit"
)

// URLService defines the interface for the core URL shortening business logic.
type URLService interface {
	// ShortenURL maps originalURL to a short code attributed to ownerID
	// (nil for anonymous callers). It reuses an existing shortening of the
	// same (url, owner) pair; the bool reports whether a record was created.
	ShortenURL(ctx context.Context, originalURL string, ownerID *int64) (*models.URL, bool, error)

	// ResolveShortCode returns the record to redirect to, enforcing expiry
	// and recording the click.
	ResolveShortCode(ctx context.Context, shortCode string) (*models.URL, error)

	// GetURLStats returns the statistics view of a record, enforcing owner
	// visibility.
	GetURLStats(ctx context.Context, shortCode string, callerID *int64) (*models.URL, error)

	// ListURLs returns the caller's records, newest first.
	ListURLs(ctx context.Context, ownerID int64) ([]*models.URL, error)
}

// getValidate initializes a new validator instance for validating incoming request payloads.
// It customizes tag name extraction from struct fields to match JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// NewRouter initializes and returns a new HTTP router with all routes and middleware configured.
func NewRouter(logger *httplog.Logger, urlSvc URLService, limiter ratelimit.Limiter, verifier *auth.Verifier, baseURL string) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"POST", "GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept", "Authorization"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Route("/api/v1", func(r chi.Router) {
		validate := getValidate()

		r.Get("/ping", handlePing)

		r.Group(func(r chi.Router) {
			r.Use(authenticate(verifier))

			r.With(rateLimitShorten(limiter, logger)).
				Post("/shorten", handleShortenURL(urlSvc, validate, baseURL))
			r.Get("/urls", handleListURLs(urlSvc, baseURL))
			r.Get("/stats/{shortCode}", handleGetURLStats(urlSvc, baseURL))
		})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/{shortCode}", handleRedirect(urlSvc))

	return r
}
