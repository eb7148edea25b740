package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"shortly/internal/database"
	"shortly/internal/metrics"
	"shortly/internal/models"
	"shortly/internal/service"
	"shortly/pkg/response"
)

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// shortenRequest represents the request payload for shortening a URL.
type shortenRequest struct {
	OriginalURL string `json:"original_url" validate:"required,url,max=2048"`
}

// urlResponse represents the response payload for a shortened URL record.
type urlResponse struct {
	ID          int64      `json:"id"`
	OriginalURL string     `json:"original_url"`
	ShortURL    string     `json:"short_url"`
	ShortCode   string     `json:"short_code"`
	Clicks      int64      `json:"clicks"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// toURLResponse converts a URL model from the business layer into a response payload.
func toURLResponse(url *models.URL, baseURL string) urlResponse {
	return urlResponse{
		ID:          url.ID,
		OriginalURL: url.OriginalURL,
		ShortURL:    baseURL + "/" + url.ShortCode,
		ShortCode:   url.ShortCode,
		Clicks:      url.Clicks,
		CreatedAt:   url.CreatedAt,
		ExpiresAt:   url.ExpiresAt,
	}
}

// handleShortenURL handles POST requests to shorten a URL.
//
// The request must contain a valid absolute URL of at most 2048 characters.
// A new record answers 201; reusing an existing shortening of the same
// (url, owner) pair answers 200.
func handleShortenURL(svc URLService, validate *validator.Validate, baseURL string) http.HandlerFunc {
	const op = "api.http.handleShortenURL"
	const createdMsg = "The URL has been shortened successfully."
	const reusedMsg = "The URL was already shortened."

	return func(w http.ResponseWriter, r *http.Request) {
		var req shortenRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		url, created, err := svc.ShortenURL(r.Context(), req.OriginalURL, callerID(r))
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		if created {
			metrics.ObserveShortened()

			render.Status(r, http.StatusCreated)
			render.JSON(w, r, response.SuccessResponse(createdMsg, toURLResponse(url, baseURL)))
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(reusedMsg, toURLResponse(url, baseURL)))
	}
}

// handleRedirect handles GET requests to follow a short code.
//
// The handler answers a permanent redirect to the original URL, 404 for an
// unknown code, and 410 for an expired one.
func handleRedirect(svc URLService) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		url, err := svc.ResolveShortCode(r.Context(), shortCode)
		if err != nil {
			switch {
			case errors.Is(err, database.ErrURLNotFound):
				metrics.ObserveRedirect("not_found")

				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
			case errors.Is(err, service.ErrURLExpired):
				metrics.ObserveRedirect("expired")

				render.Status(r, http.StatusGone)
				render.JSON(w, r, response.URLExpiredResponse)
			default:
				metrics.ObserveRedirect("error")
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		metrics.ObserveRedirect("ok")
		http.Redirect(w, r, url.OriginalURL, http.StatusMovedPermanently)
	}
}

// handleGetURLStats handles GET requests to retrieve usage statistics for a shortened URL.
//
// Statistics of owner-attributed records are visible only to the owner.
// Expired records remain inspectable.
func handleGetURLStats(svc URLService, baseURL string) http.HandlerFunc {
	const op = "api.http.handleGetURLStats"
	const successMsg = "The URL statistics retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		url, err := svc.GetURLStats(r.Context(), shortCode, callerID(r))
		if err != nil {
			switch {
			case errors.Is(err, database.ErrURLNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
			case errors.Is(err, service.ErrStatsForbidden):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.ForbiddenResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toURLResponse(url, baseURL)))
	}
}

// handleListURLs handles GET requests for the caller's shortened URLs,
// newest first. Authentication is required.
func handleListURLs(svc URLService, baseURL string) http.HandlerFunc {
	const op = "api.http.handleListURLs"
	const successMsg = "The URLs retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := callerID(r)
		if ownerID == nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.UnauthorizedResponse)
			return
		}

		urls, err := svc.ListURLs(r.Context(), *ownerID)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		data := make([]urlResponse, 0, len(urls))
		for _, url := range urls {
			data = append(data, toURLResponse(url, baseURL))
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, data))
	}
}
