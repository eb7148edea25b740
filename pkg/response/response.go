// Package response defines the JSON envelope returned by all API handlers.
package response

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var EmptyRequestBodyResponse = Response{
	Status:  StatusError,
	Error:   "Empty Request Body",
	Message: "Request body is empty. Please provide necessary data.",
}

var BadRequestResponse = Response{
	Status:  StatusError,
	Error:   "Bad Request",
	Message: "Request body is malformed. Please check the data you are sending.",
}

var ResourceNotFoundResponse = Response{
	Status:  StatusError,
	Error:   "Resource Not Found",
	Message: "The requested resource was not found.",
}

var URLExpiredResponse = Response{
	Status:  StatusError,
	Error:   "Gone",
	Message: "The short URL has expired.",
}

var UnauthorizedResponse = Response{
	Status:  StatusError,
	Error:   "Unauthorized",
	Message: "Authentication is required to access this resource.",
}

var ForbiddenResponse = Response{
	Status:  StatusError,
	Error:   "Forbidden",
	Message: "You don't have permission to view this resource.",
}

var ServerErrorResponse = Response{
	Status:  StatusError,
	Error:   "Server Error",
	Message: "An internal server error occurred. Please try again later.",
}

// Response is the common envelope for every API reply.
type Response struct {
	Status     string      `json:"status"`
	Error      string      `json:"error,omitempty"`
	Message    string      `json:"message"`
	Details    []any       `json:"details,omitempty"`
	Data       any         `json:"data,omitempty"`
	RetryAfter int64       `json:"retry_after,omitempty"`
	Limits     *RateLimits `json:"limits,omitempty"`
}

// RateLimits describes the tiered shortening quotas so a rate-limited
// client can explain the wait.
type RateLimits struct {
	Anonymous  RateLimit `json:"anonymous"`
	Registered RateLimit `json:"registered"`
}

type RateLimit struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
}

func SuccessResponse(msg string, data ...any) Response {
	resp := Response{
		Status:  StatusSuccess,
		Message: msg,
	}

	if len(data) > 0 {
		resp.Data = data[0]
	}

	return resp
}

// RateLimitResponse builds the 429 envelope carrying the number of seconds
// until the earliest violated window resets.
func RateLimitResponse(retryAfter time.Duration, limits RateLimits) Response {
	secs := int64(retryAfter / time.Second)
	if secs < 1 {
		secs = 1
	}

	return Response{
		Status:     StatusError,
		Error:      "Too Many Requests",
		Message:    "Rate limit exceeded. Please retry later.",
		RetryAfter: secs,
		Limits:     &limits,
	}
}

type validationError struct {
	Field string `json:"field"`
	Value any    `json:"value"`
	Issue string `json:"issue"`
}

func getValidationErrors(err error) []validationError {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return nil
	}

	errs := make([]validationError, 0, len(validationErrs))
	for _, err := range validationErrs {
		e := validationError{
			Field: err.Field(),
			Value: err.Value(),
		}

		switch err.Tag() {
		case "required":
			e.Issue = "This field is required."
		case "url":
			e.Issue = "Invalid url."
		case "max":
			e.Issue = fmt.Sprintf("Must be at most %s characters long.", err.Param())
		default:
			e.Issue = "Invalid value."
		}

		errs = append(errs, e)
	}

	return errs
}

// ValidationErrorResponse converts validator errors into the envelope with
// machine-readable per-field details.
func ValidationErrorResponse(err error) Response {
	resp := Response{
		Status:  StatusError,
		Error:   "Validation Error",
		Message: "Some fields contain invalid data. Please check the details.",
	}

	for _, e := range getValidationErrors(err) {
		resp.Details = append(resp.Details, e)
	}

	return resp
}
