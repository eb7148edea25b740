package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"shortly/internal/database"
	"shortly/internal/models"
)

var (
	// ErrMaxRetriesExceeded is returned when the maximum number of retries for generating a short code is exceeded.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating short code")
	// ErrURLExpired is returned when a short code past its expiry is resolved for redirection.
	ErrURLExpired = errors.New("url expired")
	// ErrStatsForbidden is returned when statistics for an owned record are requested by a different caller.
	ErrStatsForbidden = errors.New("stats access forbidden")
)

// shortCodeAlphabet is the URL-safe alphabet short codes are drawn from.
// 62 symbols at length 8 give ~2.2e14 combinations, so generation collisions
// stay negligible at realistic table sizes.
const shortCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// URLRepository defines the interface for working with URLs at the business logic layer.
type URLRepository interface {
	// Create inserts a new shortened URL into the repository.
	// It fails with database.ErrShortCodeExists when the short code collides.
	Create(ctx context.Context, shortCode, originalURL string, ownerID *int64, expiresAt *time.Time) (*models.URL, error)

	// GetByShortCode retrieves a URL by its short code.
	GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error)

	// GetByOriginalURL retrieves an existing shortening of originalURL for
	// the given owner. A nil ownerID matches only anonymous records.
	GetByOriginalURL(ctx context.Context, originalURL string, ownerID *int64) (*models.URL, error)

	// IncrementClicks atomically increments the click counter by 1.
	IncrementClicks(ctx context.Context, shortCode string) error

	// ListByOwner returns the owner's records ordered by creation time descending.
	ListByOwner(ctx context.Context, ownerID int64) ([]*models.URL, error)
}

// URLService implements the short-code allocation and redirect-resolution
// logic on top of a URLRepository.
type URLService struct {
	repo            URLRepository
	logger          *slog.Logger
	shortCodeLength int

	// asyncClicks controls whether redirect click accounting runs in a
	// background goroutine. Tests flip it off to make counts observable.
	asyncClicks bool
}

// NewURLService creates a new instance of URLService with the provided repository and short code length.
func NewURLService(repo URLRepository, logger *slog.Logger, shortCodeLength int) *URLService {
	return &URLService{
		repo:            repo,
		logger:          logger,
		shortCodeLength: shortCodeLength,
		asyncClicks:     true,
	}
}

// ShortenURL returns a record mapping a short code to originalURL, attributed
// to ownerID when the caller is authenticated.
//
// An existing shortening of the same (originalURL, owner) pair is reused
// instead of minting a new code. Otherwise the service generates a fresh
// code and inserts it, retrying on a store-level code collision up to
// maxRetries times. The generate-check-insert cycle is not atomic; the
// store's uniqueness constraint is what actually rejects the losing insert
// of a race, and the retry absorbs it.
//
// The returned bool reports whether a new record was created.
func (s *URLService) ShortenURL(ctx context.Context, originalURL string, ownerID *int64) (*models.URL, bool, error) {
	const op = "service.URLService.ShortenURL"
	const maxRetries = 5

	existing, err := s.repo.GetByOriginalURL(ctx, originalURL, ownerID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, database.ErrURLNotFound) {
		return nil, false, fmt.Errorf("%s: failed to look up existing url: %w", op, err)
	}

	for i := 0; i < maxRetries; i++ {
		shortCode, err := gonanoid.Generate(shortCodeAlphabet, s.shortCodeLength)
		if err != nil {
			return nil, false, fmt.Errorf("%s: failed to generate short code: %w", op, err)
		}

		url, err := s.repo.Create(ctx, shortCode, originalURL, ownerID, nil)
		if err != nil {
			if errors.Is(err, database.ErrShortCodeExists) {
				continue
			}

			return nil, false, fmt.Errorf("%s: failed to shorten url: %w", op, err)
		}

		return url, true, nil
	}

	return nil, false, fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}

// ResolveShortCode returns the record to redirect to for the given short code.
//
// Expired records fail with ErrURLExpired. Click accounting is fire-and-forget:
// the redirect never fails over a counter update, increment errors are logged.
func (s *URLService) ResolveShortCode(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "service.URLService.ResolveShortCode"

	url, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	if url.Expired(time.Now()) {
		return nil, fmt.Errorf("%s: %w", op, ErrURLExpired)
	}

	if s.asyncClicks {
		go s.recordClick(context.WithoutCancel(ctx), shortCode)
	} else {
		s.recordClick(ctx, shortCode)
	}

	return url, nil
}

func (s *URLService) recordClick(ctx context.Context, shortCode string) {
	if err := s.repo.IncrementClicks(ctx, shortCode); err != nil {
		s.logger.Error("failed to record click",
			slog.String("short_code", shortCode),
			slog.Any("err", err),
		)
	}
}

// GetURLStats retrieves the statistics view for the given short code.
//
// Anonymous records are visible to everyone. Owner-attributed records require
// the caller to be the owner, otherwise ErrStatsForbidden. Expiry is not
// consulted: expired records remain inspectable.
func (s *URLService) GetURLStats(ctx context.Context, shortCode string, callerID *int64) (*models.URL, error) {
	const op = "service.URLService.GetURLStats"

	url, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get url stats: %w", op, err)
	}

	if url.OwnerID != nil && (callerID == nil || !url.OwnedBy(*callerID)) {
		return nil, fmt.Errorf("%s: %w", op, ErrStatsForbidden)
	}

	return url, nil
}

// ListURLs returns the caller's records, newest first.
func (s *URLService) ListURLs(ctx context.Context, ownerID int64) ([]*models.URL, error) {
	const op = "service.URLService.ListURLs"

	urls, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list urls: %w", op, err)
	}

	return urls, nil
}
