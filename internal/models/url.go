package models

import "time"

// URL represents a shortened URL and its associated metadata.
type URL struct {
	// ID is the unique identifier for the shortened URL record.
	ID int64
	// ShortCode is the short code or key associated with the original URL.
	ShortCode string
	// OriginalURL is the original, full-length URL that the short code points to.
	OriginalURL string
	// OwnerID references the account the record is attributed to.
	// A nil value means the record was created anonymously.
	OwnerID *int64
	// Clicks tracks the number of times the shortened URL has been followed.
	// It only grows, and only via the redirect path.
	Clicks int64
	// ExpiresAt is an optional expiry timestamp. A nil value means the
	// record never expires.
	ExpiresAt *time.Time
	// CreatedAt is the timestamp indicating when the shortened URL was created.
	CreatedAt time.Time
}

// Expired reports whether the record refuses redirection at the given time.
func (u *URL) Expired(now time.Time) bool {
	return u.ExpiresAt != nil && u.ExpiresAt.Before(now)
}

// OwnedBy reports whether the record is attributed to the given account.
func (u *URL) OwnedBy(ownerID int64) bool {
	return u.OwnerID != nil && *u.OwnerID == ownerID
}
