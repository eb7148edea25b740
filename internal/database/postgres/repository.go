package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"shortly/internal/database"
	"shortly/internal/models"
)

type urlRecord struct {
	ID          int64      `db:"id"`
	ShortCode   string     `db:"short_code"`
	OriginalURL string     `db:"original_url"`
	OwnerID     *int64     `db:"owner_id"`
	Clicks      int64      `db:"clicks"`
	ExpiresAt   *time.Time `db:"expires_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

func (r *urlRecord) ToURL() *models.URL {
	return &models.URL{
		ID:          r.ID,
		ShortCode:   r.ShortCode,
		OriginalURL: r.OriginalURL,
		OwnerID:     r.OwnerID,
		Clicks:      r.Clicks,
		ExpiresAt:   r.ExpiresAt,
		CreatedAt:   r.CreatedAt,
	}
}

// URLRepository persists URL records in PostgreSQL. The short_code uniqueness
// constraint in the urls table is the final authority on code collisions.
type URLRepository struct {
	db *sqlx.DB
}

func NewURLRepository(db *sqlx.DB) *URLRepository {
	return &URLRepository{
		db: db,
	}
}

// Create inserts a new URL record. It returns database.ErrShortCodeExists
// when the short code collides with an existing row.
func (r *URLRepository) Create(ctx context.Context, shortCode, originalURL string, ownerID *int64, expiresAt *time.Time) (*models.URL, error) {
	const op = "database.postgres.URLRepository.Create"

	rec := new(urlRecord)
	query := `INSERT INTO urls(short_code, original_url, owner_id, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, shortCode, originalURL, ownerID, expiresAt)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to create url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// GetByShortCode retrieves a URL record by its short code.
func (r *URLRepository) GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.GetByShortCode"

	rec := new(urlRecord)
	query := `SELECT * FROM urls WHERE short_code = $1`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// GetByOriginalURL looks up an existing shortening of originalURL for the
// given owner. A nil ownerID matches only anonymous records, so anonymous
// and owned shortenings of the same destination stay distinct.
func (r *URLRepository) GetByOriginalURL(ctx context.Context, originalURL string, ownerID *int64) (*models.URL, error) {
	const op = "database.postgres.URLRepository.GetByOriginalURL"

	rec := new(urlRecord)
	query := `SELECT * FROM urls
		WHERE original_url = $1 AND owner_id IS NOT DISTINCT FROM $2
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, rec, query, originalURL, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// IncrementClicks atomically bumps the click counter for the given short
// code. The single UPDATE keeps concurrent increments from losing updates.
func (r *URLRepository) IncrementClicks(ctx context.Context, shortCode string) error {
	const op = "database.postgres.URLRepository.IncrementClicks"

	query := `UPDATE urls
		SET clicks = clicks + 1
		WHERE short_code = $1`

	res, err := r.db.ExecContext(ctx, query, shortCode)
	if err != nil {
		return fmt.Errorf("%s: failed to increment clicks: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
	}

	return nil
}

// ListByOwner returns all records attributed to ownerID, newest first.
func (r *URLRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*models.URL, error) {
	const op = "database.postgres.URLRepository.ListByOwner"

	var recs []urlRecord
	query := `SELECT * FROM urls
		WHERE owner_id = $1
		ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &recs, query, ownerID); err != nil {
		return nil, fmt.Errorf("%s: failed to list url records: %w", op, err)
	}

	urls := make([]*models.URL, 0, len(recs))
	for i := range recs {
		urls = append(urls, recs[i].ToURL())
	}

	return urls, nil
}
