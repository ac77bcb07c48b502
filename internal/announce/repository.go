package announce

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/darklock-sec/darklock-console/internal/shared"
)

// Repository provides PostgreSQL backed persistence for announcements.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const announcementColumns = `id, title, body, pinned, published_at, created_by, created_at, updated_at`

// List returns announcements newest first, pinned ones leading. When
// publishedOnly is set, drafts are filtered out.
func (r *Repository) List(ctx context.Context, publishedOnly bool) ([]Announcement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+announcementColumns+` FROM announcements
		WHERE (NOT $1 OR published_at IS NOT NULL)
		ORDER BY pinned DESC, COALESCE(published_at, created_at) DESC`, publishedOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Announcement
	for rows.Next() {
		item, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get fetches one announcement.
func (r *Repository) Get(ctx context.Context, id int64) (Announcement, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+announcementColumns+` FROM announcements WHERE id = $1`, id)
	return scanAnnouncement(row)
}

// Create inserts a draft.
func (r *Repository) Create(ctx context.Context, a Announcement) (Announcement, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO announcements (title, body, pinned, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING `+announcementColumns,
		a.Title, a.Body, a.Pinned, a.CreatedBy)
	return scanAnnouncement(row)
}

// Update applies a partial edit; nil pointers leave fields unchanged.
func (r *Repository) Update(ctx context.Context, id int64, title, body *string, pinned *bool) (Announcement, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE announcements SET
			title      = COALESCE($2, title),
			body       = COALESCE($3, body),
			pinned     = COALESCE($4, pinned),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+announcementColumns,
		id, title, body, pinned)
	return scanAnnouncement(row)
}

// SetPublishedAt marks an announcement live or back to draft.
func (r *Repository) SetPublishedAt(ctx context.Context, id int64, at *time.Time) (Announcement, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE announcements SET published_at = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+announcementColumns,
		id, at)
	return scanAnnouncement(row)
}

// Delete removes an announcement.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM announcements WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanAnnouncement(row pgx.Row) (Announcement, error) {
	var a Announcement
	err := row.Scan(&a.ID, &a.Title, &a.Body, &a.Pinned, &a.PublishedAt,
		&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Announcement{}, shared.ErrNotFound
		}
		return Announcement{}, err
	}
	return a, nil
}
