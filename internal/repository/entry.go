package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/gratefultime/journal-api/internal/model"
)

// ErrEntryNotFound indicates no entry matched the query.
var ErrEntryNotFound = errors.New("entry not found")

const entryColumns = `id, user_id, gratitudes, prompt, prompt_response, created_at`

// CreateEntry inserts a new journal entry. The three gratitude lines are
// stored as a text[] column.
func (r *Repository) CreateEntry(ctx context.Context, entry *model.Entry) error {
	query := `
		INSERT INTO entries (id, user_id, gratitudes, prompt, prompt_response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		pq.Array(entry.Gratitudes),
		entry.Prompt,
		entry.PromptResponse,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}

	return nil
}

// GetEntryByID retrieves an entry by its ID.
func (r *Repository) GetEntryByID(ctx context.Context, id string) (*model.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE id = $1`
	return r.scanEntry(r.pool.QueryRow(ctx, query, id))
}

// ListEntries retrieves a page of a user's entries, newest first.
func (r *Repository) ListEntries(ctx context.Context, userID string, limit, offset int) ([]*model.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	return r.collectEntries(rows)
}

// CountEntries returns the total number of entries for a user.
func (r *Repository) CountEntries(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM entries WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// ListEntryDays returns the submission timestamps of all of a user's entries.
func (r *Repository) ListEntryDays(ctx context.Context, userID string) ([]time.Time, error) {
	query := `SELECT DISTINCT created_at FROM entries WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entry days: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("failed to scan entry day: %w", err)
		}
		days = append(days, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry days: %w", err)
	}

	return days, nil
}

// GetEntryBetween returns the user's entry in [start, end), if any.
func (r *Repository) GetEntryBetween(ctx context.Context, userID string, start, end time.Time) (*model.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM entries
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at
		LIMIT 1
	`
	return r.scanEntry(r.pool.QueryRow(ctx, query, userID, start, end))
}

// ListEntriesBetween returns all of the user's entries in [start, end),
// oldest first.
func (r *Repository) ListEntriesBetween(ctx context.Context, userID string, start, end time.Time) ([]*model.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM entries
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries between: %w", err)
	}
	defer rows.Close()

	return r.collectEntries(rows)
}

// DeleteEntry removes an entry by its ID.
func (r *Repository) DeleteEntry(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *Repository) scanEntry(row pgx.Row) (*model.Entry, error) {
	var entry model.Entry
	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		pq.Array(&entry.Gratitudes),
		&entry.Prompt,
		&entry.PromptResponse,
		&entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}
	return &entry, nil
}

func (r *Repository) collectEntries(rows pgx.Rows) ([]*model.Entry, error) {
	var entries []*model.Entry
	for rows.Next() {
		var entry model.Entry
		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			pq.Array(&entry.Gratitudes),
			&entry.Prompt,
			&entry.PromptResponse,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return entries, nil
}
