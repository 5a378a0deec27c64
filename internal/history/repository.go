package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 200
)

// ErrItemRequired is returned when an entry or query has no item
// identifier.
var ErrItemRequired = errors.New("history: item identifier is required")

// Entry is one recorded state change.
type Entry struct {
	ID         int64          `json:"id"`
	ItemID     string         `json:"item_id"`
	UniqueID   string         `json:"unique_id"`
	Changes    map[string]any `json:"changes"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Repository stores entries in the state_history table.
//
// Thread Safety: safe for concurrent use; *sql.DB serialises access.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repository over an open, migrated database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record inserts e. A zero RecordedAt is replaced by the current time.
func (r *Repository) Record(ctx context.Context, e Entry) error {
	if e.ItemID == "" {
		return ErrItemRequired
	}
	if e.Changes == nil {
		e.Changes = map[string]any{}
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}

	changes, err := json.Marshal(e.Changes)
	if err != nil {
		return fmt.Errorf("marshalling changes: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO state_history (item_id, unique_id, changes, recorded_at) VALUES (?, ?, ?, ?)",
		e.ItemID,
		e.UniqueID,
		string(changes),
		e.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// Query returns the most recent entries for an item, newest first.
// limit defaults to 50 and is capped at 200.
func (r *Repository) Query(ctx context.Context, itemID string, limit int) ([]Entry, error) {
	if itemID == "" {
		return nil, ErrItemRequired
	}
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	limit = min(limit, maxQueryLimit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, item_id, unique_id, changes, recorded_at
		 FROM state_history
		 WHERE item_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		itemID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e        Entry
			changes  string
			recorded int64
		)
		if err := rows.Scan(&e.ID, &e.ItemID, &e.UniqueID, &changes, &recorded); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if err := json.Unmarshal([]byte(changes), &e.Changes); err != nil {
			return nil, fmt.Errorf("unmarshalling changes: %w", err)
		}
		e.RecordedAt = time.UnixMilli(recorded).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than olderThan and returns how many were
// removed.
func (r *Repository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: retention must be positive, got %v", olderThan)
	}

	cutoff := time.Now().Add(-olderThan).UnixMilli()
	result, err := r.db.ExecContext(ctx, "DELETE FROM state_history WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
