package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/revlift/revlift/internal/models"
)

// PostgresDatasetStore implements DatasetStore using PostgreSQL.
// Metadata goes to the datasets table, anchored events to
// dataset_events with a seq column preserving upload order.
type PostgresDatasetStore struct {
	pool *pgxpool.Pool
}

func NewPostgresDatasetStore(pool *pgxpool.Pool) *PostgresDatasetStore {
	return &PostgresDatasetStore{pool: pool}
}

// InitSchema creates the tables if they do not exist.
func (s *PostgresDatasetStore) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS datasets (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			convention TEXT NOT NULL,
			row_count BIGINT NOT NULL,
			user_count BIGINT NOT NULL,
			excluded_users BIGINT NOT NULL,
			warnings TEXT[] NOT NULL DEFAULT '{}'
		);

		CREATE TABLE IF NOT EXISTS dataset_events (
			dataset_id TEXT NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
			seq BIGINT NOT NULL,
			user_id TEXT NOT NULL,
			event_time TIMESTAMPTZ NOT NULL,
			is_activation BOOLEAN NOT NULL,
			anchor_time TIMESTAMPTZ,
			value DOUBLE PRECISION NOT NULL,
			hours_since_anchor DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (dataset_id, seq)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create dataset schema: %w", err)
	}
	return nil
}

func (s *PostgresDatasetStore) SaveDataset(ctx context.Context, meta *DatasetMeta, events []models.AnchoredEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO datasets (id, name, created_at, convention, row_count, user_count, excluded_users, warnings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			created_at = EXCLUDED.created_at,
			convention = EXCLUDED.convention,
			row_count = EXCLUDED.row_count,
			user_count = EXCLUDED.user_count,
			excluded_users = EXCLUDED.excluded_users,
			warnings = EXCLUDED.warnings
	`, meta.ID, meta.Name, meta.CreatedAt, string(meta.Convention),
		meta.RowCount, meta.UserCount, meta.ExcludedUsers, meta.Warnings)
	if err != nil {
		return fmt.Errorf("failed to save dataset: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM dataset_events WHERE dataset_id = $1`, meta.ID); err != nil {
		return fmt.Errorf("failed to clear dataset events: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"dataset_events"},
		[]string{"dataset_id", "seq", "user_id", "event_time", "is_activation", "anchor_time", "value", "hours_since_anchor"},
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			ev := events[i]
			var anchor *time.Time
			if !ev.AnchorTime.IsZero() {
				t := ev.AnchorTime
				anchor = &t
			}
			return []any{meta.ID, int64(i), ev.UserID, ev.Timestamp, ev.ActivationFlag, anchor, ev.Value, ev.HoursSinceAnchor}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy dataset events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit dataset: %w", err)
	}
	return nil
}

func (s *PostgresDatasetStore) GetDataset(ctx context.Context, id string) (*DatasetMeta, []models.AnchoredEvent, error) {
	meta, err := s.scanMeta(s.pool.QueryRow(ctx, `
		SELECT id, name, created_at, convention, row_count, user_count, excluded_users, warnings
		FROM datasets WHERE id = $1
	`, id))
	if err == pgx.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT user_id, event_time, is_activation, anchor_time, value, hours_since_anchor
		FROM dataset_events WHERE dataset_id = $1 ORDER BY seq
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get dataset events: %w", err)
	}
	defer rows.Close()

	events := make([]models.AnchoredEvent, 0, meta.RowCount)
	for rows.Next() {
		var ev models.AnchoredEvent
		var anchor *time.Time
		if err := rows.Scan(&ev.UserID, &ev.Timestamp, &ev.ActivationFlag, &anchor, &ev.Value, &ev.HoursSinceAnchor); err != nil {
			return nil, nil, fmt.Errorf("failed to scan dataset event: %w", err)
		}
		if anchor != nil {
			ev.AnchorTime = anchor.UTC()
		}
		ev.Timestamp = ev.Timestamp.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read dataset events: %w", err)
	}

	return meta, events, nil
}

func (s *PostgresDatasetStore) ListDatasets(ctx context.Context) ([]*DatasetMeta, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, created_at, convention, row_count, user_count, excluded_users, warnings
		FROM datasets ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var metas []*DatasetMeta
	for rows.Next() {
		meta, err := s.scanMeta(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	return metas, nil
}

func (s *PostgresDatasetStore) scanMeta(row pgx.Row) (*DatasetMeta, error) {
	var meta DatasetMeta
	var convention string
	if err := row.Scan(&meta.ID, &meta.Name, &meta.CreatedAt, &convention,
		&meta.RowCount, &meta.UserCount, &meta.ExcludedUsers, &meta.Warnings); err != nil {
		return nil, err
	}
	meta.Convention = models.ActivationConvention(convention)
	meta.CreatedAt = meta.CreatedAt.UTC()
	return &meta, nil
}
