package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/revlift/revlift/internal/models"
)

// ClickHouseDatasetStore implements DatasetStore on ClickHouse.
// Suited to event logs where row counts make Postgres storage
// impractical. Events are written in batches via PrepareBatch.
type ClickHouseDatasetStore struct {
	conn driver.Conn
}

func NewClickHouseDatasetStore(conn driver.Conn) *ClickHouseDatasetStore {
	return &ClickHouseDatasetStore{conn: conn}
}

// InitSchema creates the tables if they do not exist.
func (s *ClickHouseDatasetStore) InitSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS datasets (
			id String,
			name String,
			created_at DateTime64(3, 'UTC'),
			convention String,
			row_count UInt64,
			user_count UInt64,
			excluded_users UInt64,
			warnings Array(String)
		) ENGINE = ReplacingMergeTree
		ORDER BY id`,
		`CREATE TABLE IF NOT EXISTS dataset_events (
			dataset_id String,
			seq UInt64,
			user_id String,
			event_time DateTime64(3, 'UTC'),
			is_activation Bool,
			anchor_time DateTime64(3, 'UTC'),
			value Float64,
			hours_since_anchor Float64
		) ENGINE = MergeTree
		ORDER BY (dataset_id, seq)`,
	}
	for _, q := range ddl {
		if err := s.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("failed to create dataset schema: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseDatasetStore) SaveDataset(ctx context.Context, meta *DatasetMeta, events []models.AnchoredEvent) error {
	err := s.conn.Exec(ctx, `
		INSERT INTO datasets (id, name, created_at, convention, row_count, user_count, excluded_users, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, meta.ID, meta.Name, meta.CreatedAt, string(meta.Convention),
		uint64(meta.RowCount), uint64(meta.UserCount), uint64(meta.ExcludedUsers), meta.Warnings)
	if err != nil {
		return fmt.Errorf("failed to save dataset: %w", err)
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO dataset_events (dataset_id, seq, user_id, event_time, is_activation, anchor_time, value, hours_since_anchor)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare event batch: %w", err)
	}
	for i, ev := range events {
		anchor := ev.AnchorTime
		if anchor.IsZero() {
			anchor = time.Unix(0, 0).UTC()
		}
		if err := batch.Append(meta.ID, uint64(i), ev.UserID, ev.Timestamp, ev.ActivationFlag, anchor, ev.Value, ev.HoursSinceAnchor); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send event batch: %w", err)
	}
	return nil
}

func (s *ClickHouseDatasetStore) GetDataset(ctx context.Context, id string) (*DatasetMeta, []models.AnchoredEvent, error) {
	metas, err := s.queryMetas(ctx, `
		SELECT id, name, created_at, convention, row_count, user_count, excluded_users, warnings
		FROM datasets FINAL WHERE id = ?
	`, id)
	if err != nil {
		return nil, nil, err
	}
	if len(metas) == 0 {
		return nil, nil, nil
	}
	meta := metas[0]

	rows, err := s.conn.Query(ctx, `
		SELECT user_id, event_time, is_activation, anchor_time, value, hours_since_anchor
		FROM dataset_events WHERE dataset_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get dataset events: %w", err)
	}
	defer rows.Close()

	events := make([]models.AnchoredEvent, 0, meta.RowCount)
	for rows.Next() {
		var ev models.AnchoredEvent
		var anchor time.Time
		if err := rows.Scan(&ev.UserID, &ev.Timestamp, &ev.ActivationFlag, &anchor, &ev.Value, &ev.HoursSinceAnchor); err != nil {
			return nil, nil, fmt.Errorf("failed to scan dataset event: %w", err)
		}
		if anchor.Unix() != 0 {
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

func (s *ClickHouseDatasetStore) ListDatasets(ctx context.Context) ([]*DatasetMeta, error) {
	return s.queryMetas(ctx, `
		SELECT id, name, created_at, convention, row_count, user_count, excluded_users, warnings
		FROM datasets FINAL ORDER BY created_at DESC
	`)
}

func (s *ClickHouseDatasetStore) queryMetas(ctx context.Context, query string, args ...any) ([]*DatasetMeta, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query datasets: %w", err)
	}
	defer rows.Close()

	var metas []*DatasetMeta
	for rows.Next() {
		var meta DatasetMeta
		var convention string
		var rowCount, userCount, excluded uint64
		if err := rows.Scan(&meta.ID, &meta.Name, &meta.CreatedAt, &convention,
			&rowCount, &userCount, &excluded, &meta.Warnings); err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		meta.Convention = models.ActivationConvention(convention)
		meta.CreatedAt = meta.CreatedAt.UTC()
		meta.RowCount = int(rowCount)
		meta.UserCount = int(userCount)
		meta.ExcludedUsers = int(excluded)
		metas = append(metas, &meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read datasets: %w", err)
	}
	return metas, nil
}
