package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/revlift/revlift/internal/models"
)

// ResultCache stores derived aggregate tables in Redis so a restarted
// instance can skip re-aggregating large datasets. Entries expire
// after the configured TTL; a miss just means recompute.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultCache(client *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{client: client, ttl: ttl}
}

func aggregatesKey(datasetID string) string {
	return "revlift:aggregates:" + datasetID
}

// SetAggregates caches the aggregate table for a dataset.
func (c *ResultCache) SetAggregates(ctx context.Context, datasetID string, table *models.AggregateTable) error {
	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("failed to marshal aggregates: %w", err)
	}
	if err := c.client.Set(ctx, aggregatesKey(datasetID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache aggregates: %w", err)
	}
	return nil
}

// GetAggregates returns the cached table and whether it was present.
func (c *ResultCache) GetAggregates(ctx context.Context, datasetID string) (*models.AggregateTable, bool, error) {
	data, err := c.client.Get(ctx, aggregatesKey(datasetID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached aggregates: %w", err)
	}
	var table models.AggregateTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached aggregates: %w", err)
	}
	return &table, true, nil
}
