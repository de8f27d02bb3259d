package storage

import (
	"context"
	"sync"
	"time"

	"github.com/revlift/revlift/internal/models"
)

// DatasetMeta describes one stored upload.
type DatasetMeta struct {
	ID            string                      `json:"id"`
	Name          string                      `json:"name"`
	CreatedAt     time.Time                   `json:"created_at"`
	Convention    models.ActivationConvention `json:"convention"`
	RowCount      int                         `json:"row_count"`
	UserCount     int                         `json:"user_count"`
	ExcludedUsers int                         `json:"excluded_users"`
	Warnings      []string                    `json:"warnings,omitempty"`
}

// DatasetStore persists uploaded datasets as normalized, anchored
// events so sessions survive a restart. Backed by Postgres,
// ClickHouse, or an in-memory map.
type DatasetStore interface {
	SaveDataset(ctx context.Context, meta *DatasetMeta, events []models.AnchoredEvent) error

	// GetDataset returns the stored dataset, or (nil, nil, nil) when
	// the ID is unknown. Event order is the original upload order.
	GetDataset(ctx context.Context, id string) (*DatasetMeta, []models.AnchoredEvent, error)

	ListDatasets(ctx context.Context) ([]*DatasetMeta, error)
}

// InMemoryDatasetStore keeps datasets in memory. Not durable; resets
// on process restart. Intended for development and testing.
type InMemoryDatasetStore struct {
	mu     sync.RWMutex
	metas  map[string]*DatasetMeta
	events map[string][]models.AnchoredEvent
}

// NewInMemoryDatasetStore constructs a new empty dataset store.
func NewInMemoryDatasetStore() *InMemoryDatasetStore {
	return &InMemoryDatasetStore{
		metas:  make(map[string]*DatasetMeta),
		events: make(map[string][]models.AnchoredEvent),
	}
}

// SaveDataset stores the dataset, overwriting any previous dataset
// with the same ID.
func (s *InMemoryDatasetStore) SaveDataset(_ context.Context, meta *DatasetMeta, events []models.AnchoredEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *meta
	s.metas[meta.ID] = &cp
	s.events[meta.ID] = append([]models.AnchoredEvent(nil), events...)
	return nil
}

// GetDataset returns the dataset with the given ID, or nils if absent.
func (s *InMemoryDatasetStore) GetDataset(_ context.Context, id string) (*DatasetMeta, []models.AnchoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.metas[id]
	if !ok {
		return nil, nil, nil
	}
	cp := *meta
	return &cp, append([]models.AnchoredEvent(nil), s.events[id]...), nil
}

// ListDatasets returns all stored dataset descriptors.
func (s *InMemoryDatasetStore) ListDatasets(_ context.Context) ([]*DatasetMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]*DatasetMeta, 0, len(s.metas))
	for _, m := range s.metas {
		cp := *m
		res = append(res, &cp)
	}
	return res, nil
}
