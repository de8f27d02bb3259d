package storage

import (
	"context"
	"testing"
	"time"

	"github.com/revlift/revlift/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMeta(id string) *DatasetMeta {
	return &DatasetMeta{
		ID:            id,
		Name:          "events.csv",
		CreatedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Convention:    models.ConventionFlag,
		RowCount:      2,
		UserCount:     1,
		ExcludedUsers: 0,
		Warnings:      []string{"data spans less than 180 days"},
	}
}

func testEvents() []models.AnchoredEvent {
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	return []models.AnchoredEvent{
		{
			Event:            models.Event{UserID: "u1", Timestamp: base, ActivationFlag: true, Value: 5},
			HoursSinceAnchor: 0,
		},
		{
			Event:            models.Event{UserID: "u1", Timestamp: base.Add(time.Hour), Value: 3},
			HoursSinceAnchor: 1,
		},
	}
}

func TestInMemoryStoreRoundTrip(t *testing.T) {
	store := NewInMemoryDatasetStore()
	ctx := context.Background()

	require.NoError(t, store.SaveDataset(ctx, testMeta("ds-1"), testEvents()))

	meta, events, err := store.GetDataset(ctx, "ds-1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, testMeta("ds-1"), meta)
	assert.Equal(t, testEvents(), events)
}

func TestInMemoryStoreUnknownID(t *testing.T) {
	store := NewInMemoryDatasetStore()

	meta, events, err := store.GetDataset(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Nil(t, events)
}

func TestInMemoryStoreList(t *testing.T) {
	store := NewInMemoryDatasetStore()
	ctx := context.Background()

	require.NoError(t, store.SaveDataset(ctx, testMeta("ds-1"), testEvents()))
	require.NoError(t, store.SaveDataset(ctx, testMeta("ds-2"), nil))

	list, err := store.ListDatasets(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestInMemoryStoreOverwrite(t *testing.T) {
	store := NewInMemoryDatasetStore()
	ctx := context.Background()

	require.NoError(t, store.SaveDataset(ctx, testMeta("ds-1"), testEvents()))

	updated := testMeta("ds-1")
	updated.RowCount = 99
	require.NoError(t, store.SaveDataset(ctx, updated, nil))

	meta, events, err := store.GetDataset(ctx, "ds-1")
	require.NoError(t, err)
	assert.Equal(t, 99, meta.RowCount)
	assert.Empty(t, events)
}

func TestInMemoryStoreReturnsCopies(t *testing.T) {
	store := NewInMemoryDatasetStore()
	ctx := context.Background()

	require.NoError(t, store.SaveDataset(ctx, testMeta("ds-1"), testEvents()))

	meta, _, err := store.GetDataset(ctx, "ds-1")
	require.NoError(t, err)
	meta.Name = "mutated"

	again, _, err := store.GetDataset(ctx, "ds-1")
	require.NoError(t, err)
	assert.Equal(t, "events.csv", again.Name)
}
