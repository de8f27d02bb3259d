package analysis

import (
	"testing"

	"github.com/revlift/revlift/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rerankTable(n int) *models.AggregateTable {
	t := &models.AggregateTable{Horizons: []int{7, 180}}
	for i := 0; i < n; i++ {
		t.Users = append(t.Users, string(rune('a'+i%26))+string(rune('0'+i/26)))
		// Early value descends with index; late value reshuffles a few
		// of the top users to the bottom.
		early := float64(n - i)
		late := early
		if i < 3 {
			late = 0.5
		}
		t.Rows = append(t.Rows, []float64{early, late})
	}
	return t
}

func TestRerankRowsSumToHundred(t *testing.T) {
	m, err := Rerank(rerankTable(40), 7, 180)
	require.NoError(t, err)

	assert.Equal(t, 40, m.Users)
	assert.Equal(t, 10, m.Bands)
	for r, row := range m.Rows {
		var sum float64
		for _, v := range row {
			sum += v
		}
		assert.InDelta(t, 100.0, sum, 1e-9, "band %d", r)
	}
}

func TestRerankTopBandMigration(t *testing.T) {
	m, err := Rerank(rerankTable(30), 7, 180)
	require.NoError(t, err)

	// The three demoted top spenders are the whole of reference band 0
	// and they all land in the bottom lookahead band.
	assert.Equal(t, 100.0, m.Rows[0][9])
}

func TestRerankRestrictsToPositiveReferenceRevenue(t *testing.T) {
	table := &models.AggregateTable{
		Horizons: []int{7, 180},
		Users:    []string{"a", "b", "c"},
		Rows: [][]float64{
			{5, 10},
			{0, 99}, // no early revenue, no early rank
			{3, 4},
		},
	}

	m, err := Rerank(table, 7, 180)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Users)
}

func TestRerankNoQualifyingUsers(t *testing.T) {
	table := &models.AggregateTable{
		Horizons: []int{7, 180},
		Users:    []string{"a"},
		Rows:     [][]float64{{0, 50}},
	}

	m, err := Rerank(table, 7, 180)
	require.NoError(t, err)
	assert.Zero(t, m.Users)
	for _, row := range m.Rows {
		for _, v := range row {
			assert.Zero(t, v)
		}
	}
}

func TestRerankUnknownHorizon(t *testing.T) {
	_, err := Rerank(rerankTable(10), 5, 180)
	assert.ErrorIs(t, err, ErrUnknownHorizon)

	_, err = Rerank(rerankTable(10), 7, 45)
	assert.ErrorIs(t, err, ErrUnknownHorizon)
}

func TestRerankReferenceMustNotExceedLookahead(t *testing.T) {
	_, err := Rerank(rerankTable(10), 180, 7)
	assert.Error(t, err)
}

func TestRerankDeterministic(t *testing.T) {
	table := rerankTable(25)

	first, err := Rerank(table, 7, 180)
	require.NoError(t, err)
	second, err := Rerank(table, 7, 180)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
