package analysis

import (
	"fmt"
	"sort"

	"github.com/revlift/revlift/internal/models"
)

// rerankBands is the number of equal-width percentile bands. Band 0 is
// the top decile (highest spenders).
const rerankBands = 10

// TransitionMatrix describes how user value rankings reshuffle between
// two horizons. Rows[r][l] is the percentage of users from reference
// band r that land in lookahead band l; each non-empty row sums to
// 100.
type TransitionMatrix struct {
	Reference int         `json:"reference"`
	Lookahead int         `json:"lookahead"`
	Bands     int         `json:"bands"`
	Users     int         `json:"users"`
	Rows      [][]float64 `json:"rows"`
}

// Rerank builds the percentile-band transition matrix between a
// reference horizon and a later lookahead horizon, restricted to users
// with positive revenue by the reference horizon.
//
// Ranking is descending with a stable tie-break (table order), so
// repeated runs on identical input produce identical band assignments.
func Rerank(t *models.AggregateTable, reference, lookahead int) (*TransitionMatrix, error) {
	if reference > lookahead {
		return nil, fmt.Errorf("reference horizon D%d exceeds lookahead D%d", reference, lookahead)
	}
	refIdx, ok := t.HorizonIndex(reference)
	if !ok {
		return nil, fmt.Errorf("%w: D%d", ErrUnknownHorizon, reference)
	}
	lookIdx, ok := t.HorizonIndex(lookahead)
	if !ok {
		return nil, fmt.Errorf("%w: D%d", ErrUnknownHorizon, lookahead)
	}

	// Only users who already produced revenue by the reference horizon
	// have a meaningful early rank.
	var users []int
	for i := range t.Rows {
		if t.Rows[i][refIdx] > 0 {
			users = append(users, i)
		}
	}

	m := &TransitionMatrix{
		Reference: reference,
		Lookahead: lookahead,
		Bands:     rerankBands,
		Users:     len(users),
		Rows:      make([][]float64, rerankBands),
	}
	for r := range m.Rows {
		m.Rows[r] = make([]float64, rerankBands)
	}
	if len(users) == 0 {
		return m, nil
	}

	refBand := percentileBands(t, users, refIdx)
	lookBand := percentileBands(t, users, lookIdx)

	counts := make([][]int, rerankBands)
	rowTotals := make([]int, rerankBands)
	for r := range counts {
		counts[r] = make([]int, rerankBands)
	}
	for _, u := range users {
		counts[refBand[u]][lookBand[u]]++
		rowTotals[refBand[u]]++
	}

	for r := range counts {
		if rowTotals[r] == 0 {
			continue
		}
		for l := range counts[r] {
			m.Rows[r][l] = float64(counts[r][l]) / float64(rowTotals[r]) * 100
		}
	}

	return m, nil
}

// percentileBands ranks the given users descending by the column and
// assigns each to one of ten equal-width percentile bands.
func percentileBands(t *models.AggregateTable, users []int, col int) map[int]int {
	order := append([]int(nil), users...)
	sort.SliceStable(order, func(a, b int) bool {
		return t.Rows[order[a]][col] > t.Rows[order[b]][col]
	})

	bands := make(map[int]int, len(order))
	n := len(order)
	for pos, u := range order {
		band := pos * rerankBands / n
		if band >= rerankBands {
			band = rerankBands - 1
		}
		bands[u] = band
	}
	return bands
}
