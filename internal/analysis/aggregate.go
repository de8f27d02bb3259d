package analysis

import (
	"github.com/revlift/revlift/internal/models"
)

// Aggregate buckets anchored events into cumulative revenue per user
// at each horizon: D{h} sums value over rows with hours_since_anchor
// <= 24*h.
//
// Every user present in the anchored events gets exactly one row;
// horizons with no qualifying events stay at zero rather than dropping
// the user. With non-negative values the columns are monotone by
// construction, since each horizon widens the window of the previous
// one.
func Aggregate(anchored []models.AnchoredEvent, horizons []int) *models.AggregateTable {
	t := &models.AggregateTable{
		Horizons: append([]int(nil), horizons...),
	}

	index := make(map[string]int, len(anchored)/4)
	for _, ev := range anchored {
		i, ok := index[ev.UserID]
		if !ok {
			i = len(t.Users)
			index[ev.UserID] = i
			t.Users = append(t.Users, ev.UserID)
			t.Rows = append(t.Rows, make([]float64, len(horizons)))
		}
		for j, h := range horizons {
			if ev.HoursSinceAnchor <= float64(24*h) {
				t.Rows[i][j] += ev.Value
			}
		}
	}

	return t
}
