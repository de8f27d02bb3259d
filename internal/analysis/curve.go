package analysis

import (
	"fmt"

	"github.com/revlift/revlift/internal/models"
)

// Curve metrics.
const (
	CurveConversions = "conversions"
	CurveRevenue     = "revenue"
)

// CurvePoint is one horizon on the revenue-behavior curve.
type CurvePoint struct {
	Horizon int     `json:"horizon"`
	Value   float64 `json:"value"`
}

// Curve summarizes how user revenue evolves across horizons, for
// charting. Users whose every horizon is zero are left out of the
// denominator — they never converted inside the observed window and
// would only flatten the curve.
//
// conversions: share (%) of users with positive revenue by each
// horizon. revenue: average revenue per user at each horizon.
func Curve(t *models.AggregateTable, metric string) ([]CurvePoint, error) {
	if metric != CurveConversions && metric != CurveRevenue {
		return nil, fmt.Errorf("unknown curve metric %q", metric)
	}

	var active []int
	for i := range t.Rows {
		for _, v := range t.Rows[i] {
			if v != 0 {
				active = append(active, i)
				break
			}
		}
	}

	points := make([]CurvePoint, 0, len(t.Horizons))
	for j, h := range t.Horizons {
		p := CurvePoint{Horizon: h}
		if len(active) > 0 {
			switch metric {
			case CurveConversions:
				converted := 0
				for _, i := range active {
					if t.Rows[i][j] > 0 {
						converted++
					}
				}
				p.Value = float64(converted) / float64(len(active)) * 100
			case CurveRevenue:
				var sum float64
				for _, i := range active {
					sum += t.Rows[i][j]
				}
				p.Value = sum / float64(len(active))
			}
		}
		points = append(points, p)
	}

	return points, nil
}
