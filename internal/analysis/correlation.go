package analysis

import (
	"math"
	"sort"

	"github.com/revlift/revlift/internal/models"
)

// CorrelationMatrix is the Spearman rank correlation between every
// pair of horizon columns. Symmetric, diagonal 1. A column with zero
// rank variance (e.g. all users identical) correlates 0 with
// everything; pandas would report NaN there, which neither JSON nor a
// threshold comparison can do anything useful with.
type CorrelationMatrix struct {
	Horizons []int       `json:"horizons"`
	Values   [][]float64 `json:"values"`
}

// SpearmanMatrix computes the rank-correlation matrix over the horizon
// columns of the aggregate table. Ties receive average ranks.
func SpearmanMatrix(t *models.AggregateTable) *CorrelationMatrix {
	n := len(t.Horizons)
	m := &CorrelationMatrix{
		Horizons: append([]int(nil), t.Horizons...),
		Values:   make([][]float64, n),
	}

	ranks := make([][]float64, n)
	for j := 0; j < n; j++ {
		ranks[j] = averageRanks(t.Column(j))
	}

	for i := 0; i < n; i++ {
		m.Values[i] = make([]float64, n)
		m.Values[i][i] = 1
		for j := 0; j < i; j++ {
			r := pearson(ranks[i], ranks[j])
			m.Values[i][j] = r
			m.Values[j][i] = r
		}
	}

	return m
}

// averageRanks assigns 1-based ranks to values, giving tied values the
// average of the rank range they span.
func averageRanks(values []float64) []float64 {
	n := len(values)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return values[order[a]] < values[order[b]]
	})

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[order[j+1]] == values[order[i]] {
			j++
		}
		// Positions i..j hold equal values; each gets the mean rank.
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// pearson computes the Pearson correlation of two equal-length series,
// returning 0 when either has no variance.
func pearson(x, y []float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return 0
	}

	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}

	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

// HorizonSelection is the predictive-horizon pick: the chosen horizon
// and its correlation with the max horizon, or Found=false when no
// horizon clears the threshold.
type HorizonSelection struct {
	Horizon     int     `json:"horizon"`
	Correlation float64 `json:"correlation"`
	Found       bool    `json:"found"`
}

// SelectHorizon walks the reversed horizon list — longest-but-one down
// to shortest — and returns the first horizon whose correlation with
// the max horizon exceeds the threshold. The net winner is therefore
// the LONGEST non-max horizon above threshold, not the shortest. That
// scan order is deliberate and verified against the shipped behavior;
// do not "fix" it to a shortest-first walk without product
// confirmation.
func SelectHorizon(m *CorrelationMatrix, threshold float64) HorizonSelection {
	maxIdx := len(m.Horizons) - 1
	for i := maxIdx; i >= 0; i-- {
		if i == maxIdx {
			continue
		}
		if v := m.Values[i][maxIdx]; v > threshold {
			return HorizonSelection{Horizon: m.Horizons[i], Correlation: v, Found: true}
		}
	}
	return HorizonSelection{}
}
