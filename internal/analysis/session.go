package analysis

import (
	"fmt"
	"sync"
	"time"

	"github.com/revlift/revlift/internal/models"
)

// Session is the explicit per-dataset analysis context: the normalized
// and anchored events of one upload plus lazily memoized derived
// tables. It is built once when a dataset arrives, is immutable
// afterwards, and is torn down by simply dropping it — every
// page-level computation derives fresh views from the same snapshot.
type Session struct {
	ID         string
	Name       string
	CreatedAt  time.Time
	Convention models.ActivationConvention
	Horizons   []int

	Events        []models.AnchoredEvent
	RowCount      int
	ExcludedUsers int
	Warnings      []string

	mu          sync.Mutex
	aggregates  *models.AggregateTable
	correlation *CorrelationMatrix
}

// NewSession runs the normalize and anchor stages over an upload and
// wraps the result. Aggregation and correlation are deferred until
// first use.
func NewSession(id, name string, rows []models.RawRow, activationColumn string, horizons []int) (*Session, error) {
	events, conv, err := Normalize(rows, activationColumn)
	if err != nil {
		return nil, err
	}

	anchored, err := ResolveAnchors(events, conv)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:            id,
		Name:          name,
		CreatedAt:     time.Now().UTC(),
		Convention:    conv,
		Horizons:      append([]int(nil), horizons...),
		Events:        anchored.Events,
		RowCount:      len(rows),
		ExcludedUsers: anchored.ExcludedUsers,
	}

	if w := dateRangeWarning(events, horizons); w != "" {
		s.Warnings = append(s.Warnings, w)
	}

	return s, nil
}

// RestoreSession rebuilds a session from previously persisted anchored
// events, e.g. after a restart when the upload lives in the dataset
// store.
func RestoreSession(id, name string, createdAt time.Time, conv models.ActivationConvention, events []models.AnchoredEvent, horizons []int, rowCount, excludedUsers int) *Session {
	return &Session{
		ID:            id,
		Name:          name,
		CreatedAt:     createdAt,
		Convention:    conv,
		Horizons:      append([]int(nil), horizons...),
		Events:        events,
		RowCount:      rowCount,
		ExcludedUsers: excludedUsers,
	}
}

// dateRangeWarning flags a data span shorter than the longest horizon.
// Quality degrades but the pipeline still runs: some windows are
// simply incomplete.
func dateRangeWarning(events []models.Event, horizons []int) string {
	if len(events) == 0 || len(horizons) == 0 {
		return ""
	}
	minTS, maxTS := events[0].Timestamp, events[0].Timestamp
	for _, ev := range events[1:] {
		if ev.Timestamp.Before(minTS) {
			minTS = ev.Timestamp
		}
		if ev.Timestamp.After(maxTS) {
			maxTS = ev.Timestamp
		}
	}
	maxHorizon := horizons[len(horizons)-1]
	if maxTS.Sub(minTS).Hours() < float64(24*maxHorizon) {
		return fmt.Sprintf("data spans less than %d days; results for the longest horizons are based on incomplete windows", maxHorizon)
	}
	return ""
}

// UserCount returns the number of distinct users in the aggregate
// table.
func (s *Session) UserCount() int {
	return len(s.Aggregates().Users)
}

// Aggregates returns the memoized per-user horizon table.
func (s *Session) Aggregates() *models.AggregateTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aggregates == nil {
		s.aggregates = Aggregate(s.Events, s.Horizons)
	}
	return s.aggregates
}

// SetAggregates seeds the memoized table, used when a cached copy is
// available. No-op once a table exists.
func (s *Session) SetAggregates(t *models.AggregateTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aggregates == nil {
		s.aggregates = t
	}
}

// Correlation returns the memoized Spearman matrix.
func (s *Session) Correlation() *CorrelationMatrix {
	agg := s.Aggregates()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.correlation == nil {
		s.correlation = SpearmanMatrix(agg)
	}
	return s.correlation
}

// Select runs the predictive-horizon selection at the given threshold.
func (s *Session) Select(threshold float64) HorizonSelection {
	return SelectHorizon(s.Correlation(), threshold)
}
