package models

import (
	"time"
)

// ActivationConvention identifies how an uploaded dataset marks each
// user's anchor event. Exactly one convention is active per dataset;
// the normalizer decides which by inspecting the activation column.
type ActivationConvention string

const (
	// ConventionFlag means a boolean/binary column marks activation
	// rows; the anchor is the earliest flagged timestamp per user.
	ConventionFlag ActivationConvention = "activation_flag"

	// ConventionAnchorTime means the column carries the anchor
	// timestamp directly on every row.
	ConventionAnchorTime ActivationConvention = "anchor_time"
)

// RawRow is one untyped row of an uploaded event log, exactly as it
// appeared in the file.
type RawRow struct {
	UserID     string
	Timestamp  string
	Activation string
	Value      string

	// Line is the 1-based data row number, for error reporting.
	Line int
}

// Event is one normalized event row. Under ConventionFlag the
// ActivationFlag field is meaningful; under ConventionAnchorTime the
// AnchorTime field is.
type Event struct {
	UserID         string    `json:"user_id"`
	Timestamp      time.Time `json:"timestamp"`
	ActivationFlag bool      `json:"is_activation,omitempty"`
	AnchorTime     time.Time `json:"anchor_time,omitempty"`
	Value          float64   `json:"value"`
}

// AnchoredEvent is an event with the per-user anchor resolved and the
// offset from it computed. HoursSinceAnchor may be negative when the
// event precedes the user's anchor.
type AnchoredEvent struct {
	Event
	HoursSinceAnchor float64 `json:"hours_since_anchor"`
}

// AggregateTable holds one row per distinct user with cumulative
// revenue at each configured horizon. Users keeps first-appearance
// order from the anchored events so repeated runs produce identical
// tables. Rows[i][j] is the cumulative value of Users[i] at
// Horizons[j] days.
type AggregateTable struct {
	Horizons []int       `json:"horizons"`
	Users    []string    `json:"users"`
	Rows     [][]float64 `json:"rows"`
}

// HorizonIndex returns the column index of the given horizon.
func (t *AggregateTable) HorizonIndex(horizon int) (int, bool) {
	for j, h := range t.Horizons {
		if h == horizon {
			return j, true
		}
	}
	return 0, false
}

// MaxHorizon returns the longest horizon of the table.
func (t *AggregateTable) MaxHorizon() int {
	return t.Horizons[len(t.Horizons)-1]
}

// Column returns the values of one horizon column across all users.
func (t *AggregateTable) Column(j int) []float64 {
	col := make([]float64, len(t.Rows))
	for i := range t.Rows {
		col[i] = t.Rows[i][j]
	}
	return col
}

// BusinessParameters are the analyst-supplied inputs of the uplift
// estimate. They are optional for every other analysis.
type BusinessParameters struct {
	SpendBracket string  `json:"spend_bracket"`
	ROASWindow   string  `json:"roas_window"`
	RegularROAS  float64 `json:"regular_roas"` // decimal, e.g. 0.95
}

// SpendRange is the (min, max) monthly ad spend of a bracket, in USD.
type SpendRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// SpendBracketLabels lists the recognized brackets in display order.
var SpendBracketLabels = []string{
	"Less than $100k",
	"$100k - $300k",
	"$300k - $600k",
	"$600k - $1M",
	"$1M - $1.5M",
	"$1.5M - $3M",
	"$3M - $10M",
	"More than $10M",
}

var spendBrackets = map[string]SpendRange{
	"Less than $100k": {Min: 1, Max: 100_000},
	"$100k - $300k":   {Min: 100_000, Max: 300_000},
	"$300k - $600k":   {Min: 300_000, Max: 600_000},
	"$600k - $1M":     {Min: 600_000, Max: 1_000_000},
	"$1M - $1.5M":     {Min: 1_000_000, Max: 1_500_000},
	"$1.5M - $3M":     {Min: 1_500_000, Max: 3_000_000},
	"$3M - $10M":      {Min: 3_000_000, Max: 10_000_000},
	"More than $10M":  {Min: 10_000_000, Max: 100_000_000},
}

// SpendRangeFor maps a bracket label to its monthly spend bounds.
func SpendRangeFor(label string) (SpendRange, bool) {
	r, ok := spendBrackets[label]
	return r, ok
}

// ROASWindows lists the recognized ROAS reporting windows.
var ROASWindows = []string{"D30", "D60", "D90", "D180"}

// ValidROASWindow reports whether the label is a recognized window.
func ValidROASWindow(label string) bool {
	for _, w := range ROASWindows {
		if w == label {
			return true
		}
	}
	return false
}
