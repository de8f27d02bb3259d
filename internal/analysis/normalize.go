package analysis

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/revlift/revlift/internal/models"
)

// Column names recognized in uploaded headers. first_touchpoint and
// the BigQuery export name are accepted as aliases for the activation
// column.
var (
	userIDColumns     = []string{"user_id"}
	timestampColumns  = []string{"timestamp", "event_timestamp"}
	activationColumns = []string{"is_activation", "first_touchpoint", "user_first_touch_timestamp"}
	valueColumns      = []string{"value", "event_value_in_usd"}
)

// Schema maps the positions of the required columns in an uploaded
// header. ActivationColumn keeps the original header name for error
// reporting.
type Schema struct {
	UserID           int
	Timestamp        int
	Activation       int
	Value            int
	ActivationColumn string
}

// DetectSchema locates the required columns in a header row. Header
// matching is case-insensitive. The activation convention is not
// decided here; it depends on the column's values, not its name.
func DetectSchema(header []string) (Schema, error) {
	find := func(names []string) (int, string, bool) {
		for i, h := range header {
			h = strings.ToLower(strings.TrimSpace(h))
			for _, n := range names {
				if h == n {
					return i, n, true
				}
			}
		}
		return 0, "", false
	}

	s := Schema{}
	var ok bool
	if s.UserID, _, ok = find(userIDColumns); !ok {
		return s, &MissingColumnError{Column: "user_id"}
	}
	if s.Timestamp, _, ok = find(timestampColumns); !ok {
		return s, &MissingColumnError{Column: "timestamp"}
	}
	if s.Activation, s.ActivationColumn, ok = find(activationColumns); !ok {
		return s, &MissingColumnError{Column: "is_activation"}
	}
	if s.Value, _, ok = find(valueColumns); !ok {
		return s, &MissingColumnError{Column: "value"}
	}
	return s, nil
}

// Normalize converts raw rows into the canonical event schema and
// reports which activation convention the dataset uses.
//
// The boundary policy is fail-fast: the first malformed row rejects
// the whole dataset so repeated runs of the same upload are
// reproducible. Normalize is a pure transform and is safe to re-run
// on the same input.
func Normalize(rows []models.RawRow, activationColumn string) ([]models.Event, models.ActivationConvention, error) {
	if len(rows) == 0 {
		return nil, "", ErrEmptyDataset
	}

	conv := detectConvention(rows)

	events := make([]models.Event, 0, len(rows))
	for _, r := range rows {
		ts, err := parseTimestamp(r.Timestamp)
		if err != nil {
			return nil, conv, &MalformedTimestampError{Line: r.Line, Column: "timestamp", Value: r.Timestamp}
		}

		ev := models.Event{
			UserID:    strings.TrimSpace(r.UserID),
			Timestamp: ts,
		}

		switch conv {
		case models.ConventionFlag:
			ev.ActivationFlag = parseFlag(r.Activation)
		case models.ConventionAnchorTime:
			anchor, err := parseTimestamp(r.Activation)
			if err != nil {
				return nil, conv, &MalformedTimestampError{Line: r.Line, Column: activationColumn, Value: r.Activation}
			}
			ev.AnchorTime = anchor
		}

		// A missing value is absence of revenue, not absence of
		// information: coerce to zero rather than dropping the row.
		v := strings.TrimSpace(r.Value)
		if v == "" {
			ev.Value = 0
		} else {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, conv, &MalformedValueError{Line: r.Line, Value: r.Value}
			}
			ev.Value = f
		}

		events = append(events, ev)
	}

	return events, conv, nil
}

// detectConvention inspects the activation column: if every non-empty
// cell is boolean-like (0/1/true/false) the dataset uses the flag
// convention, otherwise the column is an explicit anchor timestamp.
func detectConvention(rows []models.RawRow) models.ActivationConvention {
	for _, r := range rows {
		v := strings.TrimSpace(r.Activation)
		if v == "" {
			continue
		}
		if _, err := strconv.ParseBool(v); err != nil {
			return models.ConventionAnchorTime
		}
	}
	return models.ConventionFlag
}

func parseFlag(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

// timestampLayouts are tried in order for non-numeric timestamps. The
// set is fixed so parsing stays deterministic across runs; all parsed
// times are UTC, keeping timezone handling consistent within a
// dataset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
}

// parseTimestamp interprets numeric values as POSIX epoch seconds
// (fractional seconds allowed) and anything else against the fixed
// layout list.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrMalformedTimestamp
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(), nil
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, ErrMalformedTimestamp
}
