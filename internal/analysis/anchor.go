package analysis

import (
	"time"

	"github.com/revlift/revlift/internal/models"
)

// AnchorResult is the output of anchor resolution: the retained rows
// with offsets computed, plus the exclusion diagnostic for users whose
// anchor could not be resolved.
type AnchorResult struct {
	Events []models.AnchoredEvent

	// ExcludedUsers counts distinct users dropped because no row of
	// theirs matched the activation predicate. Reported, never silent.
	ExcludedUsers int
}

// ResolveAnchors computes each user's anchor time and the hours-since-
// anchor offset of every retained row.
//
// Under the flag convention the anchor is min(timestamp) over a user's
// flagged rows; users with no flagged row have no reference point and
// are excluded (counted in ExcludedUsers). Under the explicit-anchor
// convention the anchor is read from the rows and must be identical
// across a user's rows; divergent values are a data-quality error, not
// something to silently pick from.
//
// Offsets may be negative: a row can legitimately precede the anchor,
// and the aggregation step filters consistently on the signed value.
func ResolveAnchors(events []models.Event, conv models.ActivationConvention) (*AnchorResult, error) {
	anchors := make(map[string]time.Time, len(events)/4)

	switch conv {
	case models.ConventionFlag:
		for _, ev := range events {
			if !ev.ActivationFlag {
				continue
			}
			if cur, ok := anchors[ev.UserID]; !ok || ev.Timestamp.Before(cur) {
				anchors[ev.UserID] = ev.Timestamp
			}
		}

	case models.ConventionAnchorTime:
		for _, ev := range events {
			cur, ok := anchors[ev.UserID]
			if !ok {
				anchors[ev.UserID] = ev.AnchorTime
				continue
			}
			if !cur.Equal(ev.AnchorTime) {
				return nil, &InconsistentAnchorError{UserID: ev.UserID, First: cur, Second: ev.AnchorTime}
			}
		}
	}

	res := &AnchorResult{Events: make([]models.AnchoredEvent, 0, len(events))}
	excluded := make(map[string]struct{})

	for _, ev := range events {
		anchor, ok := anchors[ev.UserID]
		if !ok {
			excluded[ev.UserID] = struct{}{}
			continue
		}
		res.Events = append(res.Events, models.AnchoredEvent{
			Event:            ev,
			HoursSinceAnchor: ev.Timestamp.Sub(anchor).Hours(),
		})
	}

	res.ExcludedUsers = len(excluded)
	return res, nil
}
