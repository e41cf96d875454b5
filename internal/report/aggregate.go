// Package report derives billable-hours projections from completed sessions.
// Everything here is a pure function over the session set passed in; the
// caller decides where the sessions come from and how the result is exported.
package report

import (
	"sort"
	"time"

	"trainhub/internal/training"
)

// DateRange bounds an aggregation, inclusive on both ends. A zero From means
// no lower bound; a zero To means "up to now".
type DateRange struct {
	From time.Time
	To   time.Time
}

func (r DateRange) contains(date, now time.Time) bool {
	if !r.From.IsZero() && date.Before(r.From) {
		return false
	}
	if !r.To.IsZero() {
		return !date.After(r.To)
	}
	return !date.After(now)
}

// MonthlyHours is one month bucket of the aggregate.
type MonthlyHours struct {
	Year     int        `json:"year"`
	Month    time.Month `json:"month"`
	Hours    float64    `json:"hours"`
	Sessions int        `json:"sessions"`
	Earnings *float64   `json:"earnings,omitempty"`
}

// Row is one completed session, flattened for tabular export.
type Row struct {
	SessionID    string                 `json:"session_id"`
	Title        string                 `json:"title"`
	InstructorID string                 `json:"instructor_id"`
	Date         time.Time              `json:"date"`
	Hours        float64                `json:"hours"`
	Status       training.SessionStatus `json:"status"`
}

// Summary is the full aggregation result: monthly buckets in chronological
// order, flat export rows, and grand totals.
type Summary struct {
	Months        []MonthlyHours `json:"months"`
	Rows          []Row          `json:"rows"`
	TotalHours    float64        `json:"total_hours"`
	TotalSessions int            `json:"total_sessions"`
	TotalEarnings *float64       `json:"total_earnings,omitempty"`
}

type monthKey struct {
	year  int
	month time.Month
}

// Aggregate buckets the identity's completed sessions in range by month.
// rate, when non-nil, prices each hour; earnings are omitted otherwise.
// Deterministic: same sessions, range and now give the same numbers.
func Aggregate(all []training.Session, identity training.Identity, dateRange DateRange, rate *float64, now time.Time) Summary {
	visible := training.VisibleSessions(all, identity)

	buckets := make(map[monthKey]MonthlyHours)
	summary := Summary{}
	for _, s := range visible {
		if s.Status != training.StatusCompleted {
			continue
		}
		if !dateRange.contains(s.Date, now) {
			continue
		}
		hours := s.Hours()
		key := monthKey{s.Date.Year(), s.Date.Month()}
		b := buckets[key]
		b.Year = key.year
		b.Month = key.month
		b.Hours += hours
		b.Sessions++
		buckets[key] = b

		summary.Rows = append(summary.Rows, Row{
			SessionID:    s.ID,
			Title:        s.Title,
			InstructorID: s.InstructorID,
			Date:         s.Date,
			Hours:        hours,
			Status:       s.Status,
		})
		summary.TotalHours += hours
		summary.TotalSessions++
	}

	keys := make([]monthKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].month < keys[j].month
	})
	for _, k := range keys {
		b := buckets[k]
		if rate != nil {
			e := b.Hours * *rate
			b.Earnings = &e
		}
		summary.Months = append(summary.Months, b)
	}
	if rate != nil {
		total := summary.TotalHours * *rate
		summary.TotalEarnings = &total
	}
	sort.Slice(summary.Rows, func(i, j int) bool {
		return summary.Rows[i].Date.Before(summary.Rows[j].Date)
	})
	return summary
}
