package report

import (
	"math"
	"testing"
	"time"

	"trainhub/internal/training"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tod(t *testing.T, s string) training.TimeOfDay {
	t.Helper()
	v, err := training.ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func completed(t *testing.T, id, instructor string, date time.Time, start, end string, participants ...string) training.Session {
	t.Helper()
	return training.Session{
		ID:           id,
		Title:        "Session " + id,
		InstructorID: instructor,
		Capacity:     10,
		Date:         date,
		StartTime:    tod(t, start),
		EndTime:      tod(t, end),
		Status:       training.StatusCompleted,
		Participants: participants,
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAggregateHoursAndEarnings(t *testing.T) {
	now := day(2026, 4, 1)
	sessions := []training.Session{
		completed(t, "s1", "inst-1", day(2026, 3, 2), "09:00", "12:00"),
	}
	rate := 20.0

	summary := Aggregate(sessions, training.Identity{ID: "inst-1", Role: training.RoleInstructor}, DateRange{}, &rate, now)

	if summary.TotalSessions != 1 {
		t.Fatalf("expected 1 session, got %d", summary.TotalSessions)
	}
	if !approx(summary.TotalHours, 3) {
		t.Fatalf("expected 3 hours, got %g", summary.TotalHours)
	}
	if summary.TotalEarnings == nil || !approx(*summary.TotalEarnings, 60) {
		t.Fatalf("expected earnings 60, got %v", summary.TotalEarnings)
	}

	invoice := Invoice(*summary.TotalEarnings)
	if !approx(invoice.TotalHT, 60) || !approx(invoice.TVA, 12) || !approx(invoice.TotalTTC, 72) {
		t.Fatalf("unexpected invoice %+v", invoice)
	}
}

func TestAggregateSkipsNonCompletedAndInvisible(t *testing.T) {
	now := day(2026, 4, 1)
	scheduled := completed(t, "s2", "inst-1", day(2026, 3, 3), "09:00", "11:00")
	scheduled.Status = training.StatusScheduled
	sessions := []training.Session{
		completed(t, "s1", "inst-1", day(2026, 3, 2), "09:00", "12:00"),
		scheduled,
		completed(t, "s3", "inst-2", day(2026, 3, 4), "09:00", "17:00"),
	}

	summary := Aggregate(sessions, training.Identity{ID: "inst-1", Role: training.RoleInstructor}, DateRange{}, nil, now)
	if summary.TotalSessions != 1 {
		t.Fatalf("expected only the instructor's completed session, got %d", summary.TotalSessions)
	}
	if summary.TotalEarnings != nil {
		t.Fatalf("expected no earnings without a rate, got %v", summary.TotalEarnings)
	}
	if len(summary.Rows) != 1 || summary.Rows[0].SessionID != "s1" {
		t.Fatalf("unexpected rows %+v", summary.Rows)
	}
}

func TestAggregateDateRange(t *testing.T) {
	now := day(2026, 6, 15)
	sessions := []training.Session{
		completed(t, "jan", "inst-1", day(2026, 1, 10), "09:00", "12:00"),
		completed(t, "mar", "inst-1", day(2026, 3, 10), "09:00", "12:00"),
		completed(t, "jun", "inst-1", day(2026, 6, 30), "09:00", "12:00"),
	}
	identity := training.Identity{ID: "inst-1", Role: training.RoleInstructor}

	tests := []struct {
		name string
		r    DateRange
		want []string
	}{
		{"bounded inclusive", DateRange{From: day(2026, 1, 10), To: day(2026, 3, 10)}, []string{"jan", "mar"}},
		{"open from, capped at now", DateRange{}, []string{"jan", "mar"}},
		{"open to includes future date", DateRange{From: day(2026, 3, 1), To: day(2026, 12, 31)}, []string{"mar", "jun"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary := Aggregate(sessions, identity, tt.r, nil, now)
			if len(summary.Rows) != len(tt.want) {
				t.Fatalf("expected %d rows, got %d", len(tt.want), len(summary.Rows))
			}
			for i, id := range tt.want {
				if summary.Rows[i].SessionID != id {
					t.Fatalf("expected row %d to be %s, got %s", i, id, summary.Rows[i].SessionID)
				}
			}
		})
	}
}

func TestAggregateMonthlyBuckets(t *testing.T) {
	now := day(2026, 5, 1)
	sessions := []training.Session{
		completed(t, "a", "inst-1", day(2026, 3, 2), "09:00", "12:00"),
		completed(t, "b", "inst-1", day(2026, 3, 9), "14:00", "17:00"),
		completed(t, "c", "inst-1", day(2026, 4, 6), "09:00", "10:30"),
	}
	rate := 10.0

	summary := Aggregate(sessions, training.Identity{ID: "inst-1", Role: training.RoleInstructor}, DateRange{}, &rate, now)

	if len(summary.Months) != 2 {
		t.Fatalf("expected 2 month buckets, got %d", len(summary.Months))
	}
	march := summary.Months[0]
	if march.Month != time.March || !approx(march.Hours, 6) || march.Sessions != 2 {
		t.Fatalf("unexpected march bucket %+v", march)
	}
	if march.Earnings == nil || !approx(*march.Earnings, 60) {
		t.Fatalf("expected march earnings 60, got %v", march.Earnings)
	}
	april := summary.Months[1]
	if april.Month != time.April || !approx(april.Hours, 1.5) || april.Sessions != 1 {
		t.Fatalf("unexpected april bucket %+v", april)
	}
	if !approx(summary.TotalHours, 7.5) {
		t.Fatalf("expected total 7.5 hours, got %g", summary.TotalHours)
	}
}

func TestAggregateDeterministic(t *testing.T) {
	now := day(2026, 5, 1)
	sessions := []training.Session{
		completed(t, "a", "inst-1", day(2026, 3, 2), "09:00", "12:00"),
		completed(t, "b", "inst-1", day(2026, 2, 9), "14:00", "17:00"),
	}
	identity := training.Identity{ID: "inst-1", Role: training.RoleInstructor}

	first := Aggregate(sessions, identity, DateRange{}, nil, now)
	second := Aggregate(sessions, identity, DateRange{}, nil, now)
	if first.TotalHours != second.TotalHours || len(first.Months) != len(second.Months) {
		t.Fatal("expected identical summaries for identical input")
	}
	for i := range first.Months {
		if first.Months[i] != second.Months[i] {
			t.Fatalf("bucket %d differs between runs", i)
		}
	}
	if first.Rows[0].SessionID != "b" {
		t.Fatalf("expected rows sorted by date, got %+v", first.Rows)
	}
}
