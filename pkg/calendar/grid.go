// Package calendar lays out booking availability as a month grid and builds
// booking deep links for a chosen slot.
package calendar

import (
	"sort"
	"time"

	"chatstream/pkg/models"
)

// GridCells is six full weeks, enough for any month regardless of the
// weekday it starts on.
const GridCells = 42

// Day is one cell of the month grid.
type Day struct {
	Date           time.Time
	IsCurrentMonth bool
	HasSlots       bool
	IsPast         bool
	// Selectable is true for days of the displayed month that have open
	// slots and are not before today.
	Selectable bool
}

// BuildGrid returns the Sunday-first grid for the month containing month,
// evaluated in loc.
func BuildGrid(month time.Time, slots []models.TimeSlot, now time.Time, loc *time.Location) [GridCells]Day {
	if loc == nil {
		loc = time.Local
	}
	month = month.In(loc)
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, loc)
	start := first.AddDate(0, 0, -int(first.Weekday()))
	today := dayOf(now, loc)

	withSlots := make(map[civilDate]bool, len(slots))
	for _, s := range slots {
		withSlots[civil(s.Start, loc)] = true
	}

	var grid [GridCells]Day
	for i := range grid {
		d := start.AddDate(0, 0, i)
		day := Day{
			Date:           d,
			IsCurrentMonth: d.Month() == first.Month() && d.Year() == first.Year(),
			HasSlots:       withSlots[civil(d, loc)],
			IsPast:         d.Before(today),
		}
		day.Selectable = day.IsCurrentMonth && day.HasSlots && !day.IsPast
		grid[i] = day
	}
	return grid
}

// SlotsForDate returns the slots starting on date's calendar day in loc,
// ordered by start time.
func SlotsForDate(date time.Time, slots []models.TimeSlot, loc *time.Location) []models.TimeSlot {
	if loc == nil {
		loc = time.Local
	}
	want := civil(date, loc)
	var out []models.TimeSlot
	for _, s := range slots {
		if civil(s.Start, loc) == want {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// QueryWindow bounds an availability query: it starts offset after now so
// it is never in the past, and ends lookAhead after now.
func QueryWindow(now time.Time, offset, lookAhead time.Duration) (time.Time, time.Time) {
	if offset < time.Minute {
		offset = time.Minute
	}
	if lookAhead <= offset {
		lookAhead = offset + time.Minute
	}
	return now.Add(offset), now.Add(lookAhead)
}

type civilDate struct {
	y int
	m time.Month
	d int
}

func civil(t time.Time, loc *time.Location) civilDate {
	y, m, d := t.In(loc).Date()
	return civilDate{y, m, d}
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
