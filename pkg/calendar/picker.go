package calendar

import (
	"context"
	"fmt"
	"time"

	"chatstream/pkg/logger"
	"chatstream/pkg/models"
)

// Source returns open slots for an event within [start, end].
type Source interface {
	GetSlots(ctx context.Context, eventRef string, start, end time.Time) ([]models.TimeSlot, error)
}

// Window configures the availability query.
type Window struct {
	Offset    time.Duration
	LookAhead time.Duration
}

// Picker holds the selection state for one booking attachment.
type Picker struct {
	booking  models.BookingAttachment
	slots    []models.TimeSlot
	loc      *time.Location
	now      time.Time
	month    time.Time
	selected time.Time
	clock    string
}

// LoadPicker fetches availability for booking and opens the picker on the
// month of the first open slot, or the current month when there is none.
func LoadPicker(ctx context.Context, src Source, booking models.BookingAttachment, now time.Time, w Window, loc *time.Location) (*Picker, error) {
	start, end := QueryWindow(now, w.Offset, w.LookAhead)
	slots, err := src.GetSlots(ctx, booking.EventRef, start, end)
	if err != nil {
		return nil, fmt.Errorf("load availability for %s: %w", booking.EventRef, err)
	}
	logger.Debug("availability_loaded", "event", booking.EventRef, "slots", len(slots))
	return NewPicker(booking, slots, now, loc), nil
}

func NewPicker(booking models.BookingAttachment, slots []models.TimeSlot, now time.Time, loc *time.Location) *Picker {
	if loc == nil {
		loc = time.Local
	}
	p := &Picker{booking: booking, slots: slots, loc: loc, now: now}
	first := now
	if len(slots) > 0 {
		first = slots[0].Start
		for _, s := range slots[1:] {
			if s.Start.Before(first) {
				first = s.Start
			}
		}
	}
	p.month = monthOf(first, loc)
	return p
}

func (p *Picker) Slots() []models.TimeSlot { return p.slots }

func (p *Picker) Month() time.Time { return p.month }

func (p *Picker) Grid() [GridCells]Day {
	return BuildGrid(p.month, p.slots, p.now, p.loc)
}

func (p *Picker) NextMonth() { p.month = p.month.AddDate(0, 1, 0) }

func (p *Picker) PrevMonth() { p.month = p.month.AddDate(0, -1, 0) }

// SelectDate picks a day from the grid. Days that are not selectable are refused.
func (p *Picker) SelectDate(date time.Time) error {
	want := civil(date, p.loc)
	for _, d := range p.Grid() {
		if civil(d.Date, p.loc) != want {
			continue
		}
		if !d.Selectable {
			return fmt.Errorf("%s has no bookable times", date.In(p.loc).Format("Mon Jan 2"))
		}
		p.selected = d.Date
		p.clock = ""
		return nil
	}
	return fmt.Errorf("%s is not in the displayed month", date.In(p.loc).Format("2006-01-02"))
}

// Times lists the clock labels offered for the selected day.
func (p *Picker) Times() []string {
	if p.selected.IsZero() {
		return nil
	}
	var out []string
	for _, s := range SlotsForDate(p.selected, p.slots, p.loc) {
		out = append(out, FormatClock(s.Start, p.loc))
	}
	return out
}

// SelectTime picks one of Times().
func (p *Picker) SelectTime(clock string) error {
	for _, t := range p.Times() {
		if t == clock {
			p.clock = clock
			return nil
		}
	}
	return fmt.Errorf("%q is not an open time", clock)
}

// SchedulingURL is the base URL for deep links: the selected day's slot URL
// when the availability source provided one, else the configured one.
func (p *Picker) SchedulingURL() string {
	if !p.selected.IsZero() {
		for _, s := range SlotsForDate(p.selected, p.slots, p.loc) {
			if s.SchedulingURL != "" && FormatClock(s.Start, p.loc) == p.clock {
				return s.SchedulingURL
			}
		}
	}
	for _, s := range p.slots {
		if s.SchedulingURL != "" {
			return s.SchedulingURL
		}
	}
	return p.booking.SchedulingURL
}

// BookingURL builds the deep link for the current selection.
func (p *Picker) BookingURL() (string, error) {
	if p.selected.IsZero() || p.clock == "" {
		return "", fmt.Errorf("select a date and time first")
	}
	return BuildBookingURL(p.SchedulingURL(), p.selected, p.clock, p.loc)
}

func monthOf(t time.Time, loc *time.Location) time.Time {
	y, m, _ := t.In(loc).Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, loc)
}
