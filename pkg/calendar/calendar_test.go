package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstream/pkg/models"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("tzdata for %s not available: %v", name, err)
	}
	return loc
}

func slotAt(t time.Time, d time.Duration) models.TimeSlot {
	return models.TimeSlot{Start: t, End: t.Add(d)}
}

func TestBuildGrid(t *testing.T) {
	loc := time.UTC
	// November 2025 starts on a Saturday.
	month := time.Date(2025, time.November, 15, 0, 0, 0, 0, loc)
	now := time.Date(2025, time.November, 10, 9, 0, 0, 0, loc)
	slots := []models.TimeSlot{
		slotAt(time.Date(2025, time.November, 5, 15, 0, 0, 0, loc), 30*time.Minute),
		slotAt(time.Date(2025, time.November, 12, 15, 0, 0, 0, loc), 30*time.Minute),
		slotAt(time.Date(2025, time.December, 1, 15, 0, 0, 0, loc), 30*time.Minute),
	}
	grid := BuildGrid(month, slots, now, loc)

	require.Len(t, grid, 42)
	assert.Equal(t, time.Sunday, grid[0].Date.Weekday())
	assert.Equal(t, time.Date(2025, time.October, 26, 0, 0, 0, 0, loc), grid[0].Date)
	assert.False(t, grid[0].IsCurrentMonth)
	assert.Equal(t, time.Date(2025, time.November, 1, 0, 0, 0, 0, loc), grid[6].Date)
	assert.True(t, grid[6].IsCurrentMonth)

	current := 0
	for i, d := range grid {
		if d.IsCurrentMonth {
			current++
		}
		if i > 0 {
			assert.Equal(t, grid[i-1].Date.AddDate(0, 0, 1), d.Date)
		}
	}
	assert.Equal(t, 30, current)

	nov5 := grid[6+4]
	assert.True(t, nov5.HasSlots)
	assert.True(t, nov5.IsPast)
	assert.False(t, nov5.Selectable, "days before today are not selectable")

	nov12 := grid[6+11]
	assert.True(t, nov12.HasSlots)
	assert.True(t, nov12.Selectable)

	nov10 := grid[6+9]
	assert.False(t, nov10.IsPast, "today is not in the past")
	assert.False(t, nov10.Selectable, "no slots")

	dec1 := grid[6+30]
	assert.Equal(t, time.Date(2025, time.December, 1, 0, 0, 0, 0, loc), dec1.Date)
	assert.True(t, dec1.HasSlots)
	assert.False(t, dec1.Selectable, "adjacent month")
}

func TestSlotsForDateSortedAndLocal(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	// 02:00 UTC on the 12th is the evening of the 11th in New York.
	late := slotAt(time.Date(2025, time.November, 12, 2, 0, 0, 0, time.UTC), time.Hour)
	early := slotAt(time.Date(2025, time.November, 11, 14, 0, 0, 0, time.UTC), time.Hour)
	mid := slotAt(time.Date(2025, time.November, 11, 18, 0, 0, 0, time.UTC), time.Hour)
	other := slotAt(time.Date(2025, time.November, 12, 14, 0, 0, 0, time.UTC), time.Hour)

	got := SlotsForDate(time.Date(2025, time.November, 11, 0, 0, 0, 0, ny), []models.TimeSlot{late, other, mid, early}, ny)
	require.Len(t, got, 3)
	assert.Equal(t, []time.Time{early.Start, mid.Start, late.Start}, []time.Time{got[0].Start, got[1].Start, got[2].Start})
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in     string
		h, m   int
		hasErr bool
	}{
		{in: "2:30 PM", h: 14, m: 30},
		{in: "12:00 PM", h: 12, m: 0},
		{in: "12:15 AM", h: 0, m: 15},
		{in: "9:05 am", h: 9, m: 5},
		{in: "14:45", h: 14, m: 45},
		{in: "13:00 PM", hasErr: true},
		{in: "2:75 PM", hasErr: true},
		{in: "noon", hasErr: true},
		{in: "2:30 XM", hasErr: true},
	}
	for _, tt := range tests {
		h, m, err := ParseClock(tt.in)
		if tt.hasErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.h, h, tt.in)
		assert.Equal(t, tt.m, m, tt.in)
	}
}

func TestBuildBookingURL(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	date := time.Date(2025, time.November, 11, 0, 0, 0, 0, ny)

	got, err := BuildBookingURL("https://calendly.com/acme/30min", date, "2:30 PM", ny)
	require.NoError(t, err)
	assert.Equal(t, "https://calendly.com/acme/2025-11-11T19:30:00+00:00", got)

	got, err = BuildBookingURL("https://calendly.com/acme/30min/", date, "2:30 PM", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "https://calendly.com/acme/30min/2025-11-11T14:30:00+00:00", got)

	_, err = BuildBookingURL("", date, "2:30 PM", ny)
	assert.ErrorIs(t, err, ErrMissingSchedulingContext)

	_, err = BuildBookingURL("https://calendly.com/acme/30min", date, "25:00", ny)
	assert.Error(t, err)
}

func TestBookingURLRoundTrip(t *testing.T) {
	zones := []string{"UTC", "America/New_York", "Asia/Kolkata", "Pacific/Auckland", "America/Los_Angeles"}
	clocks := []string{"12:00 AM", "2:30 PM", "11:45 PM", "12:30 PM"}
	date := time.Date(2025, time.March, 9, 12, 0, 0, 0, time.UTC)
	for _, z := range zones {
		loc := mustLoc(t, z)
		for _, c := range clocks {
			want, err := BookingTime(date, c, loc)
			require.NoError(t, err)
			link, err := BuildBookingURL("https://cal.example/team/intro", date, c, loc)
			require.NoError(t, err)
			got, err := ParseBookingTime(link)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "%s %s: want %s got %s", z, c, want.UTC(), got)
			assert.Equal(t, c, FormatClock(got, loc))
		}
	}
}

func TestQueryWindow(t *testing.T) {
	now := time.Date(2025, time.November, 10, 9, 0, 0, 0, time.UTC)
	start, end := QueryWindow(now, 0, 7*24*time.Hour)
	assert.Equal(t, now.Add(time.Minute), start)
	assert.Equal(t, now.Add(7*24*time.Hour), end)
	assert.True(t, start.After(now))

	start, end = QueryWindow(now, 5*time.Minute, time.Minute)
	assert.True(t, end.After(start))
}

type fakeSource struct {
	slots      []models.TimeSlot
	err        error
	start, end time.Time
}

func (f *fakeSource) GetSlots(ctx context.Context, eventRef string, start, end time.Time) ([]models.TimeSlot, error) {
	f.start, f.end = start, end
	return f.slots, f.err
}

func TestPicker(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, time.November, 28, 9, 0, 0, 0, loc)
	src := &fakeSource{slots: []models.TimeSlot{
		{Start: time.Date(2025, time.December, 2, 16, 0, 0, 0, loc), SchedulingURL: "https://calendly.com/acme/intro"},
		{Start: time.Date(2025, time.December, 2, 14, 30, 0, 0, loc), SchedulingURL: "https://calendly.com/acme/intro"},
	}}
	booking := models.BookingAttachment{EventRef: "evt-1"}
	p, err := LoadPicker(context.Background(), src, booking, now, Window{LookAhead: 7 * 24 * time.Hour}, loc)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), src.start)
	assert.Equal(t, time.December, p.Month().Month(), "opens on the month of the first slot")

	_, err = p.BookingURL()
	assert.Error(t, err)

	assert.Error(t, p.SelectDate(time.Date(2025, time.December, 3, 0, 0, 0, 0, loc)))
	require.NoError(t, p.SelectDate(time.Date(2025, time.December, 2, 0, 0, 0, 0, loc)))
	assert.Equal(t, []string{"2:30 PM", "4:00 PM"}, p.Times())
	assert.Error(t, p.SelectTime("3:00 PM"))
	require.NoError(t, p.SelectTime("2:30 PM"))

	link, err := p.BookingURL()
	require.NoError(t, err)
	assert.Equal(t, "https://calendly.com/acme/2025-12-02T14:30:00+00:00", link)

	p.PrevMonth()
	assert.Equal(t, time.November, p.Month().Month())
}

func TestPickerMissingSchedulingContext(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, time.November, 3, 9, 0, 0, 0, loc)
	p := NewPicker(models.BookingAttachment{EventRef: "evt-1"}, []models.TimeSlot{
		{Start: time.Date(2025, time.November, 4, 10, 0, 0, 0, loc)},
	}, now, loc)
	require.NoError(t, p.SelectDate(time.Date(2025, time.November, 4, 0, 0, 0, 0, loc)))
	require.NoError(t, p.SelectTime("10:00 AM"))
	_, err := p.BookingURL()
	assert.ErrorIs(t, err, ErrMissingSchedulingContext)
}

func TestLoadPickerError(t *testing.T) {
	_, err := LoadPicker(context.Background(), &fakeSource{err: errors.New("401")}, models.BookingAttachment{EventRef: "x"}, time.Now(), Window{}, time.UTC)
	assert.Error(t, err)
}
