package calendar

import (
	"fmt"
	"time"
)

// View names a calendar layout.
type View string

const (
	ViewDay   View = "day"
	ViewWeek  View = "week"
	ViewMonth View = "month"
)

// Window is an inclusive range of days.
type Window struct {
	From Date `json:"date_from"`
	To   Date `json:"date_to"`
}

// Contains reports whether d falls inside the window.
func (w Window) Contains(d Date) bool {
	return !d.Before(w.From) && !d.After(w.To)
}

// Days returns every date in the window in order.
func (w Window) Days() []Date {
	var out []Date
	for d := w.From; !d.After(w.To); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// StartOfWeek returns the Monday on or before d.
func StartOfWeek(d Date) Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

// EndOfWeek returns the Sunday on or after d.
func EndOfWeek(d Date) Date {
	return StartOfWeek(d).AddDays(6)
}

func DayWindow(d Date) Window {
	return Window{From: d, To: d}
}

// WeekWindow spans Monday through Sunday of d's week.
func WeekWindow(d Date) Window {
	return Window{From: StartOfWeek(d), To: EndOfWeek(d)}
}

// MonthWindow covers d's month padded out to whole Monday-start weeks, the
// grid a month view renders.
func MonthWindow(d Date) Window {
	first := Date{Year: d.Year, Month: d.Month, Day: 1}
	last := DateOf(first.In(time.UTC).AddDate(0, 1, -1))
	return Window{From: StartOfWeek(first), To: EndOfWeek(last)}
}

// CalendarMonth covers exactly the days of d's month, no padding.
func CalendarMonth(d Date) Window {
	first := Date{Year: d.Year, Month: d.Month, Day: 1}
	return Window{From: first, To: DateOf(first.In(time.UTC).AddDate(0, 1, -1))}
}

// ViewWindow resolves a view name and anchor date to a window.
func ViewWindow(view View, anchor Date) (Window, error) {
	switch view {
	case ViewDay:
		return DayWindow(anchor), nil
	case ViewWeek:
		return WeekWindow(anchor), nil
	case ViewMonth:
		return MonthWindow(anchor), nil
	}
	return Window{}, fmt.Errorf("invalid view %q: must be day, week or month", view)
}

// BusinessHours describes the bookable part of a day.
type BusinessHours struct {
	Open     Clock
	LastHour int
	Step     time.Duration
	Length   time.Duration
}

// DefaultBusinessHours is 07:00 until the 20:xx hour in 15 minute steps.
var DefaultBusinessHours = BusinessHours{
	Open:     NewClock(7, 0, 0),
	LastHour: 20,
	Step:     15 * time.Minute,
	Length:   time.Hour,
}

// EndOptions lists every selectable slot, which is also the set of valid end
// times.
func (b BusinessHours) EndOptions() []Clock {
	var out []Clock
	limit := NewClock(b.LastHour, 59, 59)
	for c := b.Open; !c.After(limit); {
		out = append(out, c)
		next, ok := c.Add(b.Step)
		if !ok {
			break
		}
		c = next
	}
	return out
}

// StartOptions drops the final hour of slots so that a start always leaves
// room for an appointment.
func (b BusinessHours) StartOptions() []Clock {
	all := b.EndOptions()
	perHour := int(time.Hour / b.Step)
	if len(all) <= perHour {
		return nil
	}
	return all[:len(all)-perHour]
}

// DefaultEnd proposes an end time one appointment length after start. It
// reports false when that would run past the last bookable hour.
func (b BusinessHours) DefaultEnd(start Clock) (Clock, bool) {
	end, ok := start.Add(b.Length)
	if !ok || end.Hour() > b.LastHour {
		return Clock{}, false
	}
	return end, true
}
