package billing

import (
	"time"
)

// =============================================================================
// CALENDAR - Business-local date arithmetic
// =============================================================================

// Calendar anchors date-only values to the business's fixed timezone.
// Date inputs are zoned, never treated as UTC instants.
type Calendar struct {
	Location *time.Location
	Now      func() time.Time
}

// NewCalendar returns a calendar for the named IANA zone.
func NewCalendar(zone string) (Calendar, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Calendar{}, err
	}
	return Calendar{Location: loc, Now: time.Now}, nil
}

func (c Calendar) loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// Today returns the current instant in the business location.
func (c Calendar) Today() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return now().In(c.loc())
}

// ParseDate parses a YYYY-MM-DD value as a local calendar date.
func (c Calendar) ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, c.loc())
}

// StartOfDay returns 00:00:00.000 of t's local calendar day.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	t = t.In(c.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc())
}

// EndOfDay returns 23:59:59.999 of t's local calendar day.
func (c Calendar) EndOfDay(t time.Time) time.Time {
	t = t.In(c.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), c.loc())
}

// Noon returns 12:00 of t's local calendar day. Check dates are stored at
// noon so reporting never slips across a date boundary.
func (c Calendar) Noon(t time.Time) time.Time {
	t = t.In(c.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, c.loc())
}

// =============================================================================
// WINDOWS
// =============================================================================

// Window is an inclusive [Start, End] instant range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window, both ends included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func (w Window) String() string {
	return "[" + w.Start.Format("2006-01-02") + ", " + w.End.Format("2006-01-02") + "]"
}

// StatementWindow normalizes a date window to [start 00:00, end 23:59:59.999].
func (c Calendar) StatementWindow(start, end time.Time) Window {
	return Window{Start: c.StartOfDay(start), End: c.EndOfDay(end)}
}

// LookbackStart returns the start of the 12-month history window that ends
// (exclusive) at issuedStart.
func LookbackStart(issuedStart time.Time) time.Time {
	return issuedStart.AddDate(0, -12, 0)
}

// CycleWindow returns the billing window ending on cycleDate in the month
// of today: from the day after last month's cycle date to this month's.
// A cycle date past the end of a short month bills on its last day.
func (c Calendar) CycleWindow(cycleDate int, today time.Time) Window {
	today = today.In(c.loc())
	year, month := today.Year(), today.Month()

	endDay := clampDay(year, month, cycleDate)
	end := time.Date(year, month, endDay, 0, 0, 0, 0, c.loc())

	prevYear, prevMonth := addMonths(year, month, -1)
	prevDay := clampDay(prevYear, prevMonth, cycleDate)
	start := time.Date(prevYear, prevMonth, prevDay, 0, 0, 0, 0, c.loc()).AddDate(0, 0, 1)

	return c.StatementWindow(start, end)
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsLastDayOfMonth reports whether t is the final day of its month.
func IsLastDayOfMonth(t time.Time) bool {
	return t.Day() == DaysInMonth(t.Year(), t.Month())
}

func clampDay(year int, month time.Month, day int) int {
	if last := DaysInMonth(year, month); day > last {
		return last
	}
	if day < 1 {
		return 1
	}
	return day
}

func addMonths(year int, month time.Month, n int) (int, time.Month) {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return t.Year(), t.Month()
}
