package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testZone = time.FixedZone("PT", -8*60*60)

func testCalendar(now time.Time) Calendar {
	return Calendar{Location: testZone, Now: func() time.Time { return now }}
}

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, testZone)
}

func TestStatementWindow_Normalizes(t *testing.T) {
	cal := testCalendar(time.Now())

	w := cal.StatementWindow(
		time.Date(2026, 2, 1, 15, 30, 0, 0, testZone),
		time.Date(2026, 2, 28, 8, 0, 0, 0, testZone),
	)

	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, testZone), w.Start)
	assert.Equal(t, time.Date(2026, 2, 28, 23, 59, 59, int(999*time.Millisecond), testZone), w.End)
}

func TestWindowContains_Boundaries(t *testing.T) {
	cal := testCalendar(time.Now())
	w := cal.StatementWindow(date(2026, 2, 1), date(2026, 2, 28))

	assert.False(t, w.Contains(w.Start.Add(-time.Millisecond)), "start - 1ms")
	assert.True(t, w.Contains(w.Start), "start")
	assert.True(t, w.Contains(w.End), "end")
	assert.False(t, w.Contains(w.End.Add(time.Millisecond)), "end + 1ms")
}

func TestParseDate_IsLocal(t *testing.T) {
	cal := testCalendar(time.Now())

	got, err := cal.ParseDate("2026-03-01")
	require.NoError(t, err)

	// Midnight local, not midnight UTC.
	assert.True(t, got.Equal(date(2026, 3, 1)))
	assert.Equal(t, 8, got.UTC().Hour())

	_, err = cal.ParseDate("03/01/2026")
	assert.Error(t, err)
}

func TestNoon(t *testing.T) {
	cal := testCalendar(time.Now())
	got := cal.Noon(time.Date(2026, 3, 1, 23, 30, 0, 0, testZone))
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, testZone), got)
}

func TestCycleWindow(t *testing.T) {
	tests := []struct {
		name      string
		cycleDate int
		today     time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "mid-month cycle",
			cycleDate: 15,
			today:     date(2026, 3, 15),
			wantStart: date(2026, 2, 16),
			wantEnd:   date(2026, 3, 15),
		},
		{
			name:      "crosses year boundary",
			cycleDate: 10,
			today:     date(2026, 1, 10),
			wantStart: date(2025, 12, 11),
			wantEnd:   date(2026, 1, 10),
		},
		{
			name:      "cycle 31 in February clamps to the 28th",
			cycleDate: 31,
			today:     date(2026, 2, 28),
			wantStart: date(2026, 2, 1),
			wantEnd:   date(2026, 2, 28),
		},
		{
			name:      "cycle 30 in March starts after clamped February",
			cycleDate: 30,
			today:     date(2026, 3, 30),
			wantStart: date(2026, 3, 1),
			wantEnd:   date(2026, 3, 30),
		},
		{
			name:      "leap year February",
			cycleDate: 31,
			today:     date(2028, 2, 29),
			wantStart: date(2028, 2, 1),
			wantEnd:   date(2028, 2, 29),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := testCalendar(tt.today)
			w := cal.CycleWindow(tt.cycleDate, tt.today)
			assert.Equal(t, tt.wantStart, w.Start)
			assert.Equal(t, cal.EndOfDay(tt.wantEnd), w.End)
		})
	}
}

func TestIsDue_EndOfMonth(t *testing.T) {
	// GIVEN: Feb 28 in a non-leap year is the last day of the month
	feb28 := date(2026, 2, 28)
	require.True(t, IsLastDayOfMonth(feb28))

	// THEN: statement days 28..31 are due, earlier days are not
	for day := 1; day <= 31; day++ {
		want := day >= 28
		assert.Equal(t, want, IsDue(day, feb28), "day %d", day)
	}
}

func TestIsDue_StatementDay31InFebruary(t *testing.T) {
	// Only the last day of February picks up statement day 31.
	for d := 1; d <= 27; d++ {
		assert.False(t, IsDue(31, date(2026, 2, d)), "2026-02-%02d", d)
	}
	assert.True(t, IsDue(31, date(2026, 2, 28)))

	// 2028 is a leap year: Feb 28 is an ordinary day, Feb 29 is the last.
	feb28, feb29 := date(2028, 2, 28), date(2028, 2, 29)
	require.False(t, IsLastDayOfMonth(feb28))
	require.True(t, IsLastDayOfMonth(feb29))
	for day := 1; day <= 31; day++ {
		assert.Equal(t, day == 28, IsDue(day, feb28), "2028-02-28 day %d", day)
		assert.Equal(t, day >= 29, IsDue(day, feb29), "2028-02-29 day %d", day)
	}
}

func TestIsDue_NormalDay(t *testing.T) {
	mar15 := date(2026, 3, 15)
	require.False(t, IsLastDayOfMonth(mar15))

	for day := 1; day <= 31; day++ {
		assert.Equal(t, day == 15, IsDue(day, mar15), "day %d", day)
	}
}

func TestLookbackStart(t *testing.T) {
	assert.Equal(t, date(2025, 3, 1), LookbackStart(date(2026, 3, 1)))
}

func TestNewCalendar(t *testing.T) {
	cal, err := NewCalendar("UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, cal.Location)

	_, err = NewCalendar("Not/AZone")
	assert.Error(t, err)
}
