package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIn(t *testing.T) {
	t.Parallel()

	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	cases := []struct {
		in   string
		loc  *time.Location
		want string
	}{
		{"2025-06-09", time.UTC, "2025-06-09"},
		{" 2025-06-09 ", time.UTC, "2025-06-09"},
		{"6/9/2025", time.UTC, "2025-06-09"},
		{"12/31/2025", time.UTC, "2025-12-31"},
		{"20250609", time.UTC, "2025-06-09"},
		// Spreadsheet exports store midnight Chicago (CST) as 06:00Z.
		{"2025-01-26T06:00:00.000Z", chicago, "2025-01-26"},
		{"2025-01-26T03:00:00.000Z", chicago, "2025-01-25"},
		{"2025-01-26T08:00:00", chicago, "2025-01-26"},
	}
	for _, tc := range cases {
		got, err := ParseIn(tc.in, tc.loc)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got.String(), tc.in)
	}

	for _, bad := range []string{"", "2025-02-30", "13/1/2025", "June 9", "2025-13-01", "25-06-09"} {
		_, err := ParseIn(bad, time.UTC)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestDateArithmetic(t *testing.T) {
	t.Parallel()

	d := MustParse("2025-01-31")
	assert.Equal(t, "2025-02-28", d.AddMonths(1).String())
	assert.Equal(t, "2024-02-29", MustParse("2024-01-31").AddMonths(1).String())
	assert.Equal(t, "2025-12-31", d.AddMonths(11).String())
	assert.Equal(t, "2024-12-31", d.AddMonths(-1).String())
	assert.Equal(t, "2025-03-02", MustParse("2025-02-28").AddDays(2).String())

	// 2025-03-09 is a DST change in the US; calendar days are unaffected.
	assert.Equal(t, 1, MustParse("2025-03-08").DaysUntil(MustParse("2025-03-09")))
	assert.Equal(t, 365, MustParse("2025-01-01").DaysUntil(MustParse("2026-01-01")))
	assert.Equal(t, -3, MustParse("2025-06-09").DaysUntil(MustParse("2025-06-06")))
	assert.Equal(t, 13, MustParse("2024-12-15").MonthsUntil(MustParse("2026-01-01")))

	assert.Equal(t, 29, DaysInMonth(2024, time.February))
	assert.Equal(t, 28, DaysInMonth(2100, time.February))
}

func TestDateOrdering(t *testing.T) {
	t.Parallel()

	a, b := MustParse("2025-06-09"), MustParse("2025-06-10")
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, 0, a.Compare(MustParse("2025-06-09")))
	assert.True(t, MustParse("2024-12-31").Before(MustParse("2025-01-01")))
	assert.True(t, Date{}.IsZero())
}

func TestWeekAndMonthStart(t *testing.T) {
	t.Parallel()

	mon := MustParse("2025-06-09")
	assert.Equal(t, time.Monday, mon.Weekday())
	assert.Equal(t, "2025-06-08", mon.StartOfWeek(time.Sunday).String())
	assert.Equal(t, "2025-06-09", mon.StartOfWeek(time.Monday).String())
	assert.Equal(t, "2025-06-09", MustParse("2025-06-15").StartOfWeek(time.Monday).String())
	assert.Equal(t, "2025-06-01", mon.StartOfMonth().String())
}

func TestTodayAndAt(t *testing.T) {
	t.Parallel()

	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	now := time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-09", Today(now, chicago).String())
	assert.Equal(t, "2025-06-10", Today(now, time.UTC).String())

	at := MustParse("2025-06-09").At(Clock{Hour: 18, Minute: 30}, chicago)
	assert.Equal(t, time.Date(2025, 6, 9, 23, 30, 0, 0, time.UTC), at.UTC())
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	cases := map[string]Clock{
		"09:00":    {9, 0},
		"9:05":     {9, 5},
		"17:30:00": {17, 30},
		"12:00 AM": {0, 0},
		"12:15 pm": {12, 15},
		"1:45 PM":  {13, 45},
		"11:59PM":  {23, 59},
	}
	for in, want := range cases {
		got, err := ParseClockIn(in, chicago)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	// Time-only spreadsheet cells arrive as timestamps on 1899-12-30.
	got, err := ParseClockIn("1899-12-30T15:00:00.000Z", chicago)
	require.NoError(t, err)
	assert.Equal(t, Clock{9, 0}, got)

	for _, bad := range []string{"", "25:00", "9", "13:00 PM", "0:30 AM", "09:60", "noon"} {
		_, err := ParseClockIn(bad, time.UTC)
		assert.ErrorIs(t, err, ErrInvalidClock, bad)
	}
}

func TestClockFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "9:00 AM", Clock{9, 0}.Format12h())
	assert.Equal(t, "12:00 PM", Clock{12, 0}.Format12h())
	assert.Equal(t, "12:30 AM", Clock{0, 30}.Format12h())
	assert.Equal(t, "6:05 PM", Clock{18, 5}.Format12h())
	assert.Equal(t, "07:05", Clock{7, 5}.String())
	assert.Equal(t, -1, Clock{9, 0}.Compare(Clock{9, 1}))
}

func TestTextMarshaling(t *testing.T) {
	t.Parallel()

	var d Date
	require.NoError(t, d.UnmarshalText([]byte("2025-06-09")))
	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2025-06-09", string(b))
	assert.Error(t, d.UnmarshalText([]byte("6/9/2025")))

	var c Clock
	require.NoError(t, c.UnmarshalText([]byte("2:30 PM")))
	assert.Equal(t, Clock{14, 30}, c)
}
