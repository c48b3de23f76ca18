package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanMinutes(t *testing.T) {
	assert.Equal(t, 240, SpanMinutes(Clock(8, 0), Clock(12, 0)))
	assert.Equal(t, 240, SpanMinutes(Clock(22, 0), Clock(2, 0)))
	assert.Equal(t, 0, SpanMinutes(Clock(9, 30), Clock(9, 30)))
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("08:05")
	require.NoError(t, err)
	assert.Equal(t, Clock(8, 5), c)
	assert.Equal(t, "08:05", c.String())

	c, err = ParseClock("17:45:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(17, 45), c)

	_, err = ParseClock("25:00")
	assert.Error(t, err)
}

func TestMonthsBetween(t *testing.T) {
	from := Date(2025, time.January, 15)
	assert.Equal(t, 12, MonthsBetween(from, Date(2026, time.January, 15)))
	assert.Equal(t, 11, MonthsBetween(from, Date(2026, time.January, 14)))
	assert.Equal(t, 0, MonthsBetween(from, Date(2024, time.December, 1)))
}

func TestSemiMonthlyPeriod(t *testing.T) {
	start, end := SemiMonthlyPeriod(Date(2026, time.February, 10))
	assert.Equal(t, Date(2026, time.February, 1), start)
	assert.Equal(t, Date(2026, time.February, 15), end)

	start, end = SemiMonthlyPeriod(Date(2026, time.February, 20))
	assert.Equal(t, Date(2026, time.February, 16), start)
	assert.Equal(t, Date(2026, time.February, 28), end)

	start, end = PreviousSemiMonthlyPeriod(Date(2026, time.March, 3))
	assert.Equal(t, Date(2026, time.February, 16), start)
	assert.Equal(t, Date(2026, time.February, 28), end)
}

func TestWithinDays(t *testing.T) {
	start, end := Date(2026, time.March, 1), Date(2026, time.March, 15)
	assert.True(t, WithinDays(DateTime(2026, time.March, 15, 23, 0), start, end))
	assert.True(t, WithinDays(start, start, end))
	assert.False(t, WithinDays(Date(2026, time.March, 16), start, end))
}
