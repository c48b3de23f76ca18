// Package timeutil provides time helpers for the Asia/Manila campus time zone
// (UTC+8, no DST): calendar dates, wall-clock times for work-hour logs,
// overnight-aware spans and payroll periods.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// ManilaTZ is the campus time zone. The Philippines does not observe DST.
var ManilaTZ = time.FixedZone("Asia/Manila", 8*60*60)

// Layouts used across the API and persistence layer.
const (
	FormatDate     = "2006-01-02"
	FormatClock    = "15:04"
	FormatDateTime = "2006-01-02 15:04"
)

// Now returns the current time in Manila.
func Now() time.Time {
	return time.Now().In(ManilaTZ)
}

// ToManila converts a time to the Manila time zone.
func ToManila(t time.Time) time.Time {
	return t.In(ManilaTZ)
}

// Date creates midnight of the given calendar day in Manila.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, ManilaTZ)
}

// DateTime creates a Manila time with the given date and wall clock.
func DateTime(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, ManilaTZ)
}

// StartOfDay returns 00:00 of t's calendar day in Manila.
func StartOfDay(t time.Time) time.Time {
	m := ToManila(t)
	return time.Date(m.Year(), m.Month(), m.Day(), 0, 0, 0, 0, ManilaTZ)
}

// EndOfDay returns the last instant of t's calendar day in Manila.
func EndOfDay(t time.Time) time.Time {
	m := ToManila(t)
	return time.Date(m.Year(), m.Month(), m.Day(), 23, 59, 59, 999999999, ManilaTZ)
}

// StartOfMonth returns the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	m := ToManila(t)
	return time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, ManilaTZ)
}

// EndOfMonth returns the last day (at midnight) of t's month.
func EndOfMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, -1)
}

// IsSameDay reports whether both times fall on the same Manila calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	a, b := ToManila(t1), ToManila(t2)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// WithinDays reports whether day falls in [start, end], comparing calendar days only.
func WithinDays(day, start, end time.Time) bool {
	d := StartOfDay(day)
	return !d.Before(StartOfDay(start)) && !d.After(StartOfDay(end))
}

// DaysBetween returns the absolute number of calendar days between two times.
func DaysBetween(t1, t2 time.Time) int {
	days := int(StartOfDay(t2).Sub(StartOfDay(t1)).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// MonthsBetween returns the number of whole months elapsed from `from` to `to`.
// It returns 0 when `to` is before `from`.
func MonthsBetween(from, to time.Time) int {
	f, t := ToManila(from), ToManila(to)
	if t.Before(f) {
		return 0
	}
	months := (t.Year()-f.Year())*12 + int(t.Month()) - int(f.Month())
	if t.Day() < f.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// AbsDuration returns the absolute value of d.
func AbsDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// ══════════════════════════════════════════════════════════════════════════════
// WALL CLOCK
// ══════════════════════════════════════════════════════════════════════════════

// ClockTime is a wall-clock time of day, stored as minutes after midnight.
type ClockTime int

// MinutesPerDay is the number of minutes in a calendar day.
const MinutesPerDay = 24 * 60

// Clock builds a ClockTime from hours and minutes.
func Clock(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClock parses "HH:MM" or "HH:MM:SS" (seconds are dropped).
func ParseClock(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	layout := FormatClock
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("timeutil: invalid clock time %q: %w", s, err)
	}
	return Clock(t.Hour(), t.Minute()), nil
}

// IsValid reports whether c is within a single day.
func (c ClockTime) IsValid() bool {
	return c >= 0 && c < MinutesPerDay
}

// Hour returns the hour component.
func (c ClockTime) Hour() int { return int(c) / 60 }

// Minute returns the minute component.
func (c ClockTime) Minute() int { return int(c) % 60 }

// String formats c as HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// SpanMinutes returns the minutes from in to out. When out is earlier than in
// the span is taken to cross midnight.
func SpanMinutes(in, out ClockTime) int {
	span := int(out) - int(in)
	if span < 0 {
		span += MinutesPerDay
	}
	return span
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYROLL PERIODS
// ══════════════════════════════════════════════════════════════════════════════

// SemiMonthlyPeriod returns the payroll half-month containing t:
// the 1st–15th or the 16th–end of month.
func SemiMonthlyPeriod(t time.Time) (start, end time.Time) {
	m := ToManila(t)
	if m.Day() <= 15 {
		start = time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, ManilaTZ)
		end = time.Date(m.Year(), m.Month(), 15, 0, 0, 0, 0, ManilaTZ)
		return start, end
	}
	start = time.Date(m.Year(), m.Month(), 16, 0, 0, 0, 0, ManilaTZ)
	return start, EndOfMonth(m)
}

// PreviousSemiMonthlyPeriod returns the payroll half-month before the one containing t.
func PreviousSemiMonthlyPeriod(t time.Time) (start, end time.Time) {
	curStart, _ := SemiMonthlyPeriod(t)
	return SemiMonthlyPeriod(curStart.AddDate(0, 0, -1))
}

// FormatDateStr formats t as YYYY-MM-DD in Manila.
func FormatDateStr(t time.Time) string {
	return ToManila(t).Format(FormatDate)
}

// ParseDate parses YYYY-MM-DD as a Manila calendar day.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, strings.TrimSpace(value), ManilaTZ)
}
