package age

import (
	"errors"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ErrFutureBirth = errors.New("birth time is in the future")

// Result is the age expressed as total seconds plus a calendar breakdown.
type Result struct {
	Seconds int64
	Years   int
	Days    int
	Hours   int
}

// Calculate measures the time between birth and now on wall-clock values:
// both times are treated as zone-less so DST shifts do not skew the result.
// A year is complete once the month, day and clock time of birth come
// round again, so a Feb 29 birthday completes its year on Mar 1 in common
// years. The remainder is measured from the anniversary, which falls on
// Feb 28 in that case.
func Calculate(birth, now time.Time) (Result, error) {
	birth, now = wallClock(birth), wallClock(now)
	if birth.After(now) {
		return Result{}, ErrFutureBirth
	}

	years := now.Year() - birth.Year()
	if beforeInYear(now, birth) {
		years--
	}
	anchor := addYears(birth, years)

	days := int(now.Sub(anchor) / (24 * time.Hour))
	anchor = anchor.AddDate(0, 0, days)
	hours := int(now.Sub(anchor) / time.Hour)

	return Result{
		Seconds: int64(now.Sub(birth) / time.Second),
		Years:   years,
		Days:    days,
		Hours:   hours,
	}, nil
}

// addYears shifts t by n years, clamping Feb 29 to Feb 28 when the target
// year is not a leap year.
func addYears(t time.Time, n int) time.Time {
	year := t.Year() + n
	day := t.Day()
	if last := DaysIn(year, t.Month()); day > last {
		day = last
	}
	return time.Date(year, t.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// beforeInYear reports whether a falls earlier in its year than b does,
// comparing month, day and clock time.
func beforeInYear(a, b time.Time) bool {
	if a.Month() != b.Month() {
		return a.Month() < b.Month()
	}
	if a.Day() != b.Day() {
		return a.Day() < b.Day()
	}
	ac := time.Date(2000, 1, 1, a.Hour(), a.Minute(), a.Second(), a.Nanosecond(), time.UTC)
	bc := time.Date(2000, 1, 1, b.Hour(), b.Minute(), b.Second(), b.Nanosecond(), time.UTC)
	return ac.Before(bc)
}

func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

var printer = message.NewPrinter(language.English)

// groupDigits renders n with comma thousands separators.
func groupDigits(n int64) string {
	return printer.Sprintf("%d", n)
}
