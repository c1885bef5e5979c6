// Package age implements the "age in seconds" dialogue: a short wizard that
// collects a birth date and time one message at a time.
package age

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Step string

const (
	StepYear       Step = "year"
	StepMonth      Step = "month"
	StepDay        Step = "day"
	StepTimeChoice Step = "time_choice"
	StepHour       Step = "hour"
	StepMinute     Step = "minute"
)

// Keyboard names the reply keyboard that should accompany a reply.
type Keyboard int

const (
	KeyboardNone Keyboard = iota
	KeyboardMenu
	KeyboardMonths
	KeyboardTimeChoice
)

const (
	ChoiceYes  = "Yes 🕐"
	ChoiceSkip = "Skip ⏭️"

	maxAgeYears = 200
)

// Months are the labels of the month keyboard, in calendar order.
var Months = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

const (
	PromptYear       = "📅 Enter your birth year (e.g. 1990):"
	promptMonth      = "✅ Year saved. Now choose month:"
	promptMonthRetry = "❌ Please choose month using buttons:"
	promptDay        = "📆 Enter day of month (1–31):"
	promptTimeChoice = "⏰ Do you know the exact time you were born?"
	promptHour       = "⌚ Enter hour (0–23):"
	promptMinute     = "🕐 Enter minute (0–59):"
	msgFutureDate    = "❌ That’s a future date! Try again with correct values."
)

var (
	errNotNumber  = errors.New("❌ Please enter a number.")
	errFutureYear = errors.New("❌ Year is in the future.")
	errTooOld     = errors.New("❌ That’s over 200 years ago!")
	errBadDay     = errors.New("❌ That date doesn’t exist in that month.")
	errBadHour    = errors.New("❌ Hour must be 0–23.")
	errBadMinute  = errors.New("❌ Minute must be 0–59.")
)

// Session is the progress of one chat through the wizard.
type Session struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Step   Step
}

type Reply struct {
	Text     string
	Keyboard Keyboard
	// Done reports that the wizard finished and the session can be dropped.
	Done bool
}

// NewSession returns a session waiting for the birth year.
func NewSession() *Session {
	return &Session{Step: StepYear}
}

// Advance consumes one message and moves the session forward. Invalid input
// leaves the session on the same step. now is the current wall-clock time in
// the bot's timezone.
func (s *Session) Advance(input string, now time.Time) Reply {
	input = strings.TrimSpace(input)

	switch s.Step {
	case StepYear:
		year, err := parseNumber(input)
		if err == nil {
			err = validateYear(year, now.Year())
		}
		if err != nil {
			return retry(err)
		}
		s.Year = year
		s.Step = StepMonth
		return Reply{Text: promptMonth, Keyboard: KeyboardMonths}

	case StepMonth:
		month, ok := MonthFromName(input)
		if !ok {
			return Reply{Text: promptMonthRetry, Keyboard: KeyboardMonths}
		}
		s.Month = month
		s.Step = StepDay
		return Reply{Text: promptDay}

	case StepDay:
		day, err := parseNumber(input)
		if err == nil && (day < 1 || day > DaysIn(s.Year, time.Month(s.Month))) {
			err = errBadDay
		}
		if err != nil {
			return retry(err)
		}
		s.Day = day
		s.Step = StepTimeChoice
		return Reply{Text: promptTimeChoice, Keyboard: KeyboardTimeChoice}

	case StepTimeChoice:
		switch input {
		case ChoiceYes:
			s.Step = StepHour
			return Reply{Text: promptHour}
		case ChoiceSkip:
			s.Hour, s.Minute = 0, 0
			return s.finish(now)
		default:
			return Reply{Text: promptTimeChoice, Keyboard: KeyboardTimeChoice}
		}

	case StepHour:
		hour, err := parseNumber(input)
		if err == nil && (hour < 0 || hour > 23) {
			err = errBadHour
		}
		if err != nil {
			return retry(err)
		}
		s.Hour = hour
		s.Step = StepMinute
		return Reply{Text: promptMinute}

	case StepMinute:
		minute, err := parseNumber(input)
		if err == nil && (minute < 0 || minute > 59) {
			err = errBadMinute
		}
		if err != nil {
			return retry(err)
		}
		s.Minute = minute
		return s.finish(now)
	}

	// Unknown step, e.g. a row written by a newer build. Start over.
	*s = *NewSession()
	return Reply{Text: PromptYear}
}

func (s *Session) finish(now time.Time) Reply {
	birth := time.Date(s.Year, time.Month(s.Month), s.Day, s.Hour, s.Minute, 0, 0, time.UTC)
	res, err := Calculate(birth, wallClock(now))
	if err != nil {
		return Reply{Text: msgFutureDate, Keyboard: KeyboardMenu, Done: true}
	}

	text := fmt.Sprintf("🎉 You were born on %04d-%02d-%02d %02d:%02d\nYou are %s seconds old! 🕓\n(≈ %d years, %d days and %d hours)",
		s.Year, s.Month, s.Day, s.Hour, s.Minute, groupDigits(res.Seconds), res.Years, res.Days, res.Hours)
	return Reply{Text: text, Keyboard: KeyboardMenu, Done: true}
}

// MonthFromName finds the first English month abbreviation contained in text.
func MonthFromName(text string) (int, bool) {
	t := strings.ToLower(text)
	for i, name := range Months {
		if strings.Contains(t, strings.ToLower(name)) {
			return i + 1, true
		}
	}
	return 0, false
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func validateYear(year, currentYear int) error {
	if year > currentYear {
		return errFutureYear
	}
	if year < currentYear-maxAgeYears {
		return errTooOld
	}
	return nil
}

func parseNumber(input string) (int, error) {
	n, err := strconv.Atoi(input)
	if err != nil {
		return 0, errNotNumber
	}
	return n, nil
}

func retry(err error) Reply {
	return Reply{Text: err.Error() + "\nPlease try again:"}
}
