package domain

import (
	"strings"
	"time"
)

// Frequency is the spacing of the steps of a run.
type Frequency string

const (
	Daily   Frequency = "daily"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// ParseFrequency maps a configuration string to a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return Daily, nil
	case Daily, Monthly, Yearly:
		return f, nil
	default:
		return "", Configf("frequency", "unknown frequency %q", s)
	}
}

// TimeStep identifies one step of a run.
type TimeStep struct {
	Year   int
	Month  int
	Day    int
	Index  int
	IsLast bool
}

// Date returns the step date at midnight UTC.
func (s TimeStep) Date() time.Time {
	return time.Date(s.Year, time.Month(s.Month), s.Day, 0, 0, 0, 0, time.UTC)
}

// TimeSteps enumerates the steps of a date range lazily. Monthly steps fall on
// the last day of each month and yearly steps on 31 December. A TimeSteps
// value can be consumed once.
type TimeSteps struct {
	freq  Frequency
	next  time.Time
	count int
	pos   int
}

// NewTimeSteps builds the sequence of steps within [start, end].
func NewTimeSteps(start, end time.Time, freq Frequency) (*TimeSteps, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if end.Before(start) {
		return nil, Configf("run", "end date %s is before start date %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	switch freq {
	case Daily, Monthly, Yearly:
	default:
		return nil, Configf("frequency", "unknown frequency %q", freq)
	}

	s := &TimeSteps{freq: freq, next: firstStep(start, freq)}
	for d := s.next; !d.After(end); d = nextStep(d, freq) {
		s.count++
	}
	if s.count == 0 {
		return nil, Configf("run", "no %s step between %s and %s",
			freq, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return s, nil
}

// Count returns the total number of steps.
func (s *TimeSteps) Count() int { return s.count }

// Frequency returns the step spacing.
func (s *TimeSteps) Frequency() Frequency { return s.freq }

// Next returns the next step and true, or false when the sequence is exhausted.
func (s *TimeSteps) Next() (TimeStep, bool) {
	if s.pos >= s.count {
		return TimeStep{}, false
	}
	d := s.next
	step := TimeStep{
		Year:   d.Year(),
		Month:  int(d.Month()),
		Day:    d.Day(),
		Index:  s.pos,
		IsLast: s.pos == s.count-1,
	}
	s.next = nextStep(d, s.freq)
	s.pos++
	return step, true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func endOfMonth(y int, m time.Month) time.Time {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC)
}

func firstStep(start time.Time, freq Frequency) time.Time {
	switch freq {
	case Monthly:
		return endOfMonth(start.Year(), start.Month())
	case Yearly:
		return time.Date(start.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
	default:
		return start
	}
}

func nextStep(d time.Time, freq Frequency) time.Time {
	switch freq {
	case Monthly:
		return endOfMonth(d.Year(), d.Month()+1)
	case Yearly:
		return time.Date(d.Year()+1, time.December, 31, 0, 0, 0, 0, time.UTC)
	default:
		return d.AddDate(0, 0, 1)
	}
}
