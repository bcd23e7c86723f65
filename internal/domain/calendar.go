package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TimeUnits is the units attribute of the time coordinate of every dataset
// this module writes.
const TimeUnits = "days since 1901-01-01"

// Calendar is the CF calendar of the written time coordinate.
const Calendar = "standard"

// TimeEpoch is the reference instant of TimeUnits.
var TimeEpoch = time.Date(1901, 1, 1, 0, 0, 0, 0, time.UTC)

// EncodeTime converts t to fractional days since TimeEpoch.
func EncodeTime(t time.Time) float64 {
	secs := t.Unix() - TimeEpoch.Unix()
	return (float64(secs) + float64(t.Nanosecond())/1e9) / 86400
}

var refLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-1-2 15:4:5",
	"2006-1-2",
}

// DecodeTime converts a CF time value with units "<unit> since <reference>"
// into an instant. Supported units are days, hours, minutes and seconds.
func DecodeTime(value float64, units string) (time.Time, error) {
	unit, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return time.Time{}, fmt.Errorf("unsupported time units %q", units)
	}

	var scale time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "days", "day", "d":
		scale = 24 * time.Hour
	case "hours", "hour", "h":
		scale = time.Hour
	case "minutes", "minute", "min":
		scale = time.Minute
	case "seconds", "second", "s":
		scale = time.Second
	default:
		return time.Time{}, fmt.Errorf("unsupported time unit %q", unit)
	}

	epoch, err := parseReference(ref)
	if err != nil {
		return time.Time{}, err
	}

	// Round to the second so float noise never shifts a day boundary.
	secs := math.Round(value * scale.Seconds())
	return time.Unix(epoch.Unix()+int64(secs), 0).UTC(), nil
}

func parseReference(ref string) (time.Time, error) {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimSuffix(ref, "Z")
	ref = strings.TrimSuffix(ref, " UTC")
	ref = strings.TrimSuffix(ref, " +00:00")
	ref = strings.TrimSuffix(ref, ".0")
	for _, layout := range refLayouts {
		if t, err := time.ParseInLocation(layout, ref, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time reference %q", ref)
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
