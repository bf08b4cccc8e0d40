// Package nnduration provides JSON-friendly non-negative duration types.
// Each type accepts either an integer in its unit or a string recognized by time.ParseDuration.
package nnduration

import (
	"reflect"
	"strconv"
	"strings"
	"time"
)

func parse(input string, unit time.Duration) (value uint64, e error) {
	if d, e := time.ParseDuration(input); e == nil {
		if d < 0 {
			return 0, strconv.ErrRange
		}
		return uint64(d / unit), nil
	}
	return strconv.ParseUint(input, 10, 64)
}

func parseJSON(ptr any, p []byte, unit time.Duration) error {
	value, e := parse(strings.Trim(string(p), `"`), unit)
	if e != nil {
		return e
	}
	reflect.ValueOf(ptr).Elem().SetUint(value)
	return nil
}

func durationOr(value uint64, dflt uint64, unit time.Duration) time.Duration {
	if value == 0 {
		value = dflt
	}
	return time.Duration(value) * unit
}

// Milliseconds is a duration in milliseconds.
type Milliseconds uint64

// Duration converts to time.Duration.
func (d Milliseconds) Duration() time.Duration {
	return time.Duration(d) * time.Millisecond
}

// DurationOr converts to time.Duration, substituting dflt for zero.
func (d Milliseconds) DurationOr(dflt Milliseconds) time.Duration {
	return durationOr(uint64(d), uint64(dflt), time.Millisecond)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Milliseconds) UnmarshalJSON(p []byte) (e error) {
	return parseJSON(d, p, time.Millisecond)
}

// Microseconds is a duration in microseconds.
type Microseconds uint64

// Duration converts to time.Duration.
func (d Microseconds) Duration() time.Duration {
	return time.Duration(d) * time.Microsecond
}

// DurationOr converts to time.Duration, substituting dflt for zero.
func (d Microseconds) DurationOr(dflt Microseconds) time.Duration {
	return durationOr(uint64(d), uint64(dflt), time.Microsecond)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Microseconds) UnmarshalJSON(p []byte) (e error) {
	return parseJSON(d, p, time.Microsecond)
}

// Nanoseconds is a duration in nanoseconds.
type Nanoseconds uint64

// Duration converts to time.Duration.
func (d Nanoseconds) Duration() time.Duration {
	return time.Duration(d) * time.Nanosecond
}

// DurationOr converts to time.Duration, substituting dflt for zero.
func (d Nanoseconds) DurationOr(dflt Nanoseconds) time.Duration {
	return durationOr(uint64(d), uint64(dflt), time.Nanosecond)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Nanoseconds) UnmarshalJSON(p []byte) (e error) {
	return parseJSON(d, p, time.Nanosecond)
}
