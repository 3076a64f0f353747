// Package stampfmt renders timestamps for cache keys.
//
// Every entity type has one [FormatSpec]. The same instant formatted with the
// same spec always produces the same string, independent of the local time
// zone.
package stampfmt

import (
	"fmt"
	"strconv"
	"time"
)

// Precision selects how much of an instant ends up in a key.
type Precision string

const (
	// Seconds renders whole Unix seconds, e.g. "1704067200".
	Seconds Precision = "seconds"
	// Usec renders YYYYMMDDhhmmss followed by 6 fractional digits.
	Usec Precision = "usec"
	// Nsec renders YYYYMMDDhhmmss followed by 9 fractional digits.
	Nsec Precision = "nsec"
	// Number renders YYYYMMDDhhmmss without any fractional part.
	Number Precision = "number"
)

const numberLayout = "20060102150405"

// DefaultPrecision is used for types without an explicit spec.
const DefaultPrecision = Nsec

// FormatSpec is the per-type formatting configuration.
type FormatSpec struct {
	Precision Precision
}

// Spec is shorthand for FormatSpec{Precision: p}.
func Spec(p Precision) FormatSpec {
	return FormatSpec{Precision: p}
}

// ParsePrecision validates a precision name as used in configuration files.
func ParsePrecision(s string) (Precision, error) {
	switch p := Precision(s); p {
	case Seconds, Usec, Nsec, Number:
		return p, nil
	case "":
		return DefaultPrecision, nil
	default:
		return "", fmt.Errorf("unknown timestamp precision %q", s)
	}
}

// Format renders t in UTC according to spec. A zero Precision means
// DefaultPrecision.
func Format(t time.Time, spec FormatSpec) string {
	t = t.UTC()
	switch spec.Precision {
	case Seconds:
		return strconv.FormatInt(t.Unix(), 10)
	case Usec:
		return t.Format(numberLayout) + fmt.Sprintf("%06d", t.Nanosecond()/int(time.Microsecond))
	case Number:
		return t.Format(numberLayout)
	case Nsec, "":
		return t.Format(numberLayout) + fmt.Sprintf("%09d", t.Nanosecond())
	default:
		panic(fmt.Sprintf("stampfmt: unsupported precision %q", spec.Precision))
	}
}
