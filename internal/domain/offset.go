package domain

import (
	"fmt"
	"time"
)

// Plausible UTC offsets span -12:00 to +14:00.
const (
	MinOffsetMinutes = -12 * 60
	MaxOffsetMinutes = 14 * 60
)

// TimezoneOffset is a resolved UTC offset. Label is the identifier it was
// resolved from (city name or literal offset); CityID is the exiftool
// TimeZoneCity code when the offset came from the city table, 0 otherwise.
type TimezoneOffset struct {
	Minutes int
	Label   string
	CityID  int
}

func (o TimezoneOffset) String() string {
	return FormatOffset(o.Minutes)
}

func (o TimezoneOffset) Duration() time.Duration {
	return time.Duration(o.Minutes) * time.Minute
}

// WithDST returns the offset advanced by one hour when dst is set.
func (o TimezoneOffset) WithDST(dst bool) TimezoneOffset {
	if !dst {
		return o
	}
	shifted := o
	shifted.Minutes += 60
	return shifted
}

func ValidOffsetMinutes(mins int) bool {
	return mins >= MinOffsetMinutes && mins <= MaxOffsetMinutes
}

func FormatOffset(mins int) string {
	sign := "+"
	if mins < 0 {
		sign = "-"
		mins = -mins
	}
	return fmt.Sprintf("%s%02d:%02d", sign, mins/60, mins%60)
}
