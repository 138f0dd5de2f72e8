package timezone

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"photoproc/internal/domain"
	apperrors "photoproc/internal/errors"
)

// Resolver maps photographer-supplied identifiers to UTC offsets. The city
// table is supplied at construction so tests can substitute their own.
type Resolver struct {
	cities map[string]City
}

func NewResolver(cities []City) *Resolver {
	byName := make(map[string]City, len(cities))
	for _, city := range cities {
		byName[strings.ToLower(city.Name)] = city
	}
	return &Resolver{cities: byName}
}

func NewDefaultResolver() *Resolver {
	return NewResolver(DefaultCities())
}

// Resolve maps a city name or literal offset string to an offset. A
// wrong default would corrupt every downstream timestamp, so an
// unresolvable identifier is an error, never UTC.
func (r *Resolver) Resolve(identifier string) (domain.TimezoneOffset, error) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return domain.TimezoneOffset{}, apperrors.New(apperrors.UnknownTimezone, "resolve", "", "empty timezone identifier")
	}

	if city, ok := r.cities[strings.ToLower(trimmed)]; ok {
		return domain.TimezoneOffset{
			Minutes: city.OffsetMinutes,
			Label:   city.Name,
			CityID:  city.ID,
		}, nil
	}

	mins, err := ParseOffset(trimmed)
	if err != nil {
		return domain.TimezoneOffset{}, apperrors.New(apperrors.UnknownTimezone, "resolve", "", trimmed)
	}
	return domain.TimezoneOffset{Minutes: mins, Label: trimmed}, nil
}

// Infer derives an offset from the delta between a camera-local timestamp
// and a trusted UTC reference for the same instant. Real-world timezones
// are multiples of 15 minutes, so the raw delta is rounded to the nearest
// quarter hour.
func (r *Resolver) Infer(cameraLocal, referenceUTC time.Time) (domain.TimezoneOffset, error) {
	delta := cameraLocal.Sub(referenceUTC)
	mins := int(delta.Round(15*time.Minute) / time.Minute)
	if !domain.ValidOffsetMinutes(mins) {
		return domain.TimezoneOffset{}, apperrors.New(apperrors.UnknownTimezone, "infer", "",
			fmt.Sprintf("implied offset %s outside -12:00..+14:00", domain.FormatOffset(mins)))
	}
	return domain.TimezoneOffset{Minutes: mins, Label: domain.FormatOffset(mins)}, nil
}

// ParseOffset parses a literal UTC offset such as "+02:00", "-0530" or
// "2:00" into minutes.
func ParseOffset(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty offset")
	}

	sign := 1
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		sign = -1
		s = s[1:]
	}

	var hoursPart, minsPart string
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		hoursPart, minsPart = s[:idx], s[idx+1:]
	} else if len(s) == 4 {
		hoursPart, minsPart = s[:2], s[2:]
	} else {
		return 0, fmt.Errorf("invalid offset format %q", s)
	}

	hours, err := strconv.Atoi(hoursPart)
	if err != nil {
		return 0, fmt.Errorf("invalid offset hours %q", s)
	}
	mins, err := strconv.Atoi(minsPart)
	if err != nil || mins > 59 {
		return 0, fmt.Errorf("invalid offset minutes %q", s)
	}

	total := sign * (hours*60 + mins)
	if !domain.ValidOffsetMinutes(total) {
		return 0, fmt.Errorf("offset %s outside -12:00..+14:00", domain.FormatOffset(total))
	}
	return total, nil
}
