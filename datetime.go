package goxq

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itchyny/timefmt-go"
)

const (
	dateTimeFormat = "%Y-%m-%dT%H:%M:%S"
	dateFormat     = "%Y-%m-%d"
)

// DateTime is an xs:dateTime or xs:date value. The timezone is optional;
// values without one take the implicit timezone when compared.
type DateTime struct {
	t    time.Time
	tz   bool
	date bool
}

// NewDateTime returns an xs:dateTime with the timezone of t.
func NewDateTime(t time.Time) DateTime {
	return DateTime{t: t, tz: true}
}

// ParseDateTime parses the lexical form of an xs:dateTime.
func ParseDateTime(s string) (DateTime, error) {
	return parseDateTime(s, false)
}

// ParseDate parses the lexical form of an xs:date.
func ParseDate(s string) (DateTime, error) {
	return parseDateTime(s, true)
}

func parseDateTime(s string, date bool) (DateTime, error) {
	typ := "xs:dateTime"
	if date {
		typ = "xs:date"
	}
	invalid := func() error {
		return &Error{Code: "FORG0001", Message: fmt.Sprintf("invalid lexical value for %s: %q", typ, s)}
	}
	main, loc, tz, err := splitTimezone(strings.TrimSpace(s))
	if err != nil {
		return DateTime{}, invalid()
	}
	var nanos int
	format := dateFormat
	if !date {
		format = dateTimeFormat
		if i := strings.IndexByte(main, '.'); i >= 0 {
			frac := main[i+1:]
			if frac == "" || len(frac) > 9 {
				return DateTime{}, invalid()
			}
			n, err := strconv.Atoi(frac + strings.Repeat("0", 9-len(frac)))
			if err != nil {
				return DateTime{}, invalid()
			}
			main, nanos = main[:i], n
		}
	}
	t, err := timefmt.Parse(main, format)
	if err != nil {
		return DateTime{}, invalid()
	}
	if !tz {
		loc = time.UTC
	}
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), nanos, loc)
	return DateTime{t: t, tz: tz, date: date}, nil
}

func splitTimezone(s string) (string, *time.Location, bool, error) {
	if strings.HasSuffix(s, "Z") {
		return s[:len(s)-1], time.UTC, true, nil
	}
	if n := len(s); n > 6 && (s[n-6] == '+' || s[n-6] == '-') && s[n-3] == ':' {
		h, err := strconv.Atoi(s[n-5 : n-3])
		if err != nil {
			return "", nil, false, err
		}
		m, err := strconv.Atoi(s[n-2:])
		if err != nil {
			return "", nil, false, err
		}
		if h > 14 || m > 59 {
			return "", nil, false, fmt.Errorf("timezone out of range")
		}
		offset := (h*60 + m) * 60
		if s[n-6] == '-' {
			offset = -offset
		}
		return s[:n-6], time.FixedZone("", offset), true, nil
	}
	return s, nil, false, nil
}

// Type returns TypeDate or TypeDateTime.
func (v DateTime) Type() ItemType {
	if v.date {
		return TypeDate
	}
	return TypeDateTime
}

// Time returns the underlying time; values without a timezone are in UTC.
func (v DateTime) Time() time.Time {
	return v.t
}

// HasTimezone reports whether the value carries an explicit timezone.
func (v DateTime) HasTimezone() bool {
	return v.tz
}

// StringValue returns the canonical lexical form.
func (v DateTime) StringValue() string {
	var sb strings.Builder
	if v.date {
		sb.WriteString(timefmt.Format(v.t, dateFormat))
	} else {
		sb.WriteString(timefmt.Format(v.t, dateTimeFormat))
		if ns := v.t.Nanosecond(); ns != 0 {
			sb.WriteByte('.')
			sb.WriteString(strings.TrimRight(fmt.Sprintf("%09d", ns), "0"))
		}
	}
	if v.tz {
		_, offset := v.t.Zone()
		if offset == 0 {
			sb.WriteByte('Z')
		} else {
			sign := byte('+')
			if offset < 0 {
				sign, offset = '-', -offset
			}
			sb.WriteByte(sign)
			fmt.Fprintf(&sb, "%02d:%02d", offset/3600, offset%3600/60)
		}
	}
	return sb.String()
}

// instant returns the point in time, reading a value without a timezone in
// the implicit timezone.
func (v DateTime) instant(implicit *time.Location) time.Time {
	if v.tz || implicit == nil {
		return v.t
	}
	t := v.t
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), implicit)
}
