package util

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// NaiveLayout matches the zone-less timestamps found in drop files
// ("YYYY-MM-DDTHH:MM:SS").
const NaiveLayout = "2006-01-02T15:04:05"

// OffsetLayout always writes a numeric offset, +00:00 for UTC.
const OffsetLayout = "2006-01-02T15:04:05-07:00"

// ErrTimestampFormat marks a configured timestamp field whose value does not
// match NaiveLayout.
var ErrTimestampFormat = errors.New("timestamp does not match YYYY-MM-DDTHH:MM:SS")

// Localizer rewrites configured naive timestamp fields to ISO-8601 strings
// with the UTC offset of a named timezone.
// A Localizer with a nil location is disabled and leaves rows untouched.
type Localizer struct {
	loc    *time.Location
	fields []string
}

// NewLocalizer validates tzName once. An empty or unknown name returns a
// disabled Localizer and logs a warning; it is not an error.
func NewLocalizer(tzName string, fields []string, logger *slog.Logger) *Localizer {
	l := &Localizer{fields: fields}
	if tzName == "" {
		if len(fields) > 0 {
			logger.Warn("No timezone configured, timestamp fields will not be rewritten.", slog.Any("fields", fields))
		}
		return l
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil || tzName == "Local" {
		logger.Warn("Invalid timezone, timestamp fields will not be rewritten.",
			slog.String("timezone", tzName), slog.Any("error", err))
		return l
	}
	l.loc = loc
	return l
}

// Enabled reports whether the timezone was valid and fields are configured.
func (l *Localizer) Enabled() bool {
	return l != nil && l.loc != nil && len(l.fields) > 0
}

// Location returns the validated timezone, or nil when disabled.
func (l *Localizer) Location() *time.Location {
	if l == nil {
		return nil
	}
	return l.loc
}

// Localize rewrites the configured fields of row in place and returns how
// many were rewritten. Values that fail to parse are left as they are; each
// failure is reported in the joined error wrapping ErrTimestampFormat.
func (l *Localizer) Localize(row Row) (int, error) {
	if !l.Enabled() {
		return 0, nil
	}
	rewritten := 0
	var errs error
	for _, field := range l.fields {
		val, ok := row[field]
		if !ok || val == "" {
			continue
		}
		out, err := LocalizeTimestamp(val, l.loc)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("field %q: %w", field, err))
			continue
		}
		row[field] = out
		rewritten++
	}
	return rewritten, errs
}

// LocalizeTimestamp parses a naive "YYYY-MM-DDTHH:MM:SS" value as wall time
// in loc and formats it with the zone's numeric offset,
// e.g. 2023-05-01T10:00:00-04:00.
func LocalizeTimestamp(s string, loc *time.Location) (string, error) {
	t, err := time.ParseInLocation(NaiveLayout, s, loc)
	if err != nil {
		return "", fmt.Errorf("%w: '%s'", ErrTimestampFormat, s)
	}
	return t.Format(OffsetLayout), nil
}
