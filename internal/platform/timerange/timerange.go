// Package timerange parses command-line date bounds into half-open time
// intervals shared by gap detection and replay filtering.
package timerange

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/paysignal/internal/platform/errors"
)

const dateLayout = "2006-01-02"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Range is the half-open interval [Start, End). A zero bound is open.
type Range struct {
	Start time.Time
	End   time.Time
}

// HasStart reports whether the lower bound is set.
func (r Range) HasStart() bool { return !r.Start.IsZero() }

// HasEnd reports whether the upper bound is set.
func (r Range) HasEnd() bool { return !r.End.IsZero() }

// Bounded reports whether both bounds are set.
func (r Range) Bounded() bool { return r.HasStart() && r.HasEnd() }

// Contains reports whether ts falls inside the range.
func (r Range) Contains(ts time.Time) bool {
	if r.HasStart() && ts.Before(r.Start) {
		return false
	}
	if r.HasEnd() && !ts.Before(r.End) {
		return false
	}
	return true
}

// Validate rejects ranges whose start is not before their end.
func (r Range) Validate() error {
	if r.HasStart() && r.HasEnd() && !r.Start.Before(r.End) {
		return apperrors.WithMetadata(
			apperrors.CodeInvalidTimeRange,
			fmt.Sprintf("start %s must be before end %s", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339)),
			map[string]string{"start": r.Start.Format(time.RFC3339), "end": r.End.Format(time.RFC3339)},
		)
	}
	return nil
}

// String renders the range for progress output.
func (r Range) String() string {
	start, end := "-inf", "+inf"
	if r.HasStart() {
		start = r.Start.Format(time.RFC3339)
	}
	if r.HasEnd() {
		end = r.End.Format(time.RFC3339)
	}
	return "[" + start + ", " + end + ")"
}

// Parse builds a range from optional textual bounds. A date-only end bound
// covers the whole day, so "2024-01-01".."2024-01-02" spans two days.
func Parse(start, end string) (Range, error) {
	var r Range
	var err error
	if r.Start, err = parseBound(start, false); err != nil {
		return Range{}, err
	}
	if r.End, err = parseBound(end, true); err != nil {
		return Range{}, err
	}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// ParseBounded is Parse with both bounds required.
func ParseBounded(start, end string) (Range, error) {
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return Range{}, apperrors.New(apperrors.CodeInvalidTimeRange, "start and end dates are required")
	}
	return Parse(start, end)
}

func parseBound(value string, upper bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if day, err := time.ParseInLocation(dateLayout, value, time.UTC); err == nil {
		if upper {
			return day.AddDate(0, 0, 1), nil
		}
		return day, nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, apperrors.WithMetadata(
		apperrors.CodeInvalidTimeRange,
		fmt.Sprintf("malformed date %q (want YYYY-MM-DD or RFC 3339)", value),
		map[string]string{"value": value},
	)
}
