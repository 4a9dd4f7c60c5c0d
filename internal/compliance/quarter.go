package compliance

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var quarterRe = regexp.MustCompile(`^(\d{4})-Q([1-4])$`)

// QuarterOf returns the quarter label of t, e.g. "2025-Q4". The label is
// taken in t's own location.
func QuarterOf(t time.Time) string {
	q := (int(t.Month()) + 2) / 3
	return fmt.Sprintf("%d-Q%d", t.Year(), q)
}

// ParseQuarter validates a quarter label and returns its year and number.
func ParseQuarter(label string) (year, quarter int, err error) {
	m := quarterRe.FindStringSubmatch(label)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid quarter %q: want YYYY-Qn", label)
	}
	year, _ = strconv.Atoi(m[1])
	quarter, _ = strconv.Atoi(m[2])
	return year, quarter, nil
}

// QuarterStart returns the first instant of the quarter in loc.
func QuarterStart(label string, loc *time.Location) (time.Time, error) {
	year, q, err := ParseQuarter(label)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(year, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, loc), nil
}
