package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// now is swapped out in tests
var now = time.Now

var sinceUnits = map[string]time.Duration{
	"hour":  time.Hour,
	"hours": time.Hour,
	"day":   24 * time.Hour,
	"days":  24 * time.Hour,
	"week":  7 * 24 * time.Hour,
	"weeks": 7 * 24 * time.Hour,
}

var sinceLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ResolveSince resolves a lookback expression to a concrete timestamp.
// The raw expression is still handed to git verbatim (git understands
// approxidate natively); the resolved value is what the core uses for
// window math such as the shallow-fetch boundary check.
func ResolveSince(expr string) (time.Time, error) {
	expr = strings.TrimSpace(expr)

	for _, layout := range sinceLayouts {
		if t, err := time.Parse(layout, expr); err == nil {
			return t, nil
		}
	}

	// Relative form: "<n> <unit> ago", plus month/year approximations
	fields := strings.Fields(strings.ToLower(expr))
	if len(fields) == 3 && fields[2] == "ago" {
		n, err := strconv.Atoi(fields[0])
		if err != nil || n < 0 {
			return time.Time{}, fmt.Errorf("bad count in %q", expr)
		}
		if unit, ok := sinceUnits[fields[1]]; ok {
			return now().Add(-time.Duration(n) * unit), nil
		}
		switch fields[1] {
		case "month", "months":
			return now().AddDate(0, -n, 0), nil
		case "year", "years":
			return now().AddDate(-n, 0, 0), nil
		}
		return time.Time{}, fmt.Errorf("unknown unit in %q", expr)
	}

	return time.Time{}, fmt.Errorf("unrecognized date expression %q", expr)
}
