package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	day       = 24 * time.Hour
	monthDays = 30.4368
	yearDays  = 365.2425
)

// ParseTime reads durations in moderator shorthand: "30mi", "12h", "3d",
// "1w", "2mo", "1y". The amount may be fractional.
func ParseTime(s string) (time.Duration, bool) {
	lower := strings.ToLower(strings.TrimSpace(s))
	units := []struct {
		suffix string
		scale  float64
	}{
		{"mi", float64(time.Minute)},
		{"mo", monthDays * float64(day)},
		{"w", 7 * float64(day)},
		{"d", float64(day)},
		{"h", float64(time.Hour)},
		{"y", yearDays * float64(day)},
	}
	for _, unit := range units {
		if !strings.HasSuffix(lower, unit.suffix) {
			continue
		}
		amount, err := strconv.ParseFloat(strings.TrimSuffix(lower, unit.suffix), 64)
		if err != nil {
			return 0, false
		}
		return time.Duration(amount * unit.scale), true
	}
	return 0, false
}

// HumanizeDuration renders up to precision leading units, days at most,
// seconds at least: "3 days 2 hours".
func HumanizeDuration(d time.Duration, precision int) string {
	if d < 0 {
		d = 0
	}
	if precision <= 0 {
		precision = 2
	}
	remaining := int64(d / time.Second)
	units := []struct {
		name string
		secs int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}
	var parts []string
	for _, unit := range units {
		if len(parts) >= precision {
			break
		}
		count := remaining / unit.secs
		remaining %= unit.secs
		if count == 0 {
			continue
		}
		label := unit.name
		if count != 1 {
			label += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", count, label))
	}
	if len(parts) == 0 {
		return "0 seconds"
	}
	return strings.Join(parts, " ")
}
