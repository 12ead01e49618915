package utils

import (
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	cases := []struct {
		input string
		want  time.Duration
	}{
		{"30mi", 30 * time.Minute},
		{"12h", 12 * time.Hour},
		{"3d", 72 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"0.5h", 30 * time.Minute},
		{"2D", 48 * time.Hour},
	}
	for _, tc := range cases {
		got, ok := ParseTime(tc.input)
		if !ok {
			t.Fatalf("parse %q failed", tc.input)
		}
		if got != tc.want {
			t.Fatalf("parse %q: got %v want %v", tc.input, got, tc.want)
		}
	}
}

func TestParseTimeInvalid(t *testing.T) {
	for _, input := range []string{"", "abc", "10", "d", "1.2.3d"} {
		if _, ok := ParseTime(input); ok {
			t.Fatalf("expected %q to fail", input)
		}
	}
}

func TestHumanizeDuration(t *testing.T) {
	cases := []struct {
		d         time.Duration
		precision int
		want      string
	}{
		{3*24*time.Hour + 2*time.Hour, 2, "3 days 2 hours"},
		{3*24*time.Hour + 2*time.Hour + 5*time.Minute, 3, "3 days 2 hours 5 minutes"},
		{90 * time.Second, 2, "1 minute 30 seconds"},
		{time.Hour, 2, "1 hour"},
		{0, 2, "0 seconds"},
	}
	for _, tc := range cases {
		if got := HumanizeDuration(tc.d, tc.precision); got != tc.want {
			t.Fatalf("humanize %v: got %q want %q", tc.d, got, tc.want)
		}
	}
}
