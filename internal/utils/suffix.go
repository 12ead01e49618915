package utils

import (
	"strconv"
	"strings"
)

// Suffix returns the ordinal form of num: 1st, 2nd, 3rd, 4th. The teens
// 11/12/13 take "th" before the last-digit rules apply.
func Suffix(num int) string {
	s := strconv.Itoa(num)
	switch {
	case strings.HasSuffix(s, "11"), strings.HasSuffix(s, "12"), strings.HasSuffix(s, "13"):
		return s + "th"
	case strings.HasSuffix(s, "1"):
		return s + "st"
	case strings.HasSuffix(s, "2"):
		return s + "nd"
	case strings.HasSuffix(s, "3"):
		return s + "rd"
	}
	return s + "th"
}
