package parse

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// NormalizeTag cleans a raw identifier read from a reader or typed by an admin.
// Surrounding whitespace and control characters are dropped and the result is
// lower-cased. With hexUIDs set, a purely decimal UID (as printed by most
// RC522 and keyboard-wedge readers) is rewritten in hex so that both reader
// kinds produce the same member id.
func NormalizeTag(raw string, hexUIDs bool) string {
	s := strings.TrimFunc(raw, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	})
	s = strings.ToLower(s)
	if !hexUIDs || s == "" {
		return s
	}
	if uid, err := strconv.ParseUint(s, 10, 64); err == nil {
		return strconv.FormatUint(uid, 16)
	}
	return s
}

// FormatDuration renders a session length for display.
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 60 {
		return "less than a minute"
	}

	hours := total / 3600
	minutes := (total % 3600) / 60

	switch {
	case hours == 0:
		return plural(minutes, "minute")
	case minutes == 0:
		return plural(hours, "hour")
	default:
		return plural(hours, "hour") + ", " + plural(minutes, "minute")
	}
}

// Hours converts seconds to hours rounded to two decimals.
func Hours(seconds int64) float64 {
	return math.Round(float64(seconds)/36) / 100
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
