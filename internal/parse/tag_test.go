package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTag(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		hexUIDs  bool
		expected string
	}{
		{name: "Trims whitespace and newline", raw: "  Rower001\r\n", expected: "rower001"},
		{name: "Decimal UID kept without hex", raw: "584186963227", expected: "584186963227"},
		{name: "Decimal UID to hex", raw: "584186963227", hexUIDs: true, expected: "880441a51b"},
		{name: "Hex UID untouched", raw: "8803BD3C1B", hexUIDs: true, expected: "8803bd3c1b"},
		{name: "Name-like id untouched", raw: "sallen", hexUIDs: true, expected: "sallen"},
		{name: "Empty", raw: " \t", hexUIDs: true, expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeTag(tc.raw, tc.hexUIDs))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	testCases := []struct {
		d        time.Duration
		expected string
	}{
		{0, "less than a minute"},
		{59 * time.Second, "less than a minute"},
		{time.Minute, "1 minute"},
		{45 * time.Minute, "45 minutes"},
		{time.Hour, "1 hour"},
		{2 * time.Hour, "2 hours"},
		{time.Hour + 5*time.Minute, "1 hour, 5 minutes"},
		{3*time.Hour + time.Minute + 30*time.Second, "3 hours, 1 minute"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, FormatDuration(tc.d), "duration %s", tc.d)
	}
}

func TestHours(t *testing.T) {
	assert.Equal(t, 2.5, Hours(9000))
	assert.Equal(t, 0.0, Hours(0))
	assert.Equal(t, 0.33, Hours(1200))
	assert.Equal(t, 0.5, Hours(1799))
	assert.Equal(t, 0.49, Hours(1760))
}
