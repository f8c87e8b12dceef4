package printer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/slok/cartpool/internal/printer"
)

func TestTimeAgo(t *testing.T) {
	now := time.Now().UTC()

	tests := map[string]struct {
		time     time.Time
		expected string
	}{
		"1 second ago": {
			time:     now.Add(-1 * time.Second),
			expected: "1 second ago (UTC)",
		},
		"30 seconds ago": {
			time:     now.Add(-30 * time.Second),
			expected: "30 seconds ago (UTC)",
		},
		"1 minute ago": {
			time:     now.Add(-1 * time.Minute),
			expected: "1 minute ago (UTC)",
		},
		"45 minutes ago": {
			time:     now.Add(-45 * time.Minute),
			expected: "45 minutes ago (UTC)",
		},
		"1 hour ago": {
			time:     now.Add(-1 * time.Hour),
			expected: "1 hour ago (UTC)",
		},
		"5 hours ago": {
			time:     now.Add(-5 * time.Hour),
			expected: "5 hours ago (UTC)",
		},
		"1 day ago": {
			time:     now.Add(-24 * time.Hour),
			expected: "1 day ago (UTC)",
		},
		"7 days ago": {
			time:     now.Add(-7 * 24 * time.Hour),
			expected: "7 days ago (UTC)",
		},
		"future time": {
			time:     now.Add(5 * time.Minute),
			expected: "in the future (UTC)",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			result := printer.TimeAgo(test.time)
			assert.Equal(test.expected, result)
		})
	}
}

func TestTimeLeft(t *testing.T) {
	now := time.Now().UTC()

	tests := map[string]struct {
		time     time.Time
		expected string
	}{
		"A hold ending in minutes": {
			time:     now.Add(5 * time.Minute),
			expected: "in 5 minutes",
		},
		"A hold ending in seconds": {
			time:     now.Add(30 * time.Second),
			expected: "in 30 seconds",
		},
		"A hold ending in one hour": {
			time:     now.Add(time.Hour),
			expected: "in 1 hour",
		},
		"A past hold": {
			time:     now.Add(-time.Minute),
			expected: "expired",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, printer.TimeLeft(test.time))
		})
	}
}
