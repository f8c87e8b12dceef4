package printer

import (
	"fmt"
	"time"
)

// TimeAgo returns a human-readable relative time string in UTC.
// Examples: "5 seconds ago (UTC)", "2 minutes ago (UTC)", "3 hours ago (UTC)".
func TimeAgo(t time.Time) string {
	diff := time.Now().UTC().Sub(t.UTC()).Round(time.Second)
	if diff < 0 {
		return "in the future (UTC)"
	}
	return humanDuration(diff) + " ago (UTC)"
}

// TimeLeft returns a human-readable remaining time string until t.
// Examples: "in 5 minutes", "in 30 seconds", "expired".
func TimeLeft(t time.Time) string {
	diff := t.UTC().Sub(time.Now().UTC()).Round(time.Second)
	if diff <= 0 {
		return "expired"
	}
	return "in " + humanDuration(diff)
}

func humanDuration(d time.Duration) string {
	var (
		n    int
		unit string
	)
	switch {
	case d < time.Minute:
		n, unit = int(d.Seconds()), "second"
	case d < time.Hour:
		n, unit = int(d.Minutes()), "minute"
	case d < 24*time.Hour:
		n, unit = int(d.Hours()), "hour"
	default:
		n, unit = int(d.Hours()/24), "day"
	}

	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
