// Package timeutil provides time formatting utilities for CLI output.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// LocalTimeFormat renders absolute timestamps in CLI output.
const LocalTimeFormat = "Mon Jan 2 15:04:05 2006"

var uptimeUnits = []struct {
	size   time.Duration
	suffix string
}{
	{24 * time.Hour, "d"},
	{time.Hour, "h"},
	{time.Minute, "m"},
	{time.Second, "s"},
}

// FormatUptime renders a Go duration string as "3d 2h 30m 15s", starting at
// the largest non-zero unit. Unparseable input is returned as is.
func FormatUptime(uptime string) string {
	d, err := time.ParseDuration(uptime)
	if err != nil {
		return uptime
	}
	d = d.Truncate(time.Second)

	var parts []string
	for _, u := range uptimeUnits {
		n := d / u.size
		d -= n * u.size
		if n == 0 && len(parts) == 0 && u.size != time.Second {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
	}
	return strings.Join(parts, " ")
}

// FormatTime renders an RFC 3339 timestamp in local time. Unparseable input
// is returned as is.
func FormatTime(timestamp string) string {
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return timestamp
	}
	return t.Local().Format(LocalTimeFormat)
}

// FormatAge returns how long ago t was, as "5s", "3m", "2h" or "4d".
// A zero time yields "-".
func FormatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return formatCoarse(time.Since(t))
}

// FormatUntil returns the time left until t, or "expired" once it passed.
func FormatUntil(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Until(t)
	if d <= 0 {
		return "expired"
	}
	return formatCoarse(d)
}

func formatCoarse(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours())/24)
	}
}
