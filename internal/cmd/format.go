package cmd

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// humanDuration approximates d for tables, eg. "About a minute" or "3 days".
func humanDuration(d time.Duration) string {
	if seconds := int(d.Seconds()); seconds < 60 {
		switch seconds {
		case 0:
			return "Less than a second"
		case 1:
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", seconds)
	}

	if minutes := int(d.Minutes()); minutes < 60 {
		if minutes == 1 {
			return "About a minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}

	hours := int(math.Round(d.Hours()))
	switch {
	case hours == 1:
		return "About an hour"
	case hours < 48:
		return fmt.Sprintf("%d hours", hours)
	case hours < 24*7*2:
		return fmt.Sprintf("%d days", hours/24)
	case hours < 24*30*2:
		return fmt.Sprintf("%d weeks", hours/24/7)
	case hours < 24*365*2:
		return fmt.Sprintf("%d months", hours/24/30)
	}
	return fmt.Sprintf("%d years", hours/24/365)
}

// humanTime describes t relative to now. A zero t is shown as zeroValue.
func humanTime(t time.Time, zeroValue string) string {
	if t.IsZero() {
		return zeroValue
	}

	delta := time.Since(t)
	if delta < 0 {
		return humanDuration(-delta) + " from now"
	}
	return humanDuration(delta) + " ago"
}

// exactDuration spells out d in hours, minutes and seconds. Durations below a
// second are shown in milliseconds.
func exactDuration(d time.Duration) string {
	if d < time.Second {
		return plural(int(d.Milliseconds()), "millisecond")
	}

	d = d.Truncate(time.Second)
	var parts []string
	for _, unit := range []struct {
		size time.Duration
		name string
	}{
		{time.Hour, "hour"},
		{time.Minute, "minute"},
		{time.Second, "second"},
	} {
		if n := int(d / unit.size); n > 0 {
			parts = append(parts, plural(n, unit.name))
			d -= time.Duration(n) * unit.size
		}
	}
	return strings.Join(parts, " ")
}

func plural(n int, word string) string {
	return fmt.Sprintf("%d %s", n, pluralize(word, n))
}
