// Package resettime converts reset timestamps into human display strings.
// Both functions are pure in their inputs so they can be tested with a fixed clock.
package resettime

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Placeholders returned instead of errors.
const (
	Soon    = "soon"
	Unknown = "Unknown"
)

// TimeUntil renders the distance from now to an RFC 3339 timestamp:
// "2d 3h" from 24 hours on, "5h 12m" from one hour on, "42m" below that,
// and Soon once the moment has passed.
func TimeUntil(iso string, now time.Time) string {
	t, err := parse(iso)
	if err != nil {
		return Unknown
	}
	return Bucket(t.Sub(now))
}

// Bucket renders a duration with the same rules as TimeUntil.
func Bucket(d time.Duration) string {
	if d <= 0 {
		return Soon
	}
	total := int64(d / time.Minute)
	days := total / (24 * 60)
	hours := (total % (24 * 60)) / 60
	mins := total % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}

func parse(iso string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, iso); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, iso)
}

var (
	// A unit ends at a non-letter so compact forms like "2h30m" split cleanly.
	reDays  = regexp.MustCompile(`(?i)(\d+)\s*(?:days?|d)(?:[^a-z]|$)`)
	reHours = regexp.MustCompile(`(?i)(\d+)\s*(?:hours?|hrs?|h)(?:[^a-z]|$)`)
	reMins  = regexp.MustCompile(`(?i)(\d+)\s*(?:minutes?|mins?|m)(?:[^a-z]|$)`)
)

// RelativeToClockTime parses the day/hour/minute components of a relative
// phrase such as "2h 30m" or "3 days 4 hours", adds them to now and renders
// the wall-clock time. Offsets of a day or more also get a weekday and date.
// Input without any recognizable component yields Unknown.
func RelativeToClockTime(rel string, now time.Time) string {
	d, ok := ParseRelative(rel)
	if !ok {
		return Unknown
	}
	at := now.Add(d)
	if d >= 24*time.Hour {
		return at.Format("Mon Jan 2, 3:04 PM")
	}
	return at.Format("3:04 PM")
}

// ParseRelative extracts the duration encoded in a relative phrase.
func ParseRelative(rel string) (time.Duration, bool) {
	var (
		total time.Duration
		found bool
	)
	for _, c := range []struct {
		re   *regexp.Regexp
		unit time.Duration
	}{
		{reDays, 24 * time.Hour},
		{reHours, time.Hour},
		{reMins, time.Minute},
	} {
		m := c.re.FindStringSubmatch(rel)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		total += time.Duration(n) * c.unit
		found = true
	}
	return total, found
}
