package resettime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func at(d time.Duration) string {
	return now.Add(d).Format(time.RFC3339)
}

func TestTimeUntil_Buckets(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want string
	}{
		{"past", -time.Minute, Soon},
		{"exactly now", 0, Soon},
		{"minutes", 42 * time.Minute, "42m"},
		{"59 minutes", 59 * time.Minute, "59m"},
		{"60 minutes", 60 * time.Minute, "1h 0m"},
		{"hours", 2*time.Hour + 30*time.Minute, "2h 30m"},
		{"1439 minutes", 1439 * time.Minute, "23h 59m"},
		{"1440 minutes", 1440 * time.Minute, "1d 0h"},
		{"days", 3*24*time.Hour + 5*time.Hour + 10*time.Minute, "3d 5h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeUntil(at(tt.in), now))
		})
	}
}

func TestTimeUntil_Deterministic(t *testing.T) {
	ts := at(90 * time.Minute)
	assert.Equal(t, TimeUntil(ts, now), TimeUntil(ts, now))
}

func TestTimeUntil_InvalidTimestamp(t *testing.T) {
	assert.Equal(t, Unknown, TimeUntil("not a time", now))
	assert.Equal(t, Unknown, TimeUntil("", now))
}

func TestRelativeToClockTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2h 30m", "11:30 AM"},
		{"45m", "9:45 AM"},
		{"5 hours", "2:00 PM"},
		{"1d 2h", "Tue Jun 3, 11:00 AM"},
		{"3 days 4 hours", "Thu Jun 5, 1:00 PM"},
		{"24h 0m", "Tue Jun 3, 9:00 AM"},
		{"2h30m", "11:30 AM"},
		{"1d2h", "Tue Jun 3, 11:00 AM"},
		{"1 day, 2 hrs", "Tue Jun 3, 11:00 AM"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, RelativeToClockTime(tt.in, now))
		})
	}
}

func TestParseRelative_CompactForms(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"2h30m", 2*time.Hour + 30*time.Minute},
		{"1d2h", 26 * time.Hour},
		{"1d12h5m", 36*time.Hour + 5*time.Minute},
		{"3 hr 5 min", 3*time.Hour + 5*time.Minute},
		{"7d", 7 * 24 * time.Hour},
	}
	for _, tt := range tests {
		got, ok := ParseRelative(tt.in)
		assert.True(t, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, ok := ParseRelative("2 months")
	assert.False(t, ok, "month is not a minute")
}

func TestRelativeToClockTime_Unparseable(t *testing.T) {
	for _, in := range []string{"", "soon", "whenever", "Unknown"} {
		assert.Equal(t, Unknown, RelativeToClockTime(in, now), in)
	}
}

func TestRoundTrip(t *testing.T) {
	rel := TimeUntil(at(26*time.Hour), now)
	assert.Equal(t, "1d 2h", rel)
	assert.Equal(t, "Wed Jun 4, 11:00 AM", RelativeToClockTime(rel, now.Add(24*time.Hour)))
}
