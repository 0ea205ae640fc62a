package preference

import (
	"time"

	"github.com/lalithlochan/courier/internal/db"
)

// QuietHours is a daily local-time window during which non in-app deliveries
// are deferred. Boundaries have minute resolution and are inclusive. When
// start >= end the window wraps midnight.
type QuietHours struct {
	start   int // minutes after local midnight
	end     int
	loc     *time.Location
	enabled bool
}

// NewQuietHours builds a window from "HH:MM" strings interpreted in timezone.
// An unknown timezone falls back to UTC. A missing or unparseable start or
// end yields a disabled window.
func NewQuietHours(start, end *string, timezone string) QuietHours {
	q := QuietHours{loc: LoadLocation(timezone)}

	if start == nil || end == nil {
		return q
	}
	s, ok := parseClock(*start)
	if !ok {
		return q
	}
	e, ok := parseClock(*end)
	if !ok {
		return q
	}

	q.start, q.end, q.enabled = s, e, true
	return q
}

// QuietHoursOf returns the window configured on p.
func QuietHoursOf(p *db.UserPreference) QuietHours {
	return NewQuietHours(p.QuietHoursStart, p.QuietHoursEnd, p.Timezone)
}

// LoadLocation resolves an IANA zone name, returning UTC when it is empty or unknown.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ValidClock reports whether s is an "HH:MM" time of day.
func ValidClock(s string) bool {
	_, ok := parseClock(s)
	return ok
}

func parseClock(s string) (int, bool) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), true
		}
	}
	return 0, false
}

// Enabled reports whether the window is active at all.
func (q QuietHours) Enabled() bool {
	return q.enabled
}

// Location returns the zone the window is evaluated in.
func (q QuietHours) Location() *time.Location {
	return q.loc
}

// Contains reports whether t falls inside the window.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.enabled {
		return false
	}

	local := t.In(q.loc)
	m := local.Hour()*60 + local.Minute()

	if q.start < q.end {
		return m >= q.start && m <= q.end
	}
	return m >= q.start || m <= q.end
}

// NextEnd returns the next occurrence of the window's end boundary as seen
// from t: today's end when it has not passed yet, otherwise tomorrow's. The
// result is never earlier than t.
func (q QuietHours) NextEnd(t time.Time) time.Time {
	local := t.In(q.loc)
	m := local.Hour()*60 + local.Minute()

	day := local.Day()
	if m > q.end {
		day++
	}

	// time.Date normalises day overflow and resolves DST gaps.
	next := time.Date(local.Year(), local.Month(), day, q.end/60, q.end%60, 0, 0, q.loc)
	if next.Before(t) {
		return t
	}
	return next
}
