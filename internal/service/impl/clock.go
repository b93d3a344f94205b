package impl

import "time"

// utcNow is the default clock. Postgres timestamptz keeps microseconds, so
// values are truncated to match what a later read returns.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
