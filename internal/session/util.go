package session

import "time"

// timeMillis converts a possibly-zero time.Time into epoch
// milliseconds, leaving the zero value as 0 rather than a negative
// sentinel so JSON payloads stay easy to reason about.
func timeMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
