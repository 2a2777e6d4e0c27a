package monitor

import "time"

// withinCooldown compares wall-clock timestamps, matching the rest of the
// engine's TTL handling; a system clock adjustment can shorten or stretch
// the window.
func withinCooldown(now, last time.Time, window time.Duration) bool {
	if last.IsZero() {
		return false
	}
	return now.Sub(last) < window
}
