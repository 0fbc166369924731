// Package timeutil contains small time formatting helpers.
package timeutil

import (
	"fmt"
	"time"
)

// FormatDowntime converts a duration to a short human string of the form
// "Xm", "Xh Ym" or "Xd Yh Zm".
func FormatDowntime(d time.Duration) string {
	seconds := int64(d.Seconds())
	if seconds < 0 {
		seconds = 0
	}
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case seconds < 3600:
		return fmt.Sprintf("%dm", minutes)
	case seconds < 86400:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	default:
		return fmt.Sprintf("%dd %dh %dm", days, hours%24, minutes%60)
	}
}
