package respawn

import (
	"fmt"
	"time"
)

// FormatCountdown renders whole seconds as HH:MM:SS.
func FormatCountdown(totalSeconds int64) string {
	if totalSeconds <= 0 {
		return "00:00:00"
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatClock renders a time of day as 24-hour HH:MM.
func FormatClock(t time.Time) string {
	return t.Format("15:04")
}
