// Package respawn derives respawn windows, countdowns and status
// classifications from a monster's last known death time.
package respawn

import (
	"fmt"
	"time"
)

const (
	// GracePeriod is how long a record stays listed after the window closes.
	GracePeriod = time.Hour
	// FarThreshold is the fraction of the minimum respawn time that must
	// remain for a monster to be considered far from its window.
	FarThreshold = 0.5
	// HalfThreshold is the fraction below which a monster is near its window.
	HalfThreshold = 0.1
)

type Status string

const (
	StatusFar          Status = "far"
	StatusHalf         Status = "half"
	StatusNear         Status = "near"
	StatusWindowActive Status = "window-active"
	StatusRespawned    Status = "respawned"
)

// Rank orders statuses by how soon a hunter needs to act on them.
// Lower is more urgent.
func (s Status) Rank() int {
	switch s {
	case StatusWindowActive:
		return 0
	case StatusRespawned:
		return 1
	case StatusNear:
		return 2
	case StatusHalf:
		return 3
	case StatusFar:
		return 4
	default:
		return 5
	}
}

// Window is a respawn window expressed as offsets from the death time.
type Window struct {
	Min time.Duration
	Max time.Duration
}

// WindowFromMinutes builds a Window from catalog minutes.
func WindowFromMinutes(min, max int) Window {
	return Window{
		Min: time.Duration(min) * time.Minute,
		Max: time.Duration(max) * time.Minute,
	}
}

func (w Window) Validate() error {
	if w.Min < 0 || w.Max < 0 {
		return fmt.Errorf("respawn window must not be negative: %s~%s", w.Min, w.Max)
	}
	if w.Min > w.Max {
		return fmt.Errorf("respawn min %s exceeds max %s", w.Min, w.Max)
	}
	return nil
}

// Snapshot is the derived respawn state at a single instant.
type Snapshot struct {
	DeathTime        time.Time     `json:"deathTime"`
	Elapsed          time.Duration `json:"-"`
	WindowOpen       time.Time     `json:"windowOpen"`
	WindowClose      time.Time     `json:"windowClose"`
	CountdownSeconds int64         `json:"countdownSeconds"`
	Status           Status        `json:"status"`
}

// Evaluate computes the snapshot for a death time at now. It reports false
// when no death has been recorded.
func Evaluate(deathTime *time.Time, w Window, now time.Time) (Snapshot, bool) {
	if deathTime == nil || deathTime.IsZero() {
		return Snapshot{}, false
	}

	death := NormalizeDeathTime(*deathTime, now)
	elapsed := now.Sub(death)

	return Snapshot{
		DeathTime:        death,
		Elapsed:          elapsed,
		WindowOpen:       death.Add(w.Min),
		WindowClose:      death.Add(w.Max),
		CountdownSeconds: countdownSeconds(elapsed, w),
		Status:           Classify(elapsed, w),
	}, true
}

// Classify maps elapsed time since death onto a Status.
func Classify(elapsed time.Duration, w Window) Status {
	if elapsed >= w.Max {
		return StatusRespawned
	}
	if elapsed >= w.Min {
		return StatusWindowActive
	}

	percentRemaining := float64(w.Min-elapsed) / float64(w.Min)
	switch {
	case percentRemaining > FarThreshold:
		return StatusFar
	case percentRemaining > HalfThreshold:
		return StatusHalf
	default:
		return StatusNear
	}
}

const secondsPerDay = 24 * 60 * 60

func countdownSeconds(elapsed time.Duration, w Window) int64 {
	var remaining time.Duration
	switch {
	case elapsed < w.Min:
		remaining = w.Min - elapsed
	case elapsed < w.Max:
		remaining = w.Max - elapsed
	default:
		return 0
	}
	return int64(remaining / time.Second)
}

// NormalizeDeathTime moves a death time that lies in the future back by
// whole days until it is no later than now.
func NormalizeDeathTime(deathTime, now time.Time) time.Time {
	if !deathTime.After(now) {
		return deathTime
	}
	// Jump all but the last day or two at once; the loop settles the rest.
	if days := (deathTime.Unix()-now.Unix())/secondsPerDay - 1; days > 0 {
		deathTime = deathTime.AddDate(0, 0, -int(days))
	}
	for deathTime.After(now) {
		deathTime = deathTime.AddDate(0, 0, -1)
	}
	return deathTime
}

// ResolveTimeOfDay turns an hour and minute entered without a date into a
// death time: today in now's location, or yesterday if that is in the future.
func ResolveTimeOfDay(now time.Time, hour, minute int) (time.Time, error) {
	if hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("hour out of range: %d", hour)
	}
	if minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("minute out of range: %d", minute)
	}
	deathTime := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if deathTime.After(now) {
		deathTime = time.Date(now.Year(), now.Month(), now.Day()-1, hour, minute, 0, 0, now.Location())
	}
	return deathTime, nil
}

// IsExpired reports whether a record should be treated as absent: the
// respawn window closed more than GracePeriod ago.
func IsExpired(deathTime time.Time, respawnMax time.Duration, now time.Time) bool {
	return now.After(deathTime.Add(respawnMax + GracePeriod))
}
