package respawn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

func TestEvaluate_NoDeath(t *testing.T) {
	_, ok := Evaluate(nil, WindowFromMinutes(60, 90), baseTime)
	assert.False(t, ok)

	zero := time.Time{}
	_, ok = Evaluate(&zero, WindowFromMinutes(60, 90), baseTime)
	assert.False(t, ok)
}

func TestEvaluate_Scenario(t *testing.T) {
	w := WindowFromMinutes(60, 90)
	death := baseTime

	tests := []struct {
		name      string
		after     time.Duration
		want      Status
		countdown int64
	}{
		{name: "just died", after: 0, want: StatusFar, countdown: 3600},
		{name: "25 minutes", after: 25 * time.Minute, want: StatusFar, countdown: 35 * 60},
		{name: "40 minutes", after: 40 * time.Minute, want: StatusHalf, countdown: 20 * 60},
		{name: "55 minutes", after: 55 * time.Minute, want: StatusNear, countdown: 5 * 60},
		{name: "window opens", after: 60 * time.Minute, want: StatusWindowActive, countdown: 30 * 60},
		{name: "70 minutes", after: 70 * time.Minute, want: StatusWindowActive, countdown: 20 * 60},
		{name: "window closes", after: 90 * time.Minute, want: StatusRespawned, countdown: 0},
		{name: "95 minutes", after: 95 * time.Minute, want: StatusRespawned, countdown: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Evaluate(&death, w, death.Add(tt.after))
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.countdown, got.CountdownSeconds)
			assert.Equal(t, tt.after, got.Elapsed)
			assert.Equal(t, death.Add(60*time.Minute), got.WindowOpen)
			assert.Equal(t, death.Add(90*time.Minute), got.WindowClose)
		})
	}
}

func TestClassify_ThresholdEdges(t *testing.T) {
	w := WindowFromMinutes(60, 90)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    Status
	}{
		{name: "remaining just above one half", elapsed: 30*time.Minute - time.Second, want: StatusFar},
		{name: "remaining exactly one half", elapsed: 30 * time.Minute, want: StatusHalf},
		{name: "remaining just above one tenth", elapsed: 54*time.Minute - time.Second, want: StatusHalf},
		{name: "remaining exactly one tenth", elapsed: 54 * time.Minute, want: StatusNear},
		{name: "one second before window", elapsed: 60*time.Minute - time.Second, want: StatusNear},
		{name: "one second before respawn", elapsed: 90*time.Minute - time.Second, want: StatusWindowActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.elapsed, w))
		})
	}
}

func TestClassify_ZeroMinimum(t *testing.T) {
	w := WindowFromMinutes(0, 10)
	assert.Equal(t, StatusWindowActive, Classify(0, w))
	assert.Equal(t, StatusRespawned, Classify(10*time.Minute, w))
}

func TestCountdown_TruncatesToWholeSeconds(t *testing.T) {
	w := WindowFromMinutes(60, 90)
	death := baseTime
	got, ok := Evaluate(&death, w, death.Add(59*time.Minute+59*time.Second+500*time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, int64(0), got.CountdownSeconds)
	assert.Equal(t, StatusNear, got.Status)
}

func TestNormalizeDeathTime(t *testing.T) {
	now := time.Date(2024, time.March, 11, 1, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		death time.Time
		want  time.Time
	}{
		{
			name:  "past time is untouched",
			death: time.Date(2024, time.March, 11, 0, 30, 0, 0, time.UTC),
			want:  time.Date(2024, time.March, 11, 0, 30, 0, 0, time.UTC),
		},
		{
			name:  "23:00 logged at 01:00 resolves to the prior day",
			death: time.Date(2024, time.March, 11, 23, 0, 0, 0, time.UTC),
			want:  time.Date(2024, time.March, 10, 23, 0, 0, 0, time.UTC),
		},
		{
			name:  "several days ahead steps back whole days",
			death: time.Date(2024, time.March, 13, 2, 0, 0, 0, time.UTC),
			want:  time.Date(2024, time.March, 10, 2, 0, 0, 0, time.UTC),
		},
		{
			name:  "equal to now is not moved",
			death: now,
			want:  now,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeDeathTime(tt.death, now)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
			assert.False(t, got.After(now))
		})
	}
}

func TestNormalizeDeathTime_FarFuture(t *testing.T) {
	now := time.Date(2024, time.March, 11, 1, 0, 0, 0, time.UTC)
	death := time.Date(9999, time.December, 31, 12, 30, 0, 0, time.UTC)

	start := time.Now()
	got := NormalizeDeathTime(death, now)
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	assert.Equal(t, time.Date(2024, time.March, 10, 12, 30, 0, 0, time.UTC), got)
	assert.False(t, got.After(now))
	assert.True(t, got.After(now.Add(-24*time.Hour)))
}

func TestNormalizeDeathTime_KeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2024, time.March, 11, 9, 0, 0, 0, loc)
	death := time.Date(2024, time.November, 2, 21, 15, 0, 0, loc)

	got := NormalizeDeathTime(death, now)
	assert.Equal(t, time.Date(2024, time.March, 10, 21, 15, 0, 0, loc), got)
}

func TestEvaluate_FutureDeathIsNormalized(t *testing.T) {
	now := time.Date(2024, time.March, 11, 1, 0, 0, 0, time.UTC)
	death := time.Date(2024, time.March, 11, 23, 0, 0, 0, time.UTC)

	got, ok := Evaluate(&death, WindowFromMinutes(60, 90), now)
	require.True(t, ok)
	assert.Equal(t, 2*time.Hour, got.Elapsed)
	assert.Equal(t, StatusRespawned, got.Status)
}

func TestResolveTimeOfDay(t *testing.T) {
	now := time.Date(2024, time.March, 11, 1, 0, 0, 0, time.UTC)

	got, err := ResolveTimeOfDay(now, 0, 30)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 11, 0, 30, 0, 0, time.UTC), got)

	got, err = ResolveTimeOfDay(now, 23, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 10, 23, 0, 0, 0, time.UTC), got)

	_, err = ResolveTimeOfDay(now, 24, 0)
	assert.Error(t, err)
	_, err = ResolveTimeOfDay(now, 10, 60)
	assert.Error(t, err)
}

func TestIsExpired(t *testing.T) {
	death := baseTime
	respawnMax := 90 * time.Minute
	limit := death.Add(respawnMax).Add(time.Hour)

	assert.False(t, IsExpired(death, respawnMax, limit.Add(-time.Millisecond)))
	assert.False(t, IsExpired(death, respawnMax, limit))
	assert.True(t, IsExpired(death, respawnMax, limit.Add(time.Millisecond)))
}

func TestWindow_Validate(t *testing.T) {
	assert.NoError(t, WindowFromMinutes(60, 90).Validate())
	assert.NoError(t, WindowFromMinutes(60, 60).Validate())
	assert.Error(t, WindowFromMinutes(90, 60).Validate())
	assert.Error(t, WindowFromMinutes(-1, 60).Validate())
}

func TestStatus_Rank(t *testing.T) {
	assert.Less(t, StatusWindowActive.Rank(), StatusRespawned.Rank())
	assert.Less(t, StatusRespawned.Rank(), StatusNear.Rank())
	assert.Less(t, StatusNear.Rank(), StatusHalf.Rank())
	assert.Less(t, StatusHalf.Rank(), StatusFar.Rank())
	assert.Less(t, StatusFar.Rank(), Status("").Rank())
}

func TestFormatCountdown(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatCountdown(0))
	assert.Equal(t, "00:00:00", FormatCountdown(-5))
	assert.Equal(t, "00:00:59", FormatCountdown(59))
	assert.Equal(t, "01:00:00", FormatCountdown(3600))
	assert.Equal(t, "01:30:05", FormatCountdown(5405))
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "23:05", FormatClock(time.Date(2024, 1, 1, 23, 5, 9, 0, time.UTC)))
	assert.Equal(t, "07:00", FormatClock(time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)))
}
