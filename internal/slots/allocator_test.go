package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-scheduler/internal/models"
)

func weekdayRule(times ...string) models.SchedulingRule {
	return models.SchedulingRule{
		ID:             "r1",
		Name:           "weekdays",
		Enabled:        true,
		PreferredTimes: times,
		DaysOfWeek:     []int{1, 2, 3, 4, 5},
		MaxPostsPerDay: 2,
	}
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.October, day, hour, minute, 0, 0, time.UTC)
}

func TestAllocateFridayEveningRollsToMonday(t *testing.T) {
	friday := at(16, 20, 0)
	require.Equal(t, time.Friday, friday.Weekday())

	got := New(time.UTC).Allocate(weekdayRule("09:00", "13:00"), 3, friday, nil)
	require.Len(t, got, 3)
	assert.Equal(t, at(19, 9, 0), got[0])
	assert.Equal(t, at(19, 13, 0), got[1])
	assert.Equal(t, at(20, 9, 0), got[2])
}

func TestAllocateSkipsPastCandidatesAndCapsPerDay(t *testing.T) {
	wednesdayMorning := at(14, 10, 0)
	got := New(time.UTC).Allocate(weekdayRule("09:00", "13:00", "17:00"), 3, wednesdayMorning, nil)
	require.Len(t, got, 3)
	assert.Equal(t, at(14, 13, 0), got[0])
	assert.Equal(t, at(14, 17, 0), got[1])
	assert.Equal(t, at(15, 9, 0), got[2])
}

func TestAllocateAvoidsExistingBookings(t *testing.T) {
	existing := []time.Time{at(19, 9, 15)}
	got := New(time.UTC).Allocate(weekdayRule("09:00", "13:00"), 2, at(16, 20, 0), existing)
	require.Len(t, got, 2)
	assert.Equal(t, at(19, 13, 0), got[0])
	assert.Equal(t, at(20, 9, 0), got[1])
}

func TestAllocateKeepsSlotsExactlyOneToleranceApart(t *testing.T) {
	got := New(time.UTC).Allocate(weekdayRule("09:00", "09:30", "09:10"), 3, at(16, 20, 0), nil)
	require.Len(t, got, 3)
	assert.Equal(t, at(19, 9, 0), got[0])
	assert.Equal(t, at(19, 9, 30), got[1])
	assert.Equal(t, at(20, 9, 0), got[2])
}

func TestAllocateEveningCutoffStartsNextDay(t *testing.T) {
	got := New(time.UTC).Allocate(weekdayRule("19:00"), 1, at(14, 18, 0), nil)
	require.Len(t, got, 1)
	assert.Equal(t, at(15, 19, 0), got[0])
}

func TestAllocateConfigurableCutoff(t *testing.T) {
	midnight := New(time.UTC)
	midnight.CutoffHour = 0
	got := midnight.Allocate(weekdayRule("19:00"), 1, at(14, 8, 0), nil)
	require.Len(t, got, 1)
	assert.Equal(t, at(15, 19, 0), got[0], "a midnight cutoff never books the current day")

	disabled := New(time.UTC)
	disabled.CutoffHour = 24
	got = disabled.Allocate(weekdayRule("23:00"), 1, at(14, 22, 0), nil)
	require.Len(t, got, 1)
	assert.Equal(t, at(14, 23, 0), got[0])

	invalid := New(time.UTC)
	invalid.CutoffHour = -1
	got = invalid.Allocate(weekdayRule("19:00"), 1, at(14, 18, 0), nil)
	require.Len(t, got, 1)
	assert.Equal(t, at(15, 19, 0), got[0])
}

func TestAllocateHorizonReturnsPartialResult(t *testing.T) {
	rule := weekdayRule("09:00")
	rule.DaysOfWeek = []int{0}

	got := New(time.UTC).Allocate(rule, 10, at(14, 8, 0), nil)
	require.Len(t, got, 4)
	for _, slot := range got {
		assert.Equal(t, time.Sunday, slot.Weekday())
	}
}

func TestAllocateZeroCount(t *testing.T) {
	assert.Empty(t, New(time.UTC).Allocate(weekdayRule("09:00"), 0, at(14, 8, 0), nil))
}

func TestAllocateHonoursLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	// 12:00 UTC is 19:00 local, past the cutoff.
	got := New(loc).Allocate(weekdayRule("09:00"), 1, at(14, 12, 0), nil)
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2026, time.October, 15, 9, 0, 0, 0, loc), got[0])
}

func TestAllocateInvariants(t *testing.T) {
	rule := models.SchedulingRule{
		PreferredTimes: []string{"08:00", "08:20", "12:00", "12:45", "18:30"},
		DaysOfWeek:     []int{0, 2, 4, 6},
		MaxPostsPerDay: 3,
	}
	existing := []time.Time{at(15, 12, 10), at(17, 8, 0), at(20, 18, 45)}
	allowedTimes := map[string]bool{}
	for _, v := range rule.PreferredTimes {
		allowedTimes[v] = true
	}

	for _, now := range []time.Time{at(14, 7, 0), at(15, 12, 30), at(17, 23, 59), at(18, 0, 0)} {
		got := New(time.UTC).Allocate(rule, 25, now, existing)
		perDay := map[string]int{}
		for i, slot := range got {
			assert.True(t, slot.After(now))
			assert.True(t, rule.AllowsDay(slot.Weekday()))
			assert.True(t, allowedTimes[slot.Format("15:04")], slot.Format("15:04"))
			assert.False(t, Conflicts(slot, existing, DefaultTolerance))
			assert.False(t, Conflicts(slot, got[:i], DefaultTolerance))
			perDay[slot.Format("2006-01-02")]++
		}
		for day, n := range perDay {
			assert.LessOrEqual(t, n, rule.MaxPostsPerDay, day)
		}
	}
}
