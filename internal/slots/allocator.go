// Package slots computes conflict-free publish times for a scheduling rule.
package slots

import (
	"time"

	"content-scheduler/internal/models"
)

const (
	DefaultTolerance   = 30 * time.Minute
	DefaultHorizonDays = 30
	DefaultCutoffHour  = 18
)

// Allocator holds the tunables of slot allocation. Zero Tolerance and
// HorizonDays use the defaults; CutoffHour 0 is a midnight cutoff, so build
// allocators with New.
type Allocator struct {
	// Tolerance is the minimum spacing between two scheduled slots.
	Tolerance time.Duration
	// HorizonDays bounds how many calendar days are searched.
	HorizonDays int
	// CutoffHour moves the search to the next day when now is at or past it.
	// Values outside 0..24 fall back to DefaultCutoffHour; 24 disables it.
	CutoffHour int
	Location   *time.Location
}

// New returns an allocator with default tunables in loc.
func New(loc *time.Location) Allocator {
	return Allocator{
		Tolerance:   DefaultTolerance,
		HorizonDays: DefaultHorizonDays,
		CutoffHour:  DefaultCutoffHour,
		Location:    loc,
	}
}

// Allocate returns up to count slots for rule strictly after now, skipping any
// slot within the tolerance of existing or of a slot chosen earlier in the call.
// A short result means the horizon ran out; it is not an error.
func (a Allocator) Allocate(rule models.SchedulingRule, count int, now time.Time, existing []time.Time) []time.Time {
	if count <= 0 {
		return nil
	}
	loc := a.location()
	tolerance := a.tolerance()

	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if local.Hour() >= a.cutoffHour() {
		start = start.AddDate(0, 0, 1)
	}

	taken := make([]time.Time, len(existing), len(existing)+count)
	copy(taken, existing)
	out := make([]time.Time, 0, count)

	for offset := 0; offset < a.horizonDays() && len(out) < count; offset++ {
		day := start.AddDate(0, 0, offset)
		if !rule.AllowsDay(day.Weekday()) {
			continue
		}
		perDay := 0
		for _, clock := range rule.PreferredTimes {
			if len(out) >= count || perDay >= rule.MaxPostsPerDay {
				break
			}
			hour, minute, err := models.ParseClock(clock)
			if err != nil {
				continue
			}
			candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
			if !candidate.After(now) || Conflicts(candidate, taken, tolerance) {
				continue
			}
			out = append(out, candidate)
			taken = append(taken, candidate)
			perDay++
		}
	}
	return out
}

// Conflicts reports whether t lies within tolerance of any of taken.
func Conflicts(t time.Time, taken []time.Time, tolerance time.Duration) bool {
	for _, other := range taken {
		d := t.Sub(other)
		if d < 0 {
			d = -d
		}
		if d < tolerance {
			return true
		}
	}
	return false
}

func (a Allocator) location() *time.Location {
	if a.Location == nil {
		return time.UTC
	}
	return a.Location
}

func (a Allocator) tolerance() time.Duration {
	if a.Tolerance <= 0 {
		return DefaultTolerance
	}
	return a.Tolerance
}

func (a Allocator) horizonDays() int {
	if a.HorizonDays <= 0 {
		return DefaultHorizonDays
	}
	return a.HorizonDays
}

func (a Allocator) cutoffHour() int {
	if a.CutoffHour < 0 || a.CutoffHour > 24 {
		return DefaultCutoffHour
	}
	return a.CutoffHour
}
