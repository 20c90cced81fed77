// Package stats derives posting reports from scheduled post history.
package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"content-scheduler/internal/models"
)

// MinHistory is the number of posted records needed before recommendations
// are derived from history instead of the defaults.
const MinHistory = 10

var DefaultTimes = []string{"09:00", "13:00", "17:00"}

// PostLister is the read side of the post store used for reporting.
type PostLister interface {
	ListCreatedSince(ctx context.Context, since time.Time) ([]models.ScheduledPost, error)
	ListByStatus(ctx context.Context, status string) ([]models.ScheduledPost, error)
}

// Engine computes statistics in a fixed location so hour buckets match the schedule.
type Engine struct {
	posts PostLister
	now   func() time.Time
	loc   *time.Location
}

func New(posts PostLister, now func() time.Time, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{posts: posts, now: now, loc: loc}
}

// PostingStatistics reports on posts created within the trailing window of days.
func (e *Engine) PostingStatistics(ctx context.Context, days int) (models.PostingStatistics, error) {
	if days <= 0 {
		return models.PostingStatistics{}, models.NewValidationError("days must be positive")
	}
	since := e.now().AddDate(0, 0, -days)
	records, err := e.posts.ListCreatedSince(ctx, since)
	if err != nil {
		return models.PostingStatistics{}, fmt.Errorf("list posts since %s: %w", since.Format(time.RFC3339), err)
	}

	out := models.PostingStatistics{WindowDays: days, TotalScheduled: len(records)}
	hours := make(map[int]int)
	for _, p := range records {
		switch p.Status {
		case models.StatusPosted:
			out.TotalPosted++
			if p.PostedAt != nil {
				hours[p.PostedAt.In(e.loc).Hour()]++
			}
		case models.StatusFailed:
			out.TotalFailed++
		}
	}
	if out.TotalScheduled > 0 {
		out.SuccessRate = round2(float64(out.TotalPosted) * 100 / float64(out.TotalScheduled))
	}
	out.AveragePostsPerDay = round2(float64(out.TotalScheduled) / float64(days))
	out.PeakPostingHours = topHours(hours, 3)
	return out, nil
}

// OptimalPostingTimes recommends the three busiest posting hours once enough
// history exists, otherwise the static defaults with empty distributions.
func (e *Engine) OptimalPostingTimes(ctx context.Context) (models.OptimalTimes, error) {
	posted, err := e.posts.ListByStatus(ctx, models.StatusPosted)
	if err != nil {
		return models.OptimalTimes{}, fmt.Errorf("list posted: %w", err)
	}
	out := models.OptimalTimes{
		HourDistribution:    map[int]int{},
		WeekdayDistribution: map[int]int{},
	}
	if len(posted) < MinHistory {
		out.RecommendedTimes = append([]string(nil), DefaultTimes...)
		return out, nil
	}

	for _, p := range posted {
		at := p.ScheduledFor
		if p.PostedAt != nil {
			at = *p.PostedAt
		}
		at = at.In(e.loc)
		out.HourDistribution[at.Hour()]++
		out.WeekdayDistribution[int(at.Weekday())]++
	}
	for _, h := range topHours(out.HourDistribution, 3) {
		out.RecommendedTimes = append(out.RecommendedTimes, fmt.Sprintf("%02d:00", h))
	}
	return out, nil
}

// topHours orders hours by count descending, earliest hour first on ties.
func topHours(counts map[int]int, n int) []int {
	hours := make([]int, 0, len(counts))
	for h, c := range counts {
		if c > 0 {
			hours = append(hours, h)
		}
	}
	sort.Slice(hours, func(i, j int) bool {
		if counts[hours[i]] != counts[hours[j]] {
			return counts[hours[i]] > counts[hours[j]]
		}
		return hours[i] < hours[j]
	})
	if len(hours) > n {
		hours = hours[:n]
	}
	return hours
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
