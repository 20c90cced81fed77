package models

// PostingStatistics summarizes posts created within a trailing window.
type PostingStatistics struct {
	WindowDays         int     `json:"window_days"`
	TotalScheduled     int     `json:"total_scheduled"`
	TotalPosted        int     `json:"total_posted"`
	TotalFailed        int     `json:"total_failed"`
	SuccessRate        float64 `json:"success_rate"`
	AveragePostsPerDay float64 `json:"average_posts_per_day"`
	PeakPostingHours   []int   `json:"peak_posting_hours"`
}

// OptimalTimes recommends publish times from the posted history.
type OptimalTimes struct {
	RecommendedTimes    []string    `json:"recommended_times"`
	HourDistribution    map[int]int `json:"hour_distribution"`
	WeekdayDistribution map[int]int `json:"weekday_distribution"`
}
