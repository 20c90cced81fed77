package models

import (
	"time"
)

// Frequency tags. They are informational; allocation is driven by days and times.
const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
	FrequencyCustom = "custom"
)

// DefaultRuleID identifies the rule seeded into every rule store.
const DefaultRuleID = "default"

// SchedulingRule is a named cadence configuration used for automatic slot allocation.
type SchedulingRule struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Enabled              bool      `json:"enabled"`
	Frequency            string    `json:"frequency"`
	PreferredTimes       []string  `json:"preferred_times"`
	DaysOfWeek           []int     `json:"days_of_week"`
	MaxPostsPerDay       int       `json:"max_posts_per_day"`
	Categories           []string  `json:"categories"`
	AutoApproveThreshold *float64  `json:"auto_approve_threshold,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// AllowsDay reports whether the weekday is part of the rule.
func (r SchedulingRule) AllowsDay(d time.Weekday) bool {
	for _, day := range r.DaysOfWeek {
		if time.Weekday(day) == d {
			return true
		}
	}
	return false
}

// HasCategory reports whether category is in the rule's filter set.
func (r SchedulingRule) HasCategory(category string) bool {
	for _, c := range r.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// DefaultRule returns the weekday business-hours rule seeded at startup.
func DefaultRule(now time.Time) SchedulingRule {
	threshold := 0.8
	return SchedulingRule{
		ID:                   DefaultRuleID,
		Name:                 "Default business hours",
		Enabled:              true,
		Frequency:            FrequencyDaily,
		PreferredTimes:       []string{"09:00", "13:00", "17:00"},
		DaysOfWeek:           []int{1, 2, 3, 4, 5},
		MaxPostsPerDay:       2,
		Categories:           []string{"finance", "accounting", "tax", "business"},
		AutoApproveThreshold: &threshold,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}
