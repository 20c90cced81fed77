package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Validate checks the rule fields before an upsert.
func (r SchedulingRule) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Frequency, validation.In(FrequencyDaily, FrequencyWeekly, FrequencyCustom)),
		validation.Field(&r.PreferredTimes, validation.Required, validation.Each(validation.Match(clockPattern).Error("must be HH:MM"))),
		validation.Field(&r.DaysOfWeek, validation.Required, validation.Each(validation.Min(0), validation.Max(6))),
		validation.Field(&r.MaxPostsPerDay, validation.Required, validation.Min(1)),
		validation.Field(&r.Categories, validation.Each(validation.Required)),
		validation.Field(&r.AutoApproveThreshold, validation.Min(0.0), validation.Max(1.0)),
	)
}

// ParseClock splits an "HH:MM" time-of-day into hour and minute.
func ParseClock(v string) (hour, minute int, err error) {
	if !clockPattern.MatchString(v) {
		return 0, 0, fmt.Errorf("invalid time of day %q", v)
	}
	parts := strings.SplitN(v, ":", 2)
	hour, _ = strconv.Atoi(parts[0])
	minute, _ = strconv.Atoi(parts[1])
	return hour, minute, nil
}

// ValidateSchedule checks a direct scheduling request.
func ValidateSchedule(contentID string, when time.Time) error {
	if strings.TrimSpace(contentID) == "" {
		return NewValidationError("content_id is required")
	}
	if when.IsZero() {
		return NewValidationError("scheduled_for is required")
	}
	return nil
}
