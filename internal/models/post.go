package models

import (
	"time"
)

// Post lifecycle states persisted by the post store.
const (
	StatusScheduled = "scheduled"
	StatusPosted    = "posted"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// ScheduledPost binds a content item to a publish time and tracks its attempts.
type ScheduledPost struct {
	ID           string     `json:"id"`
	ContentID    string     `json:"content_id"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	LastAttempt  *time.Time `json:"last_attempt,omitempty"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	PostedAt     *time.Time `json:"posted_at,omitempty"`
	Version      int64      `json:"version"`
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusPosted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the post has reached a final state.
func (p ScheduledPost) Terminal() bool {
	return IsTerminal(p.Status)
}
