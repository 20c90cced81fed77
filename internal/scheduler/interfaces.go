// Package scheduler exposes the content scheduling surface: direct and rule-driven
// slot booking, immediate publishing, cancel/reschedule and reporting.
package scheduler

import (
	"context"
	"time"

	"content-scheduler/internal/models"
)

// PostStore persists scheduled post lifecycle records.
type PostStore interface {
	SavePost(ctx context.Context, post models.ScheduledPost) error
	// UpdatePost persists post if the stored version matches post.Version and
	// returns the record with its new version. Terminal records are immutable.
	UpdatePost(ctx context.Context, post models.ScheduledPost) (models.ScheduledPost, error)
	GetPost(ctx context.Context, id string) (models.ScheduledPost, error)
	ListDue(ctx context.Context, now time.Time) ([]models.ScheduledPost, error)
	ListByStatus(ctx context.Context, status string) ([]models.ScheduledPost, error)
	ListCreatedSince(ctx context.Context, since time.Time) ([]models.ScheduledPost, error)
}

// RuleStore holds named cadence configurations.
type RuleStore interface {
	UpsertRule(ctx context.Context, rule models.SchedulingRule) (models.SchedulingRule, error)
	ListRules(ctx context.Context) ([]models.SchedulingRule, error)
	GetRule(ctx context.Context, id string) (models.SchedulingRule, error)
}

// ContentStore is the collaborator that owns content items.
type ContentStore interface {
	GetContent(ctx context.Context, id string) (models.ContentItem, error)
	MarkPublished(ctx context.Context, id string, externalRef string) error
	MarkApproved(ctx context.Context, id string, scheduledFor time.Time) error
}

// Publisher delivers a content item to the external channel. A returned error
// and a result with Success=false are both treated as a failed attempt.
type Publisher interface {
	Publish(ctx context.Context, item models.ContentItem) (models.PublishResult, error)
}

// Locker provides named mutual exclusion, possibly across processes.
type Locker interface {
	// Lock blocks until the lock is held or ctx is done.
	Lock(ctx context.Context, key string) (unlock func(), err error)
	// TryLock acquires the lock only if it is free.
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
