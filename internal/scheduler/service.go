package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"content-scheduler/internal/logging"
	"content-scheduler/internal/models"
	"content-scheduler/internal/slots"
	"content-scheduler/internal/stats"
	"content-scheduler/internal/telemetry"
)

// SlotLockKey guards allocate-then-persist sequences against each other.
const SlotLockKey = "lock:slots"

// PostLockKey names the lock held while a single post is read, published or
// mutated.
func PostLockKey(id string) string { return "lock:post:" + id }

// staleRetries bounds how often a cancel/reschedule re-reads a record that
// changed under it.
const staleRetries = 3

// Deps are the collaborators a Service is built from.
type Deps struct {
	Posts     PostStore
	Rules     RuleStore
	Content   ContentStore
	Publisher Publisher
	Locker    Locker
	Records   *RecordLocks
	Clock     Clock
	Allocator slots.Allocator
	Logger    *logrus.Entry
}

// Service is the synchronous request/response surface of the engine.
type Service struct {
	posts     PostStore
	rules     RuleStore
	content   ContentStore
	publisher Publisher
	locker    Locker
	records   *RecordLocks
	clock     Clock
	allocator slots.Allocator
	stats     *stats.Engine
	log       *logrus.Entry
}

func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Records == nil {
		d.Records = NewRecordLocks()
	}
	if d.Logger == nil {
		d.Logger = logging.Component("scheduler")
	}
	return &Service{
		posts:     d.Posts,
		rules:     d.Rules,
		content:   d.Content,
		publisher: d.Publisher,
		locker:    d.Locker,
		records:   d.Records,
		clock:     d.Clock,
		allocator: d.Allocator,
		stats:     stats.New(d.Posts, d.Clock.Now, d.Allocator.Location),
		log:       d.Logger,
	}
}

// SchedulePost books contentID at a caller-chosen time.
func (s *Service) SchedulePost(ctx context.Context, contentID string, when time.Time) (models.ScheduledPost, error) {
	if err := models.ValidateSchedule(contentID, when); err != nil {
		return models.ScheduledPost{}, err
	}
	unlock, err := s.lockSlots(ctx)
	if err != nil {
		return models.ScheduledPost{}, err
	}
	defer unlock()

	booked, err := s.posts.ListByStatus(ctx, models.StatusScheduled)
	if err != nil {
		return models.ScheduledPost{}, fmt.Errorf("list scheduled: %w", err)
	}
	if slots.Conflicts(when, scheduledTimes(booked, ""), s.tolerance()) {
		return models.ScheduledPost{}, models.ErrSlotConflict
	}

	post := s.newPost(contentID, when)
	if err := s.posts.SavePost(ctx, post); err != nil {
		return models.ScheduledPost{}, err
	}
	telemetry.PostsScheduled.WithLabelValues("direct").Inc()
	s.log.WithFields(logrus.Fields{"post_id": post.ID, "content_id": contentID, "scheduled_for": when}).Info("post scheduled")
	return post, nil
}

// PublishImmediately makes exactly one publish attempt for item. It never
// creates or touches a scheduled post and never retries.
func (s *Service) PublishImmediately(ctx context.Context, item models.ContentItem) (models.PublishResult, error) {
	if item.ID == "" {
		return models.PublishResult{}, models.NewValidationError("content id is required")
	}
	result, err := s.publisher.Publish(ctx, item)
	if err != nil {
		result = models.PublishResult{Success: false, ErrorMessage: err.Error()}
	}
	entry := s.log.WithField("content_id", item.ID)
	if !result.Success {
		if result.ErrorMessage == "" {
			result.ErrorMessage = "publish failed"
		}
		telemetry.ImmediateResults.WithLabelValues("failure").Inc()
		entry.WithField("error", result.ErrorMessage).Warn("immediate publish failed")
		return result, nil
	}

	telemetry.ImmediateResults.WithLabelValues("success").Inc()
	entry.WithField("external_ref", result.ExternalRef).Info("published immediately")
	if err := s.content.MarkPublished(ctx, item.ID, result.ExternalRef); err != nil {
		if errors.Is(err, models.ErrContentNotFound) {
			entry.Debug("published item is not tracked by the content store")
			return result, nil
		}
		return result, fmt.Errorf("mark published: %w", err)
	}
	return result, nil
}

// Upcoming lists scheduled posts in ascending time order. limit <= 0 returns all.
func (s *Service) Upcoming(ctx context.Context, limit int) ([]models.ScheduledPost, error) {
	posts, err := s.posts.ListByStatus(ctx, models.StatusScheduled)
	if err != nil {
		return nil, fmt.Errorf("list scheduled: %w", err)
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].ScheduledFor.Before(posts[j].ScheduledFor) })
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// Cancel moves a scheduled post to cancelled. It reports false, without
// mutating anything, when the post is no longer scheduled.
func (s *Service) Cancel(ctx context.Context, id string) (bool, error) {
	ok, err := s.mutate(ctx, id, func(p *models.ScheduledPost) (bool, error) {
		p.Status = models.StatusCancelled
		return true, nil
	})
	if ok {
		telemetry.PostsCancelled.Inc()
		s.log.WithField("post_id", id).Info("post cancelled")
	}
	return ok, err
}

// Reschedule moves a scheduled post to newTime, keeping the slot spacing intact.
func (s *Service) Reschedule(ctx context.Context, id string, newTime time.Time) (bool, error) {
	if newTime.IsZero() {
		return false, models.NewValidationError("scheduled_for is required")
	}
	unlock, err := s.lockSlots(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	booked, err := s.posts.ListByStatus(ctx, models.StatusScheduled)
	if err != nil {
		return false, fmt.Errorf("list scheduled: %w", err)
	}
	others := scheduledTimes(booked, id)

	ok, err := s.mutate(ctx, id, func(p *models.ScheduledPost) (bool, error) {
		if slots.Conflicts(newTime, others, s.tolerance()) {
			return false, models.ErrSlotConflict
		}
		p.ScheduledFor = newTime
		return true, nil
	})
	if ok {
		s.log.WithFields(logrus.Fields{"post_id": id, "scheduled_for": newTime}).Info("post rescheduled")
	}
	return ok, err
}

// mutate applies fn to a scheduled post under its record and post locks,
// re-reading on version conflicts. Posts that are not scheduled are left alone.
func (s *Service) mutate(ctx context.Context, id string, fn func(p *models.ScheduledPost) (bool, error)) (bool, error) {
	release := s.records.Lock(id)
	defer release()
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, PostLockKey(id))
		if err != nil {
			return false, fmt.Errorf("acquire post lock: %w", err)
		}
		defer unlock()
	}

	for i := 0; i < staleRetries; i++ {
		post, err := s.posts.GetPost(ctx, id)
		if err != nil {
			return false, err
		}
		if post.Status != models.StatusScheduled {
			return false, nil
		}
		apply, err := fn(&post)
		if err != nil || !apply {
			return false, err
		}
		_, err = s.posts.UpdatePost(ctx, post)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, models.ErrTerminalPost):
			return false, nil
		case errors.Is(err, models.ErrStaleRecord):
			continue
		default:
			return false, err
		}
	}
	return false, models.ErrStaleRecord
}

// UpsertRule validates and stores rule, refreshing its update time.
func (s *Service) UpsertRule(ctx context.Context, rule models.SchedulingRule) (models.SchedulingRule, error) {
	if rule.Frequency == "" {
		rule.Frequency = models.FrequencyDaily
	}
	if err := rule.Validate(); err != nil {
		return models.SchedulingRule{}, models.NewValidationError(err.Error())
	}
	now := s.clock.Now()
	rule.UpdatedAt = now
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	saved, err := s.rules.UpsertRule(ctx, rule)
	if err != nil {
		return models.SchedulingRule{}, err
	}
	s.log.WithFields(logrus.Fields{"rule_id": rule.ID, "enabled": rule.Enabled}).Info("rule saved")
	return saved, nil
}

func (s *Service) ListRules(ctx context.Context) ([]models.SchedulingRule, error) {
	return s.rules.ListRules(ctx)
}

func (s *Service) GetRule(ctx context.Context, id string) (models.SchedulingRule, error) {
	return s.rules.GetRule(ctx, id)
}

func (s *Service) PostingStatistics(ctx context.Context, days int) (models.PostingStatistics, error) {
	return s.stats.PostingStatistics(ctx, days)
}

func (s *Service) OptimalPostingTimes(ctx context.Context) (models.OptimalTimes, error) {
	return s.stats.OptimalPostingTimes(ctx)
}

func (s *Service) newPost(contentID string, when time.Time) models.ScheduledPost {
	return models.ScheduledPost{
		ID:           uuid.New().String(),
		ContentID:    contentID,
		ScheduledFor: when,
		Status:       models.StatusScheduled,
		Attempts:     0,
		CreatedAt:    s.clock.Now(),
	}
}

func (s *Service) lockSlots(ctx context.Context) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	unlock, err := s.locker.Lock(ctx, SlotLockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire slot lock: %w", err)
	}
	return unlock, nil
}

func (s *Service) tolerance() time.Duration {
	if s.allocator.Tolerance <= 0 {
		return slots.DefaultTolerance
	}
	return s.allocator.Tolerance
}

// scheduledTimes collects booked times, leaving out the post with id skip.
func scheduledTimes(posts []models.ScheduledPost, skip string) []time.Time {
	out := make([]time.Time, 0, len(posts))
	for _, p := range posts {
		if p.ID == skip || p.Status != models.StatusScheduled {
			continue
		}
		out = append(out, p.ScheduledFor)
	}
	return out
}
