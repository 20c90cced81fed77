package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"content-scheduler/internal/config"
	"content-scheduler/internal/logging"
	"content-scheduler/internal/models"
	"content-scheduler/internal/scheduler"
	"content-scheduler/internal/telemetry"
)

// TickLockKey keeps replicas from scanning the due set at the same time.
const TickLockKey = "lock:scheduler:tick"

const contentMissingMsg = "content not found"

// Outcome of processing one due post.
type Outcome string

const (
	OutcomePosted         Outcome = "posted"
	OutcomeRetry          Outcome = "retry"
	OutcomeFailed         Outcome = "failed"
	OutcomeContentMissing Outcome = "content_missing"
	OutcomeSkipped        Outcome = "skipped"
)

// TickReport summarizes one tick.
type TickReport struct {
	Due      int
	Outcomes map[Outcome]int
	Errors   int
	// Held is set when another replica owned the tick lock.
	Held bool
}

// Deps are the collaborators the processor drives.
type Deps struct {
	Posts     scheduler.PostStore
	Content   scheduler.ContentStore
	Publisher scheduler.Publisher
	Locker    scheduler.Locker
	Records   *scheduler.RecordLocks
	Clock     scheduler.Clock
	Logger    *logrus.Entry
}

// Processor drives the scheduler loop: every tick it publishes due posts and
// applies the fixed-delay retry policy.
type Processor struct {
	posts     scheduler.PostStore
	content   scheduler.ContentStore
	publisher scheduler.Publisher
	locker    scheduler.Locker
	records   *scheduler.RecordLocks
	clock     scheduler.Clock
	log       *logrus.Entry

	interval    time.Duration
	retryDelay  time.Duration
	maxAttempts int

	tickMu sync.Mutex

	mu       sync.Mutex
	cron     *cron.Cron
	stopCh   chan struct{}
	stopped  context.Context
	watchers sync.WaitGroup
}

func NewProcessor(cfg config.Config, d Deps) *Processor {
	if d.Clock == nil {
		d.Clock = scheduler.SystemClock{}
	}
	if d.Records == nil {
		d.Records = scheduler.NewRecordLocks()
	}
	if d.Logger == nil {
		d.Logger = logging.Component("worker")
	}
	p := &Processor{
		posts:       d.Posts,
		content:     d.Content,
		publisher:   d.Publisher,
		locker:      d.Locker,
		records:     d.Records,
		clock:       d.Clock,
		log:         d.Logger,
		interval:    cfg.TickInterval,
		retryDelay:  cfg.RetryDelay,
		maxAttempts: cfg.MaxAttempts,
	}
	if p.interval <= 0 {
		p.interval = time.Minute
	}
	if p.retryDelay <= 0 {
		p.retryDelay = 15 * time.Minute
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = 3
	}
	return p
}

// Start schedules ticks every interval until Stop is called or ctx is done.
// A tick that outlasts the interval delays the next one instead of overlapping it.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return nil
	}

	logger := cron.PrintfLogger(p.log)
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.DelayIfStillRunning(logger)))
	if _, err := c.AddFunc("@every "+p.interval.String(), func() { p.Tick(ctx) }); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}
	c.Start()
	p.cron = c
	p.stopped = nil
	p.log.WithFields(logrus.Fields{"interval": p.interval, "retry_delay": p.retryDelay, "max_attempts": p.maxAttempts}).Info("[SCHEDULER] loop started")

	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.watchers.Add(1)
	go func() {
		defer p.watchers.Done()
		select {
		case <-ctx.Done():
			p.Stop()
		case <-stopCh:
		}
	}()
	return nil
}

// Stop halts future ticks. The returned context is done once a tick already in
// progress has finished; in-flight publish calls are not interrupted.
func (p *Processor) Stop() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron == nil {
		if p.stopped != nil {
			return p.stopped
		}
		done, cancel := context.WithCancel(context.Background())
		cancel()
		return done
	}
	done := p.cron.Stop()
	close(p.stopCh)
	p.cron = nil
	p.stopCh = nil
	p.stopped = done
	p.log.Info("[SCHEDULER] loop stopped")
	return done
}

// Run starts the loop and blocks until ctx is cancelled and the last tick drained.
func (p *Processor) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	<-p.Stop().Done()
	return ctx.Err()
}

// Tick processes every due post once, sequentially. Errors on one post are
// logged and do not stop the rest of the tick.
func (p *Processor) Tick(ctx context.Context) TickReport {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	report := TickReport{Outcomes: make(map[Outcome]int)}
	started := time.Now()
	defer func() {
		telemetry.TicksTotal.Inc()
		telemetry.TickDuration.Observe(time.Since(started).Seconds())
	}()

	if p.locker != nil {
		unlock, ok, err := p.locker.TryLock(ctx, TickLockKey)
		if err != nil {
			p.log.WithError(err).Error("[SCHEDULER] tick lock unavailable")
			report.Errors++
			return report
		}
		if !ok {
			p.log.Debug("[SCHEDULER] tick owned by another replica")
			report.Held = true
			return report
		}
		defer unlock()
	}

	due, err := p.posts.ListDue(ctx, p.clock.Now())
	if err != nil {
		p.log.WithError(err).Error("[SCHEDULER] list due posts failed")
		report.Errors++
		return report
	}
	report.Due = len(due)
	telemetry.DuePostsGauge.Set(float64(len(due)))

	for _, post := range due {
		outcome, err := p.processSafely(ctx, post.ID)
		if err != nil {
			report.Errors++
			telemetry.TickErrors.Inc()
			p.log.WithField("post_id", post.ID).WithError(err).Error("[SCHEDULER] processing failed")
			continue
		}
		report.Outcomes[outcome]++
		if outcome != OutcomeSkipped {
			telemetry.PublishOutcomes.WithLabelValues(string(outcome)).Inc()
		}
	}
	if report.Due > 0 {
		p.log.WithFields(logrus.Fields{"due": report.Due, "errors": report.Errors}).Info("[SCHEDULER] tick complete")
	}
	return report
}

func (p *Processor) processSafely(ctx context.Context, id string) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = OutcomeSkipped, fmt.Errorf("panic: %v", r)
		}
	}()
	return p.process(ctx, id)
}

// process runs one publish attempt for post id. The record lock serializes
// goroutines in this process; the post lock excludes cancel and reschedule
// running in other replicas.
func (p *Processor) process(ctx context.Context, id string) (Outcome, error) {
	release := p.records.Lock(id)
	defer release()
	if p.locker != nil {
		unlock, err := p.locker.Lock(ctx, scheduler.PostLockKey(id))
		if err != nil {
			return OutcomeSkipped, fmt.Errorf("acquire post lock: %w", err)
		}
		defer unlock()
	}

	post, err := p.posts.GetPost(ctx, id)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("reload post: %w", err)
	}
	now := p.clock.Now()
	if post.Status != models.StatusScheduled || post.ScheduledFor.After(now) {
		return OutcomeSkipped, nil
	}

	post.Attempts++
	post.LastAttempt = &now
	entry := p.log.WithFields(logrus.Fields{"post_id": post.ID, "content_id": post.ContentID, "attempt": post.Attempts})

	item, err := p.content.GetContent(ctx, post.ContentID)
	if errors.Is(err, models.ErrContentNotFound) {
		msg := contentMissingMsg
		post.Status = models.StatusFailed
		post.Error = &msg
		if _, err := p.posts.UpdatePost(ctx, post); err != nil {
			return OutcomeSkipped, fmt.Errorf("persist failure: %w", err)
		}
		entry.Warn("[SCHEDULER] content missing, post failed")
		return OutcomeContentMissing, nil
	}
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("load content: %w", err)
	}

	// The publish call runs to completion even if the loop is stopped meanwhile.
	result, pubErr := p.publisher.Publish(context.WithoutCancel(ctx), item)
	if pubErr == nil && result.Success {
		post.Status = models.StatusPosted
		post.PostedAt = &now
		post.Error = nil
		// The channel accepted the item, so the content is published even if
		// the post record can no longer be written.
		if err := p.content.MarkPublished(ctx, item.ID, result.ExternalRef); err != nil {
			entry.WithError(err).Error("[SCHEDULER] mark content published failed")
		}
		if _, err := p.posts.UpdatePost(ctx, post); err != nil {
			return OutcomeSkipped, fmt.Errorf("persist posted state: %w", err)
		}
		entry.WithField("external_ref", result.ExternalRef).Info("[SCHEDULER] published")
		return OutcomePosted, nil
	}

	msg := failureMessage(result, pubErr)
	post.Error = &msg
	outcome := OutcomeRetry
	if post.Attempts < p.maxAttempts {
		post.ScheduledFor = now.Add(p.retryDelay)
	} else {
		post.Status = models.StatusFailed
		outcome = OutcomeFailed
	}
	if _, err := p.posts.UpdatePost(ctx, post); err != nil {
		return OutcomeSkipped, fmt.Errorf("persist attempt: %w", err)
	}
	if outcome == OutcomeRetry {
		entry.WithFields(logrus.Fields{"error": msg, "next_run": post.ScheduledFor.Format(time.RFC3339)}).Warn("[SCHEDULER] publish failed, retry scheduled")
	} else {
		entry.WithField("error", msg).Error("[SCHEDULER] publish failed permanently")
	}
	return outcome, nil
}

func failureMessage(result models.PublishResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if result.ErrorMessage != "" {
		return result.ErrorMessage
	}
	return "publish failed"
}
