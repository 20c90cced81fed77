package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"content-scheduler/internal/models"
)

// Memory is an in-process implementation of the post, rule and content stores.
// It is used by tests and by single-process deployments with STORE_BACKEND=memory.
type Memory struct {
	mu      sync.RWMutex
	posts   map[string]models.ScheduledPost
	rules   map[string]models.SchedulingRule
	content map[string]models.ContentItem
}

// NewMemory builds an empty store seeded with the default rule.
func NewMemory(now time.Time) *Memory {
	m := &Memory{
		posts:   make(map[string]models.ScheduledPost),
		rules:   make(map[string]models.SchedulingRule),
		content: make(map[string]models.ContentItem),
	}
	def := models.DefaultRule(now)
	m.rules[def.ID] = def
	return m
}

func (m *Memory) SavePost(_ context.Context, post models.ScheduledPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[post.ID] = clonePost(post)
	return nil
}

// UpdatePost replaces a scheduled post if its version still matches.
func (m *Memory) UpdatePost(_ context.Context, post models.ScheduledPost) (models.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.posts[post.ID]
	if !ok {
		return models.ScheduledPost{}, models.ErrPostNotFound
	}
	if current.Terminal() {
		return models.ScheduledPost{}, models.ErrTerminalPost
	}
	if current.Version != post.Version {
		return models.ScheduledPost{}, models.ErrStaleRecord
	}
	post.Version++
	m.posts[post.ID] = clonePost(post)
	return clonePost(post), nil
}

func (m *Memory) GetPost(_ context.Context, id string) (models.ScheduledPost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	post, ok := m.posts[id]
	if !ok {
		return models.ScheduledPost{}, models.ErrPostNotFound
	}
	return clonePost(post), nil
}

func (m *Memory) ListDue(_ context.Context, now time.Time) ([]models.ScheduledPost, error) {
	return m.filter(func(p models.ScheduledPost) bool {
		return p.Status == models.StatusScheduled && !p.ScheduledFor.After(now)
	}), nil
}

func (m *Memory) ListByStatus(_ context.Context, status string) ([]models.ScheduledPost, error) {
	return m.filter(func(p models.ScheduledPost) bool { return p.Status == status }), nil
}

func (m *Memory) ListCreatedSince(_ context.Context, since time.Time) ([]models.ScheduledPost, error) {
	return m.filter(func(p models.ScheduledPost) bool { return !p.CreatedAt.Before(since) }), nil
}

func (m *Memory) filter(keep func(models.ScheduledPost) bool) []models.ScheduledPost {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ScheduledPost, 0)
	for _, p := range m.posts {
		if keep(p) {
			out = append(out, clonePost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledFor.Before(out[j].ScheduledFor)
	})
	return out
}

// UpsertRule inserts or replaces a rule, keeping the original creation time.
func (m *Memory) UpsertRule(_ context.Context, rule models.SchedulingRule) (models.SchedulingRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rules[rule.ID]; ok {
		rule.CreatedAt = existing.CreatedAt
	}
	m.rules[rule.ID] = cloneRule(rule)
	return cloneRule(rule), nil
}

func (m *Memory) ListRules(_ context.Context) ([]models.SchedulingRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.SchedulingRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, cloneRule(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetRule(_ context.Context, id string) (models.SchedulingRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rule, ok := m.rules[id]
	if !ok {
		return models.SchedulingRule{}, models.ErrRuleNotFound
	}
	return cloneRule(rule), nil
}

// UpsertContent registers or replaces a content item.
func (m *Memory) UpsertContent(_ context.Context, item models.ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[item.ID] = item
	return nil
}

func (m *Memory) GetContent(_ context.Context, id string) (models.ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.content[id]
	if !ok {
		return models.ContentItem{}, models.ErrContentNotFound
	}
	return item, nil
}

func (m *Memory) MarkPublished(_ context.Context, id string, externalRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.content[id]
	if !ok {
		return models.ErrContentNotFound
	}
	item.Published = true
	item.ExternalRef = emptyToNil(externalRef)
	m.content[id] = item
	return nil
}

func (m *Memory) MarkApproved(_ context.Context, id string, scheduledFor time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.content[id]
	if !ok {
		return models.ErrContentNotFound
	}
	item.Approved = true
	item.ScheduledFor = &scheduledFor
	m.content[id] = item
	return nil
}

func clonePost(p models.ScheduledPost) models.ScheduledPost {
	if p.LastAttempt != nil {
		v := *p.LastAttempt
		p.LastAttempt = &v
	}
	if p.PostedAt != nil {
		v := *p.PostedAt
		p.PostedAt = &v
	}
	if p.Error != nil {
		v := *p.Error
		p.Error = &v
	}
	return p
}

func cloneRule(r models.SchedulingRule) models.SchedulingRule {
	r.PreferredTimes = append([]string(nil), r.PreferredTimes...)
	r.DaysOfWeek = append([]int(nil), r.DaysOfWeek...)
	r.Categories = append([]string(nil), r.Categories...)
	if r.AutoApproveThreshold != nil {
		v := *r.AutoApproveThreshold
		r.AutoApproveThreshold = &v
	}
	return r
}

func emptyToNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
