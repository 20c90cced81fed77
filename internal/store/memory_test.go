package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-scheduler/internal/models"
)

var t0 = time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC)

func newPost(id string, at time.Time) models.ScheduledPost {
	return models.ScheduledPost{ID: id, ContentID: "c-" + id, ScheduledFor: at, Status: models.StatusScheduled, CreatedAt: t0}
}

func TestMemorySeedsDefaultRule(t *testing.T) {
	m := NewMemory(t0)
	rule, err := m.GetRule(context.Background(), models.DefaultRuleID)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "13:00", "17:00"}, rule.PreferredTimes)

	_, err = m.GetRule(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrRuleNotFound)
}

func TestMemoryUpsertRuleKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(t0)
	rule := models.DefaultRule(t0.Add(time.Hour))
	rule.Name = "renamed"

	got, err := m.UpsertRule(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, t0, got.CreatedAt)
	assert.Equal(t, t0.Add(time.Hour), got.UpdatedAt)

	rules, err := m.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "renamed", rules[0].Name)
}

func TestMemoryUpdatePostVersioning(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(t0)
	require.NoError(t, m.SavePost(ctx, newPost("p1", t0)))

	post, err := m.GetPost(ctx, "p1")
	require.NoError(t, err)
	post.Attempts = 1
	updated, err := m.UpdatePost(ctx, post)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)

	// A writer still holding version 0 loses.
	post.Attempts = 2
	_, err = m.UpdatePost(ctx, post)
	assert.ErrorIs(t, err, models.ErrStaleRecord)

	updated.Status = models.StatusPosted
	updated, err = m.UpdatePost(ctx, updated)
	require.NoError(t, err)

	updated.Status = models.StatusScheduled
	_, err = m.UpdatePost(ctx, updated)
	assert.ErrorIs(t, err, models.ErrTerminalPost)

	_, err = m.UpdatePost(ctx, newPost("nope", t0))
	assert.ErrorIs(t, err, models.ErrPostNotFound)
}

func TestMemoryListDueOnlyScheduled(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(t0)
	require.NoError(t, m.SavePost(ctx, newPost("late", t0.Add(-time.Minute))))
	require.NoError(t, m.SavePost(ctx, newPost("later", t0.Add(-2*time.Minute))))
	require.NoError(t, m.SavePost(ctx, newPost("future", t0.Add(time.Minute))))
	done := newPost("done", t0.Add(-time.Hour))
	done.Status = models.StatusPosted
	require.NoError(t, m.SavePost(ctx, done))

	due, err := m.ListDue(ctx, t0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "later", due[0].ID)
	assert.Equal(t, "late", due[1].ID)

	posted, err := m.ListByStatus(ctx, models.StatusPosted)
	require.NoError(t, err)
	require.Len(t, posted, 1)
}

func TestMemoryContentCallbacks(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(t0)
	require.NoError(t, m.UpsertContent(ctx, models.ContentItem{ID: "c1", Category: "tax"}))

	require.NoError(t, m.MarkApproved(ctx, "c1", t0))
	require.NoError(t, m.MarkPublished(ctx, "c1", "ext-1"))
	item, err := m.GetContent(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, item.Approved)
	assert.True(t, item.Published)
	require.NotNil(t, item.ExternalRef)
	assert.Equal(t, "ext-1", *item.ExternalRef)

	assert.ErrorIs(t, m.MarkPublished(ctx, "missing", ""), models.ErrContentNotFound)
	_, err = m.GetContent(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrContentNotFound)
}
