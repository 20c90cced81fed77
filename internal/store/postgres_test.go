package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-scheduler/internal/models"
)

// newPostgres connects to POSTGRES_DSN and applies migrations. Tests are
// skipped when no database is configured.
func newPostgres(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	st, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.Ping(ctx))
	require.NoError(t, st.RunMigrations(ctx))
	require.NoError(t, st.RunMigrations(ctx), "migrations are re-runnable")
	return st
}

func pgTime(day, hour int) time.Time {
	return time.Date(2026, time.October, day, hour, 0, 0, 0, time.UTC)
}

func TestPostgresPostVersioning(t *testing.T) {
	st := newPostgres(t)
	ctx := context.Background()
	id := uuid.NewString()

	post := models.ScheduledPost{ID: id, ContentID: "c-" + id, ScheduledFor: pgTime(14, 9), Status: models.StatusScheduled, CreatedAt: pgTime(14, 8)}
	require.NoError(t, st.SavePost(ctx, post))

	got, err := st.GetPost(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.ScheduledFor.Equal(post.ScheduledFor))
	assert.Nil(t, got.Error)
	assert.Nil(t, got.LastAttempt)
	assert.Nil(t, got.PostedAt)
	assert.Zero(t, got.Version)

	attempted := pgTime(14, 9)
	msg := "channel down"
	got.Attempts = 1
	got.LastAttempt = &attempted
	got.Error = &msg
	got.ScheduledFor = pgTime(14, 10)
	updated, err := st.UpdatePost(ctx, got)
	require.NoError(t, err)
	assert.EqualValues(t, 1, updated.Version)

	_, err = st.UpdatePost(ctx, got)
	assert.ErrorIs(t, err, models.ErrStaleRecord)

	reloaded, err := st.GetPost(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Error)
	assert.Equal(t, msg, *reloaded.Error)
	require.NotNil(t, reloaded.LastAttempt)
	assert.True(t, reloaded.LastAttempt.Equal(attempted))

	reloaded.Status = models.StatusFailed
	_, err = st.UpdatePost(ctx, reloaded)
	require.NoError(t, err)

	final, err := st.GetPost(ctx, id)
	require.NoError(t, err)
	final.Status = models.StatusScheduled
	_, err = st.UpdatePost(ctx, final)
	assert.ErrorIs(t, err, models.ErrTerminalPost)

	_, err = st.GetPost(ctx, uuid.NewString())
	assert.ErrorIs(t, err, models.ErrPostNotFound)
}

func TestPostgresListDue(t *testing.T) {
	st := newPostgres(t)
	ctx := context.Background()
	ids := map[string]bool{}
	for _, at := range []time.Time{pgTime(1, 12), pgTime(1, 9), pgTime(30, 9)} {
		id := uuid.NewString()
		ids[id] = true
		require.NoError(t, st.SavePost(ctx, models.ScheduledPost{ID: id, ContentID: "c", ScheduledFor: at, Status: models.StatusScheduled, CreatedAt: at}))
	}

	due, err := st.ListDue(ctx, pgTime(2, 0))
	require.NoError(t, err)
	var mine []models.ScheduledPost
	for _, p := range due {
		if ids[p.ID] {
			mine = append(mine, p)
		}
	}
	require.Len(t, mine, 2)
	assert.True(t, mine[0].ScheduledFor.Before(mine[1].ScheduledFor))
}

func TestPostgresRulesAndContent(t *testing.T) {
	st := newPostgres(t)
	ctx := context.Background()

	rule := models.DefaultRule(pgTime(14, 8))
	rule.ID = "rule-" + uuid.NewString()
	require.NoError(t, st.SeedDefaultRule(ctx, rule))
	require.NoError(t, st.SeedDefaultRule(ctx, rule))

	rule.Categories = nil
	rule.AutoApproveThreshold = nil
	rule.CreatedAt = pgTime(20, 8)
	saved, err := st.UpsertRule(ctx, rule)
	require.NoError(t, err)
	assert.True(t, saved.CreatedAt.Equal(pgTime(14, 8)), "created_at survives replacement")

	got, err := st.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got.DaysOfWeek)
	assert.Equal(t, []string{"09:00", "13:00", "17:00"}, got.PreferredTimes)
	assert.Empty(t, got.Categories)
	assert.Nil(t, got.AutoApproveThreshold)

	_, err = st.GetRule(ctx, "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, models.ErrRuleNotFound)

	item := models.ContentItem{ID: "content-" + uuid.NewString(), Category: "tax", RelevanceScore: 0.9, Text: "hello"}
	require.NoError(t, st.UpsertContent(ctx, item))
	require.NoError(t, st.MarkApproved(ctx, item.ID, pgTime(15, 9)))
	require.NoError(t, st.MarkPublished(ctx, item.ID, "ext-1"))

	stored, err := st.GetContent(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, stored.Approved)
	assert.True(t, stored.Published)
	require.NotNil(t, stored.ScheduledFor)
	assert.True(t, stored.ScheduledFor.Equal(pgTime(15, 9)))
	require.NotNil(t, stored.ExternalRef)
	assert.Equal(t, "ext-1", *stored.ExternalRef)
	assert.Empty(t, stored.Hashtags)

	assert.ErrorIs(t, st.MarkPublished(ctx, "missing", ""), models.ErrContentNotFound)
	_, err = st.GetContent(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrContentNotFound)
}
