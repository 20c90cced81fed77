package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"content-scheduler/internal/models"
)

// Store wraps pgxpool for Postgres persistence of posts, rules and content items.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const postColumns = `id, content_id, scheduled_for, status, attempts, last_attempt, error, created_at, posted_at, version`

// SavePost inserts a new scheduled post row.
func (s *Store) SavePost(ctx context.Context, p models.ScheduledPost) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_posts (`+postColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.ContentID, p.ScheduledFor, p.Status, p.Attempts, p.LastAttempt, p.Error, p.CreatedAt, p.PostedAt, p.Version)
	if err != nil {
		return fmt.Errorf("insert scheduled post: %w", err)
	}
	return nil
}

// UpdatePost writes the mutable fields of a post guarded by its version.
// Rows already in a terminal state are never rewritten.
func (s *Store) UpdatePost(ctx context.Context, p models.ScheduledPost) (models.ScheduledPost, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_posts
		SET scheduled_for = $3, status = $4, attempts = $5, last_attempt = $6, error = $7, posted_at = $8, version = version + 1
		WHERE id = $1 AND version = $2 AND status = $9
	`, p.ID, p.Version, p.ScheduledFor, p.Status, p.Attempts, p.LastAttempt, p.Error, p.PostedAt, models.StatusScheduled)
	if err != nil {
		return models.ScheduledPost{}, fmt.Errorf("update scheduled post: %w", err)
	}
	if tag.RowsAffected() == 1 {
		p.Version++
		return p, nil
	}

	current, err := s.GetPost(ctx, p.ID)
	if err != nil {
		return models.ScheduledPost{}, err
	}
	if current.Terminal() {
		return models.ScheduledPost{}, models.ErrTerminalPost
	}
	return models.ScheduledPost{}, models.ErrStaleRecord
}

// GetPost fetches a scheduled post by id.
func (s *Store) GetPost(ctx context.Context, id string) (models.ScheduledPost, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM scheduled_posts WHERE id = $1`, id)
	post, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ScheduledPost{}, models.ErrPostNotFound
	}
	return post, err
}

// ListDue returns scheduled posts whose time has come, oldest first.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]models.ScheduledPost, error) {
	return s.queryPosts(ctx, `
		SELECT `+postColumns+` FROM scheduled_posts
		WHERE status = $1 AND scheduled_for <= $2
		ORDER BY scheduled_for ASC, id ASC
	`, models.StatusScheduled, now)
}

func (s *Store) ListByStatus(ctx context.Context, status string) ([]models.ScheduledPost, error) {
	return s.queryPosts(ctx, `
		SELECT `+postColumns+` FROM scheduled_posts
		WHERE status = $1
		ORDER BY scheduled_for ASC, id ASC
	`, status)
}

func (s *Store) ListCreatedSince(ctx context.Context, since time.Time) ([]models.ScheduledPost, error) {
	return s.queryPosts(ctx, `
		SELECT `+postColumns+` FROM scheduled_posts
		WHERE created_at >= $1
		ORDER BY scheduled_for ASC, id ASC
	`, since)
}

func (s *Store) queryPosts(ctx context.Context, sql string, args ...any) ([]models.ScheduledPost, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query scheduled posts: %w", err)
	}
	defer rows.Close()

	out := make([]models.ScheduledPost, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scheduled posts: %w", err)
	}
	return out, nil
}

func scanPost(row pgx.Row) (models.ScheduledPost, error) {
	var p models.ScheduledPost
	var lastErr pgtype.Text
	if err := row.Scan(&p.ID, &p.ContentID, &p.ScheduledFor, &p.Status, &p.Attempts, &p.LastAttempt, &lastErr, &p.CreatedAt, &p.PostedAt, &p.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("scan scheduled post: %w", err)
	}
	p.Error = textPtr(lastErr)
	return p, nil
}

const ruleColumns = `id, name, enabled, frequency, preferred_times, days_of_week, max_posts_per_day, categories, auto_approve_threshold, created_at, updated_at`

// UpsertRule inserts or replaces a rule by id. created_at survives replacement.
func (s *Store) UpsertRule(ctx context.Context, r models.SchedulingRule) (models.SchedulingRule, error) {
	if r.Categories == nil {
		r.Categories = []string{}
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO scheduling_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			enabled = EXCLUDED.enabled,
			frequency = EXCLUDED.frequency,
			preferred_times = EXCLUDED.preferred_times,
			days_of_week = EXCLUDED.days_of_week,
			max_posts_per_day = EXCLUDED.max_posts_per_day,
			categories = EXCLUDED.categories,
			auto_approve_threshold = EXCLUDED.auto_approve_threshold,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`, r.ID, r.Name, r.Enabled, r.Frequency, r.PreferredTimes, r.DaysOfWeek, r.MaxPostsPerDay, r.Categories, r.AutoApproveThreshold, r.CreatedAt, r.UpdatedAt).Scan(&r.CreatedAt)
	if err != nil {
		return models.SchedulingRule{}, fmt.Errorf("upsert rule: %w", err)
	}
	return r, nil
}

// SeedDefaultRule inserts the default rule unless one with its id already exists.
func (s *Store) SeedDefaultRule(ctx context.Context, r models.SchedulingRule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduling_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, r.Name, r.Enabled, r.Frequency, r.PreferredTimes, r.DaysOfWeek, r.MaxPostsPerDay, r.Categories, r.AutoApproveThreshold, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("seed default rule: %w", err)
	}
	return nil
}

func (s *Store) ListRules(ctx context.Context) ([]models.SchedulingRule, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+ruleColumns+` FROM scheduling_rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	out := make([]models.SchedulingRule, 0)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

func (s *Store) GetRule(ctx context.Context, id string) (models.SchedulingRule, error) {
	r, err := scanRule(s.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM scheduling_rules WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.SchedulingRule{}, models.ErrRuleNotFound
	}
	return r, err
}

func scanRule(row pgx.Row) (models.SchedulingRule, error) {
	var r models.SchedulingRule
	if err := row.Scan(&r.ID, &r.Name, &r.Enabled, &r.Frequency, &r.PreferredTimes, &r.DaysOfWeek, &r.MaxPostsPerDay, &r.Categories, &r.AutoApproveThreshold, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan rule: %w", err)
	}
	return r, nil
}

const contentColumns = `id, category, relevance_score, approved, published, scheduled_for, external_ref, body, hashtags, media_url`

// UpsertContent registers a content item handed over by the content service.
func (s *Store) UpsertContent(ctx context.Context, c models.ContentItem) error {
	if c.Hashtags == nil {
		c.Hashtags = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO content_items (`+contentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			category = EXCLUDED.category,
			relevance_score = EXCLUDED.relevance_score,
			approved = EXCLUDED.approved,
			published = EXCLUDED.published,
			scheduled_for = EXCLUDED.scheduled_for,
			external_ref = EXCLUDED.external_ref,
			body = EXCLUDED.body,
			hashtags = EXCLUDED.hashtags,
			media_url = EXCLUDED.media_url
	`, c.ID, c.Category, c.RelevanceScore, c.Approved, c.Published, c.ScheduledFor, c.ExternalRef, c.Text, c.Hashtags, c.MediaURL)
	if err != nil {
		return fmt.Errorf("upsert content: %w", err)
	}
	return nil
}

func (s *Store) GetContent(ctx context.Context, id string) (models.ContentItem, error) {
	var c models.ContentItem
	var ref pgtype.Text
	err := s.pool.QueryRow(ctx, `SELECT `+contentColumns+` FROM content_items WHERE id = $1`, id).
		Scan(&c.ID, &c.Category, &c.RelevanceScore, &c.Approved, &c.Published, &c.ScheduledFor, &ref, &c.Text, &c.Hashtags, &c.MediaURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ContentItem{}, models.ErrContentNotFound
	}
	if err != nil {
		return models.ContentItem{}, fmt.Errorf("scan content: %w", err)
	}
	c.ExternalRef = textPtr(ref)
	return c, nil
}

// MarkPublished flags the content item as published with the channel's reference.
func (s *Store) MarkPublished(ctx context.Context, id string, externalRef string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE content_items SET published = TRUE, external_ref = $2 WHERE id = $1
	`, id, emptyToNil(externalRef))
	if err != nil {
		return fmt.Errorf("mark content published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrContentNotFound
	}
	return nil
}

// MarkApproved flags an auto-approved item and stamps its slot.
func (s *Store) MarkApproved(ctx context.Context, id string, scheduledFor time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE content_items SET approved = TRUE, scheduled_for = $2 WHERE id = $1
	`, id, scheduledFor)
	if err != nil {
		return fmt.Errorf("mark content approved: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrContentNotFound
	}
	return nil
}

// Ping checks connectivity for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
