package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-scheduler/internal/config"
	"content-scheduler/internal/models"
	"content-scheduler/internal/ratelimit"
)

var item = models.ContentItem{
	ID:       "c1",
	Category: "tax",
	Text:     "Quarterly filing deadline is Friday",
	Hashtags: []string{"tax", "deadline"},
}

func TestWebhookSuccess(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "c1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"tweet-77"}`))
	}))
	defer srv.Close()

	wh, err := NewWebhook(srv.URL, time.Second)
	require.NoError(t, err)
	res, err := wh.Publish(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "tweet-77", res.ExternalRef)
	assert.Equal(t, "c1", got.ContentID)
	assert.Equal(t, []string{"tax", "deadline"}, got.Hashtags)
}

func TestWebhookNon2xxIsFailedResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	wh, err := NewWebhook(srv.URL, time.Second)
	require.NoError(t, err)
	res, err := wh.Publish(context.Background(), item)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "webhook returned 503: upstream busy", res.ErrorMessage)
}

func TestWebhookTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	wh, err := NewWebhook(url, time.Second)
	require.NoError(t, err)
	_, err = wh.Publish(context.Background(), item)
	assert.Error(t, err)

	_, err = NewWebhook("", time.Second)
	assert.Error(t, err)
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3ArchiveWritesDocument(t *testing.T) {
	putter := &fakePutter{}
	archive := newS3Archive(putter, "social-archive")

	res, err := archive.Publish(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "s3://social-archive/posts/c1.json", res.ExternalRef)
	assert.Equal(t, "social-archive", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "posts/c1.json", aws.ToString(putter.input.Key))
	assert.Equal(t, "application/json", aws.ToString(putter.input.ContentType))

	var doc payload
	require.NoError(t, json.Unmarshal(putter.body, &doc))
	assert.Equal(t, item.Text, doc.Text)
}

func TestS3ArchiveError(t *testing.T) {
	archive := newS3Archive(&fakePutter{err: errors.New("access denied")}, "b")
	_, err := archive.Publish(context.Background(), item)
	assert.ErrorContains(t, err, "access denied")
}

type countingPublisher struct{ calls int }

func (c *countingPublisher) Publish(context.Context, models.ContentItem) (models.PublishResult, error) {
	c.calls++
	return models.PublishResult{Success: true}, nil
}

func TestThrottledRejectsOverCapacity(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	now := time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC)
	bucket := ratelimit.NewTokenBucket(client, 1, 0.01, time.Hour).WithClock(func() time.Time { return now })
	inner := &countingPublisher{}
	pub := NewThrottled(inner, bucket)

	res, err := pub.Publish(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = pub.Publish(context.Background(), item)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "publish rate limit exceeded", res.ErrorMessage)
	assert.Equal(t, 1, inner.calls)
}

func TestDryRun(t *testing.T) {
	res, err := NewDryRun(nil).Publish(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "dryrun:c1", res.ExternalRef)
}

func TestNewSelectsPublisher(t *testing.T) {
	ctx := context.Background()

	pub, err := New(ctx, config.Config{Publisher: "dryrun"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &DryRun{}, pub)

	pub, err = New(ctx, config.Config{Publisher: "webhook", WebhookURL: "http://example.invalid/hook"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Webhook{}, pub)

	_, err = New(ctx, config.Config{Publisher: "s3"}, nil)
	assert.Error(t, err)

	_, err = New(ctx, config.Config{Publisher: "carrier-pigeon"}, nil)
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	pub, err = New(ctx, config.Config{Publisher: "dryrun", PublishRateCap: 5, PublishRateRefill: 1}, client)
	require.NoError(t, err)
	assert.IsType(t, &Throttled{}, pub)
}
