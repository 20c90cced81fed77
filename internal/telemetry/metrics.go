package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	PostsScheduled   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "content_posts_scheduled_total", Help: "Scheduled posts created, by source"}, []string{"source"})
	SlotShortfall    = prometheus.NewCounter(prometheus.CounterOpts{Name: "content_slot_shortfall_total", Help: "Eligible items left unscheduled because the horizon ran out of slots"})
	PostsCancelled   = prometheus.NewCounter(prometheus.CounterOpts{Name: "content_posts_cancelled_total", Help: "Scheduled posts cancelled"})
	PublishOutcomes  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "content_publish_attempts_total", Help: "Loop publish attempts by outcome"}, []string{"outcome"})
	ImmediateResults = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "content_immediate_publish_total", Help: "Immediate publish calls by outcome"}, []string{"outcome"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "content_rate_limit_rejects_total", Help: "Requests or publishes rejected by the rate limiter"})
	TicksTotal       = prometheus.NewCounter(prometheus.CounterOpts{Name: "content_scheduler_ticks_total", Help: "Scheduler ticks executed"})
	TickErrors       = prometheus.NewCounter(prometheus.CounterOpts{Name: "content_scheduler_tick_errors_total", Help: "Per-record processing errors inside ticks"})
	TickDuration     = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "content_scheduler_tick_seconds", Help: "Tick processing time", Buckets: prometheus.DefBuckets})
	DuePostsGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "content_scheduler_due_posts", Help: "Due posts found by the last tick"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			PostsScheduled,
			SlotShortfall,
			PostsCancelled,
			PublishOutcomes,
			ImmediateResults,
			RateLimitRejects,
			TicksTotal,
			TickErrors,
			TickDuration,
			DuePostsGauge,
		)
	})
	return promhttp.Handler()
}
