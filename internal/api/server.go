package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"

	"content-scheduler/internal/logging"
	"content-scheduler/internal/models"
	"content-scheduler/internal/scheduler"
	"content-scheduler/internal/telemetry"
)

const (
	defaultUpcomingLimit = 20
	defaultStatsDays     = 30
)

// Limiter hands out request tokens per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, float64, error)
}

// ContentRegistry lets callers register the items they later auto-schedule.
type ContentRegistry interface {
	UpsertContent(ctx context.Context, item models.ContentItem) error
	GetContent(ctx context.Context, id string) (models.ContentItem, error)
}

// HealthChecker reports whether a backend is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers for the scheduling API.
type Server struct {
	svc     *scheduler.Service
	content ContentRegistry
	limiter Limiter
	health  HealthChecker
	log     *logrus.Entry
}

// New constructs the API server. content and limiter may be nil.
func New(svc *scheduler.Service, content ContentRegistry, limiter Limiter) *Server {
	return &Server{
		svc:     svc,
		content: content,
		limiter: limiter,
		log:     logging.Component("api"),
	}
}

// WithHealthCheck makes /healthz fail while hc cannot be reached.
func (s *Server) WithHealthCheck(hc HealthChecker) *Server {
	s.health = hc
	return s
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)

	r.Mount("/metrics", telemetry.Handler())

	r.Route("/posts", func(r chi.Router) {
		r.Post("/", s.handleSchedule)
		r.Post("/auto", s.handleAutoSchedule)
		r.Post("/publish", s.handlePublish)
		r.Get("/upcoming", s.handleUpcoming)
		r.Post("/{id}/cancel", s.handleCancel)
		r.Post("/{id}/reschedule", s.handleReschedule)
	})

	r.Get("/rules", s.handleListRules)
	r.Get("/rules/{id}", s.handleGetRule)
	r.Put("/rules/{id}", s.handlePutRule)

	if s.content != nil {
		r.Get("/content/{id}", s.handleGetContent)
		r.Put("/content/{id}", s.handlePutContent)
	}

	r.Get("/stats", s.handleStats)
	r.Get("/stats/optimal-times", s.handleOptimalTimes)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.log.WithError(err).Warn("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type scheduleRequest struct {
	ContentID    string    `json:"content_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

func (r *scheduleRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ContentID, validation.Required),
		validation.Field(&r.ScheduledFor, validation.Required),
	)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	post, err := s.svc.SchedulePost(r.Context(), req.ContentID, req.ScheduledFor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

type autoScheduleRequest struct {
	RuleID string               `json:"rule_id"`
	Items  []models.ContentItem `json:"items"`
}

func (r *autoScheduleRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Items, validation.Required),
	)
}

type autoScheduleResponse struct {
	Posts     []models.ScheduledPost `json:"posts"`
	Requested int                    `json:"requested"`
}

func (s *Server) handleAutoSchedule(w http.ResponseWriter, r *http.Request) {
	var req autoScheduleRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.RuleID == "" {
		req.RuleID = models.DefaultRuleID
	}
	posts, err := s.svc.AutoSchedule(r.Context(), req.Items, req.RuleID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, autoScheduleResponse{Posts: posts, Requested: len(req.Items)})
}

type publishRequest struct {
	models.ContentItem
}

func (r *publishRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ID, validation.Required),
	)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}
	var req publishRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.svc.PublishImmediately(r.Context(), req.ContentItem)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", defaultUpcomingLimit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	posts, err := s.svc.Upcoming(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	ok, err := s.svc.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeOK(w, ok)
}

type rescheduleRequest struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

func (r *rescheduleRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ScheduledFor, validation.Required),
	)
}

func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	ok, err := s.svc.Reschedule(r.Context(), chi.URLParam(r, "id"), req.ScheduledFor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeOK(w, ok)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.svc.ListRules(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.svc.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handlePutRule(w http.ResponseWriter, r *http.Request) {
	var rule models.SchedulingRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		s.writeError(w, models.NewValidationError("invalid json"))
		return
	}
	rule.ID = chi.URLParam(r, "id")
	saved, err := s.svc.UpsertRule(r.Context(), rule)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	item, err := s.content.GetContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handlePutContent(w http.ResponseWriter, r *http.Request) {
	var item models.ContentItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		s.writeError(w, models.NewValidationError("invalid json"))
		return
	}
	item.ID = chi.URLParam(r, "id")
	if err := validation.Validate(item.RelevanceScore, validation.Min(0.0), validation.Max(1.0)); err != nil {
		s.writeError(w, models.NewValidationError("relevance_score: "+err.Error()))
		return
	}
	if err := s.content.UpsertContent(r.Context(), item); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", defaultStatsDays)
	if err != nil {
		s.writeError(w, err)
		return
	}
	st, err := s.svc.PostingStatistics(r.Context(), days)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleOptimalTimes(w http.ResponseWriter, r *http.Request) {
	times, err := s.svc.OptimalPostingTimes(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, times)
}

// allow applies the per-tenant limiter and writes the rejection itself.
func (s *Server) allow(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}
	allowed, _, err := s.limiter.Allow(r.Context(), "tenant:"+tenantFromRequest(r))
	if err != nil {
		s.log.WithError(err).Error("rate limiter unavailable")
		http.Error(w, "rate limit error", http.StatusInternalServerError)
		return false
	}
	if !allowed {
		telemetry.RateLimitRejects.Inc()
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limited"})
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case models.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrRuleNotFound),
		errors.Is(err, models.ErrPostNotFound),
		errors.Is(err, models.ErrContentNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrRuleDisabled),
		errors.Is(err, models.ErrSlotConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v and runs its ozzo rules.
func decode(r *http.Request, v validation.Validatable) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.NewValidationError("invalid json")
	}
	if err := v.Validate(); err != nil {
		return models.NewValidationError(err.Error())
	}
	return nil
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, models.NewValidationError(name + " must be an integer")
	}
	return n, nil
}

func tenantFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Tenant-ID"); v != "" {
		return v
	}
	return "default"
}

func writeOK(w http.ResponseWriter, ok bool) {
	code := http.StatusOK
	if !ok {
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]bool{"ok": ok})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
