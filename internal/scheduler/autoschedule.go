package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"content-scheduler/internal/models"
	"content-scheduler/internal/telemetry"
)

type candidate struct {
	item         models.ContentItem
	autoApproved bool
}

// AutoSchedule books eligible items into the next free slots of rule ruleID.
// Items beyond the slots the allocator found are left for a later call.
func (s *Service) AutoSchedule(ctx context.Context, items []models.ContentItem, ruleID string) ([]models.ScheduledPost, error) {
	rule, err := s.rules.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.Enabled {
		return nil, models.ErrRuleDisabled
	}

	unlock, err := s.lockSlots(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	booked, err := s.posts.ListByStatus(ctx, models.StatusScheduled)
	if err != nil {
		return nil, fmt.Errorf("list scheduled: %w", err)
	}
	eligible := eligibleItems(rule, items, booked)
	entry := s.log.WithFields(logrus.Fields{"rule_id": rule.ID, "items": len(items), "eligible": len(eligible)})
	if len(eligible) == 0 {
		entry.Debug("nothing eligible to auto-schedule")
		return []models.ScheduledPost{}, nil
	}

	now := s.clock.Now()
	free := s.allocator.Allocate(rule, len(eligible), now, scheduledTimes(booked, ""))
	if len(free) < len(eligible) {
		telemetry.SlotShortfall.Add(float64(len(eligible) - len(free)))
		entry.WithField("slots", len(free)).Warn("scheduling horizon exhausted before all items were placed")
	}

	created := make([]models.ScheduledPost, 0, len(free))
	for i, slot := range free {
		c := eligible[i]
		post := s.newPost(c.item.ID, slot)
		if err := s.posts.SavePost(ctx, post); err != nil {
			return created, err
		}
		telemetry.PostsScheduled.WithLabelValues("auto").Inc()
		created = append(created, post)
		// Approval is stamped only once the booking exists.
		if c.autoApproved {
			err := s.content.MarkApproved(ctx, c.item.ID, slot)
			if err != nil && !errors.Is(err, models.ErrContentNotFound) {
				return created, fmt.Errorf("mark %s approved: %w", c.item.ID, err)
			}
		}
	}
	entry.WithField("scheduled", len(created)).Info("auto-schedule complete")
	return created, nil
}

// eligibleItems keeps, in input order, the items the rule may book that are
// neither published nor already holding a scheduled slot.
func eligibleItems(rule models.SchedulingRule, items []models.ContentItem, booked []models.ScheduledPost) []candidate {
	taken := make(map[string]bool, len(booked))
	for _, p := range booked {
		if p.Status == models.StatusScheduled {
			taken[p.ContentID] = true
		}
	}

	out := make([]candidate, 0, len(items))
	for _, item := range items {
		if item.ID == "" || item.Published || taken[item.ID] || !rule.HasCategory(item.Category) {
			continue
		}
		switch {
		case item.Approved:
			out = append(out, candidate{item: item})
		case rule.AutoApproveThreshold != nil && item.RelevanceScore >= *rule.AutoApproveThreshold:
			out = append(out, candidate{item: item, autoApproved: true})
		default:
			continue
		}
		taken[item.ID] = true
	}
	return out
}
