package models

import "time"

// ContentItem is an approved (or approvable) post owned by the content service.
type ContentItem struct {
	ID             string     `json:"id"`
	Category       string     `json:"category"`
	RelevanceScore float64    `json:"relevance_score"`
	Approved       bool       `json:"approved"`
	Published      bool       `json:"published"`
	ScheduledFor   *time.Time `json:"scheduled_for,omitempty"`
	ExternalRef    *string    `json:"external_ref,omitempty"`
	Text           string     `json:"text"`
	Hashtags       []string   `json:"hashtags,omitempty"`
	MediaURL       string     `json:"media_url,omitempty"`
}

// PublishResult is what a publishing channel reports for one attempt.
type PublishResult struct {
	Success      bool   `json:"success"`
	ExternalRef  string `json:"external_ref,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}
