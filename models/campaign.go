package models

import (
	"time"

	"mailsprint/store"
)

// Campaign statuses.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
)

// Campaign is a configured outreach run: one lead list, one sending account,
// a sequence of email steps.
type Campaign struct {
	store.Record

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"` // draft, active, paused, completed

	SendingAccountID string `json:"sending_account_id,omitempty"`
	LeadListID       string `json:"lead_list_id,omitempty"`

	// Sending policy
	DailySendLimit int    `json:"daily_send_limit"`
	StopOnReply    bool   `json:"stop_on_reply"`
	SendGapSeconds int    `json:"send_gap_seconds,omitempty"`
	WeekdaysOnly   bool   `json:"weekdays_only,omitempty"`
	StartTime      string `json:"start_time,omitempty"`
	EndTime        string `json:"end_time,omitempty"`
	Timezone       string `json:"timezone,omitempty"`

	// Statistics (denormalized caches of the event log)
	TotalLeads   int `json:"total_leads"`
	SentCount    int `json:"sent_count"`
	OpenedCount  int `json:"opened_count"`
	RepliedCount int `json:"replied_count"`
	BouncedCount int `json:"bounced_count"`

	ScheduledStartAt *time.Time `json:"scheduled_start_at,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// SequenceStep is one email template within a campaign, ordered by
// StepNumber. The step with the lowest number is the entry step.
type SequenceStep struct {
	store.Record

	CampaignID string `json:"campaign_id"`
	StepNumber int    `json:"step_number"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	// TemplateID records which saved template this step was created from,
	// if any. The step keeps its own copy of subject/body.
	TemplateID string `json:"template_id,omitempty"`

	// Delay before this step fires, relative to the previous one. Stored and
	// retrievable; dispatch does not advance leads past the entry step yet.
	DelayDays    int  `json:"delay_days"`
	DelayHours   int  `json:"delay_hours"`
	DelayMinutes int  `json:"delay_minutes"`
	IsReply      bool `json:"is_reply"`
}
