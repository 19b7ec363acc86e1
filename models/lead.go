package models

import (
	"time"

	"mailsprint/store"
)

// Lead statuses. A lead's status must reflect the most advanced event
// observed for it; downgrades are rejected by CanTransition.
const (
	LeadStatusActive       = "active"
	LeadStatusSent         = "sent"
	LeadStatusOpened       = "opened"
	LeadStatusReplied      = "replied"
	LeadStatusBounced      = "bounced"
	LeadStatusUnsubscribed = "unsubscribed"
	LeadStatusCompleted    = "completed"
)

// LeadList groups leads for targeting by a campaign.
type LeadList struct {
	store.Record

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	LeadCount   int    `json:"lead_count"`
}

// Lead is a single contact targeted by campaigns.
type Lead struct {
	store.Record

	LeadListID string `json:"lead_list_id"`
	CampaignID string `json:"campaign_id,omitempty"`

	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Company   string `json:"company,omitempty"`

	CustomFields map[string]interface{} `json:"custom_fields,omitempty"`

	Status      string `json:"status"` // active, sent, opened, replied, bounced, unsubscribed, completed
	CurrentStep int    `json:"current_step"`

	FirstSentAt    *time.Time `json:"first_sent_at,omitempty"`
	LastSentAt     *time.Time `json:"last_sent_at,omitempty"`
	OpenedAt       *time.Time `json:"opened_at,omitempty"`
	RepliedAt      *time.Time `json:"replied_at,omitempty"`
	BouncedAt      *time.Time `json:"bounced_at,omitempty"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty"`
}

// leadTransitions is the full status machine. replied, bounced and
// unsubscribed are reachable from any state; in particular a reply overwrites
// bounced/unsubscribed, which matches the historical reply-handler behavior
// and is kept deliberately.
var leadTransitions = map[string][]string{
	LeadStatusActive: {LeadStatusSent, LeadStatusReplied, LeadStatusBounced, LeadStatusUnsubscribed},
	LeadStatusSent:   {LeadStatusOpened, LeadStatusReplied, LeadStatusBounced, LeadStatusUnsubscribed, LeadStatusCompleted},
	LeadStatusOpened: {LeadStatusReplied, LeadStatusBounced, LeadStatusUnsubscribed, LeadStatusCompleted},
	LeadStatusReplied: {
		LeadStatusBounced, LeadStatusUnsubscribed,
	},
	LeadStatusBounced:      {LeadStatusReplied, LeadStatusUnsubscribed},
	LeadStatusUnsubscribed: {LeadStatusReplied},
	LeadStatusCompleted:    {LeadStatusReplied, LeadStatusBounced, LeadStatusUnsubscribed},
}

// CanTransition reports whether a lead may move from one status to another.
// Every call site that mutates Lead.Status goes through this table.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, allowed := range leadTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
