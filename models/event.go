package models

import (
	"time"

	"mailsprint/store"
)

// Email event types. The event log is append-only and is the source of
// truth; Lead.Status and the campaign counters are caches of it.
const (
	EventTypeSent         = "sent"
	EventTypeOpened       = "opened"
	EventTypeClicked      = "clicked"
	EventTypeReplied      = "replied"
	EventTypeBounced      = "bounced"
	EventTypeUnsubscribed = "unsubscribed"
)

// EmailEvent records one occurrence for a lead within a campaign. A sent
// event is written before transport is attempted, so a failed send still
// leaves an auditable record (with ErrorMessage set and no MessageID).
type EmailEvent struct {
	store.Record

	CampaignID       string `json:"campaign_id,omitempty"`
	LeadID           string `json:"lead_id,omitempty"`
	SequenceID       string `json:"sequence_id,omitempty"`
	StepNumber       int    `json:"step_number,omitempty"`
	SendingAccountID string `json:"sending_account_id,omitempty"`

	EventType      string `json:"event_type"` // sent, opened, clicked, replied, bounced, unsubscribed
	RecipientEmail string `json:"recipient_email,omitempty"`
	Subject        string `json:"subject,omitempty"`

	// MessageID is the provider identifier, set after a successful send.
	MessageID    string `json:"message_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}
