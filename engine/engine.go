// Package engine contains the campaign dispatch and reply-detection engines.
// Both are single-pass batch jobs: they read and write exclusively through
// the entity store, aggregate per-item failures into a report instead of
// returning errors, and never panic past their Run entry points.
package engine

import (
	"context"
	"time"

	"mailsprint/mailer"
	"mailsprint/store"
)

// Store is the slice of the entity store the engines depend on.
// *store.Store satisfies it; tests use an in-memory fake.
type Store interface {
	Create(ctx context.Context, kind string, e store.Entity) error
	Get(ctx context.Context, kind, id string, dest store.Entity) error
	Update(ctx context.Context, kind, id string, fields map[string]interface{}) error
	List(ctx context.Context, kind string, dest interface{}) error
	ListByField(ctx context.Context, kind, field, value string, dest interface{}) error
	IndexByField(ctx context.Context, kind, id, field, value string) error
	Incr(ctx context.Context, kind, id, field string, delta int64) error
	Claim(ctx context.Context, name string) (bool, error)
	Release(ctx context.Context, name string) error
}

// Transport submits one email and reports the outcome as data.
type Transport interface {
	Send(ctx context.Context, conn mailer.Connection, msg mailer.Message) mailer.Result
}

// Outcome statuses used in report rows.
const (
	OutcomeSent          = "sent"
	OutcomeError         = "error"
	OutcomeReplyDetected = "reply_detected"
)

// SendOutcome is one dispatch attempt for one lead.
type SendOutcome struct {
	Campaign string `json:"campaign"`
	LeadID   string `json:"lead_id"`
	Lead     string `json:"lead"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// Warning records a campaign skipped for a configuration reason. It is not
// fatal: the rest of the pass continues.
type Warning struct {
	CampaignID string `json:"campaign_id"`
	Campaign   string `json:"campaign"`
	Reason     string `json:"reason"`
}

// DispatchReport summarizes one dispatch pass.
type DispatchReport struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Results    []SendOutcome `json:"results"`
	Warnings   []Warning     `json:"warnings,omitempty"`
	Err        string        `json:"error,omitempty"`
}

// Sent counts the successful sends in the report.
func (r *DispatchReport) Sent() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == OutcomeSent {
			n++
		}
	}
	return n
}

// ReplyOutcome is one reply detected, or one account that failed.
type ReplyOutcome struct {
	Account string `json:"account"`
	Status  string `json:"status"`
	LeadID  string `json:"lead_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ReplyReport summarizes one reply-checking pass.
type ReplyReport struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []ReplyOutcome `json:"results"`
	Err        string         `json:"error,omitempty"`
}
