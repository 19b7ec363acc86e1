package store

import "time"

// Entity kind names. They double as Redis key prefixes, so renaming one
// invalidates existing data.
const (
	KindUsers     = "users"
	KindCampaigns = "campaigns"
	KindSequences = "email_sequences"
	KindLeadLists = "lead_lists"
	KindLeads     = "leads"
	KindAccounts  = "sending_accounts"
	KindEvents    = "email_events"
	KindTemplates = "email_templates"
	KindDomains   = "domains"
)

// Record carries the store-assigned fields shared by every entity.
// Entities embed it and get Entity for free.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Record) Meta() *Record { return r }

// Entity is anything the store can persist.
type Entity interface {
	Meta() *Record
}
