package models

import "mailsprint/store"

// Sending account statuses.
const (
	AccountStatusActive  = "active"
	AccountStatusPaused  = "paused"
	AccountStatusError   = "error"
	AccountStatusWarming = "warming"
)

// SendingAccount holds the submission (SMTP) and retrieval (IMAP) credentials
// for one mailbox. Passwords are AES-encrypted in the application layer
// before they reach the store.
type SendingAccount struct {
	store.Record

	EmailAddress string `json:"email_address"`
	DisplayName  string `json:"display_name,omitempty"`
	Provider     string `json:"provider,omitempty"` // gmail, outlook, smtp, ...
	Status       string `json:"status"`             // active, paused, error, warming

	// SMTP (submission)
	SMTPHost       string `json:"smtp_host,omitempty"`
	SMTPPort       int    `json:"smtp_port,omitempty"`
	SMTPUsername   string `json:"smtp_username,omitempty"`
	SMTPPassword   string `json:"smtp_password_encrypted,omitempty"`
	SMTPEncryption string `json:"smtp_encryption,omitempty"` // SSL, STARTTLS

	// IMAP (retrieval)
	IMAPHost       string `json:"imap_host,omitempty"`
	IMAPPort       int    `json:"imap_port,omitempty"`
	IMAPUsername   string `json:"imap_username,omitempty"`
	IMAPPassword   string `json:"imap_password_encrypted,omitempty"`
	IMAPEncryption string `json:"imap_encryption,omitempty"` // SSL, STARTTLS
	IMAPMailbox    string `json:"imap_mailbox,omitempty"`

	// Usage
	DailySendLimit int     `json:"daily_send_limit"`
	SentToday      int     `json:"sent_today"`
	WarmupEnabled  bool    `json:"warmup_enabled"`
	WarmupProgress int     `json:"warmup_progress"`
	LastError      *string `json:"last_error,omitempty"`
}

// Sanitize strips encrypted credentials before the record leaves the API.
func (a *SendingAccount) Sanitize() {
	a.SMTPPassword = ""
	a.IMAPPassword = ""
}
