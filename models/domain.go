package models

import "mailsprint/store"

// Domain statuses.
const (
	DomainStatusPending  = "pending"
	DomainStatusVerified = "verified"
	DomainStatusError    = "error"
)

// Domain is a sending domain whose DNS posture (MX/SPF/DMARC) can be
// health-checked before campaigns go out from it.
type Domain struct {
	store.Record

	Domain            string `json:"domain"`
	Status            string `json:"status"` // pending, verified, error
	VerificationToken string `json:"verification_token,omitempty"`
}
