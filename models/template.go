package models

import "mailsprint/store"

// Template is a reusable email body users copy into sequence steps.
type Template struct {
	store.Record

	Name       string `json:"name"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	Category   string `json:"category,omitempty"`
	UsageCount int    `json:"usage_count"`
}
