package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{LeadStatusActive, LeadStatusSent, true},
		{LeadStatusSent, LeadStatusOpened, true},
		{LeadStatusOpened, LeadStatusReplied, true},
		{LeadStatusSent, LeadStatusCompleted, true},

		// Same-status writes are always permitted.
		{LeadStatusSent, LeadStatusSent, true},
		{LeadStatusReplied, LeadStatusReplied, true},

		// No downgrades.
		{LeadStatusSent, LeadStatusActive, false},
		{LeadStatusOpened, LeadStatusSent, false},
		{LeadStatusReplied, LeadStatusOpened, false},
		{LeadStatusCompleted, LeadStatusActive, false},

		// A reply is reachable from every status, including terminal ones.
		{LeadStatusBounced, LeadStatusReplied, true},
		{LeadStatusUnsubscribed, LeadStatusReplied, true},
		{LeadStatusCompleted, LeadStatusReplied, true},

		// Unsubscribed is sticky except for replies.
		{LeadStatusUnsubscribed, LeadStatusSent, false},
		{LeadStatusUnsubscribed, LeadStatusBounced, false},

		{"bogus", LeadStatusSent, false},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
