package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsprint/models"
	"mailsprint/store"
)

func TestDispatchSendsEntryStepToActiveLeads(t *testing.T) {
	f := newFixture()
	campaign, leads := f.seedReadyCampaign(50, 2)

	report := f.dispatcher.Run(f.ctx, "")
	require.Empty(t, report.Err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, 2, report.Sent())
	assert.ElementsMatch(t, []string{"lead1@corp.test", "lead2@corp.test"}, f.transport.sentTo())

	// Placeholders rendered, tracking pixel injected.
	msg := f.transport.sent[0]
	assert.Equal(t, "Hi Lead1", msg.Subject)
	assert.Contains(t, msg.HTMLBody, "Hello Lead1 from ")
	assert.Contains(t, msg.HTMLBody, "https://track.test/api/email-events/track-open?id=")

	// Sent event carries the message id and is indexed by it.
	var events []models.EmailEvent
	require.NoError(t, f.store.ListByField(f.ctx, store.KindEvents, "lead_id", leads[0].ID, &events))
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeSent, events[0].EventType)
	assert.Equal(t, campaign.ID, events[0].CampaignID)
	assert.NotEmpty(t, events[0].MessageID)
	var byMessageID []models.EmailEvent
	require.NoError(t, f.store.ListByField(f.ctx, store.KindEvents, "message_id", events[0].MessageID, &byMessageID))
	require.Len(t, byMessageID, 1)

	// Lead advanced to sent with timestamps set.
	var lead models.Lead
	require.NoError(t, f.store.Get(f.ctx, store.KindLeads, leads[0].ID, &lead))
	assert.Equal(t, models.LeadStatusSent, lead.Status)
	assert.Equal(t, 1, lead.CurrentStep)
	assert.NotNil(t, lead.FirstSentAt)
	assert.NotNil(t, lead.LastSentAt)

	// Counters in sync with the event log.
	var got models.Campaign
	require.NoError(t, f.store.Get(f.ctx, store.KindCampaigns, campaign.ID, &got))
	assert.Equal(t, 2, got.SentCount)
}

func TestDispatchIsIdempotentAcrossPasses(t *testing.T) {
	f := newFixture()
	campaign, leads := f.seedReadyCampaign(50, 3)

	first := f.dispatcher.Run(f.ctx, "")
	require.Equal(t, 3, first.Sent())

	second := f.dispatcher.Run(f.ctx, "")
	assert.Empty(t, second.Err)
	assert.Empty(t, second.Results, "second pass must not re-send the entry step")
	assert.Len(t, f.transport.sent, 3)

	var got models.Campaign
	require.NoError(t, f.store.Get(f.ctx, store.KindCampaigns, campaign.ID, &got))
	assert.Equal(t, 3, got.SentCount)

	var events []models.EmailEvent
	require.NoError(t, f.store.ListByField(f.ctx, store.KindEvents, "lead_id", leads[0].ID, &events))
	assert.Len(t, events, 1)
}

func TestDispatchHonorsDailySendLimit(t *testing.T) {
	f := newFixture()
	f.seedReadyCampaign(2, 5)

	report := f.dispatcher.Run(f.ctx, "")
	require.Empty(t, report.Err)
	assert.Equal(t, 2, report.Sent())
	assert.Len(t, f.transport.sent, 2)

	// The remaining leads go out on the next pass.
	next := f.dispatcher.Run(f.ctx, "")
	assert.Equal(t, 2, next.Sent())
	assert.Len(t, f.transport.sent, 4)
}

func TestDispatchFailedSendsDoNotCountAgainstLimit(t *testing.T) {
	f := newFixture()
	f.seedReadyCampaign(2, 4)
	f.transport.failFor["lead1@corp.test"] = "550 mailbox unavailable"
	f.transport.failFor["lead2@corp.test"] = "550 mailbox unavailable"

	report := f.dispatcher.Run(f.ctx, "")
	require.Empty(t, report.Err)
	require.Len(t, report.Results, 4)
	assert.Equal(t, 2, report.Sent(), "limit counts successes, not attempts")
	assert.ElementsMatch(t, []string{"lead3@corp.test", "lead4@corp.test"}, f.transport.sentTo())
}

func TestDispatchTransportFailureIsolation(t *testing.T) {
	f := newFixture()
	campaign, leads := f.seedReadyCampaign(50, 3)
	f.transport.failFor["lead2@corp.test"] = "connection refused"

	report := f.dispatcher.Run(f.ctx, "")
	require.Empty(t, report.Err)
	require.Len(t, report.Results, 3)

	var failed *SendOutcome
	for i := range report.Results {
		if report.Results[i].Status == OutcomeError {
			failed = &report.Results[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "lead2@corp.test", failed.Lead)
	assert.Equal(t, "connection refused", failed.Error)
	assert.Equal(t, 2, report.Sent())

	// Failure is recorded on the sent event, and the lead stays active.
	var events []models.EmailEvent
	require.NoError(t, f.store.ListByField(f.ctx, store.KindEvents, "lead_id", leads[1].ID, &events))
	require.Len(t, events, 1)
	assert.Equal(t, "connection refused", events[0].ErrorMessage)
	assert.Empty(t, events[0].MessageID)

	var lead models.Lead
	require.NoError(t, f.store.Get(f.ctx, store.KindLeads, leads[1].ID, &lead))
	assert.Equal(t, models.LeadStatusActive, lead.Status)

	// A failed attempt is never retried: its sent event already exists.
	delete(f.transport.failFor, "lead2@corp.test")
	retry := f.dispatcher.Run(f.ctx, "")
	assert.Empty(t, retry.Results)

	var got models.Campaign
	require.NoError(t, f.store.Get(f.ctx, store.KindCampaigns, campaign.ID, &got))
	assert.Equal(t, 2, got.SentCount)
}

func TestDispatchSkipsNonActiveLeadsAndCampaigns(t *testing.T) {
	f := newFixture()
	account := f.seedAccount()
	list := f.seedLeadList()
	campaign := f.seedCampaign(account.ID, list.ID, 50)
	f.seedStep(campaign.ID, 1, "Hi", "Hello")
	f.seedLead(list.ID, "active@corp.test", "A")
	replied := f.seedLead(list.ID, "replied@corp.test", "B")
	require.NoError(t, f.store.Update(f.ctx, store.KindLeads, replied.ID, map[string]interface{}{
		"status": models.LeadStatusReplied,
	}))

	paused := models.Campaign{Name: "Paused", Status: models.CampaignStatusPaused, SendingAccountID: account.ID, LeadListID: list.ID}
	require.NoError(t, f.store.Create(f.ctx, store.KindCampaigns, &paused))

	report := f.dispatcher.Run(f.ctx, "")
	require.Empty(t, report.Err)
	assert.Equal(t, []string{"active@corp.test"}, f.transport.sentTo())
}

func TestDispatchMissingPrerequisitesBecomeWarnings(t *testing.T) {
	f := newFixture()
	account := f.seedAccount()
	list := f.seedLeadList()

	noList := f.seedCampaign(account.ID, "", 50)
	noAccount := f.seedCampaign("", list.ID, 50)
	noSteps := f.seedCampaign(account.ID, list.ID, 50)
	danglingAccount := f.seedCampaign("sending_accounts-missing", list.ID, 50)
	danglingList := f.seedCampaign(account.ID, "lead_lists-missing", 50)

	// A healthy campaign in the same pass still sends.
	okList := f.seedLeadList()
	ok := f.seedCampaign(account.ID, okList.ID, 50)
	f.seedStep(ok.ID, 1, "Hi", "Hello")
	f.seedLead(okList.ID, "healthy@corp.test", "H")

	report := f.dispatcher.Run(f.ctx, "")
	require.Empty(t, report.Err)
	assert.Equal(t, 1, report.Sent())

	reasons := map[string]string{}
	for _, w := range report.Warnings {
		reasons[w.CampaignID] = w.Reason
	}
	assert.Equal(t, "no lead list configured", reasons[noList.ID])
	assert.Equal(t, "no sending account configured", reasons[noAccount.ID])
	assert.Equal(t, "no sequence steps configured", reasons[noSteps.ID])
	assert.Equal(t, "sending account not found", reasons[danglingAccount.ID])
	assert.Equal(t, "lead list not found", reasons[danglingList.ID])
}

func TestDispatchRefusesForeignAccountAndList(t *testing.T) {
	f := newFixture()

	account := models.SendingAccount{
		EmailAddress: "victim@bcorp.test",
		Status:       models.AccountStatusActive,
		SMTPHost:     "smtp.bcorp.test",
		SMTPPort:     587,
	}
	account.UserID = "user-b"
	require.NoError(t, f.store.Create(f.ctx, store.KindAccounts, &account))

	list := models.LeadList{Name: "B's prospects"}
	list.UserID = "user-b"
	require.NoError(t, f.store.Create(f.ctx, store.KindLeadLists, &list))

	lead := models.Lead{LeadListID: list.ID, Email: "lead@bcorp.test", Status: models.LeadStatusActive}
	lead.UserID = "user-b"
	require.NoError(t, f.store.Create(f.ctx, store.KindLeads, &lead))
	require.NoError(t, f.store.IndexByField(f.ctx, store.KindLeads, lead.ID, "lead_list_id", list.ID))

	campaign := models.Campaign{
		Name:             "Hijack",
		Status:           models.CampaignStatusActive,
		SendingAccountID: account.ID,
		LeadListID:       list.ID,
	}
	campaign.UserID = "user-a"
	require.NoError(t, f.store.Create(f.ctx, store.KindCampaigns, &campaign))
	f.seedStep(campaign.ID, 1, "Hi", "Hello")

	report := f.dispatcher.Run(f.ctx, "")
	require.Empty(t, report.Err)
	assert.Empty(t, f.transport.sent, "nothing may go out through another user's account")
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "sending account belongs to a different user", report.Warnings[0].Reason)

	var untouched models.Lead
	require.NoError(t, f.store.Get(f.ctx, store.KindLeads, lead.ID, &untouched))
	assert.Equal(t, models.LeadStatusActive, untouched.Status)

	// With an owned account the foreign lead list is still refused.
	owned := models.SendingAccount{
		EmailAddress: "own@acorp.test",
		Status:       models.AccountStatusActive,
		SMTPHost:     "smtp.acorp.test",
		SMTPPort:     587,
	}
	owned.UserID = "user-a"
	require.NoError(t, f.store.Create(f.ctx, store.KindAccounts, &owned))
	require.NoError(t, f.store.Update(f.ctx, store.KindCampaigns, campaign.ID, map[string]interface{}{
		"sending_account_id": owned.ID,
	}))

	report = f.dispatcher.Run(f.ctx, "")
	require.Empty(t, report.Err)
	assert.Empty(t, f.transport.sent)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "lead list belongs to a different user", report.Warnings[0].Reason)

	require.NoError(t, f.store.Get(f.ctx, store.KindLeads, lead.ID, &untouched))
	assert.Equal(t, models.LeadStatusActive, untouched.Status)
}

func TestDispatchTargetsSingleCampaign(t *testing.T) {
	f := newFixture()
	target, _ := f.seedReadyCampaign(50, 1)
	f.seedReadyCampaign(50, 1)

	report := f.dispatcher.Run(f.ctx, target.ID)
	require.Empty(t, report.Err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, target.Name, report.Results[0].Campaign)
	assert.Len(t, f.transport.sent, 1)
}

func TestDispatchStopsOnCancelledContext(t *testing.T) {
	f := newFixture()
	f.seedReadyCampaign(50, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := f.dispatcher.Run(ctx, "")
	assert.Contains(t, report.Err, "context canceled")
	assert.Empty(t, f.transport.sent)
}

func TestDispatchSkipsWhenRacingPassRecordedEvent(t *testing.T) {
	f := newFixture()
	campaign, leads := f.seedReadyCampaign(50, 1)

	// Simulate a racing pass that won the claim after the event scan and
	// recorded its sent event.
	claimed, err := f.store.Claim(f.ctx, "send:"+campaign.ID+":"+leads[0].ID+":1")
	require.NoError(t, err)
	require.True(t, claimed)
	event := models.EmailEvent{
		CampaignID:     campaign.ID,
		LeadID:         leads[0].ID,
		StepNumber:     1,
		EventType:      models.EventTypeSent,
		RecipientEmail: leads[0].Email,
	}
	require.NoError(t, f.store.Create(f.ctx, store.KindEvents, &event))
	require.NoError(t, f.store.IndexByField(f.ctx, store.KindEvents, event.ID, "lead_id", leads[0].ID))

	report := f.dispatcher.Run(f.ctx, "")
	require.Empty(t, report.Err)
	assert.Empty(t, report.Results)
	assert.Empty(t, f.transport.sent)
}

func TestDispatchSurfacesClaimHeldWithoutEvent(t *testing.T) {
	f := newFixture()
	campaign, leads := f.seedReadyCampaign(50, 1)

	// A previous attempt died between claiming and recording the event.
	claimed, err := f.store.Claim(f.ctx, "send:"+campaign.ID+":"+leads[0].ID+":1")
	require.NoError(t, err)
	require.True(t, claimed)

	report := f.dispatcher.Run(f.ctx, "")
	require.Empty(t, report.Err)
	assert.Empty(t, f.transport.sent)
	require.Len(t, report.Results, 1)
	assert.Equal(t, OutcomeError, report.Results[0].Status)
	assert.Contains(t, report.Results[0].Error, "claim held without a recorded sent event")
}

func TestDispatchReleasesClaimWhenEventWriteFails(t *testing.T) {
	f := newFixture()
	f.seedReadyCampaign(50, 1)
	f.store.failCreates[store.KindEvents] = 1

	report := f.dispatcher.Run(f.ctx, "")
	require.Empty(t, report.Err)
	assert.Empty(t, f.transport.sent)
	require.Len(t, report.Results, 1)
	assert.Equal(t, OutcomeError, report.Results[0].Status)
	assert.Contains(t, report.Results[0].Error, "recording sent event")

	// The claim was given back, so the next pass retries and succeeds.
	report = f.dispatcher.Run(f.ctx, "")
	require.Empty(t, report.Err)
	assert.Equal(t, 1, report.Sent())
	assert.Len(t, f.transport.sent, 1)
}

func TestDispatchRendersCustomLeadFieldsOnly(t *testing.T) {
	f := newFixture()
	account := f.seedAccount()
	list := f.seedLeadList()
	campaign := f.seedCampaign(account.ID, list.ID, 50)
	f.seedStep(campaign.ID, 1, "For {{first_name}} {{last_name}}", "{{company}} / {{email}} / {{unknown}}")
	lead := models.Lead{
		LeadListID: list.ID,
		Email:      "jo@corp.test",
		FirstName:  "Jo",
		Company:    "Corp",
		Status:     models.LeadStatusActive,
	}
	require.NoError(t, f.store.Create(f.ctx, store.KindLeads, &lead))
	require.NoError(t, f.store.IndexByField(f.ctx, store.KindLeads, lead.ID, "lead_list_id", list.ID))

	report := f.dispatcher.Run(f.ctx, "")
	require.Equal(t, 1, report.Sent())
	msg := f.transport.sent[0]
	assert.Equal(t, "For Jo ", msg.Subject, "missing fields render empty")
	assert.Contains(t, msg.HTMLBody, "Corp / jo@corp.test / {{unknown}}")
	assert.False(t, strings.Contains(msg.Subject, "{{"))
}
