package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"mailsprint/mailer"
	"mailsprint/models"
	"mailsprint/store"
	"mailsprint/utils"
)

const defaultDailyLimit = 50

// Dispatcher runs campaign send passes. One pass walks every active
// campaign, resolves its entry sequence step, and sends it to each active
// lead that has not received it yet, up to the campaign's daily limit.
type Dispatcher struct {
	store     Store
	transport Transport
	logger    *logrus.Logger
	baseURL   string
	key       string
	now       func() time.Time
}

// NewDispatcher wires a dispatcher. baseURL is the public origin that
// tracking links are built against; key decrypts stored SMTP credentials.
func NewDispatcher(st Store, transport Transport, logger *logrus.Logger, baseURL, key string) *Dispatcher {
	return &Dispatcher{
		store:     st,
		transport: transport,
		logger:    logger,
		baseURL:   baseURL,
		key:       key,
		now:       time.Now,
	}
}

// Run executes one dispatch pass and returns its report. If campaignID is
// non-empty only that campaign is processed; it must still be active.
// Per-campaign and per-lead failures land in the report, not in Err; Err is
// reserved for pass-level failures (store unreachable, cancellation, panic).
func (d *Dispatcher) Run(ctx context.Context, campaignID string) (report *DispatchReport) {
	report = &DispatchReport{StartedAt: d.now().UTC()}
	defer func() {
		if r := recover(); r != nil {
			sentry.CurrentHub().Recover(r)
			d.logger.WithField("panic", r).Error("Dispatch pass panicked")
			report.Err = fmt.Sprintf("dispatch pass panicked: %v", r)
		}
		report.FinishedAt = d.now().UTC()
	}()

	var campaigns []models.Campaign
	if err := d.store.List(ctx, store.KindCampaigns, &campaigns); err != nil {
		report.Err = fmt.Sprintf("listing campaigns: %v", err)
		return report
	}

	for _, campaign := range campaigns {
		if campaign.Status != models.CampaignStatusActive {
			continue
		}
		if campaignID != "" && campaign.ID != campaignID {
			continue
		}
		d.processCampaign(ctx, campaign, report)
		if ctx.Err() != nil {
			report.Err = ctx.Err().Error()
			return report
		}
	}
	return report
}

// processCampaign dispatches one campaign. Missing prerequisites demote the
// campaign to a warning so a misconfigured campaign never blocks the others.
func (d *Dispatcher) processCampaign(ctx context.Context, campaign models.Campaign, report *DispatchReport) {
	log := d.logger.WithFields(logrus.Fields{
		"campaign_id":   campaign.ID,
		"campaign_name": campaign.Name,
	})

	warn := func(reason string) {
		log.WithField("reason", reason).Warn("Skipping campaign")
		report.Warnings = append(report.Warnings, Warning{
			CampaignID: campaign.ID,
			Campaign:   campaign.Name,
			Reason:     reason,
		})
	}

	if campaign.LeadListID == "" {
		warn("no lead list configured")
		return
	}
	if campaign.SendingAccountID == "" {
		warn("no sending account configured")
		return
	}

	var account models.SendingAccount
	if err := d.store.Get(ctx, store.KindAccounts, campaign.SendingAccountID, &account); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			warn("sending account not found")
		} else {
			warn(fmt.Sprintf("loading sending account: %v", err))
		}
		return
	}
	// The API rejects cross-user references, but a campaign pointed at
	// another user's account or list must never send with their credentials
	// or touch their leads, whatever got into the store.
	if account.UserID != campaign.UserID {
		warn("sending account belongs to a different user")
		return
	}

	var list models.LeadList
	if err := d.store.Get(ctx, store.KindLeadLists, campaign.LeadListID, &list); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			warn("lead list not found")
		} else {
			warn(fmt.Sprintf("loading lead list: %v", err))
		}
		return
	}
	if list.UserID != campaign.UserID {
		warn("lead list belongs to a different user")
		return
	}

	var steps []models.SequenceStep
	if err := d.store.ListByField(ctx, store.KindSequences, "campaign_id", campaign.ID, &steps); err != nil {
		warn(fmt.Sprintf("loading sequence steps: %v", err))
		return
	}

	if len(steps) == 0 {
		warn("no sequence steps configured")
		return
	}

	var leads []models.Lead
	if err := d.store.ListByField(ctx, store.KindLeads, "lead_list_id", campaign.LeadListID, &leads); err != nil {
		warn(fmt.Sprintf("loading leads: %v", err))
		return
	}

	password, err := utils.Decrypt(account.SMTPPassword, d.key)
	if err != nil {
		warn("cannot decrypt sending account password")
		return
	}

	limit := campaign.DailySendLimit
	if limit <= 0 {
		limit = defaultDailyLimit
	}

	sent := 0
	for i := range leads {
		if ctx.Err() != nil {
			log.Warn("Dispatch pass cancelled")
			return
		}
		lead := leads[i]
		if lead.Status != models.LeadStatusActive {
			continue
		}
		if sent >= limit {
			log.WithField("limit", limit).Info("Daily send limit reached")
			break
		}
		step := NextStep(steps, lead)
		if step == nil {
			continue
		}
		outcome := d.sendToLead(ctx, campaign, account, password, *step, lead)
		if outcome == nil {
			continue // step already delivered to this lead
		}
		report.Results = append(report.Results, *outcome)
		if outcome.Status == OutcomeSent {
			sent++
		}
	}
}

// alreadySent reports whether a sent event exists for this campaign, lead
// and step. Failed attempts also count: their sent event carries an error
// message, and they are not retried.
func (d *Dispatcher) alreadySent(ctx context.Context, campaign models.Campaign, lead models.Lead, stepNumber int) (bool, error) {
	var events []models.EmailEvent
	if err := d.store.ListByField(ctx, store.KindEvents, "lead_id", lead.ID, &events); err != nil {
		return false, err
	}
	for _, e := range events {
		if e.CampaignID == campaign.ID && e.EventType == models.EventTypeSent && e.StepNumber == stepNumber {
			return true, nil
		}
	}
	return false, nil
}

// sendToLead performs one send attempt. It returns nil when the lead was
// skipped because the step was already delivered, otherwise a result row.
func (d *Dispatcher) sendToLead(ctx context.Context, campaign models.Campaign, account models.SendingAccount, password string, step models.SequenceStep, lead models.Lead) *SendOutcome {
	log := d.logger.WithFields(logrus.Fields{
		"campaign_id": campaign.ID,
		"lead_id":     lead.ID,
		"lead_email":  lead.Email,
		"step":        step.StepNumber,
	})

	fail := func(msg string) *SendOutcome {
		return &SendOutcome{
			Campaign: campaign.Name,
			LeadID:   lead.ID,
			Lead:     lead.Email,
			Status:   OutcomeError,
			Error:    msg,
		}
	}

	already, err := d.alreadySent(ctx, campaign, lead, step.StepNumber)
	if err != nil {
		log.WithError(err).Error("Failed to scan sent events")
		return fail(fmt.Sprintf("scanning sent events: %v", err))
	}
	if already {
		return nil
	}

	// Transactional re-check right before transport: concurrent passes both
	// pass the event scan, but only one wins the claim.
	claim := fmt.Sprintf("send:%s:%s:%d", campaign.ID, lead.ID, step.StepNumber)
	claimed, err := d.store.Claim(ctx, claim)
	if err != nil {
		log.WithError(err).Error("Failed to claim send slot")
		return fail(fmt.Sprintf("claiming send slot: %v", err))
	}
	if !claimed {
		// Normally the racing pass has recorded the sent event by now. A
		// held claim with no event means a previous attempt died between
		// claiming and recording; surface it instead of skipping forever.
		already, err := d.alreadySent(ctx, campaign, lead, step.StepNumber)
		if err != nil {
			log.WithError(err).Error("Failed to re-scan sent events")
			return fail(fmt.Sprintf("re-scanning sent events: %v", err))
		}
		if already {
			return nil
		}
		log.Warn("Send claim held without a recorded sent event")
		return fail("send claim held without a recorded sent event")
	}

	subject := RenderTemplate(step.Subject, lead)
	body := RenderTemplate(step.Body, lead)

	event := models.EmailEvent{
		CampaignID:       campaign.ID,
		LeadID:           lead.ID,
		SequenceID:       step.ID,
		StepNumber:       step.StepNumber,
		SendingAccountID: account.ID,
		EventType:        models.EventTypeSent,
		RecipientEmail:   lead.Email,
		Subject:          subject,
		OccurredAt:       d.now().UTC(),
	}
	event.UserID = campaign.UserID
	if err := d.store.Create(ctx, store.KindEvents, &event); err != nil {
		log.WithError(err).Error("Failed to record sent event")
		// Give the claim back so the next pass can retry; a kept claim with
		// no event would strand the lead.
		if rerr := d.store.Release(ctx, claim); rerr != nil {
			log.WithError(rerr).Error("Failed to release send claim")
		}
		return fail(fmt.Sprintf("recording sent event: %v", err))
	}
	d.indexEvent(ctx, event, log)

	html := utils.InjectTracking("<div>"+body+"</div>", d.baseURL, event.ID)

	username := account.SMTPUsername
	if username == "" {
		username = account.EmailAddress
	}
	result := d.transport.Send(ctx, mailer.Connection{
		Host:       account.SMTPHost,
		Port:       account.SMTPPort,
		Username:   username,
		Password:   password,
		Encryption: account.SMTPEncryption,
	}, mailer.Message{
		FromEmail: account.EmailAddress,
		FromName:  account.DisplayName,
		To:        lead.Email,
		Subject:   subject,
		HTMLBody:  html,
	})

	if !result.Success {
		log.WithField("send_error", result.Err).Warn("Send failed")
		if err := d.store.Update(ctx, store.KindEvents, event.ID, map[string]interface{}{
			"error_message": result.Err,
		}); err != nil {
			log.WithError(err).Error("Failed to attach error to sent event")
		}
		return fail(result.Err)
	}

	if err := d.store.Update(ctx, store.KindEvents, event.ID, map[string]interface{}{
		"message_id": result.MessageID,
	}); err != nil {
		log.WithError(err).Error("Failed to record message id")
	}
	if err := d.store.IndexByField(ctx, store.KindEvents, event.ID, "message_id", result.MessageID); err != nil {
		log.WithError(err).Error("Failed to index message id")
	}

	now := d.now().UTC()
	fields := map[string]interface{}{
		"status":       models.LeadStatusSent,
		"current_step": step.StepNumber,
		"last_sent_at": now,
	}
	if lead.FirstSentAt == nil {
		fields["first_sent_at"] = now
	}
	if err := d.store.Update(ctx, store.KindLeads, lead.ID, fields); err != nil {
		log.WithError(err).Error("Failed to update lead after send")
	}

	if err := d.store.Incr(ctx, store.KindCampaigns, campaign.ID, "sent_count", 1); err != nil {
		log.WithError(err).Error("Failed to increment campaign sent count")
	}
	if err := d.store.Incr(ctx, store.KindAccounts, account.ID, "sent_today", 1); err != nil {
		log.WithError(err).Error("Failed to increment account usage")
	}

	log.Info("Email sent")
	return &SendOutcome{
		Campaign: campaign.Name,
		LeadID:   lead.ID,
		Lead:     lead.Email,
		Status:   OutcomeSent,
	}
}

// indexEvent registers the secondary indexes every event is looked up by.
func (d *Dispatcher) indexEvent(ctx context.Context, event models.EmailEvent, log *logrus.Entry) {
	if err := d.store.IndexByField(ctx, store.KindEvents, event.ID, "lead_id", event.LeadID); err != nil {
		log.WithError(err).Error("Failed to index event by lead")
	}
	if err := d.store.IndexByField(ctx, store.KindEvents, event.ID, "campaign_id", event.CampaignID); err != nil {
		log.WithError(err).Error("Failed to index event by campaign")
	}
}
