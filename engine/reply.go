package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"mailsprint/models"
	"mailsprint/store"
	"mailsprint/utils"
)

const replySnippetLimit = 200

// InboundMessage is one unread message pulled from a mailbox, reduced to
// the fields reply correlation needs.
type InboundMessage struct {
	UID       uint32
	MessageID string
	InReplyTo string
	Subject   string
	From      string
	TextBody  string
}

// Fetcher retrieves unread messages for one sending account. The IMAP
// implementation lives in imap.go; tests substitute a fake.
type Fetcher interface {
	Fetch(ctx context.Context, account models.SendingAccount, password string) ([]InboundMessage, error)
}

// ReplyChecker correlates inbound mail with sent events. A message counts
// as a reply when its In-Reply-To references the message id of a sent
// event; everything else is ignored.
type ReplyChecker struct {
	store   Store
	fetcher Fetcher
	logger  *logrus.Logger
	key     string
	now     func() time.Time
}

// NewReplyChecker wires a checker. key decrypts stored IMAP credentials.
func NewReplyChecker(st Store, fetcher Fetcher, logger *logrus.Logger, key string) *ReplyChecker {
	return &ReplyChecker{
		store:   st,
		fetcher: fetcher,
		logger:  logger,
		key:     key,
		now:     time.Now,
	}
}

// Run checks every active account that has IMAP configured. Per-account
// and per-message failures land in the report; the pass keeps going.
func (rc *ReplyChecker) Run(ctx context.Context) (report *ReplyReport) {
	report = &ReplyReport{StartedAt: rc.now().UTC()}
	defer func() {
		if r := recover(); r != nil {
			sentry.CurrentHub().Recover(r)
			rc.logger.WithField("panic", r).Error("Reply pass panicked")
			report.Err = fmt.Sprintf("reply pass panicked: %v", r)
		}
		report.FinishedAt = rc.now().UTC()
	}()

	var accounts []models.SendingAccount
	if err := rc.store.List(ctx, store.KindAccounts, &accounts); err != nil {
		report.Err = fmt.Sprintf("listing sending accounts: %v", err)
		return report
	}

	for _, account := range accounts {
		if ctx.Err() != nil {
			report.Err = ctx.Err().Error()
			return report
		}
		if account.Status != models.AccountStatusActive || account.IMAPHost == "" {
			continue
		}
		rc.checkAccount(ctx, account, report)
	}
	return report
}

func (rc *ReplyChecker) checkAccount(ctx context.Context, account models.SendingAccount, report *ReplyReport) {
	log := rc.logger.WithField("account", account.EmailAddress)

	fail := func(msg string) {
		report.Results = append(report.Results, ReplyOutcome{
			Account: account.EmailAddress,
			Status:  OutcomeError,
			Error:   msg,
		})
	}

	password, err := utils.Decrypt(account.IMAPPassword, rc.key)
	if err != nil {
		log.Error("Cannot decrypt account password")
		fail("cannot decrypt account password")
		return
	}

	messages, err := rc.fetcher.Fetch(ctx, account, password)
	if err != nil {
		log.WithError(err).Warn("Mailbox check failed")
		fail(err.Error())
		return
	}

	for _, msg := range messages {
		outcome, err := rc.processInbound(ctx, account, msg)
		if err != nil {
			log.WithError(err).WithField("message_id", msg.MessageID).Error("Failed to process inbound message")
			fail(err.Error())
			continue
		}
		if outcome != nil {
			log.WithField("lead_id", outcome.LeadID).Info("Reply detected")
			report.Results = append(report.Results, *outcome)
		}
	}
}

// processInbound correlates one message. It returns nil without error when
// the message is not a reply to anything we sent, or when the reply was
// already recorded by an earlier pass.
func (rc *ReplyChecker) processInbound(ctx context.Context, account models.SendingAccount, msg InboundMessage) (*ReplyOutcome, error) {
	ref := strings.Trim(msg.InReplyTo, "<> ")
	if ref == "" {
		return nil, nil
	}

	var candidates []models.EmailEvent
	if err := rc.store.ListByField(ctx, store.KindEvents, "message_id", ref, &candidates); err != nil {
		return nil, fmt.Errorf("looking up sent event: %w", err)
	}
	var original *models.EmailEvent
	for i := range candidates {
		if candidates[i].EventType == models.EventTypeSent && candidates[i].MessageID == ref {
			original = &candidates[i]
			break
		}
	}
	if original == nil {
		return nil, nil
	}
	// A mailbox only speaks for its own user's outreach. A sent event owned
	// by someone else matching by message id (forwarded mail, shared inbox)
	// must not touch their lead or campaign.
	if original.UserID != account.UserID {
		rc.logger.WithFields(logrus.Fields{
			"account":    account.EmailAddress,
			"message_id": msg.MessageID,
		}).Warn("Ignoring reply to another user's sent event")
		return nil, nil
	}

	// A rerun over a message the previous pass already handled (crash before
	// the \Seen flag stuck, shared mailbox) must not double-count.
	var leadEvents []models.EmailEvent
	if err := rc.store.ListByField(ctx, store.KindEvents, "lead_id", original.LeadID, &leadEvents); err != nil {
		return nil, fmt.Errorf("scanning lead events: %w", err)
	}
	for _, e := range leadEvents {
		if e.EventType == models.EventTypeReplied && e.Metadata["reply_to_message_id"] == ref {
			return nil, nil
		}
	}

	now := rc.now().UTC()
	reply := models.EmailEvent{
		CampaignID:       original.CampaignID,
		LeadID:           original.LeadID,
		SequenceID:       original.SequenceID,
		StepNumber:       original.StepNumber,
		SendingAccountID: account.ID,
		EventType:        models.EventTypeReplied,
		RecipientEmail:   original.RecipientEmail,
		Subject:          msg.Subject,
		Metadata: map[string]string{
			"reply_to_message_id": ref,
			"from":                msg.From,
			"snippet":             snippet(msg.TextBody),
		},
		OccurredAt: now,
	}
	reply.UserID = original.UserID
	if err := rc.store.Create(ctx, store.KindEvents, &reply); err != nil {
		return nil, fmt.Errorf("recording replied event: %w", err)
	}
	if err := rc.store.IndexByField(ctx, store.KindEvents, reply.ID, "lead_id", reply.LeadID); err != nil {
		rc.logger.WithError(err).Error("Failed to index replied event by lead")
	}
	if err := rc.store.IndexByField(ctx, store.KindEvents, reply.ID, "campaign_id", reply.CampaignID); err != nil {
		rc.logger.WithError(err).Error("Failed to index replied event by campaign")
	}

	if original.LeadID != "" {
		var lead models.Lead
		if err := rc.store.Get(ctx, store.KindLeads, original.LeadID, &lead); err != nil {
			rc.logger.WithError(err).WithField("lead_id", original.LeadID).Error("Failed to load lead for reply")
		} else if models.CanTransition(lead.Status, models.LeadStatusReplied) {
			if err := rc.store.Update(ctx, store.KindLeads, lead.ID, map[string]interface{}{
				"status":     models.LeadStatusReplied,
				"replied_at": now,
			}); err != nil {
				rc.logger.WithError(err).WithField("lead_id", lead.ID).Error("Failed to mark lead replied")
			}
		}
	}

	if original.CampaignID != "" {
		if err := rc.store.Incr(ctx, store.KindCampaigns, original.CampaignID, "replied_count", 1); err != nil {
			rc.logger.WithError(err).Error("Failed to increment campaign reply count")
		}
	}

	return &ReplyOutcome{
		Account: account.EmailAddress,
		Status:  OutcomeReplyDetected,
		LeadID:  original.LeadID,
	}, nil
}

// snippet truncates the body on a rune boundary so the stored metadata
// stays valid UTF-8.
func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= replySnippetLimit {
		return s
	}
	cut := replySnippetLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
