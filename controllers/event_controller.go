package controller

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailsprint/models"
	"mailsprint/store"
)

// transparentGIF is a 1x1 transparent pixel served by the open tracker.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type EventController struct {
	store  *store.Store
	logger *logrus.Logger
}

func NewEventController(st *store.Store, logger *logrus.Logger) *EventController {
	return &EventController{store: st, logger: logger}
}

// GetEvents lists the caller's email events, optionally filtered by
// campaign or event type.
func (ec *EventController) GetEvents(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var events []models.EmailEvent
	if campaignID := c.Query("campaign_id"); campaignID != "" {
		var campaign models.Campaign
		err := ec.store.Get(c.Context(), store.KindCampaigns, campaignID, &campaign)
		if errors.Is(err, store.ErrNotFound) || (err == nil && campaign.UserID != user.ID) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Campaign not found",
			})
		} else if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load campaign",
			})
		}
		if err := ec.store.ListByField(c.Context(), store.KindEvents, "campaign_id", campaignID, &events); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to list events",
			})
		}
	} else if err := ec.store.ListByUser(c.Context(), store.KindEvents, user.ID, &events); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list events",
		})
	}

	if eventType := c.Query("event_type"); eventType != "" {
		filtered := events[:0]
		for _, e := range events {
			if e.EventType == eventType {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	return c.JSON(events)
}

// TrackOpen serves the tracking pixel. It always answers with the pixel,
// whatever happens to the bookkeeping: a broken tracker must never break
// the recipient's mail client.
func (ec *EventController) TrackOpen(c *fiber.Ctx) error {
	eventID := c.Query("id")
	if eventID != "" {
		if err := ec.recordOpen(c, eventID); err != nil {
			ec.logger.WithError(err).WithField("event_id", eventID).Warn("Failed to record open")
		}
	}
	c.Set("Content-Type", "image/gif")
	c.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	return c.Send(transparentGIF)
}

func (ec *EventController) recordOpen(c *fiber.Ctx, sentEventID string) error {
	var sent models.EmailEvent
	if err := ec.store.Get(c.Context(), store.KindEvents, sentEventID, &sent); err != nil {
		return err
	}
	if sent.EventType != models.EventTypeSent {
		return nil
	}

	// Mail clients fetch the pixel on every view; only the first counts.
	var leadEvents []models.EmailEvent
	if err := ec.store.ListByField(c.Context(), store.KindEvents, "lead_id", sent.LeadID, &leadEvents); err != nil {
		return err
	}
	for _, e := range leadEvents {
		if e.EventType == models.EventTypeOpened && e.Metadata["sent_event_id"] == sentEventID {
			return nil
		}
	}

	now := time.Now().UTC()
	opened := models.EmailEvent{
		CampaignID:       sent.CampaignID,
		LeadID:           sent.LeadID,
		SequenceID:       sent.SequenceID,
		StepNumber:       sent.StepNumber,
		SendingAccountID: sent.SendingAccountID,
		EventType:        models.EventTypeOpened,
		RecipientEmail:   sent.RecipientEmail,
		Metadata:         map[string]string{"sent_event_id": sentEventID},
		OccurredAt:       now,
	}
	opened.UserID = sent.UserID
	if err := ec.store.Create(c.Context(), store.KindEvents, &opened); err != nil {
		return err
	}
	if err := ec.store.IndexByField(c.Context(), store.KindEvents, opened.ID, "lead_id", opened.LeadID); err != nil {
		ec.logger.WithError(err).Error("Failed to index opened event by lead")
	}
	if err := ec.store.IndexByField(c.Context(), store.KindEvents, opened.ID, "campaign_id", opened.CampaignID); err != nil {
		ec.logger.WithError(err).Error("Failed to index opened event by campaign")
	}

	if sent.LeadID != "" {
		var lead models.Lead
		if err := ec.store.Get(c.Context(), store.KindLeads, sent.LeadID, &lead); err == nil &&
			models.CanTransition(lead.Status, models.LeadStatusOpened) {
			if err := ec.store.Update(c.Context(), store.KindLeads, lead.ID, map[string]interface{}{
				"status":    models.LeadStatusOpened,
				"opened_at": now,
			}); err != nil {
				ec.logger.WithError(err).Error("Failed to mark lead opened")
			}
		}
	}
	if sent.CampaignID != "" {
		if err := ec.store.Incr(c.Context(), store.KindCampaigns, sent.CampaignID, "opened_count", 1); err != nil {
			ec.logger.WithError(err).Error("Failed to increment open count")
		}
	}
	return nil
}

// TrackClick records the click and forwards the recipient to the original
// link. An unknown id still redirects.
func (ec *EventController) TrackClick(c *fiber.Ctx) error {
	targetURL := c.Query("url")
	if targetURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing url parameter",
		})
	}

	eventID := c.Query("id")
	if eventID != "" {
		if err := ec.recordClick(c, eventID, targetURL); err != nil {
			ec.logger.WithError(err).WithField("event_id", eventID).Warn("Failed to record click")
		}
	}
	return c.Redirect(targetURL, fiber.StatusFound)
}

func (ec *EventController) recordClick(c *fiber.Ctx, sentEventID, targetURL string) error {
	var sent models.EmailEvent
	if err := ec.store.Get(c.Context(), store.KindEvents, sentEventID, &sent); err != nil {
		return err
	}
	if sent.EventType != models.EventTypeSent {
		return nil
	}

	clicked := models.EmailEvent{
		CampaignID:       sent.CampaignID,
		LeadID:           sent.LeadID,
		SequenceID:       sent.SequenceID,
		StepNumber:       sent.StepNumber,
		SendingAccountID: sent.SendingAccountID,
		EventType:        models.EventTypeClicked,
		RecipientEmail:   sent.RecipientEmail,
		Metadata: map[string]string{
			"sent_event_id": sentEventID,
			"url":           targetURL,
		},
		OccurredAt: time.Now().UTC(),
	}
	clicked.UserID = sent.UserID
	if err := ec.store.Create(c.Context(), store.KindEvents, &clicked); err != nil {
		return err
	}
	if err := ec.store.IndexByField(c.Context(), store.KindEvents, clicked.ID, "lead_id", clicked.LeadID); err != nil {
		ec.logger.WithError(err).Error("Failed to index clicked event by lead")
	}
	if err := ec.store.IndexByField(c.Context(), store.KindEvents, clicked.ID, "campaign_id", clicked.CampaignID); err != nil {
		ec.logger.WithError(err).Error("Failed to index clicked event by campaign")
	}

	// A click implies the message was opened.
	return ec.recordOpen(c, sentEventID)
}
