package controller

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailsprint/engine"
	"mailsprint/models"
	"mailsprint/store"
	"mailsprint/utils"
)

type SequenceStepRequest struct {
	StepNumber   int    `json:"step_number" validate:"required,min=1"`
	Subject      string `json:"subject" validate:"required_without=TemplateID"`
	Body         string `json:"body" validate:"required_without=TemplateID"`
	TemplateID   string `json:"template_id"`
	DelayDays    int    `json:"delay_days" validate:"min=0"`
	DelayHours   int    `json:"delay_hours" validate:"min=0"`
	DelayMinutes int    `json:"delay_minutes" validate:"min=0"`
	IsReply      bool   `json:"is_reply"`
}

type CreateCampaignRequest struct {
	Name             string                `json:"name" validate:"required,max=200"`
	Description      string                `json:"description" validate:"omitempty,max=1000"`
	SendingAccountID string                `json:"sending_account_id"`
	LeadListID       string                `json:"lead_list_id"`
	DailySendLimit   int                   `json:"daily_send_limit" validate:"min=0"`
	StopOnReply      *bool                 `json:"stop_on_reply"`
	SendGapSeconds   int                   `json:"send_gap_seconds" validate:"min=0"`
	WeekdaysOnly     bool                  `json:"weekdays_only"`
	Timezone         string                `json:"timezone" validate:"omitempty,max=50"`
	Steps            []SequenceStepRequest `json:"steps" validate:"omitempty,dive"`
}

type UpdateCampaignRequest struct {
	Name             *string `json:"name" validate:"omitempty,max=200"`
	Description      *string `json:"description" validate:"omitempty,max=1000"`
	SendingAccountID *string `json:"sending_account_id"`
	LeadListID       *string `json:"lead_list_id"`
	DailySendLimit   *int    `json:"daily_send_limit" validate:"omitempty,min=0"`
	StopOnReply      *bool   `json:"stop_on_reply"`
	Timezone         *string `json:"timezone" validate:"omitempty,max=50"`
}

type UpdateCampaignStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft active paused completed"`
}

type CampaignResponse struct {
	models.Campaign
	Steps []models.SequenceStep `json:"steps,omitempty"`
}

type CampaignController struct {
	store      *store.Store
	dispatcher *engine.Dispatcher
	logger     *logrus.Logger
}

func NewCampaignController(st *store.Store, dispatcher *engine.Dispatcher, logger *logrus.Logger) *CampaignController {
	return &CampaignController{store: st, dispatcher: dispatcher, logger: logger}
}

// verifyOwnedRefs rejects a sending account or lead list reference that
// does not exist or belongs to another user; the engines rely on campaign
// references staying within the owner's entities. It reports false after
// writing the error response.
func (cc *CampaignController) verifyOwnedRefs(c *fiber.Ctx, userID, accountID, listID string) (bool, error) {
	if accountID != "" {
		var account models.SendingAccount
		err := cc.store.Get(c.Context(), store.KindAccounts, accountID, &account)
		if errors.Is(err, store.ErrNotFound) || (err == nil && account.UserID != userID) {
			return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Sending account not found",
			})
		} else if err != nil {
			return false, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load sending account",
			})
		}
	}
	if listID != "" {
		var list models.LeadList
		err := cc.store.Get(c.Context(), store.KindLeadLists, listID, &list)
		if errors.Is(err, store.ErrNotFound) || (err == nil && list.UserID != userID) {
			return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Lead list not found",
			})
		} else if err != nil {
			return false, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load lead list",
			})
		}
	}
	return true, nil
}

func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if ok, rerr := cc.verifyOwnedRefs(c, user.ID, req.SendingAccountID, req.LeadListID); !ok {
		return rerr
	}

	stopOnReply := true
	if req.StopOnReply != nil {
		stopOnReply = *req.StopOnReply
	}
	campaign := models.Campaign{
		Name:             req.Name,
		Description:      req.Description,
		Status:           models.CampaignStatusDraft,
		SendingAccountID: req.SendingAccountID,
		LeadListID:       req.LeadListID,
		DailySendLimit:   req.DailySendLimit,
		StopOnReply:      stopOnReply,
		SendGapSeconds:   req.SendGapSeconds,
		WeekdaysOnly:     req.WeekdaysOnly,
		Timezone:         req.Timezone,
	}
	campaign.UserID = user.ID
	if err := cc.store.Create(c.Context(), store.KindCampaigns, &campaign); err != nil {
		cc.logger.WithError(err).Error("Failed to create campaign")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create campaign",
		})
	}

	steps := make([]models.SequenceStep, 0, len(req.Steps))
	for _, s := range req.Steps {
		if s.TemplateID != "" {
			var template models.Template
			err := cc.store.Get(c.Context(), store.KindTemplates, s.TemplateID, &template)
			if errors.Is(err, store.ErrNotFound) || (err == nil && template.UserID != user.ID) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Template not found",
				})
			} else if err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to load template",
				})
			}
			if s.Subject == "" {
				s.Subject = template.Subject
			}
			if s.Body == "" {
				s.Body = template.Body
			}
			if err := cc.store.Incr(c.Context(), store.KindTemplates, template.ID, "usage_count", 1); err != nil {
				cc.logger.WithError(err).Error("Failed to bump template usage")
			}
		}
		step := models.SequenceStep{
			CampaignID:   campaign.ID,
			StepNumber:   s.StepNumber,
			Subject:      s.Subject,
			Body:         s.Body,
			TemplateID:   s.TemplateID,
			DelayDays:    s.DelayDays,
			DelayHours:   s.DelayHours,
			DelayMinutes: s.DelayMinutes,
			IsReply:      s.IsReply,
		}
		step.UserID = user.ID
		if err := cc.store.Create(c.Context(), store.KindSequences, &step); err != nil {
			cc.logger.WithError(err).Error("Failed to create sequence step")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create sequence step",
			})
		}
		if err := cc.store.IndexByField(c.Context(), store.KindSequences, step.ID, "campaign_id", campaign.ID); err != nil {
			cc.logger.WithError(err).Error("Failed to index sequence step")
		}
		steps = append(steps, step)
	}

	return c.Status(fiber.StatusCreated).JSON(CampaignResponse{Campaign: campaign, Steps: steps})
}

func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var campaigns []models.Campaign
	if err := cc.store.ListByUser(c.Context(), store.KindCampaigns, user.ID, &campaigns); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list campaigns",
		})
	}
	return c.JSON(campaigns)
}

// loadOwnedCampaign fetches a campaign and enforces ownership. On failure it
// writes the error response and returns a nil campaign.
func (cc *CampaignController) loadOwnedCampaign(c *fiber.Ctx) (*models.Campaign, error) {
	user := c.Locals("user").(*models.User)

	var campaign models.Campaign
	err := cc.store.Get(c.Context(), store.KindCampaigns, c.Params("id"), &campaign)
	if errors.Is(err, store.ErrNotFound) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	} else if err != nil {
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load campaign",
		})
	}
	if campaign.UserID != user.ID {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Campaign not found",
		})
	}
	return &campaign, nil
}

func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	campaign, err := cc.loadOwnedCampaign(c)
	if campaign == nil {
		return err
	}

	var steps []models.SequenceStep
	if err := cc.store.ListByField(c.Context(), store.KindSequences, "campaign_id", campaign.ID, &steps); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load sequence steps",
		})
	}
	engine.SortSteps(steps)
	return c.JSON(CampaignResponse{Campaign: *campaign, Steps: steps})
}

func (cc *CampaignController) UpdateCampaign(c *fiber.Ctx) error {
	campaign, err := cc.loadOwnedCampaign(c)
	if campaign == nil {
		return err
	}

	var req UpdateCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	accountID, listID := "", ""
	if req.SendingAccountID != nil {
		accountID = *req.SendingAccountID
	}
	if req.LeadListID != nil {
		listID = *req.LeadListID
	}
	if ok, rerr := cc.verifyOwnedRefs(c, campaign.UserID, accountID, listID); !ok {
		return rerr
	}

	fields := map[string]interface{}{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.SendingAccountID != nil {
		fields["sending_account_id"] = *req.SendingAccountID
	}
	if req.LeadListID != nil {
		fields["lead_list_id"] = *req.LeadListID
	}
	if req.DailySendLimit != nil {
		fields["daily_send_limit"] = *req.DailySendLimit
	}
	if req.StopOnReply != nil {
		fields["stop_on_reply"] = *req.StopOnReply
	}
	if req.Timezone != nil {
		fields["timezone"] = *req.Timezone
	}
	if len(fields) == 0 {
		return c.JSON(campaign)
	}

	if err := cc.store.Update(c.Context(), store.KindCampaigns, campaign.ID, fields); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update campaign",
		})
	}

	var updated models.Campaign
	if err := cc.store.Get(c.Context(), store.KindCampaigns, campaign.ID, &updated); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load campaign",
		})
	}
	return c.JSON(updated)
}

// UpdateCampaignStatus changes the lifecycle status. Activating a campaign
// kicks off a dispatch pass for it in the background.
func (cc *CampaignController) UpdateCampaignStatus(c *fiber.Ctx) error {
	campaign, err := cc.loadOwnedCampaign(c)
	if campaign == nil {
		return err
	}

	var req UpdateCampaignStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	fields := map[string]interface{}{"status": req.Status}
	now := time.Now().UTC()
	if req.Status == models.CampaignStatusActive && campaign.StartedAt == nil {
		fields["started_at"] = now
	}
	if req.Status == models.CampaignStatusCompleted {
		fields["completed_at"] = now
	}
	if err := cc.store.Update(c.Context(), store.KindCampaigns, campaign.ID, fields); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update campaign status",
		})
	}

	if req.Status == models.CampaignStatusActive {
		campaignID := campaign.ID
		go func() {
			report := cc.dispatcher.Run(context.Background(), campaignID)
			cc.logger.WithFields(logrus.Fields{
				"campaign_id": campaignID,
				"sent":        report.Sent(),
				"warnings":    len(report.Warnings),
				"error":       report.Err,
			}).Info("Launch dispatch pass finished")
		}()
	}

	return c.JSON(fiber.Map{
		"message": "Campaign status updated",
		"status":  req.Status,
	})
}

func (cc *CampaignController) DeleteCampaign(c *fiber.Ctx) error {
	campaign, err := cc.loadOwnedCampaign(c)
	if campaign == nil {
		return err
	}

	var steps []models.SequenceStep
	if err := cc.store.ListByField(c.Context(), store.KindSequences, "campaign_id", campaign.ID, &steps); err == nil {
		for _, step := range steps {
			if _, err := cc.store.Delete(c.Context(), store.KindSequences, step.ID); err != nil {
				cc.logger.WithError(err).Error("Failed to delete sequence step")
			}
			if err := cc.store.RemoveFromIndex(c.Context(), store.KindSequences, step.ID, "campaign_id", campaign.ID); err != nil {
				cc.logger.WithError(err).Error("Failed to unindex sequence step")
			}
		}
	}

	if _, err := cc.store.Delete(c.Context(), store.KindCampaigns, campaign.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete campaign",
		})
	}
	return c.JSON(fiber.Map{
		"message": "Campaign deleted",
	})
}

// GetCampaignStats reports the counter caches plus derived rates.
func (cc *CampaignController) GetCampaignStats(c *fiber.Ctx) error {
	campaign, err := cc.loadOwnedCampaign(c)
	if campaign == nil {
		return err
	}

	openRate, replyRate := 0.0, 0.0
	if campaign.SentCount > 0 {
		openRate = float64(campaign.OpenedCount) / float64(campaign.SentCount) * 100
		replyRate = float64(campaign.RepliedCount) / float64(campaign.SentCount) * 100
	}
	return c.JSON(fiber.Map{
		"campaign_id":   campaign.ID,
		"status":        campaign.Status,
		"total_leads":   campaign.TotalLeads,
		"sent_count":    campaign.SentCount,
		"opened_count":  campaign.OpenedCount,
		"replied_count": campaign.RepliedCount,
		"bounced_count": campaign.BouncedCount,
		"open_rate":     openRate,
		"reply_rate":    replyRate,
	})
}
