package controller

import (
	"errors"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailsprint/models"
	"mailsprint/store"
	"mailsprint/utils"
)

type CreateLeadListRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"omitempty,max=1000"`
}

type UpdateLeadListRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

type UpdateLeadRequest struct {
	FirstName    *string                `json:"first_name" validate:"omitempty,max=100"`
	LastName     *string                `json:"last_name" validate:"omitempty,max=100"`
	Company      *string                `json:"company" validate:"omitempty,max=200"`
	CustomFields map[string]interface{} `json:"custom_fields"`
}

type LeadRequest struct {
	Email        string                 `json:"email" validate:"required,email"`
	FirstName    string                 `json:"first_name" validate:"omitempty,max=100"`
	LastName     string                 `json:"last_name" validate:"omitempty,max=100"`
	Company      string                 `json:"company" validate:"omitempty,max=200"`
	CustomFields map[string]interface{} `json:"custom_fields"`
}

type BulkCreateLeadsRequest struct {
	Leads []LeadRequest `json:"leads" validate:"required,min=1,dive"`
}

type BulkCreateLeadsResponse struct {
	Created []models.Lead `json:"created"`
	Skipped []fiber.Map   `json:"skipped,omitempty"`
}

type LeadController struct {
	store  *store.Store
	logger *logrus.Logger
}

func NewLeadController(st *store.Store, logger *logrus.Logger) *LeadController {
	return &LeadController{store: st, logger: logger}
}

func (lc *LeadController) CreateLeadList(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateLeadListRequest
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

	list := models.LeadList{
		Name:        req.Name,
		Description: req.Description,
	}
	list.UserID = user.ID
	if err := lc.store.Create(c.Context(), store.KindLeadLists, &list); err != nil {
		lc.logger.WithError(err).Error("Failed to create lead list")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create lead list",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(list)
}

func (lc *LeadController) GetLeadLists(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var lists []models.LeadList
	if err := lc.store.ListByUser(c.Context(), store.KindLeadLists, user.ID, &lists); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list lead lists",
		})
	}
	return c.JSON(lists)
}

func (lc *LeadController) loadOwnedList(c *fiber.Ctx, id string) (*models.LeadList, error) {
	user := c.Locals("user").(*models.User)

	var list models.LeadList
	err := lc.store.Get(c.Context(), store.KindLeadLists, id, &list)
	if errors.Is(err, store.ErrNotFound) || (err == nil && list.UserID != user.ID) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Lead list not found",
		})
	} else if err != nil {
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load lead list",
		})
	}
	return &list, nil
}

func (lc *LeadController) GetLeadList(c *fiber.Ctx) error {
	list, err := lc.loadOwnedList(c, c.Params("id"))
	if list == nil {
		return err
	}

	var leads []models.Lead
	if err := lc.store.ListByField(c.Context(), store.KindLeads, "lead_list_id", list.ID, &leads); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load leads",
		})
	}
	return c.JSON(fiber.Map{
		"list":  list,
		"leads": leads,
	})
}

func (lc *LeadController) UpdateLeadList(c *fiber.Ctx) error {
	list, err := lc.loadOwnedList(c, c.Params("id"))
	if list == nil {
		return err
	}

	var req UpdateLeadListRequest
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

	fields := map[string]interface{}{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if len(fields) > 0 {
		if err := lc.store.Update(c.Context(), store.KindLeadLists, list.ID, fields); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update lead list",
			})
		}
	}

	var updated models.LeadList
	if err := lc.store.Get(c.Context(), store.KindLeadLists, list.ID, &updated); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load lead list",
		})
	}
	return c.JSON(updated)
}

func (lc *LeadController) DeleteLeadList(c *fiber.Ctx) error {
	list, err := lc.loadOwnedList(c, c.Params("id"))
	if list == nil {
		return err
	}

	var leads []models.Lead
	if err := lc.store.ListByField(c.Context(), store.KindLeads, "lead_list_id", list.ID, &leads); err == nil {
		for _, lead := range leads {
			lc.removeLead(c, lead)
		}
	}

	if _, err := lc.store.Delete(c.Context(), store.KindLeadLists, list.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete lead list",
		})
	}
	return c.JSON(fiber.Map{
		"message": "Lead list deleted",
		"removed": len(leads),
	})
}

// CreateLead adds one lead to a list after syntax-checking the address.
func (lc *LeadController) CreateLead(c *fiber.Ctx) error {
	list, err := lc.loadOwnedList(c, c.Params("id"))
	if list == nil {
		return err
	}

	var req LeadRequest
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
	if err := checkmail.ValidateFormat(req.Email); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid email address",
		})
	}

	lead, aerr := lc.addLead(c, list, req)
	if aerr != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create lead",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(lead)
}

// BulkCreateLeads imports many leads at once. Invalid addresses are skipped
// and reported, not fatal.
func (lc *LeadController) BulkCreateLeads(c *fiber.Ctx) error {
	list, err := lc.loadOwnedList(c, c.Params("id"))
	if list == nil {
		return err
	}

	var req BulkCreateLeadsRequest
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

	resp := BulkCreateLeadsResponse{}
	for _, item := range req.Leads {
		if err := checkmail.ValidateFormat(item.Email); err != nil {
			resp.Skipped = append(resp.Skipped, fiber.Map{
				"email":  item.Email,
				"reason": "invalid email address",
			})
			continue
		}
		lead, err := lc.addLead(c, list, item)
		if err != nil {
			resp.Skipped = append(resp.Skipped, fiber.Map{
				"email":  item.Email,
				"reason": "store error",
			})
			continue
		}
		resp.Created = append(resp.Created, *lead)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (lc *LeadController) addLead(c *fiber.Ctx, list *models.LeadList, req LeadRequest) (*models.Lead, error) {
	lead := models.Lead{
		LeadListID:   list.ID,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Company:      req.Company,
		CustomFields: req.CustomFields,
		Status:       models.LeadStatusActive,
	}
	lead.UserID = list.UserID
	if err := lc.store.Create(c.Context(), store.KindLeads, &lead); err != nil {
		lc.logger.WithError(err).Error("Failed to create lead")
		return nil, err
	}
	if err := lc.store.IndexByField(c.Context(), store.KindLeads, lead.ID, "lead_list_id", list.ID); err != nil {
		lc.logger.WithError(err).Error("Failed to index lead")
	}
	if err := lc.store.Incr(c.Context(), store.KindLeadLists, list.ID, "lead_count", 1); err != nil {
		lc.logger.WithError(err).Error("Failed to increment lead count")
	}
	return &lead, nil
}

func (lc *LeadController) loadOwnedLead(c *fiber.Ctx) (*models.Lead, error) {
	user := c.Locals("user").(*models.User)

	var lead models.Lead
	err := lc.store.Get(c.Context(), store.KindLeads, c.Params("id"), &lead)
	if errors.Is(err, store.ErrNotFound) || (err == nil && lead.UserID != user.ID) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Lead not found",
		})
	} else if err != nil {
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load lead",
		})
	}
	return &lead, nil
}

func (lc *LeadController) GetLead(c *fiber.Ctx) error {
	lead, err := lc.loadOwnedLead(c)
	if lead == nil {
		return err
	}
	return c.JSON(lead)
}

func (lc *LeadController) UpdateLead(c *fiber.Ctx) error {
	lead, err := lc.loadOwnedLead(c)
	if lead == nil {
		return err
	}

	var req UpdateLeadRequest
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

	fields := map[string]interface{}{}
	if req.FirstName != nil {
		fields["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		fields["last_name"] = *req.LastName
	}
	if req.Company != nil {
		fields["company"] = *req.Company
	}
	if req.CustomFields != nil {
		fields["custom_fields"] = req.CustomFields
	}
	if len(fields) > 0 {
		if err := lc.store.Update(c.Context(), store.KindLeads, lead.ID, fields); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update lead",
			})
		}
	}

	var updated models.Lead
	if err := lc.store.Get(c.Context(), store.KindLeads, lead.ID, &updated); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load lead",
		})
	}
	return c.JSON(updated)
}

func (lc *LeadController) DeleteLead(c *fiber.Ctx) error {
	lead, err := lc.loadOwnedLead(c)
	if lead == nil {
		return err
	}

	lc.removeLead(c, *lead)
	if err := lc.store.Incr(c.Context(), store.KindLeadLists, lead.LeadListID, "lead_count", -1); err != nil {
		lc.logger.WithError(err).Error("Failed to decrement lead count")
	}
	return c.JSON(fiber.Map{
		"message": "Lead deleted",
	})
}

// UnsubscribeLead marks a lead unsubscribed so dispatch never touches it again.
func (lc *LeadController) UnsubscribeLead(c *fiber.Ctx) error {
	lead, err := lc.loadOwnedLead(c)
	if lead == nil {
		return err
	}

	if !models.CanTransition(lead.Status, models.LeadStatusUnsubscribed) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Lead cannot be unsubscribed from its current status",
		})
	}
	if err := lc.store.Update(c.Context(), store.KindLeads, lead.ID, map[string]interface{}{
		"status":          models.LeadStatusUnsubscribed,
		"unsubscribed_at": time.Now().UTC(),
	}); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to unsubscribe lead",
		})
	}
	return c.JSON(fiber.Map{
		"message": "Lead unsubscribed",
	})
}

func (lc *LeadController) removeLead(c *fiber.Ctx, lead models.Lead) {
	if _, err := lc.store.Delete(c.Context(), store.KindLeads, lead.ID); err != nil {
		lc.logger.WithError(err).Error("Failed to delete lead")
	}
	if err := lc.store.RemoveFromIndex(c.Context(), store.KindLeads, lead.ID, "lead_list_id", lead.LeadListID); err != nil {
		lc.logger.WithError(err).Error("Failed to unindex lead")
	}
}
