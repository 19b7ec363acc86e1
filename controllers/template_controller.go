package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailsprint/models"
	"mailsprint/store"
	"mailsprint/utils"
)

type TemplateRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Subject  string `json:"subject" validate:"required"`
	Body     string `json:"body" validate:"required"`
	Category string `json:"category" validate:"omitempty,max=100"`
}

type TemplateController struct {
	store  *store.Store
	logger *logrus.Logger
}

func NewTemplateController(st *store.Store, logger *logrus.Logger) *TemplateController {
	return &TemplateController{store: st, logger: logger}
}

func (tc *TemplateController) CreateTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req TemplateRequest
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

	template := models.Template{
		Name:     req.Name,
		Subject:  req.Subject,
		Body:     req.Body,
		Category: req.Category,
	}
	template.UserID = user.ID
	if err := tc.store.Create(c.Context(), store.KindTemplates, &template); err != nil {
		tc.logger.WithError(err).Error("Failed to create template")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create template",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(template)
}

func (tc *TemplateController) GetTemplates(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var templates []models.Template
	if err := tc.store.ListByUser(c.Context(), store.KindTemplates, user.ID, &templates); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list templates",
		})
	}
	return c.JSON(templates)
}

func (tc *TemplateController) loadOwnedTemplate(c *fiber.Ctx) (*models.Template, error) {
	user := c.Locals("user").(*models.User)

	var template models.Template
	err := tc.store.Get(c.Context(), store.KindTemplates, c.Params("id"), &template)
	if errors.Is(err, store.ErrNotFound) || (err == nil && template.UserID != user.ID) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Template not found",
		})
	} else if err != nil {
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load template",
		})
	}
	return &template, nil
}

func (tc *TemplateController) GetTemplate(c *fiber.Ctx) error {
	template, err := tc.loadOwnedTemplate(c)
	if template == nil {
		return err
	}
	return c.JSON(template)
}

func (tc *TemplateController) UpdateTemplate(c *fiber.Ctx) error {
	template, err := tc.loadOwnedTemplate(c)
	if template == nil {
		return err
	}

	var req TemplateRequest
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

	if err := tc.store.Update(c.Context(), store.KindTemplates, template.ID, map[string]interface{}{
		"name":     req.Name,
		"subject":  req.Subject,
		"body":     req.Body,
		"category": req.Category,
	}); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update template",
		})
	}

	var updated models.Template
	if err := tc.store.Get(c.Context(), store.KindTemplates, template.ID, &updated); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load template",
		})
	}
	return c.JSON(updated)
}

func (tc *TemplateController) DeleteTemplate(c *fiber.Ctx) error {
	template, err := tc.loadOwnedTemplate(c)
	if template == nil {
		return err
	}

	if _, err := tc.store.Delete(c.Context(), store.KindTemplates, template.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete template",
		})
	}
	return c.JSON(fiber.Map{
		"message": "Template deleted",
	})
}
