package controller

import (
	"errors"
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/likexian/whois"
	"github.com/sirupsen/logrus"

	"mailsprint/models"
	"mailsprint/store"
	"mailsprint/utils"
)

type CreateDomainRequest struct {
	Domain string `json:"domain" validate:"required,fqdn"`
}

type DomainHealthResponse struct {
	Domain     string   `json:"domain"`
	MXRecords  []string `json:"mx_records"`
	SPFRecord  string   `json:"spf_record,omitempty"`
	DMARCRec   string   `json:"dmarc_record,omitempty"`
	HasMX      bool     `json:"has_mx"`
	HasSPF     bool     `json:"has_spf"`
	HasDMARC   bool     `json:"has_dmarc"`
	WhoisExtra string   `json:"whois,omitempty"`
	Healthy    bool     `json:"healthy"`
}

type DomainController struct {
	store  *store.Store
	logger *logrus.Logger
}

func NewDomainController(st *store.Store, logger *logrus.Logger) *DomainController {
	return &DomainController{store: st, logger: logger}
}

func (dc *DomainController) CreateDomain(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateDomainRequest
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

	domain := models.Domain{
		Domain:            strings.ToLower(req.Domain),
		Status:            models.DomainStatusPending,
		VerificationToken: uuid.New().String(),
	}
	domain.UserID = user.ID
	if err := dc.store.Create(c.Context(), store.KindDomains, &domain); err != nil {
		dc.logger.WithError(err).Error("Failed to create domain")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create domain",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(domain)
}

func (dc *DomainController) GetDomains(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var domains []models.Domain
	if err := dc.store.ListByUser(c.Context(), store.KindDomains, user.ID, &domains); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list domains",
		})
	}
	return c.JSON(domains)
}

func (dc *DomainController) loadOwnedDomain(c *fiber.Ctx) (*models.Domain, error) {
	user := c.Locals("user").(*models.User)

	var domain models.Domain
	err := dc.store.Get(c.Context(), store.KindDomains, c.Params("id"), &domain)
	if errors.Is(err, store.ErrNotFound) || (err == nil && domain.UserID != user.ID) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Domain not found",
		})
	} else if err != nil {
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load domain",
		})
	}
	return &domain, nil
}

func (dc *DomainController) DeleteDomain(c *fiber.Ctx) error {
	domain, err := dc.loadOwnedDomain(c)
	if domain == nil {
		return err
	}

	if _, err := dc.store.Delete(c.Context(), store.KindDomains, domain.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete domain",
		})
	}
	return c.JSON(fiber.Map{
		"message": "Domain deleted",
	})
}

// CheckDomainHealth probes the DNS posture a deliverable sending domain
// needs: MX records, an SPF TXT record and a DMARC policy. WHOIS registrar
// data is attached when the lookup succeeds; its absence is not an error.
func (dc *DomainController) CheckDomainHealth(c *fiber.Ctx) error {
	domain, err := dc.loadOwnedDomain(c)
	if domain == nil {
		return err
	}

	health := DomainHealthResponse{Domain: domain.Domain}

	if mxs, err := net.LookupMX(domain.Domain); err == nil {
		for _, mx := range mxs {
			health.MXRecords = append(health.MXRecords, mx.Host)
		}
		health.HasMX = len(mxs) > 0
	}

	if txts, err := net.LookupTXT(domain.Domain); err == nil {
		for _, txt := range txts {
			if strings.HasPrefix(txt, "v=spf1") {
				health.SPFRecord = txt
				health.HasSPF = true
				break
			}
		}
	}

	if txts, err := net.LookupTXT("_dmarc." + domain.Domain); err == nil {
		for _, txt := range txts {
			if strings.HasPrefix(txt, "v=DMARC1") {
				health.DMARCRec = txt
				health.HasDMARC = true
				break
			}
		}
	}

	if raw, err := whois.Whois(domain.Domain); err == nil {
		// Keep only the first lines, full WHOIS responses run to pages.
		lines := strings.SplitN(raw, "\n", 16)
		if len(lines) > 15 {
			lines = lines[:15]
		}
		health.WhoisExtra = strings.TrimSpace(strings.Join(lines, "\n"))
	} else {
		dc.logger.WithError(err).WithField("domain", domain.Domain).Debug("WHOIS lookup failed")
	}

	health.Healthy = health.HasMX && health.HasSPF && health.HasDMARC

	status := models.DomainStatusError
	if health.Healthy {
		status = models.DomainStatusVerified
	}
	if status != domain.Status {
		if err := dc.store.Update(c.Context(), store.KindDomains, domain.ID, map[string]interface{}{
			"status": status,
		}); err != nil {
			dc.logger.WithError(err).Error("Failed to update domain status")
		}
	}
	return c.JSON(health)
}
