package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailsprint/config"
	"mailsprint/models"
	"mailsprint/store"
	"mailsprint/utils"
)

type CreateSenderRequest struct {
	EmailAddress string `json:"email_address" validate:"required,email"`
	DisplayName  string `json:"display_name" validate:"omitempty,max=100"`
	Provider     string `json:"provider" validate:"omitempty,max=50"`

	SMTPHost       string `json:"smtp_host" validate:"required"`
	SMTPPort       int    `json:"smtp_port" validate:"required,min=1,max=65535"`
	SMTPUsername   string `json:"smtp_username"`
	SMTPPassword   string `json:"smtp_password" validate:"required"`
	SMTPEncryption string `json:"smtp_encryption" validate:"omitempty,oneof=SSL STARTTLS NONE"`

	IMAPHost       string `json:"imap_host"`
	IMAPPort       int    `json:"imap_port" validate:"omitempty,min=1,max=65535"`
	IMAPUsername   string `json:"imap_username"`
	IMAPPassword   string `json:"imap_password"`
	IMAPEncryption string `json:"imap_encryption" validate:"omitempty,oneof=SSL STARTTLS NONE"`
	IMAPMailbox    string `json:"imap_mailbox" validate:"omitempty,max=100"`

	DailySendLimit int  `json:"daily_send_limit" validate:"min=0"`
	WarmupEnabled  bool `json:"warmup_enabled"`
}

type UpdateSenderRequest struct {
	DisplayName    *string `json:"display_name" validate:"omitempty,max=100"`
	Status         *string `json:"status" validate:"omitempty,oneof=active paused error warming"`
	SMTPHost       *string `json:"smtp_host"`
	SMTPPort       *int    `json:"smtp_port" validate:"omitempty,min=1,max=65535"`
	SMTPUsername   *string `json:"smtp_username"`
	SMTPPassword   *string `json:"smtp_password"`
	SMTPEncryption *string `json:"smtp_encryption" validate:"omitempty,oneof=SSL STARTTLS NONE"`
	IMAPHost       *string `json:"imap_host"`
	IMAPPort       *int    `json:"imap_port" validate:"omitempty,min=1,max=65535"`
	IMAPUsername   *string `json:"imap_username"`
	IMAPPassword   *string `json:"imap_password"`
	IMAPEncryption *string `json:"imap_encryption" validate:"omitempty,oneof=SSL STARTTLS NONE"`
	IMAPMailbox    *string `json:"imap_mailbox" validate:"omitempty,max=100"`
	DailySendLimit *int    `json:"daily_send_limit" validate:"omitempty,min=0"`
	WarmupEnabled  *bool   `json:"warmup_enabled"`
}

type SenderController struct {
	store  *store.Store
	logger *logrus.Logger
}

func NewSenderController(st *store.Store, logger *logrus.Logger) *SenderController {
	return &SenderController{store: st, logger: logger}
}

func (sc *SenderController) CreateSender(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateSenderRequest
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

	smtpPassword, err := utils.Encrypt(req.SMTPPassword, config.AppConfig.EncryptionKey)
	if err != nil {
		sc.logger.WithError(err).Error("Failed to encrypt SMTP password")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to encrypt credentials",
		})
	}
	imapPassword, err := utils.Encrypt(req.IMAPPassword, config.AppConfig.EncryptionKey)
	if err != nil {
		sc.logger.WithError(err).Error("Failed to encrypt IMAP password")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to encrypt credentials",
		})
	}

	account := models.SendingAccount{
		EmailAddress:   req.EmailAddress,
		DisplayName:    req.DisplayName,
		Provider:       req.Provider,
		Status:         models.AccountStatusActive,
		SMTPHost:       req.SMTPHost,
		SMTPPort:       req.SMTPPort,
		SMTPUsername:   req.SMTPUsername,
		SMTPPassword:   smtpPassword,
		SMTPEncryption: req.SMTPEncryption,
		IMAPHost:       req.IMAPHost,
		IMAPPort:       req.IMAPPort,
		IMAPUsername:   req.IMAPUsername,
		IMAPPassword:   imapPassword,
		IMAPEncryption: req.IMAPEncryption,
		IMAPMailbox:    req.IMAPMailbox,
		DailySendLimit: req.DailySendLimit,
		WarmupEnabled:  req.WarmupEnabled,
	}
	account.UserID = user.ID
	if err := sc.store.Create(c.Context(), store.KindAccounts, &account); err != nil {
		sc.logger.WithError(err).Error("Failed to create sending account")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sending account",
		})
	}

	account.Sanitize()
	return c.Status(fiber.StatusCreated).JSON(account)
}

func (sc *SenderController) GetSenders(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var accounts []models.SendingAccount
	if err := sc.store.ListByUser(c.Context(), store.KindAccounts, user.ID, &accounts); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sending accounts",
		})
	}
	for i := range accounts {
		accounts[i].Sanitize()
	}
	return c.JSON(accounts)
}

func (sc *SenderController) loadOwnedSender(c *fiber.Ctx) (*models.SendingAccount, error) {
	user := c.Locals("user").(*models.User)

	var account models.SendingAccount
	err := sc.store.Get(c.Context(), store.KindAccounts, c.Params("id"), &account)
	if errors.Is(err, store.ErrNotFound) || (err == nil && account.UserID != user.ID) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sending account not found",
		})
	} else if err != nil {
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load sending account",
		})
	}
	return &account, nil
}

func (sc *SenderController) GetSender(c *fiber.Ctx) error {
	account, err := sc.loadOwnedSender(c)
	if account == nil {
		return err
	}
	account.Sanitize()
	return c.JSON(account)
}

func (sc *SenderController) UpdateSender(c *fiber.Ctx) error {
	account, err := sc.loadOwnedSender(c)
	if account == nil {
		return err
	}

	var req UpdateSenderRequest
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
	if req.DisplayName != nil {
		fields["display_name"] = *req.DisplayName
	}
	if req.Status != nil {
		fields["status"] = *req.Status
	}
	if req.SMTPHost != nil {
		fields["smtp_host"] = *req.SMTPHost
	}
	if req.SMTPPort != nil {
		fields["smtp_port"] = *req.SMTPPort
	}
	if req.SMTPUsername != nil {
		fields["smtp_username"] = *req.SMTPUsername
	}
	if req.SMTPEncryption != nil {
		fields["smtp_encryption"] = *req.SMTPEncryption
	}
	if req.IMAPHost != nil {
		fields["imap_host"] = *req.IMAPHost
	}
	if req.IMAPPort != nil {
		fields["imap_port"] = *req.IMAPPort
	}
	if req.IMAPUsername != nil {
		fields["imap_username"] = *req.IMAPUsername
	}
	if req.IMAPEncryption != nil {
		fields["imap_encryption"] = *req.IMAPEncryption
	}
	if req.IMAPMailbox != nil {
		fields["imap_mailbox"] = *req.IMAPMailbox
	}
	if req.DailySendLimit != nil {
		fields["daily_send_limit"] = *req.DailySendLimit
	}
	if req.WarmupEnabled != nil {
		fields["warmup_enabled"] = *req.WarmupEnabled
	}
	if req.SMTPPassword != nil {
		encrypted, err := utils.Encrypt(*req.SMTPPassword, config.AppConfig.EncryptionKey)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to encrypt credentials",
			})
		}
		fields["smtp_password_encrypted"] = encrypted
	}
	if req.IMAPPassword != nil {
		encrypted, err := utils.Encrypt(*req.IMAPPassword, config.AppConfig.EncryptionKey)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to encrypt credentials",
			})
		}
		fields["imap_password_encrypted"] = encrypted
	}
	if len(fields) == 0 {
		account.Sanitize()
		return c.JSON(account)
	}

	if err := sc.store.Update(c.Context(), store.KindAccounts, account.ID, fields); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update sending account",
		})
	}

	var updated models.SendingAccount
	if err := sc.store.Get(c.Context(), store.KindAccounts, account.ID, &updated); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load sending account",
		})
	}
	updated.Sanitize()
	return c.JSON(updated)
}

func (sc *SenderController) DeleteSender(c *fiber.Ctx) error {
	account, err := sc.loadOwnedSender(c)
	if account == nil {
		return err
	}

	if _, err := sc.store.Delete(c.Context(), store.KindAccounts, account.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete sending account",
		})
	}
	return c.JSON(fiber.Map{
		"message": "Sending account deleted",
	})
}
