package controller

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailsprint/engine"
)

// EmailController exposes the engine trigger endpoints. Both acknowledge
// immediately and run the pass in the background; results go to the log.
type EmailController struct {
	dispatcher *engine.Dispatcher
	checker    *engine.ReplyChecker
	logger     *logrus.Logger
}

func NewEmailController(dispatcher *engine.Dispatcher, checker *engine.ReplyChecker, logger *logrus.Logger) *EmailController {
	return &EmailController{dispatcher: dispatcher, checker: checker, logger: logger}
}

// SendCampaign triggers a dispatch pass, for one campaign when campaign_id
// is given, otherwise for all active campaigns.
func (ec *EmailController) SendCampaign(c *fiber.Ctx) error {
	campaignID := c.Query("campaign_id")

	go func() {
		report := ec.dispatcher.Run(context.Background(), campaignID)
		ec.logger.WithFields(logrus.Fields{
			"campaign_id": campaignID,
			"sent":        report.Sent(),
			"results":     len(report.Results),
			"warnings":    len(report.Warnings),
			"error":       report.Err,
		}).Info("Dispatch pass finished")
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Dispatch started",
	})
}

// CheckReplies triggers a reply-detection pass over every active account.
func (ec *EmailController) CheckReplies(c *fiber.Ctx) error {
	go func() {
		report := ec.checker.Run(context.Background())
		ec.logger.WithFields(logrus.Fields{
			"results": len(report.Results),
			"error":   report.Err,
		}).Info("Reply pass finished")
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Reply check started",
	})
}
