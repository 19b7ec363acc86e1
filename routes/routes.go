package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	controller "mailsprint/controllers"
	"mailsprint/engine"
	"mailsprint/middleware"
	"mailsprint/store"
)

// SetupRoutes wires every API surface onto the app.
func SetupRoutes(app *fiber.App, st *store.Store, dispatcher *engine.Dispatcher, checker *engine.ReplyChecker, logger *logrus.Logger) {
	authController := controller.NewAuthController(st, logger)
	campaignController := controller.NewCampaignController(st, dispatcher, logger)
	leadController := controller.NewLeadController(st, logger)
	senderController := controller.NewSenderController(st, logger)
	eventController := controller.NewEventController(st, logger)
	emailController := controller.NewEmailController(dispatcher, checker, logger)
	inboxController := controller.NewInboxController(st, logger)
	templateController := controller.NewTemplateController(st, logger)
	domainController := controller.NewDomainController(st, logger)

	api := app.Group("/api")

	// Public surfaces: auth and the tracking endpoints mail clients hit.
	auth := api.Group("/auth")
	auth.Post("/register", authController.Register)
	auth.Post("/login", authController.Login)

	api.Get("/email-events/track-open", eventController.TrackOpen)
	api.Get("/email-events/track-click", eventController.TrackClick)

	protected := api.Group("", middleware.Protected(st))
	protected.Get("/auth/me", authController.GetCurrentUser)

	campaigns := protected.Group("/campaigns")
	campaigns.Post("/", campaignController.CreateCampaign)
	campaigns.Get("/", campaignController.GetCampaigns)
	campaigns.Get("/:id", campaignController.GetCampaign)
	campaigns.Put("/:id", campaignController.UpdateCampaign)
	campaigns.Patch("/:id/status", campaignController.UpdateCampaignStatus)
	campaigns.Delete("/:id", campaignController.DeleteCampaign)
	campaigns.Get("/:id/stats", campaignController.GetCampaignStats)

	leadLists := protected.Group("/lead-lists")
	leadLists.Post("/", leadController.CreateLeadList)
	leadLists.Get("/", leadController.GetLeadLists)
	leadLists.Get("/:id", leadController.GetLeadList)
	leadLists.Patch("/:id", leadController.UpdateLeadList)
	leadLists.Delete("/:id", leadController.DeleteLeadList)
	leadLists.Post("/:id/leads", leadController.CreateLead)
	leadLists.Post("/:id/leads/bulk", leadController.BulkCreateLeads)

	leads := protected.Group("/leads")
	leads.Get("/:id", leadController.GetLead)
	leads.Patch("/:id", leadController.UpdateLead)
	leads.Delete("/:id", leadController.DeleteLead)
	leads.Post("/:id/unsubscribe", leadController.UnsubscribeLead)

	senders := protected.Group("/senders")
	senders.Post("/", senderController.CreateSender)
	senders.Get("/", senderController.GetSenders)
	senders.Get("/:id", senderController.GetSender)
	senders.Put("/:id", senderController.UpdateSender)
	senders.Delete("/:id", senderController.DeleteSender)

	events := protected.Group("/email-events")
	events.Get("/", eventController.GetEvents)

	inbox := protected.Group("/inbox")
	inbox.Get("/threads", inboxController.ListThreads)
	inbox.Get("/threads/:lead_id", inboxController.GetThread)

	emails := protected.Group("/emails", middleware.TriggerRateLimiter())
	emails.Post("/send-campaign", emailController.SendCampaign)
	emails.Post("/check-replies", emailController.CheckReplies)

	templates := protected.Group("/templates")
	templates.Post("/", templateController.CreateTemplate)
	templates.Get("/", templateController.GetTemplates)
	templates.Get("/:id", templateController.GetTemplate)
	templates.Put("/:id", templateController.UpdateTemplate)
	templates.Delete("/:id", templateController.DeleteTemplate)

	domains := protected.Group("/domains")
	domains.Post("/", domainController.CreateDomain)
	domains.Get("/", domainController.GetDomains)
	domains.Delete("/:id", domainController.DeleteDomain)
	domains.Get("/:id/health", domainController.CheckDomainHealth)

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := st.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
}
