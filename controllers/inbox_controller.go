package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailsprint/models"
	"mailsprint/store"
)

// ThreadLead is the lead summary embedded in a thread row.
type ThreadLead struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Company   string `json:"company,omitempty"`
}

// Thread summarizes the exchange with one lead: the newest event, whether
// the lead ever replied, and how many events the exchange holds.
type Thread struct {
	LeadID     string            `json:"lead_id"`
	Lead       ThreadLead        `json:"lead"`
	LastEvent  models.EmailEvent `json:"last_event"`
	HasReply   bool              `json:"has_reply"`
	EventCount int               `json:"event_count"`
}

type InboxController struct {
	store  *store.Store
	logger *logrus.Logger
}

func NewInboxController(st *store.Store, logger *logrus.Logger) *InboxController {
	return &InboxController{store: st, logger: logger}
}

// groupThreads folds an event list (ascending by creation) into per-lead
// threads, keeping first-contact order between leads.
func groupThreads(events []models.EmailEvent) []Thread {
	index := make(map[string]int)
	var threads []Thread
	for _, e := range events {
		if e.LeadID == "" {
			continue
		}
		i, ok := index[e.LeadID]
		if !ok {
			i = len(threads)
			index[e.LeadID] = i
			threads = append(threads, Thread{LeadID: e.LeadID})
		}
		threads[i].LastEvent = e
		threads[i].EventCount++
		if e.EventType == models.EventTypeReplied {
			threads[i].HasReply = true
		}
	}
	return threads
}

// ListThreads lists the caller's email threads grouped by lead.
func (ic *InboxController) ListThreads(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var events []models.EmailEvent
	if err := ic.store.ListByUser(c.Context(), store.KindEvents, user.ID, &events); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list events",
		})
	}

	threads := groupThreads(events)
	resolved := make([]Thread, 0, len(threads))
	for _, thread := range threads {
		var lead models.Lead
		err := ic.store.Get(c.Context(), store.KindLeads, thread.LeadID, &lead)
		if errors.Is(err, store.ErrNotFound) || (err == nil && lead.UserID != user.ID) {
			continue
		} else if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load lead",
			})
		}
		thread.Lead = ThreadLead{
			Email:     lead.Email,
			FirstName: lead.FirstName,
			LastName:  lead.LastName,
			Company:   lead.Company,
		}
		resolved = append(resolved, thread)
	}
	return c.JSON(resolved)
}

// GetThread returns the full event history for one lead, plus the names of
// the campaigns those events belong to.
func (ic *InboxController) GetThread(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var lead models.Lead
	err := ic.store.Get(c.Context(), store.KindLeads, c.Params("lead_id"), &lead)
	if errors.Is(err, store.ErrNotFound) || (err == nil && lead.UserID != user.ID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Thread not found",
		})
	} else if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load lead",
		})
	}

	var events []models.EmailEvent
	if err := ic.store.ListByField(c.Context(), store.KindEvents, "lead_id", lead.ID, &events); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list events",
		})
	}

	campaigns := make(map[string]string)
	for _, e := range events {
		if e.CampaignID == "" {
			continue
		}
		if _, seen := campaigns[e.CampaignID]; seen {
			continue
		}
		var campaign models.Campaign
		if err := ic.store.Get(c.Context(), store.KindCampaigns, e.CampaignID, &campaign); err == nil {
			campaigns[e.CampaignID] = campaign.Name
		}
	}

	return c.JSON(fiber.Map{
		"lead": ThreadLead{
			Email:     lead.Email,
			FirstName: lead.FirstName,
			LastName:  lead.LastName,
			Company:   lead.Company,
		},
		"lead_id":   lead.ID,
		"events":    events,
		"campaigns": campaigns,
	})
}
