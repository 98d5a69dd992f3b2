package api

import (
	"errors"
	"net/http"

	"followup-gateway/internal/broadcast"
	"followup-gateway/internal/contacts"
	"followup-gateway/internal/models"

	"github.com/gin-gonic/gin"
)

type BroadcastHandler struct {
	Queue    *broadcast.Queue
	Contacts *contacts.Store
}

func NewBroadcastHandler(queue *broadcast.Queue, contactStore *contacts.Store) *BroadcastHandler {
	return &BroadcastHandler{Queue: queue, Contacts: contactStore}
}

// resolveAudience loads the target contacts: the explicit list when ids are
// given, otherwise every opted-in contact.
func (h *BroadcastHandler) resolveAudience(contactIDs []uint) ([]models.Contact, error) {
	if len(contactIDs) == 0 {
		return h.Contacts.ListOptedIn()
	}

	var list []models.Contact
	for _, id := range contactIDs {
		contact, err := h.Contacts.Get(id)
		if err != nil {
			continue
		}
		list = append(list, *contact)
	}
	return list, nil
}

func (h *BroadcastHandler) respondStart(c *gin.Context, result *broadcast.StartResult, err error) {
	if errors.Is(err, broadcast.ErrNoEligibleRecipients) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// Custom sends an arbitrary message to an audience.
func (h *BroadcastHandler) Custom(c *gin.Context) {
	var req struct {
		Message    string `json:"message" binding:"required"`
		ContactIDs []uint `json:"contactIds"`
		SentBy     string `json:"sentBy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SentBy == "" {
		req.SentBy = "admin"
	}

	audience, err := h.resolveAudience(req.ContactIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.Queue.SendToGroup(audience, req.Message, req.SentBy)
	h.respondStart(c, result, err)
}

// SundayReminder sends the stock service reminder to all opted-in contacts.
func (h *BroadcastHandler) SundayReminder(c *gin.Context) {
	var req struct {
		ServiceTime string `json:"serviceTime"`
		SentBy      string `json:"sentBy"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.ServiceTime == "" {
		req.ServiceTime = "9:00 AM"
	}
	if req.SentBy == "" {
		req.SentBy = "admin"
	}

	audience, err := h.Contacts.ListOptedIn()
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.Queue.SundayReminder(audience, req.SentBy, req.ServiceTime)
	h.respondStart(c, result, err)
}

// EventUpdate announces an event to all opted-in contacts.
func (h *BroadcastHandler) EventUpdate(c *gin.Context) {
	var req struct {
		EventName string `json:"eventName" binding:"required"`
		Date      string `json:"date" binding:"required"`
		Time      string `json:"time" binding:"required"`
		Venue     string `json:"venue" binding:"required"`
		SentBy    string `json:"sentBy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SentBy == "" {
		req.SentBy = "admin"
	}

	audience, err := h.Contacts.ListOptedIn()
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.Queue.EventUpdate(audience, req.SentBy, req.EventName, req.Date, req.Time, req.Venue)
	h.respondStart(c, result, err)
}

// Emergency sends an urgent notice to all opted-in contacts.
func (h *BroadcastHandler) Emergency(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
		SentBy  string `json:"sentBy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SentBy == "" {
		req.SentBy = "admin"
	}

	audience, err := h.Contacts.ListOptedIn()
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.Queue.Emergency(audience, req.SentBy, req.Message)
	h.respondStart(c, result, err)
}

// AbsentReminders sends the absent check-in to an explicit contact list.
// Runs synchronously; the list is expected to be small.
func (h *BroadcastHandler) AbsentReminders(c *gin.Context) {
	var req struct {
		ContactIDs  []uint `json:"contactIds" binding:"required"`
		WeeksMissed int    `json:"weeksMissed"`
		SentBy      string `json:"sentBy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.WeeksMissed < 1 {
		req.WeeksMissed = 1
	}
	if req.SentBy == "" {
		req.SentBy = "admin"
	}

	audience, err := h.resolveAudience(req.ContactIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	results, err := h.Queue.AbsentReminders(audience, req.SentBy, req.WeeksMissed)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
}

// Manual sends a single ad-hoc message to one contact.
func (h *BroadcastHandler) Manual(c *gin.Context) {
	var req struct {
		ContactID uint   `json:"contactId" binding:"required"`
		Message   string `json:"message" binding:"required"`
		SentBy    string `json:"sentBy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SentBy == "" {
		req.SentBy = "admin"
	}

	contact, err := h.Contacts.Get(req.ContactID)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.Queue.ManualMessage(contact, req.Message, req.SentBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// History lists campaigns, filterable by type and status.
func (h *BroadcastHandler) History(c *gin.Context) {
	page, limit := pagination(c)

	campaigns, total, err := h.Queue.History(page, limit, c.Query("type"), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paged(campaigns, total, page, limit))
}

// Detail returns one campaign with per-recipient outcomes.
func (h *BroadcastHandler) Detail(c *gin.Context) {
	campaign, err := h.Queue.Detail(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// Cancel aborts an in-flight campaign.
func (h *BroadcastHandler) Cancel(c *gin.Context) {
	if err := h.Queue.Cancel(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Broadcast cancelled"})
}
