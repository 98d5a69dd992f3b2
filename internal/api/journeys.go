package api

import (
	"net/http"
	"strconv"

	"followup-gateway/internal/contacts"
	"followup-gateway/internal/followup"

	"github.com/gin-gonic/gin"
)

type JourneyHandler struct {
	Engine   *followup.Engine
	Contacts *contacts.Store
}

func NewJourneyHandler(engine *followup.Engine, contactStore *contacts.Store) *JourneyHandler {
	return &JourneyHandler{Engine: engine, Contacts: contactStore}
}

// Start begins (or resumes) the follow-up journey for a contact.
func (h *JourneyHandler) Start(c *gin.Context) {
	var req struct {
		ContactID uint `json:"contactId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact, err := h.Contacts.Get(req.ContactID)
	if err != nil {
		respondError(c, err)
		return
	}

	journey, err := h.Engine.StartJourney(contact)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, journey)
}

// GetByContact returns the journey for one contact.
func (h *JourneyHandler) GetByContact(c *gin.Context) {
	contactID, err := strconv.ParseUint(c.Param("contactId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact id"})
		return
	}

	journey, err := h.Engine.JourneyByContact(uint(contactID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, journey)
}

// List returns journeys newest first, optionally filtered by status.
func (h *JourneyHandler) List(c *gin.Context) {
	page, limit := pagination(c)
	status := c.Query("status")

	journeys, total, err := h.Engine.ListJourneys(status, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paged(journeys, total, page, limit))
}

// StopByContact pauses the journey tied to a contact.
func (h *JourneyHandler) StopByContact(c *gin.Context) {
	contactID, err := strconv.ParseUint(c.Param("contactId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact id"})
		return
	}

	var req struct {
		Actor  string `json:"actor"`
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Actor == "" {
		req.Actor = "admin"
	}

	journey, err := h.Engine.StopJourneyByContact(uint(contactID), req.Actor, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Journey stopped", "journey": journey})
}

// StopByID pauses a journey by its own id.
func (h *JourneyHandler) StopByID(c *gin.Context) {
	journeyID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid journey id"})
		return
	}

	var req struct {
		Actor  string `json:"actor"`
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Actor == "" {
		req.Actor = "admin"
	}

	journey, err := h.Engine.StopJourneyByID(uint(journeyID), req.Actor, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Journey stopped", "journey": journey})
}

// StopAll pauses every active journey, or only those for the given contacts.
func (h *JourneyHandler) StopAll(c *gin.Context) {
	var req struct {
		ContactIDs []uint `json:"contactIds"`
		Actor      string `json:"actor"`
		Reason     string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Actor == "" {
		req.Actor = "admin"
	}

	stopped, err := h.Engine.StopAllActive(req.ContactIDs, req.Actor, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Journeys stopped", "stopped": stopped})
}
