package api

import (
	"net/http"
	"strconv"

	"followup-gateway/internal/activity"
	"followup-gateway/internal/contacts"

	"github.com/gin-gonic/gin"
)

type ContactHandler struct {
	Contacts *contacts.Store
	Activity *activity.Log
}

func NewContactHandler(contactStore *contacts.Store, activityLog *activity.Log) *ContactHandler {
	return &ContactHandler{Contacts: contactStore, Activity: activityLog}
}

// Counts reports how many contacts are reachable for broadcasts.
func (h *ContactHandler) Counts(c *gin.Context) {
	counts, err := h.Contacts.CountOptedIn()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// UpdateConsent flips a contact's messaging opt-in and stamps the matching
// date field.
func (h *ContactHandler) UpdateConsent(c *gin.Context) {
	contactID, err := strconv.ParseUint(c.Param("contactId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact id"})
		return
	}

	var req struct {
		OptIn *bool `json:"optIn" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact, err := h.Contacts.UpdateConsent(uint(contactID), *req.OptIn)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

// History returns a contact's message log, newest first.
func (h *ContactHandler) History(c *gin.Context) {
	contactID, err := strconv.ParseUint(c.Param("contactId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact id"})
		return
	}

	page, limit := pagination(c)
	entries, total, err := h.Activity.ForContact(uint(contactID), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paged(entries, total, page, limit))
}
