package webhook

import (
	"log"
	"net/http"
	"strings"

	"followup-gateway/internal/followup"

	"github.com/gin-gonic/gin"
)

// Handler receives WAHA webhook events and routes inbound messages to the
// follow-up engine.
type Handler struct {
	Engine *followup.Engine
}

func NewHandler(engine *followup.Engine) *Handler {
	return &Handler{Engine: engine}
}

type wahaEvent struct {
	Event   string      `json:"event"`
	Session string      `json:"session"`
	Payload wahaPayload `json:"payload"`
}

type wahaPayload struct {
	ID     any    `json:"id"`
	From   string `json:"from"`
	FromMe bool   `json:"fromMe"`
	Body   string `json:"body"`
}

// Receive handles POST /webhook. WAHA retries on non-2xx, so every outcome
// other than an unreadable body answers 200.
func (h *Handler) Receive(c *gin.Context) {
	var event wahaEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if event.Event != "message" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "not a message event"})
		return
	}
	if event.Payload.FromMe {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "own message"})
		return
	}
	from := event.Payload.From
	body := strings.TrimSpace(event.Payload.Body)
	if from == "" || body == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "empty sender or body"})
		return
	}
	// Group and broadcast chats are not follow-up conversations.
	if !strings.HasSuffix(from, "@c.us") && !strings.HasSuffix(from, "@lid") {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "not a direct chat"})
		return
	}

	outcome, err := h.Engine.HandleReply(from, body)
	if err != nil {
		log.Printf("[Webhook] Error handling reply from %s: %v", from, err)
		c.JSON(http.StatusOK, gin.H{"status": "error_logged"})
		return
	}
	if outcome == nil {
		// Unknown sender or duplicate delivery.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed", "action": outcome.Action})
}

// Test handles POST /webhook/test: same routing as Receive but with a flat
// body, for exercising reply handling without a live WAHA instance.
func (h *Handler) Test(c *gin.Context) {
	var req struct {
		From string `json:"from" binding:"required"`
		Body string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.Engine.HandleReply(req.From, strings.TrimSpace(req.Body))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if outcome == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed", "action": outcome.Action})
}
