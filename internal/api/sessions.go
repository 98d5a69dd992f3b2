package api

import (
	"net/http"

	"followup-gateway/internal/config"
	"followup-gateway/internal/waha"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	Client *waha.Client
	Config *config.Config
}

func NewSessionHandler(client *waha.Client, cfg *config.Config) *SessionHandler {
	return &SessionHandler{Client: client, Config: cfg}
}

func (h *SessionHandler) webhookURL() string {
	if h.Config.WebhookBase == "" {
		return ""
	}
	return h.Config.WebhookBase + "/webhook"
}

// Status returns the session state in normalized form alongside the raw
// upstream payload.
func (h *SessionHandler) Status(c *gin.Context) {
	raw, err := h.Client.GetSessionStatus()
	if err != nil {
		respondError(c, err)
		return
	}
	state := waha.NormalizeSessionState(raw, h.Client.Session)
	c.JSON(http.StatusOK, gin.H{"session": state, "raw": raw})
}

// Start creates the session if needed and starts it.
func (h *SessionHandler) Start(c *gin.Context) {
	result, err := h.Client.StartOrCreateSession(h.webhookURL(), 3)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Bootstrap runs the full create-start-wait cycle and reports the resulting
// session state.
func (h *SessionHandler) Bootstrap(c *gin.Context) {
	state, err := h.Client.BootstrapDefaultSession(h.webhookURL())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": state})
}

func (h *SessionHandler) Stop(c *gin.Context) {
	result, err := h.Client.StopSession()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SessionHandler) Restart(c *gin.Context) {
	result, err := h.Client.RestartSession()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SessionHandler) Logout(c *gin.Context) {
	result, err := h.Client.LogoutSession()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// QR returns the pairing QR code, as an image payload or raw value depending
// on the format query param.
func (h *SessionHandler) QR(c *gin.Context) {
	format := c.DefaultQuery("format", "image")
	result, err := h.Client.GetQR(format)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ServerStatus reports reachability of the WAHA server itself.
func (h *SessionHandler) ServerStatus(c *gin.Context) {
	result, err := h.Client.GetServerStatus()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reachable": true, "server": result})
}
