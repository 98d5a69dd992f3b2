package api

import (
	"net/http"

	"followup-gateway/internal/flow"
	"followup-gateway/internal/models"

	"github.com/gin-gonic/gin"
)

type FlowHandler struct {
	Flows *flow.Store
}

func NewFlowHandler(flows *flow.Store) *FlowHandler {
	return &FlowHandler{Flows: flows}
}

// Get returns the active follow-up flow plus the absent-reminder rules. The
// stock defaults are reported when nothing custom is stored.
func (h *FlowHandler) Get(c *gin.Context) {
	cfg, err := h.Flows.ActiveConfig()
	if err != nil {
		respondError(c, err)
		return
	}

	absent, err := h.Flows.AbsentReminder()
	if err != nil {
		respondError(c, err)
		return
	}

	if cfg == nil {
		c.JSON(http.StatusOK, gin.H{
			"name":           "Default Follow-Up Flow",
			"isDefault":      true,
			"stages":         flow.DefaultStages(),
			"absentReminder": absent,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":             cfg.ID,
		"name":           cfg.Name,
		"isDefault":      cfg.IsDefault,
		"stages":         flow.OrderedStages(cfg.Stages),
		"absentReminder": absent,
		"updatedBy":      cfg.UpdatedBy,
		"updatedAt":      cfg.UpdatedAt,
	})
}

// Update replaces the follow-up flow. Validation failures reject the whole
// request and leave the stored flow untouched.
func (h *FlowHandler) Update(c *gin.Context) {
	var req struct {
		Name           string                       `json:"name"`
		Stages         []models.FlowStage           `json:"stages" binding:"required"`
		AbsentReminder *models.AbsentReminderConfig `json:"absentReminder"`
		UpdatedBy      string                       `json:"updatedBy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UpdatedBy == "" {
		req.UpdatedBy = "admin"
	}

	cfg, err := h.Flows.UpdateFollowUpFlow(req.Name, req.Stages, req.AbsentReminder, req.UpdatedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Flow updated", "config": cfg})
}

// Reset discards any custom flow and reinstates the stock defaults.
func (h *FlowHandler) Reset(c *gin.Context) {
	var req struct {
		UpdatedBy string `json:"updatedBy"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.UpdatedBy == "" {
		req.UpdatedBy = "admin"
	}

	cfg, err := h.Flows.ResetToDefault(req.UpdatedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Flow reset to default", "config": cfg})
}
