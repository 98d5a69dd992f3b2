package api

import (
	"errors"
	"net/http"
	"strconv"

	"followup-gateway/internal/flow"
	"followup-gateway/internal/waha"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// respondError maps service errors onto HTTP statuses in one place so every
// handler reports failures the same way.
func respondError(c *gin.Context, err error) {
	var sessionErr *waha.SessionNotActiveError
	var apiErr *waha.APIError

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, flow.ErrInvalidConfig), errors.Is(err, waha.ErrInvalidPhone):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &sessionErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "sessionState": sessionErr.State})
	case errors.Is(err, waha.ErrChannelUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// pagination reads page and limit query params with sane bounds.
func pagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// paged wraps a result list with its paging envelope.
func paged(items any, total int64, page, limit int) gin.H {
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	return gin.H{
		"items": items,
		"total": total,
		"page":  page,
		"pages": pages,
	}
}
