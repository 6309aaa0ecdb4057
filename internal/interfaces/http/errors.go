package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/elmyly/whaty/internal/entities"
)

// respondError maps the error taxonomy onto HTTP statuses. Quota failures
// always carry the current figures so the caller can render the balance.
func respondError(c *gin.Context, err error) {
	var quotaErr *entities.QuotaExceededError
	var providerErr *entities.ProviderError

	switch {
	case errors.As(err, &quotaErr):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": quotaErr.Error(),
			"code":  "quota_exceeded",
			"quota": quotaErr.Info(),
		})
	case errors.Is(err, entities.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "not_ready"})
	case errors.Is(err, entities.ErrInvalidPhone):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_phone"})
	case errors.Is(err, entities.ErrMissingTarget):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "missing_target"})
	case errors.Is(err, entities.ErrUnknownRecipient):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "unknown_recipient"})
	case errors.Is(err, entities.ErrMediaFetchFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "code": "media_fetch_failed"})
	case errors.Is(err, entities.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "not_found"})
	case errors.Is(err, entities.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": "forbidden"})
	case errors.As(err, &providerErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": providerErr.Error(), "code": "provider_error"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
