package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/elmyly/whaty/internal/usecases"
)

// SendSingle dispatches one outbound message for the acting tenant
func (h *Handler) SendSingle(c *gin.Context) {
	key, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}

	var req usecases.SingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Recipient == "" || !ValidateLength(req.Body, 1, MaxBodyLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Recipient and body are required"})
		return
	}
	if !ValidateLength(req.Tag, 0, MaxTagLength) || !ValidateLength(req.Signature, 0, MaxTagLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Tag or signature too long (max 64 chars)"})
		return
	}
	req.Body = SanitizeString(req.Body)

	result, err := h.sendService.SendSingle(c.Request.Context(), key, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SendReply dispatches a message into an existing chat (or to a number)
func (h *Handler) SendReply(c *gin.Context) {
	key, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}

	var req usecases.ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !ValidateLength(req.Body, 1, MaxBodyLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Body is required"})
		return
	}
	req.Body = SanitizeString(req.Body)

	result, err := h.sendService.SendReply(c.Request.Context(), key, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SendBulk runs a rate-limited campaign over a list of recipients. The
// request may name a saved list instead of inline recipients.
func (h *Handler) SendBulk(c *gin.Context) {
	key, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}

	var payload struct {
		usecases.BulkRequest
		ListID string `json:"list_id,omitempty"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if payload.ListID != "" && len(payload.Recipients) == 0 {
		list, err := h.listRepo.GetByID(uid, payload.ListID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load list"})
			return
		}
		if list == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "List not found"})
			return
		}
		payload.Recipients = list.Numbers
	}

	if len(payload.Recipients) == 0 || len(payload.Recipients) > MaxBulkRecipients {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Recipients required (max 500)"})
		return
	}
	if !ValidateLength(payload.Body, 1, MaxBodyLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Body is required"})
		return
	}
	if !ValidateLength(payload.Tag, 0, MaxTagLength) || !ValidateLength(payload.Signature, 0, MaxTagLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Tag or signature too long (max 64 chars)"})
		return
	}
	payload.Body = SanitizeString(payload.Body)

	result, err := h.sendService.SendBulk(c.Request.Context(), key, payload.BulkRequest)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
