package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/elmyly/whaty/internal/entities"
)

// ImportList saves a named recipient list for later campaigns
func (h *Handler) ImportList(c *gin.Context) {
	_, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}

	var payload struct {
		Name    string   `json:"name"`
		Numbers []string `json:"numbers"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !ValidateLength(payload.Name, 1, MaxListNameLength) || len(payload.Numbers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name and numbers are required"})
		return
	}

	list := &entities.RecipientList{
		OwnerID: uid,
		Name:    SanitizeString(payload.Name),
		Numbers: payload.Numbers,
	}
	if err := h.listRepo.Create(list); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save list"})
		return
	}
	c.JSON(http.StatusCreated, list)
}

// GetLists returns all saved lists owned by the acting user
func (h *Handler) GetLists(c *gin.Context) {
	_, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}
	lists, err := h.listRepo.GetAllByOwner(uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch lists"})
		return
	}
	c.JSON(http.StatusOK, lists)
}

// GetList returns one saved list by id
func (h *Handler) GetList(c *gin.Context) {
	_, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}
	list, err := h.listRepo.GetByID(uid, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch list"})
		return
	}
	if list == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "List not found"})
		return
	}
	c.JSON(http.StatusOK, list)
}

// DeleteList removes one saved list by id
func (h *Handler) DeleteList(c *gin.Context) {
	_, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}
	if err := h.listRepo.Delete(uid, c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete list"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
