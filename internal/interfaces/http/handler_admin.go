package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/elmyly/whaty/internal/infrastructure"
	"github.com/elmyly/whaty/internal/repository"
	"github.com/elmyly/whaty/internal/usecases"
)

type AdminHandler struct {
	userRepo *repository.UserRepository
	ledger   *usecases.QuotaLedger
	registry *infrastructure.SessionRegistry
}

func NewAdminHandler(userRepo *repository.UserRepository, ledger *usecases.QuotaLedger, registry *infrastructure.SessionRegistry) *AdminHandler {
	return &AdminHandler{
		userRepo: userRepo,
		ledger:   ledger,
		registry: registry,
	}
}

// GetStats returns platform statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.userRepo.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_users":        stats.TotalUsers,
		"admin_count":        stats.AdminCount,
		"connected_sessions": h.registry.ConnectedCount(),
	})
}

// GetAllUsers returns list of all users with quota figures
func (h *AdminHandler) GetAllUsers(c *gin.Context) {
	users, err := h.userRepo.GetAllUsers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	result := make([]gin.H, len(users))
	for i, u := range users {
		result[i] = gin.H{
			"id":    u.ID,
			"email": u.Email,
			"role":  u.Role,
			"quota": u.Quota(),
		}
	}
	c.JSON(http.StatusOK, result)
}

// GrantQuota raises a user's quota limit by a delta (credit top-up)
func (h *AdminHandler) GrantQuota(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var payload struct {
		Delta int `json:"delta"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Delta <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Delta must be positive"})
		return
	}

	quota, err := h.ledger.Grant(userID, payload.Delta)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "granted", "quota": quota})
}

// SetQuota overwrites a user's quota figures (administrative override; this
// is the only path that may leave used above limit)
func (h *AdminHandler) SetQuota(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var payload struct {
		QuotaLimit int `json:"quota_limit"`
		QuotaUsed  int `json:"quota_used"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if payload.QuotaLimit < 0 || payload.QuotaUsed < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quota figures cannot be negative"})
		return
	}

	if err := h.userRepo.UpdateQuota(userID, payload.QuotaLimit, payload.QuotaUsed); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update quota"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// UpdateRole changes a user's role
func (h *AdminHandler) UpdateRole(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var payload struct {
		Role string `json:"role"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || (payload.Role != "admin" && payload.Role != "user") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role must be admin or user"})
		return
	}

	// Don't allow demoting self
	currentUserID, _ := c.Get("user_id")
	if int(currentUserID.(float64)) == userID && payload.Role != "admin" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote your own account"})
		return
	}

	if err := h.userRepo.UpdateRole(userID, payload.Role); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update role"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "role": payload.Role})
}

// DeleteUser removes a user account
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	currentUserID, _ := c.Get("user_id")
	if int(currentUserID.(float64)) == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete your own account"})
		return
	}

	if err := h.userRepo.Delete(userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// RestartUserSession forcefully restarts a tenant's provider session
func (h *AdminHandler) RestartUserSession(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	state := h.registry.Restart(strconv.Itoa(userID))
	c.JSON(http.StatusOK, state)
}
