package http

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/elmyly/whaty/internal/entities"
	"github.com/elmyly/whaty/internal/infrastructure"
	"github.com/elmyly/whaty/internal/repository"
	"github.com/elmyly/whaty/internal/usecases"
)

type Handler struct {
	registry    *infrastructure.SessionRegistry
	bus         *infrastructure.Broadcaster
	inbox       *infrastructure.InboxBuffer
	sendService *usecases.SendService
	chatService *usecases.ChatService
	ledger      *usecases.QuotaLedger
	userRepo    *repository.UserRepository
	listRepo    *repository.ListRepository
}

func NewHandler(registry *infrastructure.SessionRegistry, bus *infrastructure.Broadcaster, inbox *infrastructure.InboxBuffer, sendService *usecases.SendService, chatService *usecases.ChatService, ledger *usecases.QuotaLedger, userRepo *repository.UserRepository, listRepo *repository.ListRepository) *Handler {
	return &Handler{
		registry:    registry,
		bus:         bus,
		inbox:       inbox,
		sendService: sendService,
		chatService: chatService,
		ledger:      ledger,
		userRepo:    userRepo,
		listRepo:    listRepo,
	}
}

func SetupRoutes(r *gin.Engine, h *Handler, auth *usecases.AuthUsecase, middleware *Middleware) {
	adminHandler := NewAdminHandler(h.userRepo, h.ledger, h.registry)

	// Apply Security Middleware
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(10 << 20)) // 10MB max request size
	r.Use(middleware.CORSMiddleware())

	// Public Auth Routes
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/login", func(c *gin.Context) {
			var loginReq struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&loginReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			token, err := auth.Login(loginReq.Email, loginReq.Password)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})

		authGroup.POST("/register", func(c *gin.Context) {
			var regReq struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&regReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			if !ValidEmail(regReq.Email) || len(regReq.Password) < MinPasswordLength {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email or password (min 6 chars)"})
				return
			}
			user, err := auth.Register(regReq.Email, regReq.Password)
			if err != nil {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusCreated, gin.H{"status": "registered", "user": user})
		})
	}

	// Protected Routes
	api := r.Group("/api")
	api.Use(middleware.AuthRequired())
	api.Use(middleware.RateLimitPerUser(5, 10))
	{
		api.GET("/me", h.GetProfile)
		api.GET("/quota", h.GetQuota)

		// Session Routes
		api.GET("/session", h.GetSessionState)
		api.GET("/session/qr", h.GetSessionQR)
		api.POST("/session/restart", h.RestartSession)
		api.POST("/session/logout", h.LogoutSession)
		api.GET("/session/stream", h.StreamSessionState)

		// Inbox Routes
		api.GET("/inbox", h.GetInboxRecent)
		api.GET("/inbox/stream", h.StreamInbox)

		// Chat Routes
		api.GET("/chats", h.ListChats)
		api.GET("/chats/:id/messages", h.FetchChatMessages)

		// Message Routes
		api.POST("/messages/send", h.SendSingle)
		api.POST("/messages/reply", h.SendReply)
		api.POST("/messages/bulk", h.SendBulk)

		// Saved Recipient Lists
		api.POST("/lists", h.ImportList)
		api.GET("/lists", h.GetLists)
		api.GET("/lists/:id", h.GetList)
		api.DELETE("/lists/:id", h.DeleteList)
	}

	// Admin-only Routes
	admin := r.Group("/api/admin")
	admin.Use(middleware.AuthRequired())
	admin.Use(middleware.AdminRequired())
	{
		admin.GET("/stats", adminHandler.GetStats)
		admin.GET("/users", adminHandler.GetAllUsers)
		admin.POST("/users/:id/quota/grant", adminHandler.GrantQuota)
		admin.PUT("/users/:id/quota", adminHandler.SetQuota)
		admin.PUT("/users/:id/role", adminHandler.UpdateRole)
		admin.DELETE("/users/:id", adminHandler.DeleteUser)
		admin.POST("/users/:id/restart-session", adminHandler.RestartUserSession)
	}
}

// GetProfile returns the acting user's own record
func (h *Handler) GetProfile(c *gin.Context) {
	_, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}
	user, err := h.userRepo.GetByID(uid)
	if err != nil || user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetQuota returns the acting user's current quota figures
func (h *Handler) GetQuota(c *gin.Context) {
	_, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}
	quota, err := h.ledger.Check(uid, 0)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quota)
}

// GetSessionState ensures the tenant session exists and returns its snapshot
func (h *Handler) GetSessionState(c *gin.Context) {
	key, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}
	c.JSON(http.StatusOK, h.registry.Ensure(key))
}

// GetSessionQR returns the current pairing payload as a PNG image
func (h *Handler) GetSessionQR(c *gin.Context) {
	key, uid := sessionKey(c)
	if uid == 0 {
		c.String(http.StatusUnauthorized, "Invalid user")
		return
	}

	state := h.registry.Ensure(key)
	if state.Status == entities.StatusConnected {
		c.String(http.StatusOK, "Already logged in")
		return
	}
	if state.QRPayload == "" {
		c.String(http.StatusAccepted, "QR code not yet available. Please wait...")
		return
	}

	png, err := qrcode.Encode(state.QRPayload, qrcode.Medium, 256)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to generate QR code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// RestartSession tears down and reinstalls the tenant's connection handle
func (h *Handler) RestartSession(c *gin.Context) {
	key, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}
	c.JSON(http.StatusOK, h.registry.Restart(key))
}

// LogoutSession logs out provider-side and reinstalls a fresh handle
func (h *Handler) LogoutSession(c *gin.Context) {
	key, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}
	c.JSON(http.StatusOK, h.registry.Logout(key))
}

// StreamSessionState streams the session-state topic over SSE: current
// snapshot first, then every mutation in publish order.
func (h *Handler) StreamSessionState(c *gin.Context) {
	key, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}

	sub := h.registry.Watch(key)
	defer h.bus.UnsubscribeState(sub)

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case state, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent("state", state)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// StreamInbox streams live inbox entries for the tenant over SSE
func (h *Handler) StreamInbox(c *gin.Context) {
	key, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}

	// Make sure the session (and its handle) exists so events flow.
	h.registry.Ensure(key)

	sub := h.bus.SubscribeInbox(key)
	defer h.bus.UnsubscribeInbox(sub)

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case entry, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent("inbox", entry)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// GetInboxRecent serves the bounded recent-history buffer for catch-up
func (h *Handler) GetInboxRecent(c *gin.Context) {
	key, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	c.JSON(http.StatusOK, h.inbox.Recent(key, limit))
}

// ListChats returns the tenant's provider chats
func (h *Handler) ListChats(c *gin.Context) {
	key, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}
	chats, err := h.chatService.ListChats(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

// FetchChatMessages returns recent messages for one chat
func (h *Handler) FetchChatMessages(c *gin.Context) {
	key, uid := sessionKey(c)
	if uid == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	msgs, err := h.chatService.FetchMessages(c.Request.Context(), key, c.Param("id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}
