package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"remnabot/internal/usecases"
)

// AdminHandler serves login and the platform level bot registry.
type AdminHandler struct {
	auth    Authenticator
	tenants TenantAdmin
}

func NewAdminHandler(auth Authenticator, tenants TenantAdmin) *AdminHandler {
	return &AdminHandler{
		auth:    auth,
		tenants: tenants,
	}
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !ValidUsername(req.Username) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, admin, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "admin": admin})
}

// Me returns the claims of the calling admin
func (h *AdminHandler) Me(c *gin.Context) {
	claims := claimsFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"admin_id": claims.AdminID,
		"role":     claims.Role,
		"bot_id":   claims.BotID,
	})
}

// RegisterBot connects a new tenant bot, optionally with its owner account
func (h *AdminHandler) RegisterBot(c *gin.Context) {
	var req usecases.RegisterBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.OwnerUsername != "" && !ValidUsername(req.OwnerUsername) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid owner username"})
		return
	}

	bot, err := h.tenants.RegisterBot(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bot)
}

func (h *AdminHandler) ListBots(c *gin.Context) {
	bots, err := h.tenants.ListBots(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bots)
}

func (h *AdminHandler) DeleteBot(c *gin.Context) {
	botID, ok := paramID(c, "bot_id")
	if !ok {
		return
	}
	if err := h.tenants.DeleteBot(c.Request.Context(), botID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// SetBotActive pauses or resumes serving a bot
func (h *AdminHandler) SetBotActive(c *gin.Context) {
	botID, ok := paramID(c, "bot_id")
	if !ok {
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	bot, err := h.tenants.SetBotActive(c.Request.Context(), botID, req.Active)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bot)
}
