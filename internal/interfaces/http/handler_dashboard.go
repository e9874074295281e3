package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"remnabot/internal/entities"
)

// DashboardHandler serves /api/bots/:bot_id/*. TenantScope has already put
// the bot into the request context.
type DashboardHandler struct {
	dashboard Dashboard
	ledger    Ledger
}

func NewDashboardHandler(dashboard Dashboard, ledger Ledger) *DashboardHandler {
	return &DashboardHandler{
		dashboard: dashboard,
		ledger:    ledger,
	}
}

func (h *DashboardHandler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/stats", h.GetStats)

	g.GET("/users", h.ListUsers)
	g.POST("/users/:id/balance", h.AdjustBalance)
	g.POST("/users/:id/block", h.SetBlocked)
	g.GET("/users/:id/payments", h.UserPayments)
	g.GET("/users/:id/transactions", h.UserTransactions)

	g.GET("/plans", h.ListPlans)
	g.POST("/plans", h.CreatePlan)
	g.PUT("/plans/:id", h.UpdatePlan)
	g.DELETE("/plans/:id", h.DeletePlan)

	g.GET("/payments/:id", h.GetPayment)
	g.POST("/payments/:id/refund", h.RefundPayment)

	g.GET("/settings", h.GetSettings)
	g.PUT("/settings/:key", h.SetSetting)
}

func (h *DashboardHandler) GetStats(c *gin.Context) {
	stats, err := h.dashboard.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListUsers pages with ?limit=&offset=
func (h *DashboardHandler) ListUsers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	users, err := h.dashboard.ListUsers(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *DashboardHandler) AdjustBalance(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Delta  int64  `json:"delta" binding:"required"`
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	reason := TruncateString(SanitizeString(req.Reason), MaxReasonLength)

	balance, err := h.ledger.Adjust(c.Request.Context(), userID, req.Delta, reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "balance": balance})
}

func (h *DashboardHandler) SetBlocked(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Blocked bool `json:"blocked"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.dashboard.SetBlocked(c.Request.Context(), userID, req.Blocked); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "blocked": req.Blocked})
}

func (h *DashboardHandler) UserPayments(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	payments, err := h.dashboard.UserPayments(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payments)
}

func (h *DashboardHandler) UserTransactions(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	txs, err := h.dashboard.UserTransactions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txs)
}

// Plans

type planRequest struct {
	Title        string `json:"title" binding:"required"`
	DurationDays int    `json:"duration_days" binding:"required"`
	Price        int64  `json:"price"`
	IsActive     *bool  `json:"is_active"`
}

func (r planRequest) plan() *entities.Plan {
	p := &entities.Plan{
		Title:        TruncateString(SanitizeString(r.Title), MaxTitleLength),
		DurationDays: r.DurationDays,
		Price:        r.Price,
		IsActive:     true,
	}
	if r.IsActive != nil {
		p.IsActive = *r.IsActive
	}
	return p
}

func (h *DashboardHandler) ListPlans(c *gin.Context) {
	plans, err := h.dashboard.ListPlans(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

func (h *DashboardHandler) CreatePlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	p := req.plan()
	if err := h.dashboard.CreatePlan(c.Request.Context(), p); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *DashboardHandler) UpdatePlan(c *gin.Context) {
	planID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	p := req.plan()
	p.ID = planID
	if err := h.dashboard.UpdatePlan(c.Request.Context(), p); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeletePlan deactivates the plan; subscriptions keep pointing at it.
func (h *DashboardHandler) DeletePlan(c *gin.Context) {
	planID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.dashboard.DeletePlan(c.Request.Context(), planID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

// Payments

func paymentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *DashboardHandler) GetPayment(c *gin.Context) {
	id, ok := paymentID(c)
	if !ok {
		return
	}
	p, err := h.dashboard.GetPayment(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *DashboardHandler) RefundPayment(c *gin.Context) {
	id, ok := paymentID(c)
	if !ok {
		return
	}
	p, err := h.ledger.Refund(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Settings

func (h *DashboardHandler) GetSettings(c *gin.Context) {
	settings, err := h.dashboard.Settings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *DashboardHandler) SetSetting(c *gin.Context) {
	var req struct {
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	value := SanitizeString(req.Value)
	if !ValidateLength(value, 0, MaxSettingLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Value too long"})
		return
	}

	key := c.Param("key")
	if err := h.dashboard.SetSetting(c.Request.Context(), key, value); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}
