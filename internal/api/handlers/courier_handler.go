package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/freshcart/internal/service"
	"example.com/freshcart/internal/tracing"
)

// CourierHandler handles delivery-agent-scoped HTTP requests.
type CourierHandler struct {
	orders *service.OrderService
	tracer tracing.Tracer
}

// NewCourierHandler creates a new courier handler.
func NewCourierHandler(orders *service.OrderService, tracer tracing.Tracer) *CourierHandler {
	return &CourierHandler{orders: orders, tracer: tracer}
}

// ListOrders handles GET /api/courier/orders: orders assigned to the caller.
func (h *CourierHandler) ListOrders(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	orders, err := h.orders.ListAgentOrders(c.Request.Context(), actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// PushTokenRequest carries a device registration token.
type PushTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// RegisterPushToken handles POST /api/courier/push-token.
func (h *CourierHandler) RegisterPushToken(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req PushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.orders.RegisterAgentPushToken(c.Request.Context(), actor.ID, req.Token); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
