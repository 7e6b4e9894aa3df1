package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/freshcart/internal/auth"
	"example.com/freshcart/internal/models"
	"example.com/freshcart/internal/repository"
	"example.com/freshcart/internal/service"
	"example.com/freshcart/internal/tracing"
)

// OrderHandler handles order-related HTTP requests.
type OrderHandler struct {
	orders *service.OrderService
	tracer tracing.Tracer
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(orders *service.OrderService, tracer tracing.Tracer) *OrderHandler {
	return &OrderHandler{orders: orders, tracer: tracer}
}

func actorFrom(c *gin.Context) (service.Actor, bool) {
	principal, ok := auth.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return service.Actor{}, false
	}
	return service.Actor{ID: principal.ID, Role: principal.Role}, true
}

// CreateOrderRequest is the checkout payload.
type CreateOrderRequest struct {
	Items []struct {
		ProductID uuid.UUID `json:"product_id" binding:"required"`
		Quantity  int       `json:"quantity" binding:"required"`
	} `json:"items" binding:"required"`
	PaymentMethod string `json:"payment_method"`
	Address       string `json:"address"`
	DeliveryFee   int64  `json:"delivery_fee"`
}

// CreateOrder handles POST /api/orders.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-order")
	defer h.tracer.EndTransaction(txn)

	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	svcReq := service.CreateOrderRequest{
		PaymentMethod: req.PaymentMethod,
		Address:       req.Address,
		DeliveryFee:   req.DeliveryFee,
	}
	for _, item := range req.Items {
		svcReq.Items = append(svcReq.Items, service.CreateOrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), actor, svcReq)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// UpdateStatusRequest is the transition payload.
type UpdateStatusRequest struct {
	Status      models.OrderStatus  `json:"status" binding:"required"`
	PaymentType *models.PaymentType `json:"payment_type,omitempty"`
}

// UpdateStatus handles POST /api/orders/:id/status.
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-order-status")
	defer h.tracer.EndTransaction(txn)

	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.tracer.AddAttribute(txn, "order_id", orderID.String())
	h.tracer.AddAttribute(txn, "status", string(req.Status))

	order, err := h.orders.ApplyTransition(c.Request.Context(), orderID, req.Status, actor, req.PaymentType)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// AssignRequest is the assignment payload.
type AssignRequest struct {
	DeliveryAgentID uuid.UUID `json:"delivery_agent_id" binding:"required"`
}

// Assign handles POST /api/orders/:id/assign.
func (h *OrderHandler) Assign(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-order-assign")
	defer h.tracer.EndTransaction(txn)

	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.AssignAgent(c.Request.Context(), orderID, req.DeliveryAgentID, actor)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetOrder handles GET /api/orders/:id.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListOrders handles GET /api/orders (admin).
func (h *OrderHandler) ListOrders(c *gin.Context) {
	filter := repository.OrderFilter{
		Status: models.OrderStatus(c.Query("status")),
		Limit:  50,
	}
	orders, err := h.orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// SearchOrders handles GET /api/admin/orders/search.
func (h *OrderHandler) SearchOrders(c *gin.Context) {
	docs, err := h.orders.SearchOrders(c.Request.Context(), c.Query("q"), models.OrderStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": docs})
}
