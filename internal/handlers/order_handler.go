package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"renovation-service/internal/services"
)

// OrderHandler handles order, payment and refund HTTP requests
type OrderHandler struct {
	orderSvc *services.OrderService
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderSvc *services.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// CreateOrderRequest represents an order creation request
type CreateOrderRequest struct {
	OrderType    string `json:"order_type" binding:"required"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
}

// Create creates a pending order priced by order type
// POST /api/v1/orders
func (h *OrderHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}

	var resourceID *uuid.UUID
	if req.ResourceID != "" {
		id, err := uuid.Parse(req.ResourceID)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "无效的资源ID", nil)
			return
		}
		resourceID = &id
	}

	order, err := h.orderSvc.CreateOrder(c.Request.Context(), userID, req.OrderType, req.ResourceType, resourceID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "订单已创建", order)
}

// PaymentParams returns signed payment parameters for a pending order
// GET /api/v1/orders/:id/payment-params
func (h *OrderHandler) PaymentParams(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	params, err := h.orderSvc.PaymentParams(c.Request.Context(), userID, id)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", params)
}

// ConfirmPaidRequest represents a client-side payment confirmation
type ConfirmPaidRequest struct {
	TransactionID string `json:"transaction_id"`
}

// ConfirmPaid performs the guarded pending → paid transition
// POST /api/v1/orders/:id/confirm
func (h *OrderHandler) ConfirmPaid(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req ConfirmPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}

	order, err := h.orderSvc.ConfirmPaid(c.Request.Context(), userID, id, req.TransactionID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "支付已确认", order)
}

// PaymentNotify handles the payment gateway callback
// POST /api/v1/payments/notify
func (h *OrderHandler) PaymentNotify(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "读取回调内容失败", err)
		return
	}

	if err := h.orderSvc.PaymentNotify(c.Request.Context(), payload); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "SUCCESS"})
}

// ApplyRefundRequest represents a refund application
type ApplyRefundRequest struct {
	Reason string `json:"reason" binding:"required"`
	Note   string `json:"note"`
}

// ApplyRefund records one refund application for a paid order
// POST /api/v1/orders/:id/refund
func (h *OrderHandler) ApplyRefund(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req ApplyRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "请求格式错误", err)
		return
	}

	refund, err := h.orderSvc.ApplyRefund(c.Request.Context(), userID, id, req.Reason, req.Note)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "退款申请已提交", gin.H{
		"refund_id": refund.ID,
		"status":    refund.Status,
	})
}

// Get returns one order
// GET /api/v1/orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	order, err := h.orderSvc.GetOrder(c.Request.Context(), userID, id)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", order)
}

// List returns the caller's orders
// GET /api/v1/orders
func (h *OrderHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	orders, err := h.orderSvc.ListOrders(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", gin.H{"orders": orders})
}
