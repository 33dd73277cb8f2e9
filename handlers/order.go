package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/awadhimassomo/Mkulima-smart/inventory"
	"github.com/awadhimassomo/Mkulima-smart/middleware"
	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/awadhimassomo/Mkulima-smart/orders"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orders *orders.Service
	logger *zap.Logger
}

func NewOrderHandler(orderService *orders.Service, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orderService,
		logger: logger,
	}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "CreateOrder")
	defer span.End()

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buyerID := middleware.CurrentUserID(c)
	span.SetAttributes(
		attribute.Int64("buyer_id", buyerID),
		attribute.Int64("seller_id", req.SellerID),
		attribute.Int("item_count", len(req.Items)),
	)

	order, err := h.orders.CreateOrder(ctx, buyerID, req)
	if err != nil {
		span.RecordError(err)
		var availErr *orders.AvailabilityError
		switch {
		case errors.As(err, &availErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": availErr.Reason, "product_id": availErr.ProductID})
		case errors.Is(err, inventory.ErrProductNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Product not found"})
		case errors.Is(err, inventory.ErrInsufficientStock):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, orders.ErrSellerMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to create order",
				zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	span.SetAttributes(attribute.String("order.number", order.OrderNumber))
	middleware.RecordOrderCreated()
	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "GetOrder")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to get order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "UpdateOrderStatus")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var req models.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.CurrentUserID(c)
	var changedBy *int64
	if userID != 0 {
		changedBy = &userID
	}

	order, err := h.orders.UpdateStatus(ctx, id, req.Status, changedBy, req.Notes)
	if err != nil {
		span.RecordError(err)
		var transErr *orders.InvalidTransitionError
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		case errors.As(err, &transErr):
			c.JSON(http.StatusConflict, gin.H{"error": transErr.Error()})
		default:
			h.logger.Error("Failed to update order status", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	middleware.RecordOrderStatusChange(string(order.OrderStatus))
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "CancelOrder")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	// The body is optional; an empty body just means no reason given.
	var req models.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Reason = ""
	}

	userID := middleware.CurrentUserID(c)
	var cancelledBy *int64
	if userID != 0 {
		cancelledBy = &userID
	}

	order, err := h.orders.CancelOrder(ctx, id, req.Reason, cancelledBy)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		case errors.Is(err, orders.ErrNotCancellable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to cancel order", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	middleware.RecordOrderStatusChange(string(order.OrderStatus))
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) GetOrderHistory(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "GetOrderHistory")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	history, err := h.orders.GetStatusHistory(ctx, id)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to get order history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (h *OrderHandler) CalculateSummary(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "CalculateSummary")
	defer span.End()

	var req models.SummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buyerID := middleware.CurrentUserID(c)
	summary, err := h.orders.CalculateSummary(ctx, buyerID, req)
	if err != nil {
		span.RecordError(err)
		var availErr *orders.AvailabilityError
		switch {
		case errors.As(err, &availErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": availErr.Reason, "product_id": availErr.ProductID})
		case errors.Is(err, inventory.ErrProductNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Product not found"})
		default:
			h.logger.Error("Failed to calculate summary", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, summary)
}
