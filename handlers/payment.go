package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/awadhimassomo/Mkulima-smart/gateway"
	"github.com/awadhimassomo/Mkulima-smart/middleware"
	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/awadhimassomo/Mkulima-smart/payments"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	payments *payments.Service
	logger   *zap.Logger
}

func NewPaymentHandler(paymentService *payments.Service, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: paymentService,
		logger:   logger,
	}
}

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "CreatePayment")
	defer span.End()

	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payerID := middleware.CurrentUserID(c)
	span.SetAttributes(
		attribute.Int64("order_id", req.OrderID),
		attribute.Int64("method_id", req.MethodID),
	)

	payment, err := h.payments.CreatePayment(ctx, payerID, req)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, payments.ErrOrderNotPayable),
			errors.Is(err, payments.ErrMethodInactive):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, payments.ErrMethodNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Payment method not found"})
		default:
			h.logger.Error("Failed to create payment",
				zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	span.SetAttributes(attribute.String("payment.reference", payment.ReferenceNumber))
	c.JSON(http.StatusCreated, payment)
}

func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "ProcessPayment")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment ID"})
		return
	}

	payment, result, err := h.payments.ProcessPayment(ctx, id)
	if err != nil {
		span.RecordError(err)
		var transErr *payments.InvalidTransitionError
		switch {
		case errors.Is(err, payments.ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		case errors.Is(err, payments.ErrPaymentExpired):
			c.JSON(http.StatusConflict, gin.H{"error": "Payment has expired"})
		case errors.As(err, &transErr):
			c.JSON(http.StatusConflict, gin.H{"error": transErr.Error()})
		default:
			h.logger.Error("Failed to process payment", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	middleware.RecordPaymentProcessed(string(payment.PaymentStatus))
	if !result.Success {
		c.JSON(http.StatusBadGateway, gin.H{
			"payment":    payment,
			"error_code": result.ErrorCode,
			"error":      result.ErrorMessage,
		})
		return
	}

	response := gin.H{"payment": payment}
	if result.CheckoutURL != "" {
		response["checkout_url"] = result.CheckoutURL
	}
	if result.Instructions != nil {
		response["instructions"] = result.Instructions
	}
	c.JSON(http.StatusOK, response)
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "GetPayment")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment ID"})
		return
	}

	payment, err := h.payments.GetPayment(ctx, id)
	if err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to get payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) CheckPaymentStatus(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "CheckPaymentStatus")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment ID"})
		return
	}

	payment, err := h.payments.CheckStatus(ctx, id)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, payments.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		h.logger.Error("Failed to check payment status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) ListPaymentMethods(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "ListPaymentMethods")
	defer span.End()

	methods, err := h.payments.ListMethods(ctx)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to list payment methods", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"methods": methods})
}

// HandleWebhook receives asynchronous gateway notifications. The provider
// comes from the route, the signature from the X-Signature header. A bad
// signature is a client error; duplicates are acknowledged with 200 so the
// gateway stops retrying.
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "HandleWebhook")
	defer span.End()

	provider := c.Param("provider")
	signature := c.GetHeader("X-Signature")
	span.SetAttributes(attribute.String("webhook.provider", provider))

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read payload"})
		return
	}

	payment, err := h.payments.HandleWebhook(ctx, provider, payload, signature)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, payments.ErrUnknownProvider):
			middleware.RecordWebhookReceived(provider, "unknown_provider")
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown provider"})
		case errors.Is(err, gateway.ErrInvalidSignature):
			middleware.RecordWebhookReceived(provider, "invalid_signature")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		case errors.Is(err, payments.ErrPaymentNotFound):
			middleware.RecordWebhookReceived(provider, "payment_not_found")
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		default:
			middleware.RecordWebhookReceived(provider, "error")
			h.logger.Error("Failed to handle webhook",
				zap.String("provider", provider), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	middleware.RecordWebhookReceived(provider, "processed")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "payment_status": payment.PaymentStatus})
}

func (h *PaymentHandler) CreateRefund(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "CreateRefund")
	defer span.End()

	paymentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment ID"})
		return
	}

	var req models.CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	requestedBy := middleware.CurrentUserID(c)
	refund, err := h.payments.CreateRefund(ctx, paymentID, requestedBy, req)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, payments.ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		case errors.Is(err, payments.ErrNotRefundable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, payments.ErrInvalidRefundAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to create refund", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusCreated, refund)
}

func (h *PaymentHandler) ProcessRefund(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "ProcessRefund")
	defer span.End()

	refundID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid refund ID"})
		return
	}

	approvedBy := middleware.CurrentUserID(c)
	refund, err := h.payments.ProcessRefund(ctx, refundID, approvedBy)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, payments.ErrRefundNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Refund not found"})
		case errors.Is(err, payments.ErrRefundNotActionable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to process refund", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, refund)
}

func (h *PaymentHandler) CompleteRefund(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "CompleteRefund")
	defer span.End()

	refundID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid refund ID"})
		return
	}

	completedBy := middleware.CurrentUserID(c)
	refund, err := h.payments.CompleteRefund(ctx, refundID, completedBy)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, payments.ErrRefundNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Refund not found"})
		case errors.Is(err, payments.ErrRefundNotActionable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to complete refund", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, refund)
}
