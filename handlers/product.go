package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/awadhimassomo/Mkulima-smart/cache"
	"github.com/awadhimassomo/Mkulima-smart/inventory"
	"github.com/awadhimassomo/Mkulima-smart/middleware"
	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type ProductHandler struct {
	inventory *inventory.Service
	rdb       *redis.Client
	logger    *zap.Logger
}

func NewProductHandler(inv *inventory.Service, rdb *redis.Client, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		inventory: inv,
		rdb:       rdb,
		logger:    logger,
	}
}

// GetProduct serves catalog reads cache-aside. A Redis miss or outage
// falls through to the database.
func (h *ProductHandler) GetProduct(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "GetProduct")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	if h.rdb != nil {
		if data, err := cache.GetProduct(ctx, h.rdb, id); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			c.Data(http.StatusOK, "application/json", data)
			return
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	product, err := h.inventory.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, inventory.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to get product", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if h.rdb != nil {
		if err := cache.SetProduct(ctx, h.rdb, id, product); err != nil {
			h.logger.Warn("Failed to cache product", zap.Int64("product_id", id), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, product)
}

type adjustStockRequest struct {
	Delta      int                    `json:"delta" binding:"required"`
	ChangeType models.StockChangeType `json:"change_type" binding:"required"`
	Notes      string                 `json:"notes"`
}

// AdjustStock applies a manual restock or correction and invalidates the
// cache entry.
func (h *ProductHandler) AdjustStock(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "AdjustStock")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	var req adjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := middleware.CurrentUserID(c)
	var actor *int64
	if userID != 0 {
		actor = &userID
	}

	product, err := h.inventory.AdjustStock(ctx, id, req.Delta, req.ChangeType, req.Notes, actor)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, inventory.ErrProductNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		case errors.Is(err, inventory.ErrInsufficientStock):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to adjust stock", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	if h.rdb != nil {
		if err := cache.InvalidateProduct(ctx, h.rdb, id); err != nil {
			h.logger.Warn("Failed to invalidate product cache", zap.Int64("product_id", id), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) GetInventoryLogs(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "GetInventoryLogs")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	logs, err := h.inventory.GetLogs(ctx, id)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to get inventory logs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// CheckAvailability is a read-only probe used by storefront clients before
// checkout.
func (h *ProductHandler) CheckAvailability(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace").Start(c.Request.Context(), "CheckAvailability")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}
	quantity, err := strconv.Atoi(c.DefaultQuery("quantity", "1"))
	if err != nil || quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quantity"})
		return
	}

	product, err := h.inventory.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, inventory.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to get product", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	available, reason := h.inventory.CheckAvailability(product, quantity)
	c.JSON(http.StatusOK, gin.H{
		"available": available,
		"reason":    reason,
		"stock":     product.StockQuantity,
	})
}
