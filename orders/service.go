package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/awadhimassomo/Mkulima-smart/inventory"
	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/awadhimassomo/Mkulima-smart/notify"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrNotCancellable = errors.New("order cannot be cancelled at this stage")
	ErrSellerMismatch = errors.New("item does not belong to the stated seller")
)

// InvalidTransitionError reports an order status change outside the
// transition table.
type InvalidTransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition: %s -> %s", e.From, e.To)
}

// AvailabilityError carries the buyer-facing reason an item cannot be
// ordered.
type AvailabilityError struct {
	ProductID int64
	Reason    string
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("product %d: %s", e.ProductID, e.Reason)
}

// UserDirectory resolves buyer/seller identity, role and city. The account
// subsystem itself lives outside this core.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// RefundIssuer creates refund requests for an order's completed payments
// inside the caller's transaction. Implemented by the payments service and
// bound after construction to break the mutual dependency.
type RefundIssuer interface {
	RefundOrderPayments(ctx context.Context, tx *sql.Tx, orderID int64, orderNumber string, requestedBy int64) error
}

type Service struct {
	db        *sql.DB
	inventory *inventory.Service
	users     UserDirectory
	refunds   RefundIssuer
	notifier  notify.Notifier
	logger    *zap.Logger
}

func NewService(db *sql.DB, inv *inventory.Service, users UserDirectory,
	notifier notify.Notifier, logger *zap.Logger) *Service {
	return &Service{
		db:        db,
		inventory: inv,
		users:     users,
		notifier:  notifier,
		logger:    logger,
	}
}

// BindRefunds wires the payments service in once both services exist.
func (s *Service) BindRefunds(r RefundIssuer) {
	s.refunds = r
}

// GenerateOrderNumber returns a human-readable unique identifier, e.g.
// ORD-20260901-3F9A1C7B.
func GenerateOrderNumber() string {
	timestamp := time.Now().Format("20060102")
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", timestamp, random)
}

// CreateOrder reserves stock and persists the order, its item snapshots,
// addresses and the initial history row in one transaction. If any item
// fails its availability check the whole reservation rolls back; no stock
// is left decremented. The seller notification fires after commit and its
// failure never unwinds the order.
func (s *Service) CreateOrder(ctx context.Context, buyerID int64, req models.CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, errors.New("order must contain at least one item")
	}

	buyer, err := s.users.GetUser(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve buyer: %w", err)
	}

	deliveryMethod := req.DeliveryMethod
	if deliveryMethod == "" {
		deliveryMethod = models.DeliveryLocal
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	orderNumber := GenerateOrderNumber()
	zero := decimal.Zero

	order := &models.Order{
		OrderNumber:    orderNumber,
		BuyerID:        buyerID,
		SellerID:       req.SellerID,
		OrderStatus:    models.OrderStatusPending,
		PaymentStatus:  models.OrderPaymentPending,
		Currency:       "TZS",
		DeliveryMethod: deliveryMethod,
		Notes:          req.Notes,
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders
		 (order_number, buyer_id, seller_id, order_status, payment_status,
		  subtotal, tax_amount, shipping_cost, discount_amount, total_amount,
		  currency, delivery_method, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id, order_date, created_at, updated_at`,
		orderNumber, buyerID, req.SellerID, order.OrderStatus, order.PaymentStatus,
		zero, zero, zero, zero, zero, order.Currency, deliveryMethod, req.Notes,
	).Scan(&order.ID, &order.OrderDate, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	subtotal := decimal.Zero
	for _, itemReq := range req.Items {
		product, err := s.inventory.GetProductForUpdate(ctx, tx, itemReq.ProductID)
		if err != nil {
			return nil, err
		}
		if product.SellerID != req.SellerID {
			return nil, fmt.Errorf("%w: product %d", ErrSellerMismatch, product.ID)
		}
		if ok, reason := s.inventory.CheckAvailability(product, itemReq.Quantity); !ok {
			return nil, &AvailabilityError{ProductID: product.ID, Reason: reason}
		}

		item := models.OrderItem{
			OrderID:            order.ID,
			ProductID:          product.ID,
			Quantity:           itemReq.Quantity,
			UnitPrice:          product.Price,
			TotalPrice:         product.Price.Mul(decimal.NewFromInt(int64(itemReq.Quantity))),
			ProductName:        product.Name,
			ProductSKU:         product.SKU,
			ProductDescription: product.Description,
			ItemStatus:         models.ItemStatusPending,
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO order_items
			 (order_id, product_id, quantity, unit_price, total_price,
			  product_name, product_sku, product_description, item_status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id`,
			item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.TotalPrice,
			item.ProductName, item.ProductSKU, item.ProductDescription, item.ItemStatus,
		).Scan(&item.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}

		if err := s.inventory.UpdateStock(ctx, tx, product, -itemReq.Quantity,
			models.StockChangeSale, orderNumber, "Order "+orderNumber, &buyerID); err != nil {
			return nil, err
		}

		order.Items = append(order.Items, item)
		subtotal = subtotal.Add(item.TotalPrice)
	}

	order.Subtotal = subtotal
	order.TaxAmount = CalculateTax(subtotal)
	order.ShippingCost = CalculateShippingCost(deliveryMethod, buyer)

	rule, discount := resolveDiscount(subtotal, req.DiscountCode, buyer)
	order.DiscountAmount = discount
	if rule != nil && discount.IsPositive() {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_discounts
			 (order_id, discount_code, discount_name, percentage, discount_amount)
			 VALUES ($1, $2, $3, $4, $5)`,
			order.ID, req.DiscountCode, rule.name, rule.percentage, discount)
		if err != nil {
			return nil, fmt.Errorf("failed to record discount: %w", err)
		}
	}
	order.CalculateTotal()

	_, err = tx.ExecContext(ctx,
		`UPDATE orders
		 SET subtotal = $1, tax_amount = $2, shipping_cost = $3,
		     discount_amount = $4, total_amount = $5, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $6`,
		order.Subtotal, order.TaxAmount, order.ShippingCost,
		order.DiscountAmount, order.TotalAmount, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update order totals: %w", err)
	}

	if req.BillingAddress != nil {
		if err := insertAddress(ctx, tx, order.ID, models.AddressBilling, req.BillingAddress); err != nil {
			return nil, err
		}
	}
	if req.ShippingAddress != nil {
		if err := insertAddress(ctx, tx, order.ID, models.AddressShipping, req.ShippingAddress); err != nil {
			return nil, err
		}
	}

	if err := insertHistory(ctx, tx, order.ID, "", models.OrderStatusPending, &buyerID, "Order created"); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("Order created",
		zap.String("order_number", order.OrderNumber),
		zap.Int64("buyer_id", buyerID),
		zap.Int64("seller_id", req.SellerID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
	)

	s.notifier.Notify(ctx, "order_created", models.OrderEvent{
		EventType:   "order_created",
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		BuyerID:     order.BuyerID,
		SellerID:    order.SellerID,
		ToStatus:    order.OrderStatus,
		TotalAmount: order.TotalAmount,
	})

	return order, nil
}

func insertAddress(ctx context.Context, tx *sql.Tx, orderID int64, addrType models.AddressType, a *models.AddressRequest) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_addresses
		 (order_id, address_type, recipient_name, phone_number, email,
		  street_address, city, region, delivery_instructions)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		orderID, addrType, a.RecipientName, a.PhoneNumber, a.Email,
		a.StreetAddress, a.City, a.Region, a.DeliveryInstructions)
	if err != nil {
		return fmt.Errorf("failed to create order address: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, orderID int64, from, to models.OrderStatus, changedBy *int64, notes string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_status_history (order_id, from_status, to_status, changed_by, notes)
		 VALUES ($1, $2, $3, $4, $5)`,
		orderID, from, to, changedBy, notes)
	if err != nil {
		return fmt.Errorf("failed to record status history: %w", err)
	}
	return nil
}

// UpdateStatus applies a transition from the table in models. Requesting
// the current status is an idempotent no-op. Entering cancelled restores
// stock and requests refunds for completed payments; entering delivered
// on a cash-on-delivery order settles the payment axis and the items.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, newStatus models.OrderStatus,
	changedBy *int64, notes string) (*models.Order, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	order, err := s.getOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	oldStatus := order.OrderStatus
	if oldStatus == newStatus {
		return order, nil
	}
	if !oldStatus.CanTransitionTo(newStatus) {
		return nil, &InvalidTransitionError{From: oldStatus, To: newStatus}
	}

	now := time.Now()
	order.OrderStatus = newStatus
	switch newStatus {
	case models.OrderStatusShipped:
		order.ShippedDate = &now
	case models.OrderStatusDelivered:
		order.DeliveredDate = &now
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orders
		 SET order_status = $1, shipped_date = $2, delivered_date = $3, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $4`,
		order.OrderStatus, order.ShippedDate, order.DeliveredDate, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	if err := insertHistory(ctx, tx, order.ID, oldStatus, newStatus, changedBy, notes); err != nil {
		return nil, err
	}

	switch newStatus {
	case models.OrderStatusCancelled:
		if err := s.restoreStock(ctx, tx, order, changedBy, notes); err != nil {
			return nil, err
		}
		if s.refunds != nil {
			requestedBy := order.BuyerID
			if err := s.refunds.RefundOrderPayments(ctx, tx, order.ID, order.OrderNumber, requestedBy); err != nil {
				return nil, fmt.Errorf("failed to request refunds: %w", err)
			}
		}
	case models.OrderStatusDelivered:
		if err := s.settleDelivery(ctx, tx, order); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("Order status changed",
		zap.String("order_number", order.OrderNumber),
		zap.String("from", string(oldStatus)),
		zap.String("to", string(newStatus)),
	)

	s.notifier.Notify(ctx, "order_status_changed", models.OrderEvent{
		EventType:   "order_status_changed",
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		BuyerID:     order.BuyerID,
		SellerID:    order.SellerID,
		FromStatus:  oldStatus,
		ToStatus:    newStatus,
		TotalAmount: order.TotalAmount,
	})

	return order, nil
}

func (s *Service) restoreStock(ctx context.Context, tx *sql.Tx, order *models.Order, actor *int64, reason string) error {
	items, err := s.loadItems(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	for _, item := range items {
		product, err := s.inventory.GetProductForUpdate(ctx, tx, item.ProductID)
		if err != nil {
			return err
		}
		note := fmt.Sprintf("Order %s cancelled", order.OrderNumber)
		if reason != "" {
			note = fmt.Sprintf("Order %s cancelled: %s", order.OrderNumber, reason)
		}
		if err := s.inventory.UpdateStock(ctx, tx, product, item.Quantity,
			models.StockChangeReturn, order.OrderNumber, note, actor); err != nil {
			return err
		}
	}
	order.Items = items
	return nil
}

func (s *Service) settleDelivery(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	if order.DeliveryMethod == models.DeliveryCashOnDelivery {
		order.PaymentStatus = models.OrderPaymentPaid
		if _, err := tx.ExecContext(ctx,
			"UPDATE orders SET payment_status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
			models.OrderPaymentPaid, order.ID); err != nil {
			return fmt.Errorf("failed to settle COD payment: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE order_items SET item_status = $1 WHERE order_id = $2",
		models.ItemStatusDelivered, order.ID); err != nil {
		return fmt.Errorf("failed to update item statuses: %w", err)
	}
	return nil
}

// CancelOrder is the caller-facing compensating action. Only pending and
// confirmed orders qualify; everything downstream of the gate happens in
// UpdateStatus's transaction.
func (s *Service) CancelOrder(ctx context.Context, orderID int64, reason string, cancelledBy *int64) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanBeCancelled() {
		return nil, fmt.Errorf("%w: status is %s", ErrNotCancellable, order.OrderStatus)
	}
	return s.UpdateStatus(ctx, orderID, models.OrderStatusCancelled, cancelledBy, reason)
}

// SyncPaymentCompleted is called by the payments service once a payment
// settles: the order's payment axis flips to paid and a still-pending
// order advances to confirmed.
func (s *Service) SyncPaymentCompleted(ctx context.Context, orderID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
		models.OrderPaymentPaid, orderID)
	if err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.OrderStatus == models.OrderStatusPending {
		if _, err := s.UpdateStatus(ctx, orderID, models.OrderStatusConfirmed, nil, "Payment confirmed"); err != nil {
			return err
		}
	}
	return nil
}

// SyncPaymentFailed flips the order's payment axis to failed. The order
// status itself stays put; the buyer can retry with another method.
func (s *Service) SyncPaymentFailed(ctx context.Context, orderID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
		models.OrderPaymentFailed, orderID)
	if err != nil {
		return fmt.Errorf("failed to mark order payment failed: %w", err)
	}
	return nil
}

// SyncPaymentRefunded is called once an order's payment is fully refunded.
func (s *Service) SyncPaymentRefunded(ctx context.Context, orderID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
		models.OrderPaymentRefunded, orderID)
	if err != nil {
		return fmt.Errorf("failed to mark order refunded: %w", err)
	}
	return nil
}

const orderColumns = `id, order_number, buyer_id, seller_id, order_status, payment_status,
	subtotal, tax_amount, shipping_cost, discount_amount, total_amount, currency,
	delivery_method, notes, tracking_number, order_date, required_date, shipped_date,
	delivered_date, created_at, updated_at`

func (s *Service) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
	if err != nil {
		return nil, err
	}
	items, err := s.loadItems(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (s *Service) getOrderForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	return scanOrder(tx.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id))
}

type row interface {
	Scan(dest ...any) error
}

func scanOrder(r row) (*models.Order, error) {
	var o models.Order
	err := r.Scan(
		&o.ID, &o.OrderNumber, &o.BuyerID, &o.SellerID, &o.OrderStatus, &o.PaymentStatus,
		&o.Subtotal, &o.TaxAmount, &o.ShippingCost, &o.DiscountAmount, &o.TotalAmount,
		&o.Currency, &o.DeliveryMethod, &o.Notes, &o.TrackingNumber, &o.OrderDate,
		&o.RequiredDate, &o.ShippedDate, &o.DeliveredDate, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Service) loadItems(ctx context.Context, tx *sql.Tx, orderID int64) ([]models.OrderItem, error) {
	query := `SELECT id, order_id, product_id, quantity, unit_price, total_price,
	       product_name, product_sku, product_description, item_status, created_at
	 FROM order_items WHERE order_id = $1 ORDER BY id`

	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, orderID)
	} else {
		rows, err = s.db.QueryContext(ctx, query, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice,
			&item.TotalPrice, &item.ProductName, &item.ProductSKU, &item.ProductDescription,
			&item.ItemStatus, &item.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetStatusHistory returns the append-only transition log, newest first.
func (s *Service) GetStatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, from_status, to_status, changed_by, notes, created_at
		 FROM order_status_history WHERE order_id = $1 ORDER BY created_at DESC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.OrderStatusHistory
	for rows.Next() {
		var h models.OrderStatusHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.FromStatus, &h.ToStatus, &h.ChangedBy, &h.Notes, &h.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}
