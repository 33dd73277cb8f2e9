package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/awadhimassomo/Mkulima-smart/gateway"
	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/awadhimassomo/Mkulima-smart/notify"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrMethodNotFound  = errors.New("payment method not found")
	ErrMethodInactive  = errors.New("payment method is not active")
	ErrOrderNotPayable = errors.New("order cannot be paid")
	ErrPaymentExpired  = errors.New("payment has expired")
	ErrNoGateway       = errors.New("no gateway registered for payment method")
)

// InvalidTransitionError reports a payment status change outside the
// transition table.
type InvalidTransitionError struct {
	From models.PaymentStatus
	To   models.PaymentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid payment status transition: %s -> %s", e.From, e.To)
}

// paymentExpiry is how long a pending payment stays claimable before the
// gateway attempt is refused.
const paymentExpiry = 30 * time.Minute

// OrderSync is the slice of the order service the payment orchestrator
// needs: order lookup plus the three settlement callbacks. Bound after
// construction to break the mutual dependency.
type OrderSync interface {
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	SyncPaymentCompleted(ctx context.Context, orderID int64) error
	SyncPaymentFailed(ctx context.Context, orderID int64) error
	SyncPaymentRefunded(ctx context.Context, orderID int64) error
}

type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

type Service struct {
	db       *sql.DB
	registry *gateway.Registry
	users    UserDirectory
	orders   OrderSync
	notifier notify.Notifier
	logger   *zap.Logger
}

func NewService(db *sql.DB, registry *gateway.Registry, users UserDirectory,
	notifier notify.Notifier, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		registry: registry,
		users:    users,
		notifier: notifier,
		logger:   logger,
	}
}

// BindOrders wires the order service in once both services exist.
func (s *Service) BindOrders(o OrderSync) {
	s.orders = o
}

// GenerateReferenceNumber returns a unique payment reference, e.g.
// PAY-202609011430-A3F91C.
func GenerateReferenceNumber() string {
	timestamp := time.Now().Format("200601021504")
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("PAY-%s-%s", timestamp, random)
}

// CreatePayment records a pending payment for an order. The fee is frozen
// from the method's schedule at creation time; later webhook settlement may
// overwrite it with the gateway's actual fee.
func (s *Service) CreatePayment(ctx context.Context, payerID int64, req models.CreatePaymentRequest) (*models.Payment, error) {
	order, err := s.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.OrderStatus == models.OrderStatusCancelled || order.OrderStatus == models.OrderStatusRefunded {
		return nil, fmt.Errorf("%w: order is %s", ErrOrderNotPayable, order.OrderStatus)
	}
	if order.IsPaid() {
		return nil, fmt.Errorf("%w: order is already paid", ErrOrderNotPayable)
	}

	method, err := s.GetMethod(ctx, req.MethodID)
	if err != nil {
		return nil, err
	}
	if !method.IsActive {
		return nil, ErrMethodInactive
	}

	fee := method.CalculateFee(order.TotalAmount)
	expiresAt := time.Now().Add(paymentExpiry)

	payment := &models.Payment{
		ReferenceNumber: GenerateReferenceNumber(),
		PaymentType:     models.PaymentTypeOrder,
		PaymentStatus:   models.PaymentStatusPending,
		PayerID:         payerID,
		PayeeID:         order.SellerID,
		MethodID:        method.ID,
		OrderID:         &order.ID,
		GrossAmount:     order.TotalAmount,
		FeeAmount:       fee,
		Currency:        order.Currency,
		Description:     fmt.Sprintf("Payment for order %s", order.OrderNumber),
		ExpiresAt:       &expiresAt,
	}
	payment.CalculateNet()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO payments
		 (reference_number, payment_type, payment_status, payer_id, payee_id,
		  method_id, order_id, gross_amount, fee_amount, net_amount, currency,
		  description, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id, initiated_at, created_at, updated_at`,
		payment.ReferenceNumber, payment.PaymentType, payment.PaymentStatus,
		payment.PayerID, payment.PayeeID, payment.MethodID, payment.OrderID,
		payment.GrossAmount, payment.FeeAmount, payment.NetAmount, payment.Currency,
		payment.Description, payment.ExpiresAt,
	).Scan(&payment.ID, &payment.InitiatedAt, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	if err := insertStatusHistory(ctx, tx, payment.ID, "", models.PaymentStatusPending, &payerID, "Payment created", nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("Payment created",
		zap.String("reference", payment.ReferenceNumber),
		zap.Int64("order_id", order.ID),
		zap.String("gross", payment.GrossAmount.StringFixed(2)),
		zap.String("fee", payment.FeeAmount.StringFixed(2)),
	)

	return payment, nil
}

// ProcessPayment dispatches a pending payment to its gateway. The result
// carries either a checkout URL, manual instructions, or a structured
// failure; a transport fault fails the payment instead of erroring out.
func (s *Service) ProcessPayment(ctx context.Context, paymentID int64) (*models.Payment, *gateway.InitiateResult, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	if payment.PaymentStatus != models.PaymentStatusPending {
		return nil, nil, &InvalidTransitionError{From: payment.PaymentStatus, To: models.PaymentStatusProcessing}
	}
	if payment.ExpiresAt != nil && time.Now().After(*payment.ExpiresAt) {
		if err := s.applyStatus(ctx, payment, models.PaymentStatusCancelled, nil, "Payment expired", nil); err != nil {
			return nil, nil, err
		}
		return nil, nil, ErrPaymentExpired
	}

	method, err := s.GetMethod(ctx, payment.MethodID)
	if err != nil {
		return nil, nil, err
	}
	gw, ok := s.registry.ForMethod(method)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoGateway, method.Name)
	}
	payer, err := s.users.GetUser(ctx, payment.PayerID)
	if err != nil {
		return nil, nil, err
	}

	result := gw.InitiatePayment(ctx, payment, payer)
	if !result.Success {
		note := result.ErrorCode
		if result.ErrorMessage != "" {
			note = fmt.Sprintf("%s: %s", result.ErrorCode, result.ErrorMessage)
		}
		if err := s.applyStatus(ctx, payment, models.PaymentStatusFailed, nil, note, result.RawResponse); err != nil {
			return nil, nil, err
		}
		if payment.OrderID != nil {
			if err := s.orders.SyncPaymentFailed(ctx, *payment.OrderID); err != nil {
				s.logger.Error("Failed to sync failed payment to order", zap.Error(err))
			}
		}
		return payment, &result, nil
	}

	if err := s.applyStatus(ctx, payment, models.PaymentStatusProcessing, nil, "Dispatched to "+gw.Name(), nil); err != nil {
		return nil, nil, err
	}

	payment.GatewayTxnID = result.GatewayTxnID
	payment.GatewayResponse = result.RawResponse
	_, err = s.db.ExecContext(ctx,
		`UPDATE payments
		 SET gateway_transaction_id = $1, gateway_response = $2, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $3`,
		payment.GatewayTxnID, payment.GatewayResponse, payment.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to store gateway reference: %w", err)
	}

	s.notifier.Notify(ctx, "payment_initiated", models.PaymentEvent{
		EventType:       "payment_initiated",
		PaymentID:       payment.ID,
		ReferenceNumber: payment.ReferenceNumber,
		OrderID:         derefOrderID(payment.OrderID),
		PayerID:         payment.PayerID,
		Status:          payment.PaymentStatus,
		GrossAmount:     payment.GrossAmount,
		GatewayTxnID:    payment.GatewayTxnID,
	})

	return payment, &result, nil
}

func derefOrderID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

// applyStatus moves a payment through the transition table and appends the
// history row in one transaction. Terminal settlement stamps processed_at.
func (s *Service) applyStatus(ctx context.Context, payment *models.Payment,
	newStatus models.PaymentStatus, changedBy *int64, notes string, gatewayResponse []byte) error {

	oldStatus := payment.PaymentStatus
	if !oldStatus.CanTransitionTo(newStatus) {
		return &InvalidTransitionError{From: oldStatus, To: newStatus}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	payment.PaymentStatus = newStatus
	switch newStatus {
	case models.PaymentStatusCompleted, models.PaymentStatusFailed, models.PaymentStatusCancelled:
		now := time.Now()
		payment.ProcessedAt = &now
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE payments
		 SET payment_status = $1, fee_amount = $2, net_amount = $3, is_verified = $4,
		     processed_at = $5, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $6`,
		payment.PaymentStatus, payment.FeeAmount, payment.NetAmount,
		payment.IsVerified, payment.ProcessedAt, payment.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}

	if err := insertStatusHistory(ctx, tx, payment.ID, oldStatus, newStatus, changedBy, notes, gatewayResponse); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Info("Payment status changed",
		zap.String("reference", payment.ReferenceNumber),
		zap.String("from", string(oldStatus)),
		zap.String("to", string(newStatus)),
	)
	return nil
}

func insertStatusHistory(ctx context.Context, tx *sql.Tx, paymentID int64,
	from, to models.PaymentStatus, changedBy *int64, notes string, gatewayResponse []byte) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payment_status_history (payment_id, from_status, to_status, changed_by, notes, gateway_response)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		paymentID, from, to, changedBy, notes, gatewayResponse)
	if err != nil {
		return fmt.Errorf("failed to record payment history: %w", err)
	}
	return nil
}

const paymentColumns = `id, reference_number, payment_type, payment_status, payer_id, payee_id,
	method_id, order_id, gross_amount, fee_amount, net_amount, currency,
	gateway_transaction_id, gateway_response, description, is_verified,
	initiated_at, processed_at, expires_at, created_at, updated_at`

type row interface {
	Scan(dest ...any) error
}

func scanPayment(r row) (*models.Payment, error) {
	var p models.Payment
	var gatewayTxnID sql.NullString
	err := r.Scan(
		&p.ID, &p.ReferenceNumber, &p.PaymentType, &p.PaymentStatus, &p.PayerID, &p.PayeeID,
		&p.MethodID, &p.OrderID, &p.GrossAmount, &p.FeeAmount, &p.NetAmount, &p.Currency,
		&gatewayTxnID, &p.GatewayResponse, &p.Description, &p.IsVerified,
		&p.InitiatedAt, &p.ProcessedAt, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	p.GatewayTxnID = gatewayTxnID.String
	return &p, nil
}

func (s *Service) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	return scanPayment(s.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = $1", id))
}

func (s *Service) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	return scanPayment(s.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE reference_number = $1", reference))
}

func (s *Service) getPaymentByGatewayTxn(ctx context.Context, gatewayTxnID string) (*models.Payment, error) {
	return scanPayment(s.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE gateway_transaction_id = $1", gatewayTxnID))
}

func (s *Service) GetMethod(ctx context.Context, id int64) (*models.PaymentMethod, error) {
	var m models.PaymentMethod
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, method_type, provider, is_active,
		        processing_fee_percentage, processing_fee_fixed, requires_verification, created_at
		 FROM payment_methods WHERE id = $1`, id).
		Scan(&m.ID, &m.Name, &m.MethodType, &m.Provider, &m.IsActive,
			&m.FeePercentage, &m.FeeFixed, &m.RequiresVerification, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMethodNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMethods returns the active payment methods, cheapest schedule first.
func (s *Service) ListMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, method_type, provider, is_active,
		        processing_fee_percentage, processing_fee_fixed, requires_verification, created_at
		 FROM payment_methods WHERE is_active = true
		 ORDER BY processing_fee_percentage, processing_fee_fixed`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var methods []models.PaymentMethod
	for rows.Next() {
		var m models.PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.MethodType, &m.Provider, &m.IsActive,
			&m.FeePercentage, &m.FeeFixed, &m.RequiresVerification, &m.CreatedAt); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

// GetStatusHistory returns the payment's transition log, newest first.
func (s *Service) GetStatusHistory(ctx context.Context, paymentID int64) ([]models.PaymentStatusHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payment_id, from_status, to_status, changed_by, notes, created_at
		 FROM payment_status_history WHERE payment_id = $1 ORDER BY created_at DESC`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.PaymentStatusHistory
	for rows.Next() {
		var h models.PaymentStatusHistory
		if err := rows.Scan(&h.ID, &h.PaymentID, &h.FromStatus, &h.ToStatus, &h.ChangedBy, &h.Notes, &h.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

// settle finalizes a completed payment: the gateway's actual fee replaces
// the estimate when reported, net is recomputed, and the order is synced.
func (s *Service) settle(ctx context.Context, payment *models.Payment, gatewayFee decimal.Decimal, raw []byte, notes string) error {
	if gatewayFee.IsPositive() {
		payment.FeeAmount = gatewayFee
	}
	payment.CalculateNet()
	payment.IsVerified = true

	if err := s.applyStatus(ctx, payment, models.PaymentStatusCompleted, nil, notes, raw); err != nil {
		return err
	}

	if payment.OrderID != nil {
		if err := s.orders.SyncPaymentCompleted(ctx, *payment.OrderID); err != nil {
			s.logger.Error("Failed to sync completed payment to order",
				zap.Int64("payment_id", payment.ID), zap.Error(err))
		}
	}

	s.notifier.Notify(ctx, "payment_completed", models.PaymentEvent{
		EventType:       "payment_completed",
		PaymentID:       payment.ID,
		ReferenceNumber: payment.ReferenceNumber,
		OrderID:         derefOrderID(payment.OrderID),
		PayerID:         payment.PayerID,
		Status:          payment.PaymentStatus,
		GrossAmount:     payment.GrossAmount,
		GatewayTxnID:    payment.GatewayTxnID,
	})
	return nil
}
