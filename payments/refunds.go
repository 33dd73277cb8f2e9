package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrRefundNotFound      = errors.New("refund not found")
	ErrNotRefundable       = errors.New("payment cannot be refunded")
	ErrInvalidRefundAmount = errors.New("invalid refund amount")
	ErrRefundNotActionable = errors.New("refund is not in an actionable state")
)

// Refunds above this amount carry a 2% processing fee; smaller ones are
// free.
var (
	refundFeeThreshold = decimal.NewFromInt(10000)
	refundFeeRate      = decimal.NewFromFloat(0.02)
)

// GenerateRefundNumber returns a unique refund reference, e.g.
// REF-202609011430-A3F91C.
func GenerateRefundNumber() string {
	timestamp := time.Now().Format("200601021504")
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("REF-%s-%s", timestamp, random)
}

// CalculateRefundFee applies the threshold rule: 2% above the threshold,
// zero at or below it.
func CalculateRefundFee(amount decimal.Decimal) decimal.Decimal {
	if amount.GreaterThan(refundFeeThreshold) {
		return amount.Mul(refundFeeRate).Round(2)
	}
	return decimal.Zero
}

// CreateRefund records a refund request against a completed payment. The
// amount must be positive and, together with prior live refunds, must not
// exceed the payment's gross.
func (s *Service) CreateRefund(ctx context.Context, paymentID, requestedBy int64, req models.CreateRefundRequest) (*models.PaymentRefund, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.CanBeRefunded() {
		return nil, fmt.Errorf("%w: payment is %s", ErrNotRefundable, payment.PaymentStatus)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRefundAmount)
	}

	refunded, err := s.refundedTotal(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	if req.Amount.Add(refunded).GreaterThan(payment.GrossAmount) {
		return nil, fmt.Errorf("%w: %s exceeds remaining refundable %s",
			ErrInvalidRefundAmount, req.Amount.StringFixed(2),
			payment.GrossAmount.Sub(refunded).StringFixed(2))
	}

	reason := req.Reason
	if reason == "" {
		reason = models.RefundReasonCustomerRequest
	}

	refund, err := s.insertRefund(ctx, nil, payment, req.Amount, reason, requestedBy, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info("Refund requested",
		zap.String("refund_number", refund.RefundNumber),
		zap.String("payment_reference", payment.ReferenceNumber),
		zap.String("amount", refund.RefundAmount.StringFixed(2)),
	)
	return refund, nil
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Service) runner(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *Service) refundedTotal(ctx context.Context, tx *sql.Tx, paymentID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.runner(tx).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(refund_amount), 0) FROM payment_refunds
		 WHERE payment_id = $1 AND refund_status NOT IN ($2, $3)`,
		paymentID, models.RefundStatusRejected, models.RefundStatusFailed).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum prior refunds: %w", err)
	}
	return total, nil
}

func (s *Service) insertRefund(ctx context.Context, tx *sql.Tx, payment *models.Payment,
	amount decimal.Decimal, reason models.RefundReason, requestedBy int64, description string) (*models.PaymentRefund, error) {

	fee := CalculateRefundFee(amount)
	refund := &models.PaymentRefund{
		PaymentID:    payment.ID,
		RefundNumber: GenerateRefundNumber(),
		RefundReason: reason,
		RefundStatus: models.RefundStatusRequested,
		RefundAmount: amount,
		RefundFee:    fee,
		NetRefund:    amount.Sub(fee),
		Currency:     payment.Currency,
		RequestedBy:  requestedBy,
		Description:  description,
	}

	err := s.runner(tx).QueryRowContext(ctx,
		`INSERT INTO payment_refunds
		 (payment_id, refund_number, refund_reason, refund_status, refund_amount,
		  refund_fee, net_refund, currency, requested_by, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, requested_at`,
		refund.PaymentID, refund.RefundNumber, refund.RefundReason, refund.RefundStatus,
		refund.RefundAmount, refund.RefundFee, refund.NetRefund, refund.Currency,
		refund.RequestedBy, refund.Description,
	).Scan(&refund.ID, &refund.RequestedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}
	return refund, nil
}

// RefundOrderPayments requests full refunds for every completed payment of
// a cancelled order, inside the cancellation's transaction. Implements the
// orders.RefundIssuer port.
func (s *Service) RefundOrderPayments(ctx context.Context, tx *sql.Tx, orderID int64, orderNumber string, requestedBy int64) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE order_id = $1 AND payment_status = $2",
		orderID, models.PaymentStatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to find payments for order: %w", err)
	}
	defer rows.Close()

	var completed []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return err
		}
		completed = append(completed, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, payment := range completed {
		refunded, err := s.refundedTotal(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		remaining := payment.GrossAmount.Sub(refunded)
		if !remaining.IsPositive() {
			continue
		}
		if _, err := s.insertRefund(ctx, tx, payment, remaining,
			models.RefundReasonOrderCancelled, requestedBy,
			fmt.Sprintf("Order %s cancelled", orderNumber)); err != nil {
			return err
		}
	}
	return nil
}

const manualRefundTurnaround = "3-5 business days"

// ProcessRefund approves a requested refund and pushes it through the
// gateway. Methods without refund support stay approved for back-office
// settlement; a successful gateway dispatch leaves the refund processing
// until CompleteRefund confirms it.
func (s *Service) ProcessRefund(ctx context.Context, refundID int64, approvedBy int64) (*models.PaymentRefund, error) {
	refund, err := s.GetRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if refund.RefundStatus != models.RefundStatusRequested {
		return nil, fmt.Errorf("%w: refund is %s", ErrRefundNotActionable, refund.RefundStatus)
	}

	payment, err := s.GetPayment(ctx, refund.PaymentID)
	if err != nil {
		return nil, err
	}
	method, err := s.GetMethod(ctx, payment.MethodID)
	if err != nil {
		return nil, err
	}
	gw, ok := s.registry.ForMethod(method)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGateway, method.Name)
	}

	now := time.Now()
	refund.RefundStatus = models.RefundStatusApproved
	refund.ApprovedBy = &approvedBy
	refund.ApprovedAt = &now
	if err := s.updateRefund(ctx, refund); err != nil {
		return nil, err
	}

	if !gw.SupportsRefunds() {
		refund.Description = strings.TrimSpace(refund.Description +
			" Approved for manual processing, estimated " + manualRefundTurnaround)
		if err := s.updateRefund(ctx, refund); err != nil {
			return nil, err
		}
		s.logger.Info("Refund approved for manual settlement",
			zap.String("refund_number", refund.RefundNumber),
			zap.String("method", method.Name),
			zap.String("turnaround", manualRefundTurnaround),
		)
		return refund, nil
	}

	result := gw.InitiateRefund(ctx, refund, payment)
	if !result.Success {
		refund.RefundStatus = models.RefundStatusFailed
		refund.Description = strings.TrimSpace(refund.Description + " " + result.ErrorMessage)
		if err := s.updateRefund(ctx, refund); err != nil {
			return nil, err
		}
		return refund, nil
	}

	refund.RefundStatus = models.RefundStatusProcessing
	refund.GatewayRefundID = result.GatewayRefundID
	if err := s.updateRefund(ctx, refund); err != nil {
		return nil, err
	}
	s.logger.Info("Refund dispatched to gateway",
		zap.String("refund_number", refund.RefundNumber),
		zap.String("gateway_refund_id", refund.GatewayRefundID),
	)
	return refund, nil
}

// CompleteRefund confirms that the money has actually moved, either from a
// gateway confirmation or a back-office settlement of a manual refund, and
// updates the payment's refunded state.
func (s *Service) CompleteRefund(ctx context.Context, refundID int64, completedBy int64) (*models.PaymentRefund, error) {
	refund, err := s.GetRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if refund.RefundStatus != models.RefundStatusApproved &&
		refund.RefundStatus != models.RefundStatusProcessing {
		return nil, fmt.Errorf("%w: refund is %s", ErrRefundNotActionable, refund.RefundStatus)
	}

	payment, err := s.GetPayment(ctx, refund.PaymentID)
	if err != nil {
		return nil, err
	}

	processedAt := time.Now()
	refund.RefundStatus = models.RefundStatusCompleted
	refund.ProcessedAt = &processedAt
	if err := s.updateRefund(ctx, refund); err != nil {
		return nil, err
	}

	if err := s.settleRefundOnPayment(ctx, payment); err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, "refund_completed", models.PaymentEvent{
		EventType:       "refund_completed",
		PaymentID:       payment.ID,
		ReferenceNumber: refund.RefundNumber,
		OrderID:         derefOrderID(payment.OrderID),
		PayerID:         payment.PayerID,
		Status:          payment.PaymentStatus,
		GrossAmount:     refund.RefundAmount,
	})
	s.logger.Info("Refund completed",
		zap.String("refund_number", refund.RefundNumber),
		zap.Int64("completed_by", completedBy),
	)
	return refund, nil
}

// RejectRefund declines a requested refund with a reason.
func (s *Service) RejectRefund(ctx context.Context, refundID int64, rejectedBy int64, reason string) (*models.PaymentRefund, error) {
	refund, err := s.GetRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if refund.RefundStatus != models.RefundStatusRequested {
		return nil, fmt.Errorf("%w: refund is %s", ErrRefundNotActionable, refund.RefundStatus)
	}
	refund.RefundStatus = models.RefundStatusRejected
	refund.ApprovedBy = &rejectedBy
	refund.Description = strings.TrimSpace(refund.Description + " " + reason)
	if err := s.updateRefund(ctx, refund); err != nil {
		return nil, err
	}
	return refund, nil
}

// settleRefundOnPayment moves the payment to refunded or partially_refunded
// depending on whether the completed refunds cover the gross, then syncs a
// fully refunded order.
func (s *Service) settleRefundOnPayment(ctx context.Context, payment *models.Payment) error {
	var completedTotal decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(refund_amount), 0) FROM payment_refunds
		 WHERE payment_id = $1 AND refund_status = $2`,
		payment.ID, models.RefundStatusCompleted).Scan(&completedTotal)
	if err != nil {
		return fmt.Errorf("failed to sum completed refunds: %w", err)
	}

	target := models.PaymentStatusPartiallyRefunded
	if completedTotal.GreaterThanOrEqual(payment.GrossAmount) {
		target = models.PaymentStatusRefunded
	}
	if payment.PaymentStatus == target {
		return nil
	}
	if !payment.PaymentStatus.CanTransitionTo(target) {
		return nil
	}
	if err := s.applyStatus(ctx, payment, target, nil,
		fmt.Sprintf("Refunded %s of %s", completedTotal.StringFixed(2), payment.GrossAmount.StringFixed(2)), nil); err != nil {
		return err
	}

	if target == models.PaymentStatusRefunded && payment.OrderID != nil {
		if err := s.orders.SyncPaymentRefunded(ctx, *payment.OrderID); err != nil {
			s.logger.Error("Failed to sync refunded payment to order",
				zap.Int64("payment_id", payment.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) updateRefund(ctx context.Context, r *models.PaymentRefund) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE payment_refunds
		 SET refund_status = $1, approved_by = $2, gateway_refund_id = $3,
		     description = $4, approved_at = $5, processed_at = $6
		 WHERE id = $7`,
		r.RefundStatus, r.ApprovedBy, r.GatewayRefundID,
		r.Description, r.ApprovedAt, r.ProcessedAt, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update refund: %w", err)
	}
	return nil
}

func (s *Service) GetRefund(ctx context.Context, id int64) (*models.PaymentRefund, error) {
	var r models.PaymentRefund
	var gatewayRefundID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, payment_id, refund_number, refund_reason, refund_status,
		        refund_amount, refund_fee, net_refund, currency, requested_by,
		        approved_by, gateway_refund_id, description, requested_at,
		        approved_at, processed_at
		 FROM payment_refunds WHERE id = $1`, id).
		Scan(&r.ID, &r.PaymentID, &r.RefundNumber, &r.RefundReason, &r.RefundStatus,
			&r.RefundAmount, &r.RefundFee, &r.NetRefund, &r.Currency, &r.RequestedBy,
			&r.ApprovedBy, &gatewayRefundID, &r.Description, &r.RequestedAt,
			&r.ApprovedAt, &r.ProcessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRefundNotFound
	}
	if err != nil {
		return nil, err
	}
	r.GatewayRefundID = gatewayRefundID.String
	return &r, nil
}
