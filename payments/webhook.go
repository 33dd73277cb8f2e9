package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrUnknownProvider = errors.New("unknown webhook provider")

// CheckStatus polls the gateway for a processing payment and reconciles the
// local record. Same-status responses are no-ops, so polling is idempotent.
func (s *Service) CheckStatus(ctx context.Context, paymentID int64) (*models.Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.GatewayTxnID == "" {
		return payment, nil
	}

	method, err := s.GetMethod(ctx, payment.MethodID)
	if err != nil {
		return nil, err
	}
	gw, ok := s.registry.ForMethod(method)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGateway, method.Name)
	}

	result := gw.QueryStatus(ctx, payment)
	if !result.Success {
		s.logger.Warn("Gateway status query failed",
			zap.String("reference", payment.ReferenceNumber),
			zap.String("error_code", result.ErrorCode),
		)
		return payment, nil
	}

	return payment, s.reconcile(ctx, payment, result.Status, result.Fee, result.RawResponse,
		fmt.Sprintf("Status query: gateway reported %s", result.GatewayStatus))
}

// HandleWebhook verifies, records and applies a gateway notification. Every
// delivery leaves a payment_webhooks audit row; duplicates and out-of-order
// notifications are marked ignored without touching the payment.
func (s *Service) HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) (*models.Payment, error) {
	gw, ok := s.registry.ForProvider(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	var webhookID int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO payment_webhooks (provider, event_data, signature, status)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		provider, payload, signature, models.WebhookReceived).Scan(&webhookID)
	if err != nil {
		return nil, fmt.Errorf("failed to record webhook: %w", err)
	}

	event, err := gw.ParseWebhook(payload, signature)
	if err != nil {
		s.finishWebhook(ctx, webhookID, nil, false, models.WebhookFailed, err.Error())
		return nil, err
	}

	payment, err := s.getPaymentByGatewayTxn(ctx, event.GatewayTxnID)
	if errors.Is(err, ErrPaymentNotFound) {
		s.finishWebhook(ctx, webhookID, nil, true, models.WebhookFailed,
			"no payment for gateway transaction "+event.GatewayTxnID)
		return nil, err
	}
	if err != nil {
		s.finishWebhook(ctx, webhookID, nil, true, models.WebhookFailed, err.Error())
		return nil, err
	}

	if payment.PaymentStatus == event.Status {
		s.finishWebhook(ctx, webhookID, &payment.ID, true, models.WebhookIgnored,
			"payment already "+string(event.Status))
		return payment, nil
	}
	if !payment.PaymentStatus.CanTransitionTo(event.Status) {
		s.finishWebhook(ctx, webhookID, &payment.ID, true, models.WebhookIgnored,
			fmt.Sprintf("out of order: %s -> %s", payment.PaymentStatus, event.Status))
		return payment, nil
	}

	if err := s.reconcile(ctx, payment, event.Status, event.Fee, event.Raw,
		fmt.Sprintf("Webhook: gateway reported %s", event.GatewayStatus)); err != nil {
		s.finishWebhook(ctx, webhookID, &payment.ID, true, models.WebhookFailed, err.Error())
		return nil, err
	}

	s.finishWebhook(ctx, webhookID, &payment.ID, true, models.WebhookProcessed, "")
	return payment, nil
}

// reconcile applies a gateway-reported status to a payment. Callers have
// already ruled out same-status duplicates for webhooks; status polls rule
// them out here.
func (s *Service) reconcile(ctx context.Context, payment *models.Payment,
	status models.PaymentStatus, fee decimal.Decimal, raw []byte, notes string) error {

	if payment.PaymentStatus == status {
		return nil
	}
	if !payment.PaymentStatus.CanTransitionTo(status) {
		s.logger.Warn("Ignoring out-of-order gateway status",
			zap.String("reference", payment.ReferenceNumber),
			zap.String("current", string(payment.PaymentStatus)),
			zap.String("reported", string(status)),
		)
		return nil
	}

	switch status {
	case models.PaymentStatusCompleted:
		return s.settle(ctx, payment, fee, raw, notes)
	case models.PaymentStatusFailed, models.PaymentStatusCancelled:
		if err := s.applyStatus(ctx, payment, status, nil, notes, raw); err != nil {
			return err
		}
		if status == models.PaymentStatusFailed && payment.OrderID != nil {
			if err := s.orders.SyncPaymentFailed(ctx, *payment.OrderID); err != nil {
				s.logger.Error("Failed to sync failed payment to order",
					zap.Int64("payment_id", payment.ID), zap.Error(err))
			}
		}
		s.notifier.Notify(ctx, "payment_"+string(status), models.PaymentEvent{
			EventType:       "payment_" + string(status),
			PaymentID:       payment.ID,
			ReferenceNumber: payment.ReferenceNumber,
			OrderID:         derefOrderID(payment.OrderID),
			PayerID:         payment.PayerID,
			Status:          status,
			GrossAmount:     payment.GrossAmount,
			GatewayTxnID:    payment.GatewayTxnID,
		})
		return nil
	default:
		return s.applyStatus(ctx, payment, status, nil, notes, raw)
	}
}

func (s *Service) finishWebhook(ctx context.Context, webhookID int64, paymentID *int64,
	verified bool, status models.WebhookStatus, errMsg string) {

	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`UPDATE payment_webhooks
		 SET payment_id = $1, is_verified = $2, status = $3, error_message = $4, processed_at = $5
		 WHERE id = $6`,
		paymentID, verified, status, errMsg, now, webhookID)
	if err != nil {
		s.logger.Error("Failed to finalize webhook record",
			zap.Int64("webhook_id", webhookID), zap.Error(err))
	}
}
