package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusCancelled         PaymentStatus = "cancelled"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// A payment never moves backward; the only way out of completed is the
// refund path.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusCompleted:  {PaymentStatusRefunded, PaymentStatusPartiallyRefunded},
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PaymentType string

const (
	PaymentTypeOrder      PaymentType = "order_payment"
	PaymentTypeRefund     PaymentType = "refund"
	PaymentTypeDeposit    PaymentType = "deposit"
	PaymentTypeWithdrawal PaymentType = "withdrawal"
	PaymentTypeFee        PaymentType = "fee"
)

type MethodType string

const (
	MethodBankTransfer MethodType = "bank_transfer"
	MethodMobileMoney  MethodType = "mobile_money"
	MethodCreditCard   MethodType = "credit_card"
	MethodCash         MethodType = "cash"
)

// PaymentMethod describes one way of settling money, including the fee
// schedule the orchestrator applies. Percentage rates carry four decimal
// places to keep fee math free of rounding drift.
type PaymentMethod struct {
	ID                   int64           `json:"id"`
	Name                 string          `json:"name"`
	MethodType           MethodType      `json:"method_type"`
	Provider             string          `json:"provider"`
	IsActive             bool            `json:"is_active"`
	FeePercentage        decimal.Decimal `json:"processing_fee_percentage"`
	FeeFixed             decimal.Decimal `json:"processing_fee_fixed"`
	SupportedCurrencies  []string        `json:"supported_currencies,omitempty"`
	RequiresVerification bool            `json:"requires_verification"`
	CreatedAt            time.Time       `json:"created_at"`
}

// CalculateFee returns amount × percentage/100 + fixed, rounded to currency
// granularity.
func (m *PaymentMethod) CalculateFee(amount decimal.Decimal) decimal.Decimal {
	pct := amount.Mul(m.FeePercentage).Div(decimal.NewFromInt(100))
	return pct.Add(m.FeeFixed).Round(2)
}

type Payment struct {
	ID              int64           `json:"id"`
	ReferenceNumber string          `json:"reference_number"`
	PaymentType     PaymentType     `json:"payment_type"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	PayerID         int64           `json:"payer_id"`
	PayeeID         int64           `json:"payee_id"`
	MethodID        int64           `json:"method_id"`
	OrderID         *int64          `json:"order_id,omitempty"`
	GrossAmount     decimal.Decimal `json:"gross_amount"`
	FeeAmount       decimal.Decimal `json:"fee_amount"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	Currency        string          `json:"currency"`
	GatewayTxnID    string          `json:"gateway_transaction_id"`
	GatewayResponse []byte          `json:"-"`
	Description     string          `json:"description"`
	IsVerified      bool            `json:"is_verified"`
	InitiatedAt     time.Time       `json:"initiated_at"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (p *Payment) CanBeRefunded() bool {
	return p.PaymentStatus == PaymentStatusCompleted
}

// CalculateNet recomputes net = gross - fee.
func (p *Payment) CalculateNet() decimal.Decimal {
	p.NetAmount = p.GrossAmount.Sub(p.FeeAmount)
	return p.NetAmount
}

// PaymentStatusHistory rows are append-only, one per transition.
type PaymentStatusHistory struct {
	ID              int64         `json:"id"`
	PaymentID       int64         `json:"payment_id"`
	FromStatus      PaymentStatus `json:"from_status"`
	ToStatus        PaymentStatus `json:"to_status"`
	ChangedBy       *int64        `json:"changed_by,omitempty"`
	Notes           string        `json:"notes"`
	GatewayResponse []byte        `json:"-"`
	CreatedAt       time.Time     `json:"created_at"`
}

type RefundStatus string

const (
	RefundStatusRequested  RefundStatus = "requested"
	RefundStatusApproved   RefundStatus = "approved"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusRejected   RefundStatus = "rejected"
	RefundStatusFailed     RefundStatus = "failed"
)

type RefundReason string

const (
	RefundReasonCustomerRequest    RefundReason = "customer_request"
	RefundReasonOrderCancelled     RefundReason = "order_cancelled"
	RefundReasonProductUnavailable RefundReason = "product_unavailable"
	RefundReasonQualityIssue       RefundReason = "quality_issue"
	RefundReasonDeliveryFailed     RefundReason = "delivery_failed"
	RefundReasonDuplicatePayment   RefundReason = "duplicate_payment"
	RefundReasonOther              RefundReason = "other"
)

type PaymentRefund struct {
	ID              int64           `json:"id"`
	PaymentID       int64           `json:"payment_id"`
	RefundNumber    string          `json:"refund_number"`
	RefundReason    RefundReason    `json:"refund_reason"`
	RefundStatus    RefundStatus    `json:"refund_status"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	RefundFee       decimal.Decimal `json:"refund_fee"`
	NetRefund       decimal.Decimal `json:"net_refund"`
	Currency        string          `json:"currency"`
	RequestedBy     int64           `json:"requested_by"`
	ApprovedBy      *int64          `json:"approved_by,omitempty"`
	GatewayRefundID string          `json:"gateway_refund_id"`
	Description     string          `json:"description"`
	RequestedAt     time.Time       `json:"requested_at"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
}

type WebhookStatus string

const (
	WebhookReceived  WebhookStatus = "received"
	WebhookProcessed WebhookStatus = "processed"
	WebhookIgnored   WebhookStatus = "ignored"
	WebhookFailed    WebhookStatus = "failed"
)

// PaymentWebhook records every raw gateway notification as received.
// Rows reach a terminal status exactly once and are never edited after.
type PaymentWebhook struct {
	ID           int64         `json:"id"`
	Provider     string        `json:"provider"`
	PaymentID    *int64        `json:"payment_id,omitempty"`
	EventData    []byte        `json:"-"`
	Signature    string        `json:"-"`
	IsVerified   bool          `json:"is_verified"`
	Status       WebhookStatus `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ProcessedAt  *time.Time    `json:"processed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

type CreatePaymentRequest struct {
	OrderID  int64 `json:"order_id" binding:"required"`
	MethodID int64 `json:"method_id" binding:"required"`
}

type CreateRefundRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Reason RefundReason    `json:"reason"`
}

// PaymentEvent is the payload published to Kafka for payment notifications.
type PaymentEvent struct {
	EventType       string          `json:"event_type"`
	PaymentID       int64           `json:"payment_id"`
	ReferenceNumber string          `json:"reference_number"`
	OrderID         int64           `json:"order_id,omitempty"`
	PayerID         int64           `json:"payer_id"`
	Status          PaymentStatus   `json:"status"`
	GrossAmount     decimal.Decimal `json:"gross_amount"`
	GatewayTxnID    string          `json:"gateway_transaction_id,omitempty"`
}
