package gateway

import (
	"context"
	"strings"

	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/shopspring/decimal"
)

// Stable error codes surfaced to callers. Transport faults never escape an
// adapter as raw errors; they come back as a failed result carrying one of
// these codes.
const (
	CodeNetworkError      = "NETWORK_ERROR"
	CodeGatewayError      = "GATEWAY_ERROR"
	CodeInvalidSignature  = "INVALID_SIGNATURE"
	CodeUnsupportedMethod = "UNSUPPORTED_METHOD"
)

// Instructions describes a manual payment flow (USSD dial-in, bank
// transfer) returned instead of a hosted checkout URL.
type Instructions struct {
	Method           string            `json:"method"`
	Reference        string            `json:"reference"`
	Amount           string            `json:"amount"`
	Merchant         string            `json:"merchant"`
	BankDetails      map[string]string `json:"bank_details,omitempty"`
	Steps            []string          `json:"steps"`
	VerificationTime string            `json:"verification_time,omitempty"`
	ExpiresInMinutes int               `json:"expires_in_minutes,omitempty"`
}

type InitiateResult struct {
	Success      bool          `json:"success"`
	GatewayTxnID string        `json:"gateway_transaction_id,omitempty"`
	CheckoutURL  string        `json:"checkout_url,omitempty"`
	Instructions *Instructions `json:"instructions,omitempty"`
	RawResponse  []byte        `json:"-"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error,omitempty"`
}

type StatusResult struct {
	Success       bool                 `json:"success"`
	Status        models.PaymentStatus `json:"status"`
	GatewayStatus string               `json:"gateway_status"`
	Fee           decimal.Decimal      `json:"transaction_fee"`
	RawResponse   []byte               `json:"-"`
	ErrorCode     string               `json:"error_code,omitempty"`
	ErrorMessage  string               `json:"error,omitempty"`
}

// WebhookEvent is a verified, parsed gateway notification. Adapters return
// it only after the signature check passes.
type WebhookEvent struct {
	GatewayTxnID  string
	Status        models.PaymentStatus
	GatewayStatus string
	Fee           decimal.Decimal
	Raw           []byte
}

type RefundResult struct {
	Success             bool   `json:"success"`
	GatewayRefundID     string `json:"gateway_refund_id,omitempty"`
	EstimatedCompletion string `json:"estimated_completion,omitempty"`
	RawResponse         []byte `json:"-"`
	ErrorCode           string `json:"error_code,omitempty"`
	ErrorMessage        string `json:"error,omitempty"`
}

// Gateway is the contract every payment provider adapter implements. All
// calls are bounded by the adapter's HTTP timeout; none block indefinitely.
type Gateway interface {
	Name() string
	SupportsRefunds() bool
	InitiatePayment(ctx context.Context, payment *models.Payment, payer *models.User) InitiateResult
	QueryStatus(ctx context.Context, payment *models.Payment) StatusResult
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
	InitiateRefund(ctx context.Context, refund *models.PaymentRefund, payment *models.Payment) RefundResult
}

// Registry selects the adapter for a payment method, first by provider
// name, then by method type.
type Registry struct {
	byProvider map[string]Gateway
	byType     map[models.MethodType]Gateway
}

func NewRegistry() *Registry {
	return &Registry{
		byProvider: make(map[string]Gateway),
		byType:     make(map[models.MethodType]Gateway),
	}
}

func (r *Registry) RegisterProvider(provider string, gw Gateway) {
	r.byProvider[strings.ToLower(provider)] = gw
}

func (r *Registry) RegisterType(methodType models.MethodType, gw Gateway) {
	r.byType[methodType] = gw
}

func (r *Registry) ForMethod(method *models.PaymentMethod) (Gateway, bool) {
	if gw, ok := r.byProvider[strings.ToLower(method.Provider)]; ok {
		return gw, true
	}
	gw, ok := r.byType[method.MethodType]
	return gw, ok
}

func (r *Registry) ForProvider(provider string) (Gateway, bool) {
	gw, ok := r.byProvider[strings.ToLower(provider)]
	return gw, ok
}

// mapGatewayStatus translates provider status vocabulary to the internal
// enum. Expired transactions are treated as failed.
func mapGatewayStatus(status string) (models.PaymentStatus, bool) {
	switch status {
	case "pending":
		return models.PaymentStatusPending, true
	case "processing":
		return models.PaymentStatusProcessing, true
	case "completed":
		return models.PaymentStatusCompleted, true
	case "failed", "expired":
		return models.PaymentStatusFailed, true
	case "cancelled":
		return models.PaymentStatusCancelled, true
	}
	return "", false
}
