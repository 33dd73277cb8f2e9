package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/awadhimassomo/Mkulima-smart/circuitbreaker"
	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// TakaBank is the adapter for the Taka Bank hosted-checkout API. Requests
// carry an HMAC-SHA256 signature over the canonical JSON body; inbound
// webhooks are verified with the same scheme before any state is touched.
type TakaBank struct {
	baseURL    string
	apiKey     string
	secretKey  string
	merchantID string
	client     *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

type TakaBankConfig struct {
	BaseURL    string
	APIKey     string
	SecretKey  string
	MerchantID string
	Timeout    time.Duration
}

func TakaBankConfigFromEnv() TakaBankConfig {
	return TakaBankConfig{
		BaseURL:    getEnv("TAKA_BANK_BASE_URL", "https://sandbox-api.takabank.co.tz"),
		APIKey:     os.Getenv("TAKA_BANK_API_KEY"),
		SecretKey:  os.Getenv("TAKA_BANK_SECRET"),
		MerchantID: os.Getenv("TAKA_BANK_MERCHANT_ID"),
	}
}

func NewTakaBank(cfg TakaBankConfig, logger *zap.Logger) *TakaBank {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &TakaBank{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		merchantID: cfg.MerchantID,
		client:     &http.Client{Timeout: timeout},
		breaker:    circuitbreaker.New(5, 30*time.Second),
		logger:     logger,
	}
}

func (t *TakaBank) Name() string          { return "taka-bank" }
func (t *TakaBank) SupportsRefunds() bool { return true }

// Sign computes HMAC-SHA256 over the canonical payload. json.Marshal of a
// map gives the canonical form: sorted keys, compact separators.
func (t *TakaBank) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(t.secretKey))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (t *TakaBank) InitiatePayment(ctx context.Context, payment *models.Payment, payer *models.User) InitiateResult {
	payload := map[string]any{
		"merchant_id": t.merchantID,
		"reference":   payment.ReferenceNumber,
		"amount":      payment.GrossAmount.StringFixed(2),
		"currency":    payment.Currency,
		"description": payment.Description,
		"customer": map[string]any{
			"name":  payer.Name,
			"email": payer.Email,
			"phone": payer.PhoneNumber,
		},
		"callback_url": getEnv("SITE_URL", "http://localhost:8080") + "/webhooks/payments/taka-bank",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}

	var parsed struct {
		Status        string `json:"status"`
		TransactionID string `json:"transaction_id"`
		PaymentURL    string `json:"payment_url"`
		Message       string `json:"message"`
		ErrorCode     string `json:"error_code"`
	}
	raw, err := t.post(ctx, "/payments/initiate", payload, &parsed)
	if err != nil {
		t.logger.Warn("Taka Bank initiate failed", zap.String("reference", payment.ReferenceNumber), zap.Error(err))
		return InitiateResult{
			Success:      false,
			ErrorCode:    CodeNetworkError,
			ErrorMessage: "Payment service temporarily unavailable",
		}
	}

	if parsed.Status != "success" {
		msg := parsed.Message
		if msg == "" {
			msg = "Payment initiation failed"
		}
		code := parsed.ErrorCode
		if code == "" {
			code = CodeGatewayError
		}
		return InitiateResult{Success: false, RawResponse: raw, ErrorCode: code, ErrorMessage: msg}
	}

	return InitiateResult{
		Success:      true,
		GatewayTxnID: parsed.TransactionID,
		CheckoutURL:  parsed.PaymentURL,
		RawResponse:  raw,
	}
}

func (t *TakaBank) QueryStatus(ctx context.Context, payment *models.Payment) StatusResult {
	if payment.GatewayTxnID == "" {
		return StatusResult{
			Success:      false,
			ErrorCode:    CodeGatewayError,
			ErrorMessage: "no gateway transaction id available",
		}
	}

	var parsed struct {
		Status         string          `json:"status"`
		Amount         string          `json:"amount"`
		TransactionFee decimal.Decimal `json:"transaction_fee"`
		Message        string          `json:"message"`
	}
	raw, err := t.get(ctx, "/payments/"+payment.GatewayTxnID+"/status", &parsed)
	if err != nil {
		return StatusResult{
			Success:      false,
			ErrorCode:    CodeNetworkError,
			ErrorMessage: "Unable to check payment status",
		}
	}

	mapped, ok := mapGatewayStatus(parsed.Status)
	if !ok {
		mapped = models.PaymentStatusPending
	}
	return StatusResult{
		Success:       true,
		Status:        mapped,
		GatewayStatus: parsed.Status,
		Fee:           parsed.TransactionFee,
		RawResponse:   raw,
	}
}

// ParseWebhook recomputes the HMAC over the raw payload and compares it to
// the supplied signature in constant time. A mismatch is a hard rejection.
func (t *TakaBank) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	expected := t.Sign(payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return nil, ErrInvalidSignature
	}

	var body struct {
		TransactionID  string          `json:"transaction_id"`
		Status         string          `json:"status"`
		TransactionFee decimal.Decimal `json:"transaction_fee"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}
	if body.TransactionID == "" {
		return nil, errors.New("webhook payload missing transaction_id")
	}

	mapped, ok := mapGatewayStatus(body.Status)
	if !ok {
		return nil, fmt.Errorf("unknown gateway status %q", body.Status)
	}

	return &WebhookEvent{
		GatewayTxnID:  body.TransactionID,
		Status:        mapped,
		GatewayStatus: body.Status,
		Fee:           body.TransactionFee,
		Raw:           payload,
	}, nil
}

func (t *TakaBank) InitiateRefund(ctx context.Context, refund *models.PaymentRefund, payment *models.Payment) RefundResult {
	payload := map[string]any{
		"merchant_id":             t.merchantID,
		"original_transaction_id": payment.GatewayTxnID,
		"refund_reference":        refund.RefundNumber,
		"amount":                  refund.RefundAmount.StringFixed(2),
		"currency":                refund.Currency,
		"reason":                  string(refund.RefundReason),
		"timestamp":               time.Now().UTC().Format(time.RFC3339),
	}

	var parsed struct {
		Status              string `json:"status"`
		RefundID            string `json:"refund_id"`
		EstimatedCompletion string `json:"estimated_completion"`
		Message             string `json:"message"`
	}
	raw, err := t.post(ctx, "/payments/refund", payload, &parsed)
	if err != nil {
		return RefundResult{
			Success:      false,
			ErrorCode:    CodeNetworkError,
			ErrorMessage: "Refund service temporarily unavailable",
		}
	}

	if parsed.Status != "success" {
		msg := parsed.Message
		if msg == "" {
			msg = "Refund initiation failed"
		}
		return RefundResult{Success: false, RawResponse: raw, ErrorCode: CodeGatewayError, ErrorMessage: msg}
	}

	return RefundResult{
		Success:             true,
		GatewayRefundID:     parsed.RefundID,
		EstimatedCompletion: parsed.EstimatedCompletion,
		RawResponse:         raw,
	}
}

func (t *TakaBank) post(ctx context.Context, path string, payload map[string]any, out any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = t.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
		req.Header.Set("X-Signature", t.Sign(body))

		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("gateway returned %d", resp.StatusCode)
		}
		return json.Unmarshal(raw, out)
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (t *TakaBank) get(ctx context.Context, path string, out any) ([]byte, error) {
	var raw []byte
	err := t.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+t.apiKey)

		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("gateway returned %d", resp.StatusCode)
		}
		return json.Unmarshal(raw, out)
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
