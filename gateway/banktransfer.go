package gateway

import (
	"context"
	"fmt"

	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/google/uuid"
)

// BankTransfer hands the buyer wire details and a reference; settlement is
// verified by the back office within a few hours.
type BankTransfer struct{}

func NewBankTransfer() *BankTransfer { return &BankTransfer{} }

func (b *BankTransfer) Name() string          { return "bank-transfer" }
func (b *BankTransfer) SupportsRefunds() bool { return false }

func (b *BankTransfer) InitiatePayment(ctx context.Context, payment *models.Payment, payer *models.User) InitiateResult {
	return InitiateResult{
		Success:      true,
		GatewayTxnID: "bt_" + uuid.NewString()[:12],
		Instructions: &Instructions{
			Method:    "Bank Transfer",
			Reference: payment.ReferenceNumber,
			Amount:    payment.GrossAmount.StringFixed(2),
			Merchant:  "Mkulima Smart Ltd",
			BankDetails: map[string]string{
				"bank_name":      "CRDB Bank",
				"account_name":   "Mkulima Smart Ltd",
				"account_number": "0150-12345678-00",
				"swift_code":     "CORUTZTZ",
			},
			Steps: []string{
				"Transfer the exact amount to the account above",
				fmt.Sprintf("Use reference: %s", payment.ReferenceNumber),
				"Payment will be verified within 2-4 hours",
				"Keep your transfer receipt for records",
			},
			VerificationTime: "2-4 hours",
		},
	}
}

func (b *BankTransfer) QueryStatus(ctx context.Context, payment *models.Payment) StatusResult {
	return StatusResult{
		Success:       true,
		Status:        payment.PaymentStatus,
		GatewayStatus: string(payment.PaymentStatus),
	}
}

func (b *BankTransfer) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	return nil, fmt.Errorf("bank transfer does not deliver webhooks")
}

func (b *BankTransfer) InitiateRefund(ctx context.Context, refund *models.PaymentRefund, payment *models.Payment) RefundResult {
	return RefundResult{
		Success:      false,
		ErrorCode:    CodeUnsupportedMethod,
		ErrorMessage: "bank transfer refunds are processed manually",
	}
}
