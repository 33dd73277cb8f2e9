package gateway

import (
	"context"
	"fmt"

	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/google/uuid"
)

// MobileMoney covers USSD-driven wallets (M-Pesa, Tigo Pesa and the like).
// There is no hosted checkout: initiation hands the buyer dial-in steps and
// settlement is confirmed out of band, so refunds go to manual processing.
type MobileMoney struct {
	merchant       string
	businessNumber string
}

func NewMobileMoney() *MobileMoney {
	return &MobileMoney{
		merchant:       "Mkulima Smart",
		businessNumber: "400200",
	}
}

func (m *MobileMoney) Name() string          { return "mobile-money" }
func (m *MobileMoney) SupportsRefunds() bool { return false }

func (m *MobileMoney) InitiatePayment(ctx context.Context, payment *models.Payment, payer *models.User) InitiateResult {
	amount := payment.GrossAmount.StringFixed(2)
	return InitiateResult{
		Success:      true,
		GatewayTxnID: "mm_" + uuid.NewString()[:12],
		Instructions: &Instructions{
			Method:    "USSD",
			Reference: payment.ReferenceNumber,
			Amount:    amount,
			Merchant:  m.merchant,
			Steps: []string{
				"Dial *150*00# from your registered line",
				"Select option 4 (Pay Bill)",
				fmt.Sprintf("Enter business number: %s", m.businessNumber),
				fmt.Sprintf("Enter reference: %s", payment.ReferenceNumber),
				fmt.Sprintf("Enter amount: %s", amount),
				"Enter your PIN to confirm",
			},
			ExpiresInMinutes: 30,
		},
	}
}

// QueryStatus has no remote to ask; the wallet confirms via webhook or a
// back-office reconciliation, so the payment's own status stands.
func (m *MobileMoney) QueryStatus(ctx context.Context, payment *models.Payment) StatusResult {
	return StatusResult{
		Success:       true,
		Status:        payment.PaymentStatus,
		GatewayStatus: string(payment.PaymentStatus),
	}
}

func (m *MobileMoney) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	return nil, fmt.Errorf("mobile money does not deliver webhooks")
}

func (m *MobileMoney) InitiateRefund(ctx context.Context, refund *models.PaymentRefund, payment *models.Payment) RefundResult {
	return RefundResult{
		Success:      false,
		ErrorCode:    CodeUnsupportedMethod,
		ErrorMessage: "mobile money refunds are processed manually",
	}
}
