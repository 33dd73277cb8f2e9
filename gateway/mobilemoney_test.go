package gateway

import (
	"context"
	"strings"
	"testing"

	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/shopspring/decimal"
)

func TestMobileMoney_InitiatePaymentReturnsInstructions(t *testing.T) {
	mm := NewMobileMoney()
	payment := &models.Payment{
		ReferenceNumber: "PAY-202609011200-AB12CD",
		GrossAmount:     decimal.NewFromInt(10030),
		Currency:        "TZS",
	}

	result := mm.InitiatePayment(context.Background(), payment, &models.User{})
	if !result.Success {
		t.Fatalf("Expected success, got %s", result.ErrorMessage)
	}
	if !strings.HasPrefix(result.GatewayTxnID, "mm_") {
		t.Errorf("Expected mm_ transaction prefix, got %s", result.GatewayTxnID)
	}
	if result.Instructions == nil {
		t.Fatal("Expected manual payment instructions")
	}
	if result.Instructions.Reference != payment.ReferenceNumber {
		t.Errorf("Expected reference %s, got %s", payment.ReferenceNumber, result.Instructions.Reference)
	}
	if len(result.Instructions.Steps) == 0 {
		t.Error("Expected dial-in steps")
	}
}

func TestMobileMoney_RefundsUnsupported(t *testing.T) {
	mm := NewMobileMoney()
	if mm.SupportsRefunds() {
		t.Error("Expected mobile money not to support refunds")
	}

	result := mm.InitiateRefund(context.Background(), &models.PaymentRefund{}, &models.Payment{})
	if result.Success {
		t.Fatal("Expected failure")
	}
	if result.ErrorCode != CodeUnsupportedMethod {
		t.Errorf("Expected %s, got %s", CodeUnsupportedMethod, result.ErrorCode)
	}
}
