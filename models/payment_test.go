package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPaymentStatusTransitions(t *testing.T) {
	cases := []struct {
		from    PaymentStatus
		to      PaymentStatus
		allowed bool
	}{
		{PaymentStatusPending, PaymentStatusProcessing, true},
		{PaymentStatusPending, PaymentStatusFailed, true},
		{PaymentStatusPending, PaymentStatusCancelled, true},
		{PaymentStatusPending, PaymentStatusCompleted, false},
		{PaymentStatusProcessing, PaymentStatusCompleted, true},
		{PaymentStatusProcessing, PaymentStatusFailed, true},
		{PaymentStatusProcessing, PaymentStatusPending, false},
		{PaymentStatusCompleted, PaymentStatusRefunded, true},
		{PaymentStatusCompleted, PaymentStatusPartiallyRefunded, true},
		{PaymentStatusCompleted, PaymentStatusProcessing, false},
		{PaymentStatusCompleted, PaymentStatusFailed, false},
		{PaymentStatusFailed, PaymentStatusProcessing, false},
		{PaymentStatusCancelled, PaymentStatusPending, false},
		{PaymentStatusRefunded, PaymentStatusCompleted, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestPaymentMethodCalculateFee(t *testing.T) {
	method := PaymentMethod{
		FeePercentage: decimal.NewFromFloat(1.5),
		FeeFixed:      decimal.NewFromInt(0),
	}

	fee := method.CalculateFee(decimal.NewFromInt(10030))
	if !fee.Equal(decimal.NewFromFloat(150.45)) {
		t.Errorf("Expected fee 150.45, got %s", fee)
	}

	method.FeeFixed = decimal.NewFromInt(100)
	fee = method.CalculateFee(decimal.NewFromInt(10000))
	if !fee.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Expected fee 250, got %s", fee)
	}

	method.FeePercentage = decimal.Zero
	method.FeeFixed = decimal.Zero
	fee = method.CalculateFee(decimal.NewFromInt(5000))
	if !fee.IsZero() {
		t.Errorf("Expected zero fee, got %s", fee)
	}
}

func TestPaymentCalculateNet(t *testing.T) {
	payment := Payment{
		GrossAmount: decimal.NewFromInt(10030),
		FeeAmount:   decimal.NewFromInt(150),
	}

	net := payment.CalculateNet()
	if !net.Equal(decimal.NewFromInt(9880)) {
		t.Errorf("Expected net 9880, got %s", net)
	}
}

func TestPaymentCanBeRefunded(t *testing.T) {
	for _, status := range []PaymentStatus{
		PaymentStatusPending, PaymentStatusProcessing, PaymentStatusFailed,
		PaymentStatusCancelled, PaymentStatusRefunded,
	} {
		p := Payment{PaymentStatus: status}
		if p.CanBeRefunded() {
			t.Errorf("Expected %s payment not to be refundable", status)
		}
	}

	p := Payment{PaymentStatus: PaymentStatusCompleted}
	if !p.CanBeRefunded() {
		t.Error("Expected completed payment to be refundable")
	}
}
