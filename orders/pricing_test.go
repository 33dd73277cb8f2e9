package orders

import (
	"testing"

	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/shopspring/decimal"
)

func TestCalculateTax(t *testing.T) {
	tax := CalculateTax(decimal.NewFromInt(8500))
	if !tax.Equal(decimal.NewFromInt(1530)) {
		t.Errorf("Expected tax 1530, got %s", tax)
	}

	tax = CalculateTax(decimal.Zero)
	if !tax.IsZero() {
		t.Errorf("Expected zero tax, got %s", tax)
	}
}

func TestCalculateShippingCost(t *testing.T) {
	cases := []struct {
		method   models.DeliveryMethod
		city     string
		expected int64
	}{
		{models.DeliveryPickup, "Mwanza", 0},
		{models.DeliveryLocal, "Dar es Salaam", 5000},
		{models.DeliveryLocal, "Mwanza", 15000},
		{models.DeliveryShipping, "Arusha", 20000},
		{models.DeliveryShipping, "Dodoma", 17000},
		{models.DeliveryLocal, "Kigoma", 25000},
		{models.DeliveryCashOnDelivery, "Mbeya", 25000},
		{models.DeliveryLocal, "", 5000},
	}

	for _, tc := range cases {
		buyer := &models.User{City: tc.city}
		cost := CalculateShippingCost(tc.method, buyer)
		if !cost.Equal(decimal.NewFromInt(tc.expected)) {
			t.Errorf("%s to %s: expected %d, got %s", tc.method, tc.city, tc.expected, cost)
		}
	}
}

func TestCalculateDiscount(t *testing.T) {
	buyer := &models.User{UserType: models.UserTypeBuyer}
	farmer := &models.User{UserType: models.UserTypeFarmer}

	subtotal := decimal.NewFromInt(10000)

	discount := CalculateDiscount(subtotal, "WELCOME10", buyer)
	if !discount.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("WELCOME10: expected 1000, got %s", discount)
	}

	discount = CalculateDiscount(subtotal, "FARMER5", farmer)
	if !discount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("FARMER5 for farmer: expected 500, got %s", discount)
	}

	discount = CalculateDiscount(subtotal, "FARMER5", buyer)
	if !discount.IsZero() {
		t.Errorf("FARMER5 for non-farmer: expected 0, got %s", discount)
	}

	discount = CalculateDiscount(subtotal, "BULK20", buyer)
	if !discount.IsZero() {
		t.Errorf("BULK20 below threshold: expected 0, got %s", discount)
	}

	discount = CalculateDiscount(decimal.NewFromInt(100000), "BULK20", buyer)
	if !discount.Equal(decimal.NewFromInt(20000)) {
		t.Errorf("BULK20 at threshold: expected 20000, got %s", discount)
	}

	discount = CalculateDiscount(subtotal, "NOSUCHCODE", buyer)
	if !discount.IsZero() {
		t.Errorf("Unknown code: expected 0, got %s", discount)
	}
}

func TestCalculateDiscountCap(t *testing.T) {
	buyer := &models.User{UserType: models.UserTypeBuyer}

	// 20% of 500000 is 100000, which must be capped at 50000.
	discount := CalculateDiscount(decimal.NewFromInt(500000), "BULK20", buyer)
	if !discount.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("Expected capped discount 50000, got %s", discount)
	}
}
