package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusPending, OrderStatusDelivered, false},
		{OrderStatusConfirmed, OrderStatusProcessing, true},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusDelivered, false},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusProcessing, OrderStatusCancelled, true},
		{OrderStatusProcessing, OrderStatusPending, false},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusRefunded, OrderStatusPending, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}

func TestOrderStatusIsTerminal(t *testing.T) {
	terminal := []OrderStatus{OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("Expected %s to be terminal", s)
		}
	}

	active := []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("Expected %s not to be terminal", s)
		}
	}
}

func TestOrderCalculateTotal(t *testing.T) {
	order := Order{
		Subtotal:       decimal.NewFromInt(8500),
		TaxAmount:      decimal.NewFromInt(1530),
		ShippingCost:   decimal.Zero,
		DiscountAmount: decimal.Zero,
	}

	total := order.CalculateTotal()
	if !total.Equal(decimal.NewFromInt(10030)) {
		t.Errorf("Expected total 10030, got %s", total)
	}

	order.DiscountAmount = decimal.NewFromInt(500)
	order.ShippingCost = decimal.NewFromInt(5000)
	total = order.CalculateTotal()
	if !total.Equal(decimal.NewFromInt(14530)) {
		t.Errorf("Expected total 14530, got %s", total)
	}
}

func TestOrderCanBeCancelled(t *testing.T) {
	cases := []struct {
		status      OrderStatus
		cancellable bool
	}{
		{OrderStatusPending, true},
		{OrderStatusConfirmed, true},
		{OrderStatusProcessing, false},
		{OrderStatusShipped, false},
		{OrderStatusDelivered, false},
		{OrderStatusCancelled, false},
	}

	for _, tc := range cases {
		order := Order{OrderStatus: tc.status}
		if got := order.CanBeCancelled(); got != tc.cancellable {
			t.Errorf("%s: expected cancellable=%v, got %v", tc.status, tc.cancellable, got)
		}
	}
}
