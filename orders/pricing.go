package orders

import (
	"context"
	"fmt"

	"github.com/awadhimassomo/Mkulima-smart/models"
	"github.com/shopspring/decimal"
)

var (
	taxRate          = decimal.NewFromFloat(0.18)
	baseShippingCost = decimal.NewFromInt(5000)
	flatShippingCost = decimal.NewFromInt(5000)
	maxDiscount      = decimal.NewFromInt(50000)
	bulkThreshold    = decimal.NewFromInt(100000)
)

// cityShippingRates are surcharges added to the base cost for known
// delivery cities. Unknown cities fall back to the upcountry rate.
var cityShippingRates = map[string]decimal.Decimal{
	"Dar es Salaam": decimal.Zero,
	"Mwanza":        decimal.NewFromInt(10000),
	"Arusha":        decimal.NewFromInt(15000),
	"Dodoma":        decimal.NewFromInt(12000),
	"Mbeya":         decimal.NewFromInt(20000),
	"Morogoro":      decimal.NewFromInt(20000),
	"Tanga":         decimal.NewFromInt(20000),
}

var defaultCityRate = decimal.NewFromInt(20000)

type discountRule struct {
	name        string
	percentage  decimal.Decimal
	farmersOnly bool
	minSubtotal decimal.Decimal
}

var discountCodes = map[string]discountRule{
	"WELCOME10": {name: "Welcome Discount", percentage: decimal.NewFromInt(10)},
	"FARMER5":   {name: "Farmer Discount", percentage: decimal.NewFromInt(5), farmersOnly: true},
	"BULK20":    {name: "Bulk Purchase Discount", percentage: decimal.NewFromInt(20), minSubtotal: bulkThreshold},
}

// CalculateTax applies the 18% VAT rate to the subtotal.
func CalculateTax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(taxRate).Round(2)
}

// CalculateShippingCost returns zero for pickup and base plus the buyer's
// city surcharge otherwise.
func CalculateShippingCost(method models.DeliveryMethod, buyer *models.User) decimal.Decimal {
	if method == models.DeliveryPickup {
		return decimal.Zero
	}
	if buyer.City == "" {
		return baseShippingCost
	}
	rate, ok := cityShippingRates[buyer.City]
	if !ok {
		rate = defaultCityRate
	}
	return baseShippingCost.Add(rate)
}

// CalculateDiscount resolves a discount code against the subtotal and the
// buyer's role. Unknown codes, ineligible buyers and unmet thresholds all
// yield zero rather than an error. The result is capped at the absolute
// maximum.
func CalculateDiscount(subtotal decimal.Decimal, code string, buyer *models.User) decimal.Decimal {
	_, amount := resolveDiscount(subtotal, code, buyer)
	return amount
}

func resolveDiscount(subtotal decimal.Decimal, code string, buyer *models.User) (*discountRule, decimal.Decimal) {
	rule, ok := discountCodes[code]
	if !ok {
		return nil, decimal.Zero
	}
	if rule.farmersOnly && buyer.UserType != models.UserTypeFarmer {
		return nil, decimal.Zero
	}
	if !rule.minSubtotal.IsZero() && subtotal.LessThan(rule.minSubtotal) {
		return nil, decimal.Zero
	}
	discount := subtotal.Mul(rule.percentage).Div(decimal.NewFromInt(100)).Round(2)
	if discount.GreaterThan(maxDiscount) {
		discount = maxDiscount
	}
	return &rule, discount
}

type SummaryItem struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type Summary struct {
	Items          []SummaryItem   `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Currency       string          `json:"currency"`
}

// CalculateSummary prices a prospective cart without reserving anything.
// Shipping is quoted at the flat preview rate since no delivery method has
// been chosen yet. Tax applies to the discounted subtotal here, so the
// quoted total can differ from the created order's.
func (s *Service) CalculateSummary(ctx context.Context, buyerID int64, req models.SummaryRequest) (*Summary, error) {
	buyer, err := s.users.GetUser(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve buyer: %w", err)
	}

	summary := &Summary{Currency: "TZS"}
	subtotal := decimal.Zero

	for _, itemReq := range req.Items {
		product, err := s.inventory.GetProduct(ctx, itemReq.ProductID)
		if err != nil {
			return nil, err
		}
		if ok, reason := s.inventory.CheckAvailability(product, itemReq.Quantity); !ok {
			return nil, &AvailabilityError{ProductID: product.ID, Reason: reason}
		}
		total := product.Price.Mul(decimal.NewFromInt(int64(itemReq.Quantity)))
		summary.Items = append(summary.Items, SummaryItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    itemReq.Quantity,
			UnitPrice:   product.Price,
			TotalPrice:  total,
		})
		subtotal = subtotal.Add(total)
	}

	summary.Subtotal = subtotal
	summary.DiscountAmount = CalculateDiscount(subtotal, req.DiscountCode, buyer)
	taxable := subtotal.Sub(summary.DiscountAmount)
	summary.TaxAmount = CalculateTax(taxable)
	summary.ShippingCost = flatShippingCost
	summary.TotalAmount = taxable.Add(summary.TaxAmount).Add(summary.ShippingCost)

	return summary, nil
}
