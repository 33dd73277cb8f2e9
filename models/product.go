package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID               int64           `json:"id"`
	SellerID         int64           `json:"seller_id"`
	Name             string          `json:"name"`
	SKU              string          `json:"sku"`
	Description      string          `json:"description"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency"`
	StockQuantity    int             `json:"stock_quantity"`
	MinOrderQuantity int             `json:"minimum_order_quantity"`
	MaxOrderQuantity int             `json:"maximum_order_quantity"` // zero means no ceiling
	IsAvailable      bool            `json:"is_available"`
	ExpiryDate       *time.Time      `json:"expiry_date,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (p *Product) IsExpired() bool {
	return p.ExpiryDate != nil && p.ExpiryDate.Before(time.Now())
}

type StockChangeType string

const (
	StockChangeSale       StockChangeType = "sale"
	StockChangeReturn     StockChangeType = "return"
	StockChangeRestock    StockChangeType = "restock"
	StockChangeAdjustment StockChangeType = "adjustment"
	StockChangeExpired    StockChangeType = "expired"
)

// InventoryLog is the append-only audit trail backing the on-hand quantity.
// Rows are never edited once written.
type InventoryLog struct {
	ID               int64           `json:"id"`
	ProductID        int64           `json:"product_id"`
	ChangeType       StockChangeType `json:"change_type"`
	QuantityChange   int             `json:"quantity_change"`
	PreviousQuantity int             `json:"previous_quantity"`
	NewQuantity      int             `json:"new_quantity"`
	ReferenceID      string          `json:"reference_id"`
	Notes            string          `json:"notes"`
	CreatedBy        *int64          `json:"created_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}
