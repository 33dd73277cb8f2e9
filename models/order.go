package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// orderTransitions is the single source of truth for legal order status
// changes. Terminal states have no outbound entries.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// OrderPaymentState is the payment axis of an order, independent of the
// order status machine.
type OrderPaymentState string

const (
	OrderPaymentPending       OrderPaymentState = "pending"
	OrderPaymentPaid          OrderPaymentState = "paid"
	OrderPaymentPartiallyPaid OrderPaymentState = "partially_paid"
	OrderPaymentFailed        OrderPaymentState = "failed"
	OrderPaymentRefunded      OrderPaymentState = "refunded"
)

type DeliveryMethod string

const (
	DeliveryPickup         DeliveryMethod = "pickup"
	DeliveryLocal          DeliveryMethod = "delivery"
	DeliveryShipping       DeliveryMethod = "shipping"
	DeliveryCashOnDelivery DeliveryMethod = "cash_on_delivery"
)

type Order struct {
	ID             int64             `json:"id"`
	OrderNumber    string            `json:"order_number"`
	BuyerID        int64             `json:"buyer_id"`
	SellerID       int64             `json:"seller_id"`
	OrderStatus    OrderStatus       `json:"order_status"`
	PaymentStatus  OrderPaymentState `json:"payment_status"`
	Subtotal       decimal.Decimal   `json:"subtotal"`
	TaxAmount      decimal.Decimal   `json:"tax_amount"`
	ShippingCost   decimal.Decimal   `json:"shipping_cost"`
	DiscountAmount decimal.Decimal   `json:"discount_amount"`
	TotalAmount    decimal.Decimal   `json:"total_amount"`
	Currency       string            `json:"currency"`
	DeliveryMethod DeliveryMethod    `json:"delivery_method"`
	Notes          string            `json:"notes"`
	TrackingNumber string            `json:"tracking_number"`
	OrderDate      time.Time         `json:"order_date"`
	RequiredDate   *time.Time        `json:"required_date,omitempty"`
	ShippedDate    *time.Time        `json:"shipped_date,omitempty"`
	DeliveredDate  *time.Time        `json:"delivered_date,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`

	Items []OrderItem `json:"items,omitempty"`
}

// CalculateTotal recomputes the order total from its parts. Callers must
// persist the result; the invariant total = subtotal + tax + shipping -
// discount holds after every mutation.
func (o *Order) CalculateTotal() decimal.Decimal {
	o.TotalAmount = o.Subtotal.Add(o.TaxAmount).Add(o.ShippingCost).Sub(o.DiscountAmount)
	return o.TotalAmount
}

func (o *Order) IsPaid() bool {
	return o.PaymentStatus == OrderPaymentPaid
}

func (o *Order) CanBeCancelled() bool {
	return o.OrderStatus == OrderStatusPending || o.OrderStatus == OrderStatusConfirmed
}

type OrderItemStatus string

const (
	ItemStatusPending   OrderItemStatus = "pending"
	ItemStatusConfirmed OrderItemStatus = "confirmed"
	ItemStatusShipped   OrderItemStatus = "shipped"
	ItemStatusDelivered OrderItemStatus = "delivered"
	ItemStatusCancelled OrderItemStatus = "cancelled"
)

// OrderItem is an immutable snapshot of a purchased product line. The
// product name, SKU and description are denormalized so the line survives
// later catalog changes.
type OrderItem struct {
	ID                 int64           `json:"id"`
	OrderID            int64           `json:"order_id"`
	ProductID          int64           `json:"product_id"`
	Quantity           int             `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	TotalPrice         decimal.Decimal `json:"total_price"`
	ProductName        string          `json:"product_name"`
	ProductSKU         string          `json:"product_sku"`
	ProductDescription string          `json:"product_description"`
	ItemStatus         OrderItemStatus `json:"item_status"`
	CreatedAt          time.Time       `json:"created_at"`
}

type AddressType string

const (
	AddressBilling  AddressType = "billing"
	AddressShipping AddressType = "shipping"
)

type OrderAddress struct {
	ID                   int64       `json:"id"`
	OrderID              int64       `json:"order_id"`
	AddressType          AddressType `json:"address_type"`
	RecipientName        string      `json:"recipient_name"`
	PhoneNumber          string      `json:"phone_number"`
	Email                string      `json:"email"`
	StreetAddress        string      `json:"street_address"`
	City                 string      `json:"city"`
	Region               string      `json:"region"`
	DeliveryInstructions string      `json:"delivery_instructions"`
	CreatedAt            time.Time   `json:"created_at"`
}

// OrderStatusHistory rows are append-only; they are never updated or
// deleted once written.
type OrderStatusHistory struct {
	ID         int64       `json:"id"`
	OrderID    int64       `json:"order_id"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status"`
	ChangedBy  *int64      `json:"changed_by,omitempty"`
	Notes      string      `json:"notes"`
	CreatedAt  time.Time   `json:"created_at"`
}

type OrderDiscount struct {
	ID             int64           `json:"id"`
	OrderID        int64           `json:"order_id"`
	DiscountCode   string          `json:"discount_code"`
	DiscountName   string          `json:"discount_name"`
	Percentage     decimal.Decimal `json:"percentage"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	CreatedAt      time.Time       `json:"created_at"`
}

type OrderItemRequest struct {
	ProductID int64  `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
	Notes     string `json:"notes"`
}

type AddressRequest struct {
	RecipientName        string `json:"recipient_name" binding:"required"`
	PhoneNumber          string `json:"phone_number" binding:"required"`
	Email                string `json:"email"`
	StreetAddress        string `json:"street_address"`
	City                 string `json:"city"`
	Region               string `json:"region"`
	DeliveryInstructions string `json:"delivery_instructions"`
}

type CreateOrderRequest struct {
	SellerID        int64              `json:"seller_id" binding:"required"`
	Items           []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	DeliveryMethod  DeliveryMethod     `json:"delivery_method"`
	DiscountCode    string             `json:"discount_code"`
	Notes           string             `json:"notes"`
	BillingAddress  *AddressRequest    `json:"billing_address"`
	ShippingAddress *AddressRequest    `json:"shipping_address"`
}

type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status" binding:"required"`
	Notes  string      `json:"notes"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

type SummaryRequest struct {
	Items        []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	DiscountCode string             `json:"discount_code"`
}

// OrderEvent is the payload published to Kafka for order lifecycle
// notifications.
type OrderEvent struct {
	EventType   string          `json:"event_type"`
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	BuyerID     int64           `json:"buyer_id"`
	SellerID    int64           `json:"seller_id"`
	FromStatus  OrderStatus     `json:"from_status,omitempty"`
	ToStatus    OrderStatus     `json:"to_status,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}
