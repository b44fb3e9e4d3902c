package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Product struct {
	ID          int64           `json:"id"`
	CategoryID  int64           `json:"category_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	BasePrice   decimal.Decimal `json:"base_price"`
	IsAvailable bool            `json:"is_available"`
	ImageURL    string          `json:"image_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Order struct {
	ID            int64           `json:"id"`
	UserID        *int64          `json:"user_id"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	ShippingFee   decimal.Decimal `json:"shipping_fee"`
	Total         decimal.Decimal `json:"total"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	PaymentStatus string          `json:"payment_status"`
	Fulfillment   string          `json:"fulfillment"`
	PickupTime    *time.Time      `json:"pickup_time"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []OrderItem     `json:"items,omitempty"`
}

type OrderItem struct {
	ID             int64           `json:"id"`
	OrderID        int64           `json:"order_id"`
	ProductID      int64           `json:"product_id"`
	ProductName    string          `json:"product_name"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Quantity       int             `json:"quantity"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	Customizations json.RawMessage `json:"customizations,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Notification is one entry in a user's feed. A row with a nil
// DispatchedAt has not been delivered to the broker yet (outbox row).
type Notification struct {
	ID           string     `json:"id"`
	UserID       int64      `json:"user_id"`
	OrderID      int64      `json:"order_id"`
	Status       string     `json:"status"`
	Message      string     `json:"message"`
	ReadAt       *time.Time `json:"read_at"`
	DispatchedAt *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
}

const (
	OrderStatusPending        = "pending"
	OrderStatusProcessing     = "processing"
	OrderStatusReadyForPickup = "ready for pickup"
	OrderStatusCompleted      = "completed"
	OrderStatusCancelled      = "cancelled"
)

const (
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"
)

const (
	FulfillmentPickup   = "pickup"
	FulfillmentDelivery = "delivery"
)

// OrderStatuses lists every recognized lifecycle status. Only
// membership is enforced; any status may move to any other.
var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusReadyForPickup,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// PaymentMethods lists the methods the payment gate accepts. Order
// placement stores payment_method as free-form text; only the payment
// gate enforces this set.
var PaymentMethods = []string{"gcash", "card", "paypal"}

func ValidOrderStatus(s string) bool {
	for _, v := range OrderStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func ValidPaymentMethod(m string) bool {
	for _, v := range PaymentMethods {
		if v == m {
			return true
		}
	}
	return false
}
