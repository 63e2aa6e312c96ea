package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID                int64           `json:"id"`
	OrderNumber       string          `json:"order_number"`
	UserID            *int64          `json:"user_id,omitempty"`
	UserName          string          `json:"user_name"`
	UserEmail         string          `json:"user_email"`
	ShippingInfo      ShippingInfo    `json:"shipping_info"`
	PaymentInfo       PaymentInfo     `json:"payment_info"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Shipping          decimal.Decimal `json:"shipping"`
	Tax               decimal.Decimal `json:"tax"`
	Total             decimal.Decimal `json:"total"`
	Notes             string          `json:"notes"`
	Status            string          `json:"status"`
	PaymentStatus     string          `json:"payment_status"`
	TrackingNumber    string          `json:"tracking_number"`
	Carrier           string          `json:"carrier"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Version           int             `json:"version"`
	Items             []OrderItem     `json:"items,omitempty"`
	StatusHistory     []StatusEntry   `json:"status_history,omitempty"`
}

type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ArtworkID int64           `json:"artwork_id"`
	Title     string          `json:"title"`
	Artist    string          `json:"artist"`
	ImageURL  string          `json:"image_url"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	CreatedAt time.Time       `json:"created_at"`
}

type StatusEntry struct {
	ID        int64     `json:"id"`
	Status    string    `json:"status"`
	Note      string    `json:"note"`
	Timestamp time.Time `json:"timestamp"`
}

type ShippingInfo struct {
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required"`
	Address  string `json:"address" validate:"required"`
	City     string `json:"city" validate:"required"`
	State    string `json:"state"`
	ZipCode  string `json:"zip_code" validate:"required"`
	Country  string `json:"country"`
}

func (s ShippingInfo) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *ShippingInfo) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// PaymentInfo never carries a full card number, only its last four digits.
type PaymentInfo struct {
	Method string `json:"method"`
	Last4  string `json:"last4,omitempty"`
}

func (p PaymentInfo) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *PaymentInfo) Scan(src interface{}) error {
	return scanJSON(src, p)
}

func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	case nil:
		return nil
	default:
		return errors.New("unsupported scan type for JSON column")
	}
}

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
	PaymentStatusFailed   = "failed"
)

func ValidOrderStatus(status string) bool {
	switch status {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

func ValidPaymentStatus(status string) bool {
	switch status {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusRefunded, PaymentStatusFailed:
		return true
	}
	return false
}

type OrderStats struct {
	Total             int             `json:"total"`
	Pending           int             `json:"pending"`
	Processing        int             `json:"processing"`
	Shipped           int             `json:"shipped"`
	Delivered         int             `json:"delivered"`
	Cancelled         int             `json:"cancelled"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
}

type UserOrderStats struct {
	TotalOrders     int             `json:"total_orders"`
	TotalSpent      decimal.Decimal `json:"total_spent"`
	PendingOrders   int             `json:"pending_orders"`
	CompletedOrders int             `json:"completed_orders"`
}
