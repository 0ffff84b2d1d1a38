package models

import (
	"time"

	"github.com/jinzhu/gorm"
)

// OrderStatus represents the possible states of an order
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusAccepted       OrderStatus = "accepted"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusFinished       OrderStatus = "finished"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// OrderOrigin is the channel an order was created through.
type OrderOrigin string

const (
	OriginPublicMenu OrderOrigin = "menu"
	OriginWhatsApp   OrderOrigin = "whatsapp"
	OriginManual     OrderOrigin = "manual"
	OriginTable      OrderOrigin = "table"
)

// PaymentMethod is the agreed payment for an order.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
	PaymentPix  PaymentMethod = "pix"
)

// ValidPaymentMethod reports whether m is one of the accepted methods.
// Unrecognized values are rejected, never coerced.
func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentPix:
		return true
	}
	return false
}

// Order is a committed purchase. Items and total are immutable once the row
// exists; only the status column moves, through the lifecycle transitions
// below.
type Order struct {
	gorm.Model
	RestaurantID    uint          `json:"restaurant_id"`
	Code            string        `gorm:"unique_index" json:"code"`
	CustomerID      uint          `json:"customer_id"`
	CustomerName    string        `json:"customer_name"`
	CustomerPhone   string        `gorm:"index" json:"customer_phone"`
	DeliveryAddress *string       `json:"delivery_address"`
	Status          OrderStatus   `gorm:"index" json:"status"`
	Origin          OrderOrigin   `json:"origin"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	Total           float64       `json:"total"`
	Items           []OrderItem   `gorm:"foreignkey:OrderID" json:"items"`
	PlacedAt        time.Time     `json:"placed_at"`
}

// OrderItem snapshots a product at order time. Name and unit price are
// copied so later catalog edits never retroactively alter a placed order.
type OrderItem struct {
	gorm.Model
	OrderID   uint    `gorm:"index" json:"order_id"`
	ProductID uint    `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	Notes     string  `json:"notes"`
}

// transitions is the lifecycle state machine. Cancellation is the only edge
// that skips states, and only from pre-terminal states.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusAccepted, OrderStatusCancelled},
	OrderStatusAccepted:       {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing:      {OrderStatusOutForDelivery, OrderStatusCancelled},
	OrderStatusOutForDelivery: {OrderStatusFinished},
	OrderStatusFinished:       {},
	OrderStatusCancelled:      {},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are accepted from s.
func IsTerminal(s OrderStatus) bool {
	return len(transitions[s]) == 0
}

// IsDelivery reports whether the order implies delivery; counter and pickup
// orders carry a nil address and omit the delivery fee.
func (o *Order) IsDelivery() bool {
	return o.DeliveryAddress != nil && *o.DeliveryAddress != ""
}
