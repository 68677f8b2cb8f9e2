package events

import (
	"time"

	"github.com/example/checkout-engine/internal/money"
)

const (
	EventCheckoutStarted  = "CheckoutStarted"
	EventOrderCreated     = "OrderCreated"
	EventPaymentConfirmed = "PaymentConfirmed"
	EventPaymentFailed    = "PaymentFailed"
	EventCartCleared      = "CartCleared"
)

type CheckoutStarted struct {
	SessionID string    `json:"session_id"`
	Guest     bool      `json:"guest"`
	ItemCount int       `json:"item_count"`
	StartedAt time.Time `json:"started_at"`
}

type OrderCreated struct {
	SessionID  string      `json:"session_id"`
	OrderID    string      `json:"order_id"`
	Guest      bool        `json:"guest"`
	GrandTotal money.Money `json:"grand_total"`
	CreatedAt  time.Time   `json:"created_at"`
}

type PaymentConfirmed struct {
	SessionID         string    `json:"session_id"`
	OrderID           string    `json:"order_id"`
	ConfirmationToken string    `json:"confirmation_token"`
	ConfirmedAt       time.Time `json:"confirmed_at"`
}

type PaymentFailed struct {
	SessionID string    `json:"session_id"`
	OrderID   string    `json:"order_id"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failed_at"`
}

type CartCleared struct {
	SessionID string    `json:"session_id"`
	ClearedAt time.Time `json:"cleared_at"`
}
