package backend

import (
	"fmt"

	"github.com/example/checkout-engine/internal/money"
)

// APIError is a non-2xx response from the order/cart backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// IsRejection reports whether the error is a business-rule rejection
// (correctable by the buyer) as opposed to a transport failure.
func (e *APIError) IsRejection() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// CartItem is the wire shape of one cart line sent to the backend.
type CartItem struct {
	ProductID string      `json:"product_id"`
	Title     string      `json:"title"`
	UnitPrice money.Money `json:"unit_price"`
	Quantity  int         `json:"quantity"`
	ImageRef  string      `json:"image_ref,omitempty"`
}

// Address is the wire shape of a shipping/billing address.
type Address struct {
	ID            string `json:"id,omitempty"`
	FullName      string `json:"full_name"`
	StreetAddress string `json:"street_address"`
	Apt           string `json:"apt,omitempty"`
	City          string `json:"city"`
	StateProvince string `json:"state_province"`
	PostalCode    string `json:"postal_code"`
	Country       string `json:"country"`
	PhoneNumber   string `json:"phone_number"`
	IsDefault     bool   `json:"is_default"`
}

// CreateOrderRequest creates an order for an authenticated buyer. Addresses
// are referenced by id; the backend re-derives pricing from its own cart.
type CreateOrderRequest struct {
	ShippingAddressID string `json:"shipping_address_id"`
	BillingAddressID  string `json:"billing_address_id"`
}

type CreateOrderResponse struct {
	OrderID string `json:"order_id"`
}

// CreateGuestOrderRequest creates an order for a guest buyer. Addresses and
// cart lines travel inline as a point-in-time snapshot.
type CreateGuestOrderRequest struct {
	GuestEmail      string     `json:"guest_email"`
	ShippingAddress Address    `json:"shipping_address"`
	BillingAddress  Address    `json:"billing_address"`
	CartItems       []CartItem `json:"cart_items"`
}

type CreateGuestOrderResponse struct {
	OrderID     string      `json:"order_id"`
	TotalAmount money.Money `json:"total_amount"`
}

// InitiatePaymentRequest requests a payment intent for a persisted order.
type InitiatePaymentRequest struct {
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// PaymentIntentRequest requests a payment intent directly from an amount
// (guest path: there is no persisted order to re-query pricing from).
type PaymentIntentRequest struct {
	Amount     money.Money `json:"amount"`
	Currency   string      `json:"currency"`
	OrderID    string      `json:"order_id"`
	GuestEmail string      `json:"guest_email"`
}

type paymentIntentResponse struct {
	ClientSecret string `json:"client_secret"`
}

type promoValidateRequest struct {
	Code     string      `json:"code"`
	Subtotal money.Money `json:"subtotal"`
}

type promoValidateResponse struct {
	DiscountAmount money.Money `json:"discount_amount"`
}
