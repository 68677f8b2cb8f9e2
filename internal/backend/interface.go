package backend

import (
	"context"

	"github.com/example/checkout-engine/internal/money"
)

// CartSyncer mirrors local cart mutations to the remote cart service.
type CartSyncer interface {
	AddCartItem(ctx context.Context, item CartItem) error
	UpdateCartItem(ctx context.Context, productID string, quantity int) error
	RemoveCartItem(ctx context.Context, productID string) error
}

// PromoValidator validates a promo code against a subtotal.
type PromoValidator interface {
	ValidatePromo(ctx context.Context, code string, subtotal money.Money) (money.Money, error)
}

// AddressDirectory is the account-owned address collection.
type AddressDirectory interface {
	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	CreateAddress(ctx context.Context, addr Address) (Address, error)
	UpdateAddress(ctx context.Context, id string, addr Address) (Address, error)
	DeleteAddress(ctx context.Context, id string) error
}

// OrderService creates orders and payment intents.
type OrderService interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (string, error)
	CreateGuestOrder(ctx context.Context, req CreateGuestOrderRequest) (CreateGuestOrderResponse, error)
	InitiatePayment(ctx context.Context, orderID string, req InitiatePaymentRequest) (string, error)
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (string, error)
}
