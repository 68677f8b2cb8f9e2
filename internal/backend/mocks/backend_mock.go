package mocks

import (
	"context"
	"strconv"
	"sync"

	"github.com/example/checkout-engine/internal/backend"
	"github.com/example/checkout-engine/internal/money"
)

// MockBackend is an in-memory implementation of the backend interfaces for
// testing. Call slices record parameters; Err fields force failures;
// Callback fields override behavior entirely.
type MockBackend struct {
	mu sync.Mutex

	// Cart sync
	AddCartItemCalls    []backend.CartItem
	UpdateCartItemCalls []UpdateCartItemCall
	RemoveCartItemCalls []string
	CartSyncErr         error

	// Promo
	ValidatePromoCalls    []ValidatePromoCall
	ValidatePromoDiscount money.Money
	ValidatePromoErr      error
	ValidatePromoCallback func(ctx context.Context, code string, subtotal money.Money) (money.Money, error)

	// Addresses
	Addresses         []backend.Address
	ListAddressesErr  error
	CreateAddressErr  error
	UpdateAddressErr  error
	DeleteAddressErr  error
	nextAddressID     int
	CreatedAddresses  []backend.Address
	DeletedAddressIDs []string

	// Orders
	CreateOrderCalls        []backend.CreateOrderRequest
	CreateOrderID           string
	CreateOrderErr          error
	CreateOrderCallback     func(ctx context.Context) error
	CreateGuestOrderCalls   []backend.CreateGuestOrderRequest
	CreateGuestOrderResp    backend.CreateGuestOrderResponse
	CreateGuestOrderErr     error
	InitiatePaymentCalls    []InitiatePaymentCall
	InitiatePaymentSecret   string
	InitiatePaymentErr      error
	CreatePaymentCalls      []backend.PaymentIntentRequest
	CreatePaymentSecret     string
	CreatePaymentErr        error
}

type UpdateCartItemCall struct {
	ProductID string
	Quantity  int
}

type ValidatePromoCall struct {
	Code     string
	Subtotal money.Money
}

type InitiatePaymentCall struct {
	OrderID string
	Request backend.InitiatePaymentRequest
}

func NewMockBackend() *MockBackend {
	return &MockBackend{
		CreateOrderID:         "order-1",
		InitiatePaymentSecret: "secret_auth_1",
		CreateGuestOrderResp: backend.CreateGuestOrderResponse{
			OrderID: "order-guest-1",
		},
		CreatePaymentSecret: "secret_guest_1",
	}
}

func (m *MockBackend) AddCartItem(ctx context.Context, item backend.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AddCartItemCalls = append(m.AddCartItemCalls, item)
	return m.CartSyncErr
}

func (m *MockBackend) UpdateCartItem(ctx context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCartItemCalls = append(m.UpdateCartItemCalls, UpdateCartItemCall{ProductID: productID, Quantity: quantity})
	return m.CartSyncErr
}

func (m *MockBackend) RemoveCartItem(ctx context.Context, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveCartItemCalls = append(m.RemoveCartItemCalls, productID)
	return m.CartSyncErr
}

func (m *MockBackend) ValidatePromo(ctx context.Context, code string, subtotal money.Money) (money.Money, error) {
	m.mu.Lock()
	m.ValidatePromoCalls = append(m.ValidatePromoCalls, ValidatePromoCall{Code: code, Subtotal: subtotal})
	callback := m.ValidatePromoCallback
	discount, err := m.ValidatePromoDiscount, m.ValidatePromoErr
	m.mu.Unlock()

	if callback != nil {
		return callback(ctx, code, subtotal)
	}
	if err != nil {
		return money.Zero(), err
	}
	return discount, nil
}

func (m *MockBackend) ListAddresses(ctx context.Context, userID string) ([]backend.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListAddressesErr != nil {
		return nil, m.ListAddressesErr
	}
	out := make([]backend.Address, len(m.Addresses))
	copy(out, m.Addresses)
	return out, nil
}

func (m *MockBackend) CreateAddress(ctx context.Context, addr backend.Address) (backend.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateAddressErr != nil {
		return backend.Address{}, m.CreateAddressErr
	}
	m.nextAddressID++
	addr.ID = "addr-" + strconv.Itoa(m.nextAddressID)
	m.Addresses = append(m.Addresses, addr)
	m.CreatedAddresses = append(m.CreatedAddresses, addr)
	return addr, nil
}

func (m *MockBackend) UpdateAddress(ctx context.Context, id string, addr backend.Address) (backend.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateAddressErr != nil {
		return backend.Address{}, m.UpdateAddressErr
	}
	for i := range m.Addresses {
		if m.Addresses[i].ID == id {
			addr.ID = id
			m.Addresses[i] = addr
			return addr, nil
		}
	}
	return backend.Address{}, &backend.APIError{StatusCode: 404, Message: "address not found"}
}

func (m *MockBackend) DeleteAddress(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteAddressErr != nil {
		return m.DeleteAddressErr
	}
	m.DeletedAddressIDs = append(m.DeletedAddressIDs, id)
	for i := range m.Addresses {
		if m.Addresses[i].ID == id {
			m.Addresses = append(m.Addresses[:i], m.Addresses[i+1:]...)
			return nil
		}
	}
	return nil
}

// SeedAddress pre-populates the address book with a fixed id.
func (m *MockBackend) SeedAddress(addr backend.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Addresses = append(m.Addresses, addr)
}

func (m *MockBackend) CreateOrder(ctx context.Context, req backend.CreateOrderRequest) (string, error) {
	m.mu.Lock()
	m.CreateOrderCalls = append(m.CreateOrderCalls, req)
	callback := m.CreateOrderCallback
	orderID, err := m.CreateOrderID, m.CreateOrderErr
	m.mu.Unlock()

	if callback != nil {
		if cbErr := callback(ctx); cbErr != nil {
			return "", cbErr
		}
	}
	if err != nil {
		return "", err
	}
	return orderID, nil
}

func (m *MockBackend) CreateGuestOrder(ctx context.Context, req backend.CreateGuestOrderRequest) (backend.CreateGuestOrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateGuestOrderCalls = append(m.CreateGuestOrderCalls, req)
	if m.CreateGuestOrderErr != nil {
		return backend.CreateGuestOrderResponse{}, m.CreateGuestOrderErr
	}
	return m.CreateGuestOrderResp, nil
}

func (m *MockBackend) InitiatePayment(ctx context.Context, orderID string, req backend.InitiatePaymentRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitiatePaymentCalls = append(m.InitiatePaymentCalls, InitiatePaymentCall{OrderID: orderID, Request: req})
	if m.InitiatePaymentErr != nil {
		return "", m.InitiatePaymentErr
	}
	return m.InitiatePaymentSecret, nil
}

func (m *MockBackend) CreatePaymentIntent(ctx context.Context, req backend.PaymentIntentRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreatePaymentCalls = append(m.CreatePaymentCalls, req)
	if m.CreatePaymentErr != nil {
		return "", m.CreatePaymentErr
	}
	return m.CreatePaymentSecret, nil
}
