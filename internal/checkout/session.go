package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/example/checkout-engine/internal/address"
	"github.com/example/checkout-engine/internal/backend"
	"github.com/example/checkout-engine/internal/cart"
	"github.com/example/checkout-engine/internal/events"
	"github.com/example/checkout-engine/internal/money"
	"github.com/example/checkout-engine/internal/pricing"
	"github.com/example/checkout-engine/internal/promo"
)

// Step is the checkout state machine position.
type Step string

const (
	StepAddress   Step = "ADDRESS"
	StepPayment   Step = "PAYMENT"
	StepSuccess   Step = "SUCCESS"
	StepCancelled Step = "CANCELLED"
)

var (
	ErrEmptyCart         = errors.New("checkout requires a non-empty cart")
	ErrInvalidTransition = errors.New("invalid checkout transition")
	ErrSessionSuperseded = errors.New("checkout attempt superseded")
	ErrMissingOrder      = errors.New("no order exists for this session")
	ErrNotOnPaymentStep  = errors.New("session is not on the payment step")
	ErrSessionTerminal   = errors.New("checkout session already completed")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Step][]Step{
	StepAddress:   {StepPayment, StepCancelled},
	StepPayment:   {StepAddress, StepSuccess, StepCancelled},
	StepSuccess:   {}, // terminal state
	StepCancelled: {}, // terminal state
}

func canTransition(from, to Step) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func transitionError(from, to Step) error {
	if from == StepSuccess || from == StepCancelled {
		return ErrSessionTerminal
	}
	return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidTransition, from, to)
}

// Config wires a session's collaborators. All state containers are passed in
// explicitly; the session owns none of them except its own step state.
type Config struct {
	Cart      *cart.Store
	Promo     *promo.Resolver
	Addresses *address.Resolver
	Orders    backend.OrderService
	Events    events.Publisher
	Logger    *logrus.Logger

	Buyer BuyerIdentity

	// Provider redirect targets for the authenticated initiate-payment call.
	SuccessURL string
	CancelURL  string
	Currency   string
}

// Session drives the two-phase checkout flow: ADDRESS -> PAYMENT, then
// terminal SUCCESS or CANCELLED. One session per checkout attempt.
type Session struct {
	mu sync.Mutex

	id        string
	step      Step
	buyer     BuyerIdentity
	cart      *cart.Store
	promo     *promo.Resolver
	addresses *address.Resolver
	orders    backend.OrderService
	events    events.Publisher
	log       *logrus.Entry

	successURL string
	cancelURL  string
	currency   string

	// Billing defaults to "same as shipping" until the buyer opts out.
	billingSameAsShipping bool
	billingAddressID      string           // authenticated opt-out
	billingAddress        *address.Address // guest opt-out

	orderID           string
	clientSecret      string
	confirmationToken string

	// attempt sequence: an in-flight order creation is discarded if the
	// session was cancelled or re-driven before its responses landed.
	attempt uint64
}

// NewSession begins a checkout. Guarded by the cart: checkout with an empty
// cart is an invalid state and is refused outright.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Cart.ItemCount() == 0 {
		return nil, ErrEmptyCart
	}

	currency := cfg.Currency
	if currency == "" {
		currency = "usd"
	}

	id := uuid.New().String()
	s := &Session{
		id:        id,
		step:      StepAddress,
		buyer:     cfg.Buyer,
		cart:      cfg.Cart,
		promo:     cfg.Promo,
		addresses: cfg.Addresses,
		orders:    cfg.Orders,
		events:    cfg.Events,
		log: cfg.Logger.WithFields(logrus.Fields{
			"component": "checkout",
			"session":   id,
		}),
		successURL:            cfg.SuccessURL,
		cancelURL:             cfg.CancelURL,
		currency:              currency,
		billingSameAsShipping: true,
	}

	s.publish(events.EventCheckoutStarted, events.CheckoutStarted{
		SessionID: id,
		Guest:     cfg.Buyer.IsGuest(),
		ItemCount: cfg.Cart.ItemCount(),
		StartedAt: time.Now(),
	})
	return s, nil
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *Session) Buyer() BuyerIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buyer
}

func (s *Session) OrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderID
}

func (s *Session) ClientSecret() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientSecret
}

func (s *Session) ConfirmationToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmationToken
}

// Totals computes the current order totals. A promo discount bound to an
// outdated subtotal counts as zero (stale discounts never reach a final
// total).
func (s *Session) Totals() pricing.OrderTotals {
	subtotal := s.cart.Subtotal()
	return pricing.ComputeTotals(subtotal, s.promo.EffectiveDiscount(subtotal))
}

// SetBillingSameAsShipping restores the default billing behavior.
func (s *Session) SetBillingSameAsShipping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.billingSameAsShipping = true
	s.billingAddressID = ""
	s.billingAddress = nil
}

// SelectBillingAddress opts an authenticated buyer out of same-as-shipping,
// billing to one of the account's persisted addresses.
func (s *Session) SelectBillingAddress(id string) error {
	for _, a := range s.addresses.Addresses() {
		if a.ID == id {
			s.mu.Lock()
			s.billingSameAsShipping = false
			s.billingAddressID = id
			s.mu.Unlock()
			return nil
		}
	}
	return address.ErrUnknownAddress
}

// SetGuestBillingAddress opts a guest out of same-as-shipping with an inline
// billing address.
func (s *Session) SetGuestBillingAddress(a address.Address) error {
	if errs := a.Validate(); errs != nil {
		return errs
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.billingSameAsShipping = false
	s.billingAddress = &a
	return nil
}

// ContinueToPayment drives the ADDRESS -> PAYMENT transition. Local
// validation runs first and blocks the transition with field-scoped errors
// before any network call. The transition is all-or-nothing: order creation
// without a payment intent leaves the session on ADDRESS with no order id
// retained.
func (s *Session) ContinueToPayment(ctx context.Context) error {
	s.mu.Lock()
	if s.step != StepAddress {
		step := s.step
		s.mu.Unlock()
		return transitionError(step, StepPayment)
	}

	// Back() preserved an already-created order and intent; reuse them
	// instead of creating a duplicate order.
	if s.orderID != "" && s.clientSecret != "" {
		s.step = StepPayment
		s.mu.Unlock()
		return nil
	}

	s.attempt++
	attempt := s.attempt
	buyer := s.buyer
	s.mu.Unlock()

	shipping, fieldErrs := s.validateForPayment(buyer)
	if fieldErrs != nil {
		return fieldErrs
	}

	var (
		orderID string
		secret  string
		err     error
	)
	if buyer.IsGuest() {
		orderID, secret, err = s.createGuestOrder(ctx, shipping)
	} else {
		orderID, secret, err = s.createAuthenticatedOrder(ctx, shipping)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if attempt != s.attempt || s.step != StepAddress {
		s.log.Debug("discarding superseded order creation")
		return ErrSessionSuperseded
	}

	s.orderID = orderID
	s.clientSecret = secret
	s.step = StepPayment

	s.publish(events.EventOrderCreated, events.OrderCreated{
		SessionID:  s.id,
		OrderID:    orderID,
		Guest:      buyer.IsGuest(),
		GrandTotal: s.Totals().GrandTotal,
		CreatedAt:  time.Now(),
	})
	return nil
}

// validateForPayment gathers every local validation failure before any
// network call: a resolved shipping address for all buyers, plus a valid
// email for guests.
func (s *Session) validateForPayment(buyer BuyerIdentity) (address.Address, address.FieldErrors) {
	fieldErrs := address.FieldErrors{}

	shipping, err := s.addresses.Resolved()
	if err != nil {
		fieldErrs["shipping_address"] = "Select or add a shipping address"
	}

	if buyer.IsGuest() {
		if emailErrs := address.ValidateEmail(s.addresses.GuestEmail()); emailErrs != nil {
			for field, msg := range emailErrs {
				fieldErrs[field] = msg
			}
		}
	}

	if len(fieldErrs) > 0 {
		return address.Address{}, fieldErrs
	}
	return shipping, nil
}

// createAuthenticatedOrder references persisted address ids; the backend
// re-derives pricing from its own cart copy.
func (s *Session) createAuthenticatedOrder(ctx context.Context, shipping address.Address) (string, string, error) {
	req := backend.CreateOrderRequest{
		ShippingAddressID: shipping.ID,
		BillingAddressID:  shipping.ID,
	}
	s.mu.Lock()
	if !s.billingSameAsShipping && s.billingAddressID != "" {
		req.BillingAddressID = s.billingAddressID
	}
	s.mu.Unlock()

	orderID, err := s.orders.CreateOrder(ctx, req)
	if err != nil {
		return "", "", fmt.Errorf("create order: %w", err)
	}

	secret, err := s.orders.InitiatePayment(ctx, orderID, backend.InitiatePaymentRequest{
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
	})
	if err != nil {
		// the created order is abandoned, not retained for a later retry
		return "", "", fmt.Errorf("initiate payment: %w", err)
	}
	return orderID, secret, nil
}

// createGuestOrder snapshots the cart lines, addresses and email inline;
// the payment intent is requested from the locally computed grand total
// since there is no persisted order to re-query pricing from.
func (s *Session) createGuestOrder(ctx context.Context, shipping address.Address) (string, string, error) {
	lines := s.cart.Lines()
	items := make([]backend.CartItem, len(lines))
	for i, line := range lines {
		items[i] = backend.CartItem{
			ProductID: line.ProductID,
			Title:     line.Title,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		}
	}

	billing := shipping
	s.mu.Lock()
	if !s.billingSameAsShipping && s.billingAddress != nil {
		billing = *s.billingAddress
	}
	s.mu.Unlock()

	req := backend.CreateGuestOrderRequest{
		GuestEmail:      s.addresses.GuestEmail(),
		ShippingAddress: backend.Address(shipping),
		BillingAddress:  backend.Address(billing),
		CartItems:       items,
	}

	resp, err := s.orders.CreateGuestOrder(ctx, req)
	if err != nil {
		return "", "", fmt.Errorf("create guest order: %w", err)
	}

	secret, err := s.orders.CreatePaymentIntent(ctx, backend.PaymentIntentRequest{
		Amount:     s.Totals().GrandTotal,
		Currency:   s.currency,
		OrderID:    resp.OrderID,
		GuestEmail: req.GuestEmail,
	})
	if err != nil {
		return "", "", fmt.Errorf("create payment intent: %w", err)
	}
	return resp.OrderID, secret, nil
}

// PaymentRequest is the contract handed to the payment component for one
// attempt: what to charge and how to report the outcome. The callbacks bind
// back to this session.
type PaymentRequest struct {
	Amount       money.Money
	OrderID      string
	ClientSecret string
	OnSuccess    func(ctx context.Context, confirmationToken string) error
	OnError      func(reason string) error
}

// PaymentRequest builds the payment contract for the current attempt. Only
// valid on the PAYMENT step.
func (s *Session) PaymentRequest() (PaymentRequest, error) {
	s.mu.Lock()
	if s.step != StepPayment {
		s.mu.Unlock()
		return PaymentRequest{}, ErrNotOnPaymentStep
	}
	orderID := s.orderID
	secret := s.clientSecret
	s.mu.Unlock()

	return PaymentRequest{
		Amount:       s.Totals().GrandTotal,
		OrderID:      orderID,
		ClientSecret: secret,
		OnSuccess:    s.ConfirmPayment,
		OnError:      s.FailPayment,
	}, nil
}

// Back returns to the ADDRESS step without invalidating the created order or
// client secret; re-entering PAYMENT reuses them.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.step, StepAddress) {
		return transitionError(s.step, StepAddress)
	}
	s.step = StepAddress
	return nil
}

// ConfirmPayment finalizes the order: records the provider's confirmation
// token, clears the cart (exactly once), and terminates the session.
func (s *Session) ConfirmPayment(ctx context.Context, confirmationToken string) error {
	s.mu.Lock()
	if s.step != StepPayment {
		step := s.step
		s.mu.Unlock()
		if !canTransition(step, StepSuccess) {
			return transitionError(step, StepSuccess)
		}
		return ErrNotOnPaymentStep
	}
	if s.orderID == "" {
		s.mu.Unlock()
		return ErrMissingOrder
	}
	s.confirmationToken = confirmationToken
	s.step = StepSuccess
	orderID := s.orderID
	s.mu.Unlock()

	s.cart.Clear(ctx)
	s.promo.Remove()

	s.publish(events.EventPaymentConfirmed, events.PaymentConfirmed{
		SessionID:         s.id,
		OrderID:           orderID,
		ConfirmationToken: confirmationToken,
		ConfirmedAt:       time.Now(),
	})
	s.publish(events.EventCartCleared, events.CartCleared{
		SessionID: s.id,
		ClearedAt: time.Now(),
	})
	return nil
}

// FailPayment records a provider-reported failure. The session stays on
// PAYMENT with the same order and intent: retry against the same intent is
// the default.
func (s *Session) FailPayment(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step != StepPayment {
		return ErrNotOnPaymentStep
	}

	s.log.WithField("reason", reason).Warn("payment failed, staying on payment step for retry")
	s.publish(events.EventPaymentFailed, events.PaymentFailed{
		SessionID: s.id,
		OrderID:   s.orderID,
		Reason:    reason,
		FailedAt:  time.Now(),
	})
	return nil
}

// Cancel abandons the checkout. The cart is untouched.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.step, StepCancelled) {
		return transitionError(s.step, StepCancelled)
	}
	s.attempt++ // discard any in-flight order creation
	s.step = StepCancelled
	return nil
}

// publish is best-effort; event delivery failures never affect checkout.
func (s *Session) publish(eventType string, data any) {
	if err := s.events.Publish(context.Background(), s.id, eventType, data); err != nil {
		s.log.WithError(err).WithField("event", eventType).Warn("failed to publish event")
	}
}
