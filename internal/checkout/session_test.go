package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/checkout-engine/internal/address"
	"github.com/example/checkout-engine/internal/backend"
	"github.com/example/checkout-engine/internal/backend/mocks"
	"github.com/example/checkout-engine/internal/cart"
	"github.com/example/checkout-engine/internal/cartstore"
	"github.com/example/checkout-engine/internal/events"
	eventmocks "github.com/example/checkout-engine/internal/events/mocks"
	"github.com/example/checkout-engine/internal/money"
	"github.com/example/checkout-engine/internal/promo"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fixture struct {
	backend   *mocks.MockBackend
	publisher *eventmocks.MockPublisher
	cart      *cart.Store
	promo     *promo.Resolver
	addresses *address.Resolver
}

func testAddress() address.Address {
	return address.Address{
		FullName:      "Ada Lovelace",
		StreetAddress: "12 Analytical Way",
		City:          "London",
		StateProvince: "LDN",
		PostalCode:    "EC1A 1BB",
		Country:       "GB",
		PhoneNumber:   "+44 20 7946 0958",
	}
}

// newAuthFixture builds a cart holding one 76.00 item and an address book
// with one default address.
func newAuthFixture(t *testing.T) *fixture {
	t.Helper()
	mb := mocks.NewMockBackend()

	addr := testAddress()
	addr.ID = "addr-1"
	addr.IsDefault = true
	mb.SeedAddress(backend.Address(addr))

	f := &fixture{
		backend:   mb,
		publisher: eventmocks.NewMockPublisher(),
		cart:      cart.NewStore("sess-1", mb, cartstore.NewMemoryStore(), testLogger()),
		promo:     promo.NewResolver(mb, testLogger()),
		addresses: address.NewAuthenticatedResolver(mb, "user-1", testLogger()),
	}

	_, err := f.cart.AddItem(context.Background(), cart.LineItem{
		ProductID: "p1",
		Title:     "Mechanical Keyboard",
		UnitPrice: money.FromCents(3800),
		Quantity:  2,
	})
	require.NoError(t, err)
	require.NoError(t, f.addresses.Refresh(context.Background()))
	return f
}

func newGuestFixture(t *testing.T) *fixture {
	t.Helper()
	mb := mocks.NewMockBackend()

	f := &fixture{
		backend:   mb,
		publisher: eventmocks.NewMockPublisher(),
		cart:      cart.NewStore("sess-g1", mb, cartstore.NewMemoryStore(), testLogger()),
		promo:     promo.NewResolver(mb, testLogger()),
		addresses: address.NewGuestResolver(testLogger()),
	}

	_, err := f.cart.AddItem(context.Background(), cart.LineItem{
		ProductID: "p1",
		Title:     "Mechanical Keyboard",
		UnitPrice: money.FromCents(3800),
		Quantity:  2,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) newSession(t *testing.T, buyer BuyerIdentity) *Session {
	t.Helper()
	s, err := NewSession(Config{
		Cart:       f.cart,
		Promo:      f.promo,
		Addresses:  f.addresses,
		Orders:     f.backend,
		Events:     f.publisher,
		Logger:     testLogger(),
		Buyer:      buyer,
		SuccessURL: "https://shop.test/checkout/success",
		CancelURL:  "https://shop.test/checkout/cancel",
	})
	require.NoError(t, err)
	return s
}

// ============================================================
// Session creation
// ============================================================

func TestNewSession_EmptyCartRefused(t *testing.T) {
	mb := mocks.NewMockBackend()
	emptyCart := cart.NewStore("sess-2", mb, cartstore.NewMemoryStore(), testLogger())

	_, err := NewSession(Config{
		Cart:      emptyCart,
		Promo:     promo.NewResolver(mb, testLogger()),
		Addresses: address.NewGuestResolver(testLogger()),
		Orders:    mb,
		Events:    events.NewNop(),
		Logger:    testLogger(),
		Buyer:     GuestBuyer(""),
	})
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, mb.CreateOrderCalls)
}

func TestNewSession_StartsOnAddressStep(t *testing.T) {
	f := newAuthFixture(t)
	s := f.newSession(t, AuthenticatedBuyer("user-1"))

	assert.Equal(t, StepAddress, s.Step())
	assert.Equal(t, []string{events.EventCheckoutStarted}, f.publisher.EventTypes())
}

// ============================================================
// Totals
// ============================================================

func TestTotals_StandardShippingAndTax(t *testing.T) {
	f := newAuthFixture(t)
	s := f.newSession(t, AuthenticatedBuyer("user-1"))

	totals := s.Totals()
	assert.Equal(t, "76.00", totals.Subtotal.String())
	assert.Equal(t, "6.08", totals.Tax.String())
	assert.Equal(t, "0.00", totals.Shipping.String())
	assert.Equal(t, "0.00", totals.Discount.String())
	assert.Equal(t, "82.08", totals.GrandTotal.String())
}

func TestTotals_StalePromoDiscountCountsAsZero(t *testing.T) {
	f := newAuthFixture(t)
	f.backend.ValidatePromoDiscount = money.FromCents(1000)
	_, err := f.promo.Apply(context.Background(), "SAVE10", f.cart.Subtotal())
	require.NoError(t, err)

	s := f.newSession(t, AuthenticatedBuyer("user-1"))
	assert.Equal(t, "10.00", s.Totals().Discount.String())

	// cart changes underneath the applied promo
	_, err = f.cart.UpdateQuantity(context.Background(), "p1", 3)
	require.NoError(t, err)

	totals := s.Totals()
	assert.Equal(t, "0.00", totals.Discount.String())
	assert.Equal(t, "114.00", totals.Subtotal.String())
}

// ============================================================
// ADDRESS -> PAYMENT, authenticated
// ============================================================

func TestContinueToPayment_Authenticated(t *testing.T) {
	f := newAuthFixture(t)
	s := f.newSession(t, AuthenticatedBuyer("user-1"))

	require.NoError(t, s.ContinueToPayment(context.Background()))

	assert.Equal(t, StepPayment, s.Step())
	assert.Equal(t, "order-1", s.OrderID())
	assert.Equal(t, "secret_auth_1", s.ClientSecret())

	require.Len(t, f.backend.CreateOrderCalls, 1)
	assert.Equal(t, "addr-1", f.backend.CreateOrderCalls[0].ShippingAddressID)
	assert.Equal(t, "addr-1", f.backend.CreateOrderCalls[0].BillingAddressID)

	require.Len(t, f.backend.InitiatePaymentCalls, 1)
	assert.Equal(t, "order-1", f.backend.InitiatePaymentCalls[0].OrderID)
	assert.Equal(t, "https://shop.test/checkout/success", f.backend.InitiatePaymentCalls[0].Request.SuccessURL)

	assert.Empty(t, f.backend.CreateGuestOrderCalls)
}

func TestContinueToPayment_NoAddressBlocked(t *testing.T) {
	f := newAuthFixture(t)
	require.NoError(t, f.addresses.DeleteAddress(context.Background(), "addr-1"))
	s := f.newSession(t, AuthenticatedBuyer("user-1"))

	err := s.ContinueToPayment(context.Background())

	var fieldErrs address.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs, "shipping_address")
	assert.Equal(t, StepAddress, s.Step())
	assert.Empty(t, f.backend.CreateOrderCalls)
}

func TestContinueToPayment_OrderCreatedButIntentFails(t *testing.T) {
	f := newAuthFixture(t)
	f.backend.InitiatePaymentErr = errors.New("gateway unavailable")
	s := f.newSession(t, AuthenticatedBuyer("user-1"))

	err := s.ContinueToPayment(context.Background())
	require.Error(t, err)

	// all-or-nothing: no half-open payment state survives
	assert.Equal(t, StepAddress, s.Step())
	assert.Empty(t, s.OrderID())
	assert.Empty(t, s.ClientSecret())

	// a retry creates a fresh order rather than reusing the abandoned one
	f.backend.InitiatePaymentErr = nil
	require.NoError(t, s.ContinueToPayment(context.Background()))
	assert.Len(t, f.backend.CreateOrderCalls, 2)
	assert.Equal(t, StepPayment, s.Step())
}

func TestContinueToPayment_BillingAddressOverride(t *testing.T) {
	f := newAuthFixture(t)
	billing := testAddress()
	billing.ID = "addr-2"
	f.backend.SeedAddress(backend.Address(billing))
	require.NoError(t, f.addresses.Refresh(context.Background()))

	s := f.newSession(t, AuthenticatedBuyer("user-1"))
	require.NoError(t, s.SelectBillingAddress("addr-2"))
	require.NoError(t, s.ContinueToPayment(context.Background()))

	require.Len(t, f.backend.CreateOrderCalls, 1)
	assert.Equal(t, "addr-1", f.backend.CreateOrderCalls[0].ShippingAddressID)
	assert.Equal(t, "addr-2", f.backend.CreateOrderCalls[0].BillingAddressID)
}

func TestSelectBillingAddress_UnknownID(t *testing.T) {
	f := newAuthFixture(t)
	s := f.newSession(t, AuthenticatedBuyer("user-1"))

	assert.ErrorIs(t, s.SelectBillingAddress("addr-999"), address.ErrUnknownAddress)
}

// ============================================================
// ADDRESS -> PAYMENT, guest
// ============================================================

func TestContinueToPayment_GuestMissingEmailBlocked(t *testing.T) {
	f := newGuestFixture(t)
	_, err := f.addresses.SaveAddress(context.Background(), testAddress())
	require.NoError(t, err)

	s := f.newSession(t, GuestBuyer(""))

	err = s.ContinueToPayment(context.Background())
	var fieldErrs address.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs, "email")
	assert.Equal(t, StepAddress, s.Step())
	assert.Empty(t, f.backend.CreateGuestOrderCalls)

	// supplying the email unblocks the transition
	require.NoError(t, f.addresses.SetGuestEmail("ada@example.com"))
	require.NoError(t, s.ContinueToPayment(context.Background()))
	assert.Equal(t, StepPayment, s.Step())
}

func TestContinueToPayment_GuestSnapshotsCartAndTotals(t *testing.T) {
	f := newGuestFixture(t)
	_, err := f.addresses.SaveAddress(context.Background(), testAddress())
	require.NoError(t, err)
	require.NoError(t, f.addresses.SetGuestEmail("ada@example.com"))

	s := f.newSession(t, GuestBuyer("ada@example.com"))
	require.NoError(t, s.ContinueToPayment(context.Background()))

	assert.Equal(t, "order-guest-1", s.OrderID())
	assert.Equal(t, "secret_guest_1", s.ClientSecret())

	require.Len(t, f.backend.CreateGuestOrderCalls, 1)
	guestReq := f.backend.CreateGuestOrderCalls[0]
	assert.Equal(t, "ada@example.com", guestReq.GuestEmail)
	assert.Equal(t, "Ada Lovelace", guestReq.ShippingAddress.FullName)
	assert.Equal(t, guestReq.ShippingAddress, guestReq.BillingAddress)
	require.Len(t, guestReq.CartItems, 1)
	assert.Equal(t, "p1", guestReq.CartItems[0].ProductID)
	assert.Equal(t, 2, guestReq.CartItems[0].Quantity)

	require.Len(t, f.backend.CreatePaymentCalls, 1)
	intent := f.backend.CreatePaymentCalls[0]
	assert.Equal(t, "82.08", intent.Amount.String())
	assert.Equal(t, "usd", intent.Currency)
	assert.Equal(t, "order-guest-1", intent.OrderID)
	assert.Equal(t, "ada@example.com", intent.GuestEmail)

	assert.Empty(t, f.backend.CreateOrderCalls)
}

func TestContinueToPayment_GuestBillingOverride(t *testing.T) {
	f := newGuestFixture(t)
	_, err := f.addresses.SaveAddress(context.Background(), testAddress())
	require.NoError(t, err)
	require.NoError(t, f.addresses.SetGuestEmail("ada@example.com"))

	billing := testAddress()
	billing.FullName = "Charles Babbage"

	s := f.newSession(t, GuestBuyer("ada@example.com"))
	require.NoError(t, s.SetGuestBillingAddress(billing))
	require.NoError(t, s.ContinueToPayment(context.Background()))

	require.Len(t, f.backend.CreateGuestOrderCalls, 1)
	guestReq := f.backend.CreateGuestOrderCalls[0]
	assert.Equal(t, "Ada Lovelace", guestReq.ShippingAddress.FullName)
	assert.Equal(t, "Charles Babbage", guestReq.BillingAddress.FullName)
}

func TestSetGuestBillingAddress_Invalid(t *testing.T) {
	f := newGuestFixture(t)
	s := f.newSession(t, GuestBuyer("ada@example.com"))

	err := s.SetGuestBillingAddress(address.Address{FullName: "Ada"})
	var fieldErrs address.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs, "street_address")
}

// ============================================================
// Back and re-entry
// ============================================================

func TestBack_ReusesOrderOnReentry(t *testing.T) {
	f := newAuthFixture(t)
	s := f.newSession(t, AuthenticatedBuyer("user-1"))

	require.NoError(t, s.ContinueToPayment(context.Background()))
	require.NoError(t, s.Back())
	assert.Equal(t, StepAddress, s.Step())

	require.NoError(t, s.ContinueToPayment(context.Background()))
	assert.Equal(t, StepPayment, s.Step())
	assert.Equal(t, "order-1", s.OrderID())
	assert.Equal(t, "secret_auth_1", s.ClientSecret())

	// no duplicate order or intent was created
	assert.Len(t, f.backend.CreateOrderCalls, 1)
	assert.Len(t, f.backend.InitiatePaymentCalls, 1)
}

func TestBack_FromAddressInvalid(t *testing.T) {
	f := newAuthFixture(t)
	s := f.newSession(t, AuthenticatedBuyer("user-1"))

	assert.ErrorIs(t, s.Back(), ErrInvalidTransition)
}

// ============================================================
// Payment outcomes
// ============================================================

func TestConfirmPayment_ClearsCartAndTerminates(t *testing.T) {
	f := newAuthFixture(t)
	s := f.newSession(t, AuthenticatedBuyer("user-1"))
	require.NoError(t, s.ContinueToPayment(context.Background()))

	require.NoError(t, s.ConfirmPayment(context.Background(), "pi_123"))

	assert.Equal(t, StepSuccess, s.Step())
	assert.Equal(t, "pi_123", s.ConfirmationToken())
	assert.True(t, f.cart.IsEmpty())
	assert.Equal(t, promo.StatusNone, f.promo.State().Status)

	assert.Equal(t, []string{
		events.EventCheckoutStarted,
		events.EventOrderCreated,
		events.EventPaymentConfirmed,
		events.EventCartCleared,
	}, f.publisher.EventTypes())

	// terminal: nothing moves the session afterwards
	assert.ErrorIs(t, s.ContinueToPayment(context.Background()), ErrSessionTerminal)
	assert.ErrorIs(t, s.Back(), ErrSessionTerminal)
	assert.ErrorIs(t, s.Cancel(), ErrSessionTerminal)
}

func TestConfirmPayment_BeforePaymentStep(t *testing.T) {
	f := newAuthFixture(t)
	s := f.newSession(t, AuthenticatedBuyer("user-1"))

	err := s.ConfirmPayment(context.Background(), "pi_123")
	assert.Error(t, err)
	assert.Equal(t, StepAddress, s.Step())
	assert.False(t, f.cart.IsEmpty())
}

func TestFailPayment_StaysOnPaymentForRetry(t *testing.T) {
	f := newAuthFixture(t)
	s := f.newSession(t, AuthenticatedBuyer("user-1"))
	require.NoError(t, s.ContinueToPayment(context.Background()))

	require.NoError(t, s.FailPayment("card_declined"))

	assert.Equal(t, StepPayment, s.Step())
	assert.Equal(t, "order-1", s.OrderID())
	assert.Equal(t, "secret_auth_1", s.ClientSecret())
	assert.False(t, f.cart.IsEmpty())
	assert.Contains(t, f.publisher.EventTypes(), events.EventPaymentFailed)
}

func TestCancel_LeavesCartIntact(t *testing.T) {
	f := newAuthFixture(t)
	s := f.newSession(t, AuthenticatedBuyer("user-1"))

	require.NoError(t, s.Cancel())
	assert.Equal(t, StepCancelled, s.Step())
	assert.False(t, f.cart.IsEmpty())
}

// ============================================================
// Stale order creation
// ============================================================

func TestContinueToPayment_CancelledMidFlightDiscardsOrder(t *testing.T) {
	f := newAuthFixture(t)
	s := f.newSession(t, AuthenticatedBuyer("user-1"))

	// the cancel lands while the order creation round trip is in the air
	f.backend.CreateOrderCallback = func(context.Context) error {
		return s.Cancel()
	}

	err := s.ContinueToPayment(context.Background())
	assert.ErrorIs(t, err, ErrSessionSuperseded)
	assert.Equal(t, StepCancelled, s.Step())
	assert.Empty(t, s.OrderID())
	assert.Empty(t, s.ClientSecret())
}

func TestPaymentRequest_BindsSessionCallbacks(t *testing.T) {
	f := newAuthFixture(t)
	s := f.newSession(t, AuthenticatedBuyer("user-1"))

	_, err := s.PaymentRequest()
	assert.ErrorIs(t, err, ErrNotOnPaymentStep)

	require.NoError(t, s.ContinueToPayment(context.Background()))
	req, err := s.PaymentRequest()
	require.NoError(t, err)

	assert.Equal(t, "82.08", req.Amount.String())
	assert.Equal(t, "order-1", req.OrderID)
	assert.Equal(t, "secret_auth_1", req.ClientSecret)

	require.NoError(t, req.OnError("card_declined"))
	assert.Equal(t, StepPayment, s.Step())

	require.NoError(t, req.OnSuccess(context.Background(), "pi_789"))
	assert.Equal(t, StepSuccess, s.Step())
	assert.True(t, f.cart.IsEmpty())
}

// ============================================================
// Bridge
// ============================================================

func TestBridge_RoutesConfirmationByOrderID(t *testing.T) {
	f := newAuthFixture(t)
	s := f.newSession(t, AuthenticatedBuyer("user-1"))
	require.NoError(t, s.ContinueToPayment(context.Background()))

	bridge := NewBridge()
	bridge.Register(s)

	require.NoError(t, bridge.Confirm(context.Background(), "order-1", "pi_123"))
	assert.Equal(t, StepSuccess, s.Step())

	// registration released on confirm
	assert.ErrorIs(t, bridge.Confirm(context.Background(), "order-1", "pi_123"), ErrUnknownOrder)
}

func TestBridge_FailKeepsRegistration(t *testing.T) {
	f := newAuthFixture(t)
	s := f.newSession(t, AuthenticatedBuyer("user-1"))
	require.NoError(t, s.ContinueToPayment(context.Background()))

	bridge := NewBridge()
	bridge.Register(s)

	require.NoError(t, bridge.Fail("order-1", "card_declined"))
	assert.Equal(t, StepPayment, s.Step())

	// a later confirmation for the same order still resolves
	require.NoError(t, bridge.Confirm(context.Background(), "order-1", "pi_456"))
	assert.Equal(t, StepSuccess, s.Step())
}

func TestBridge_RefusedConfirmationKeepsRegistration(t *testing.T) {
	f := newAuthFixture(t)
	s := f.newSession(t, AuthenticatedBuyer("user-1"))
	require.NoError(t, s.ContinueToPayment(context.Background()))

	bridge := NewBridge()
	bridge.Register(s)

	// a confirmation lands while the buyer has stepped back to ADDRESS;
	// the session refuses it and the order registration must survive
	require.NoError(t, s.Back())
	require.Error(t, bridge.Confirm(context.Background(), "order-1", "pi_early"))
	assert.Equal(t, StepAddress, s.Step())
	assert.False(t, f.cart.IsEmpty())

	// re-entering PAYMENT reuses the same order, and a later confirmation
	// still finds its way back
	require.NoError(t, s.ContinueToPayment(context.Background()))
	assert.Equal(t, "order-1", s.OrderID())

	require.NoError(t, bridge.Confirm(context.Background(), "order-1", "pi_late"))
	assert.Equal(t, StepSuccess, s.Step())
	assert.True(t, f.cart.IsEmpty())
	assert.Len(t, f.backend.CreateOrderCalls, 1)
}

func TestBridge_UnknownOrder(t *testing.T) {
	bridge := NewBridge()
	assert.ErrorIs(t, bridge.Confirm(context.Background(), "order-404", "pi_1"), ErrUnknownOrder)
	assert.ErrorIs(t, bridge.Fail("order-404", "declined"), ErrUnknownOrder)
}

// ============================================================
// Buyer identity
// ============================================================

func TestBuyerIdentity(t *testing.T) {
	auth := AuthenticatedBuyer("user-1")
	assert.False(t, auth.IsGuest())
	assert.Equal(t, "user-1", auth.UserID())
	assert.Empty(t, auth.Email())

	guest := GuestBuyer("ada@example.com")
	assert.True(t, guest.IsGuest())
	assert.Empty(t, guest.UserID())
	assert.Equal(t, "ada@example.com", guest.Email())
}
