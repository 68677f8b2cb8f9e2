package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/example/checkout-engine/internal/address"
	"github.com/example/checkout-engine/internal/auth"
	"github.com/example/checkout-engine/internal/backend"
	"github.com/example/checkout-engine/internal/cart"
	"github.com/example/checkout-engine/internal/checkout"
	"github.com/example/checkout-engine/internal/money"
	"github.com/example/checkout-engine/internal/pricing"
	"github.com/example/checkout-engine/internal/promo"
	"github.com/example/checkout-engine/internal/session"
)

type Handlers struct {
	sessions *session.Manager
	log      *logrus.Entry
}

func NewHandlers(sessions *session.Manager, logger *logrus.Logger) *Handlers {
	return &Handlers{
		sessions: sessions,
		log:      logger.WithField("component", "api"),
	}
}

// sessionID scopes all cart and checkout state. Every buyer-facing route
// requires it.
func sessionID(r *http.Request) string {
	return r.Header.Get("X-Session-ID")
}

func (h *Handlers) buyer(r *http.Request) checkout.BuyerIdentity {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return checkout.AuthenticatedBuyer(claims.UserID)
	}
	return checkout.GuestBuyer("")
}

// ============================================================
// Cart
// ============================================================

type cartLineView struct {
	ProductID string      `json:"product_id"`
	Title     string      `json:"title"`
	UnitPrice money.Money `json:"unit_price"`
	Quantity  int         `json:"quantity"`
	ImageRef  string      `json:"image_ref,omitempty"`
}

type cartView struct {
	Lines     []cartLineView `json:"lines"`
	ItemCount int            `json:"item_count"`
	Subtotal  money.Money    `json:"subtotal"`
	SyncState string         `json:"sync_state,omitempty"`
}

func (h *Handlers) cartView(c *cart.Store, sync cart.SyncState) cartView {
	lines := c.Lines()
	view := cartView{
		Lines:     make([]cartLineView, len(lines)),
		ItemCount: c.ItemCount(),
		Subtotal:  c.Subtotal(),
		SyncState: string(sync),
	}
	for i, line := range lines {
		view.Lines[i] = cartLineView(line)
	}
	return view
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	e := h.sessions.Engine(r.Context(), sessionID(r))
	respondJSON(w, http.StatusOK, h.cartView(e.Cart, ""))
}

func (h *Handlers) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string      `json:"product_id"`
		Title     string      `json:"title"`
		UnitPrice money.Money `json:"unit_price"`
		Quantity  int         `json:"quantity"`
		ImageRef  string      `json:"image_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e := h.sessions.Engine(r.Context(), sessionID(r))
	sync, err := e.Cart.AddItem(r.Context(), cart.LineItem{
		ProductID: req.ProductID,
		Title:     req.Title,
		UnitPrice: req.UnitPrice,
		Quantity:  req.Quantity,
		ImageRef:  req.ImageRef,
	})
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartView(e.Cart, sync))
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	productID := extractPathParam(r.URL.Path, "/cart/items/")

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e := h.sessions.Engine(r.Context(), sessionID(r))
	sync, err := e.Cart.UpdateQuantity(r.Context(), productID, req.Quantity)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartView(e.Cart, sync))
}

func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	productID := extractPathParam(r.URL.Path, "/cart/items/")

	e := h.sessions.Engine(r.Context(), sessionID(r))
	sync, err := e.Cart.RemoveItem(r.Context(), productID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartView(e.Cart, sync))
}

// ============================================================
// Promo
// ============================================================

type promoView struct {
	Status   string      `json:"status"`
	Code     string      `json:"code,omitempty"`
	Discount money.Money `json:"discount"`
	Reason   string      `json:"reason,omitempty"`
}

func newPromoView(state promo.State) promoView {
	return promoView{
		Status:   string(state.Status),
		Code:     state.Code,
		Discount: state.Discount,
		Reason:   state.Reason,
	}
}

func (h *Handlers) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e := h.sessions.Engine(r.Context(), sessionID(r))
	state, err := e.Promo.Apply(r.Context(), req.Code, e.Cart.Subtotal())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newPromoView(state))
}

func (h *Handlers) RemovePromo(w http.ResponseWriter, r *http.Request) {
	e := h.sessions.Engine(r.Context(), sessionID(r))
	e.Promo.Remove()
	respondJSON(w, http.StatusOK, newPromoView(e.Promo.State()))
}

// ============================================================
// Totals
// ============================================================

func (h *Handlers) GetTotals(w http.ResponseWriter, r *http.Request) {
	e := h.sessions.Engine(r.Context(), sessionID(r))

	// totals are current even outside a checkout; a stale promo simply
	// contributes zero
	subtotal := e.Cart.Subtotal()
	totals := pricing.ComputeTotals(subtotal, e.Promo.EffectiveDiscount(subtotal))
	respondJSON(w, http.StatusOK, totals)
}

// ============================================================
// Checkout
// ============================================================

type checkoutView struct {
	Step         string            `json:"step"`
	Guest        bool              `json:"guest"`
	OrderID      string            `json:"order_id,omitempty"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Addresses    []address.Address `json:"addresses"`
	GuestEmail   string            `json:"guest_email,omitempty"`
}

func (h *Handlers) checkoutView(e *session.Engine) checkoutView {
	s := e.Checkout
	view := checkoutView{
		Step:      string(s.Step()),
		Guest:     s.Buyer().IsGuest(),
		Addresses: e.Addresses.Addresses(),
	}
	if s.Step() == checkout.StepPayment {
		view.OrderID = s.OrderID()
		view.ClientSecret = s.ClientSecret()
	}
	if e.Addresses.IsGuest() {
		view.GuestEmail = e.Addresses.GuestEmail()
	}
	return view
}

func (h *Handlers) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GuestEmail string `json:"guest_email"`
	}
	// body is optional for authenticated buyers
	_ = json.NewDecoder(r.Body).Decode(&req)

	buyer := h.buyer(r)
	if buyer.IsGuest() && req.GuestEmail != "" {
		buyer = checkout.GuestBuyer(req.GuestEmail)
	}

	_, err := h.sessions.BeginCheckout(r.Context(), sessionID(r), buyer)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.checkoutView(h.sessions.Engine(r.Context(), sessionID(r))))
}

// activeCheckout loads the engine and rejects routes that need an in-flight
// checkout session.
func (h *Handlers) activeCheckout(w http.ResponseWriter, r *http.Request) (*session.Engine, bool) {
	e := h.sessions.Engine(r.Context(), sessionID(r))
	if e.Checkout == nil {
		respondError(w, http.StatusConflict, "no active checkout")
		return nil, false
	}
	return e, true
}

func (h *Handlers) GetCheckout(w http.ResponseWriter, r *http.Request) {
	e, ok := h.activeCheckout(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.checkoutView(e))
}

func (h *Handlers) ContinueToPayment(w http.ResponseWriter, r *http.Request) {
	e, ok := h.activeCheckout(w, r)
	if !ok {
		return
	}

	if err := e.Checkout.ContinueToPayment(r.Context()); err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.sessions.Bridge().Register(e.Checkout)
	respondJSON(w, http.StatusOK, h.checkoutView(e))
}

func (h *Handlers) CheckoutBack(w http.ResponseWriter, r *http.Request) {
	e, ok := h.activeCheckout(w, r)
	if !ok {
		return
	}
	if err := e.Checkout.Back(); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.checkoutView(e))
}

func (h *Handlers) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.AbandonCheckout(sessionID(r)); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"step": string(checkout.StepCancelled)})
}

// ============================================================
// Checkout: addresses and guest email
// ============================================================

func (h *Handlers) ListCheckoutAddresses(w http.ResponseWriter, r *http.Request) {
	e, ok := h.activeCheckout(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, e.Addresses.Addresses())
}

func (h *Handlers) SaveCheckoutAddress(w http.ResponseWriter, r *http.Request) {
	e, ok := h.activeCheckout(w, r)
	if !ok {
		return
	}

	var input address.Address
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := e.Addresses.SaveAddress(r.Context(), input)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

func (h *Handlers) UpdateCheckoutAddress(w http.ResponseWriter, r *http.Request) {
	e, ok := h.activeCheckout(w, r)
	if !ok {
		return
	}
	id := extractPathParam(r.URL.Path, "/checkout/addresses/")

	var input address.Address
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := e.Addresses.UpdateAddress(r.Context(), id, input)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (h *Handlers) DeleteCheckoutAddress(w http.ResponseWriter, r *http.Request) {
	e, ok := h.activeCheckout(w, r)
	if !ok {
		return
	}
	id := extractPathParam(r.URL.Path, "/checkout/addresses/")

	if err := e.Addresses.DeleteAddress(r.Context(), id); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Address deleted"})
}

func (h *Handlers) SelectCheckoutAddress(w http.ResponseWriter, r *http.Request) {
	e, ok := h.activeCheckout(w, r)
	if !ok {
		return
	}
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/checkout/addresses/"), "/select")

	if err := e.Addresses.SelectAddress(id); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.checkoutView(e))
}

func (h *Handlers) SetGuestEmail(w http.ResponseWriter, r *http.Request) {
	e, ok := h.activeCheckout(w, r)
	if !ok {
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := e.Addresses.SetGuestEmail(req.Email); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.checkoutView(e))
}

func (h *Handlers) SetBilling(w http.ResponseWriter, r *http.Request) {
	e, ok := h.activeCheckout(w, r)
	if !ok {
		return
	}

	var req struct {
		SameAsShipping bool             `json:"same_as_shipping"`
		AddressID      string           `json:"address_id"`
		Address        *address.Address `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var err error
	switch {
	case req.SameAsShipping:
		e.Checkout.SetBillingSameAsShipping()
	case req.AddressID != "":
		err = e.Checkout.SelectBillingAddress(req.AddressID)
	case req.Address != nil:
		err = e.Checkout.SetGuestBillingAddress(*req.Address)
	default:
		respondError(w, http.StatusBadRequest, "billing selection required")
		return
	}
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.checkoutView(e))
}

// ============================================================
// Payment outcomes
// ============================================================

func (h *Handlers) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID           string `json:"order_id"`
		ConfirmationToken string `json:"confirmation_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" {
		respondError(w, http.StatusBadRequest, "order_id required")
		return
	}

	if err := h.sessions.CompleteCheckout(r.Context(), req.OrderID, req.ConfirmationToken); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"step": string(checkout.StepSuccess)})
}

func (h *Handlers) FailPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"order_id"`
		Reason  string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.sessions.Bridge().Fail(req.OrderID, req.Reason); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"step": string(checkout.StepPayment)})
}

// ============================================================
// Error mapping and helpers
// ============================================================

// respondDomainError translates domain errors into the HTTP error taxonomy:
// field-scoped validation as 422, state conflicts as 409, unknown resources
// as 404, backend rejections with their own status, transport as 502.
func (h *Handlers) respondDomainError(w http.ResponseWriter, err error) {
	var fieldErrs address.FieldErrors
	if errors.As(err, &fieldErrs) {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":        "validation failed",
			"field_errors": fieldErrs,
		})
		return
	}

	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		respondJSON(w, http.StatusConflict, map[string]string{
			"error":    err.Error(),
			"redirect": "/cart",
		})
	case errors.Is(err, checkout.ErrInvalidTransition),
		errors.Is(err, checkout.ErrSessionTerminal),
		errors.Is(err, checkout.ErrSessionSuperseded),
		errors.Is(err, checkout.ErrNotOnPaymentStep),
		errors.Is(err, session.ErrNoCheckout):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, checkout.ErrUnknownOrder),
		errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, address.ErrUnknownAddress):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, cart.ErrInvalidProduct),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, promo.ErrEmptyCode),
		errors.Is(err, address.ErrGuestOperation),
		errors.Is(err, address.ErrNotGuest),
		errors.Is(err, address.ErrNoAddress):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, promo.ErrSuperseded):
		respondError(w, http.StatusConflict, err.Error())
	default:
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.IsRejection() {
			respondError(w, apiErr.StatusCode, apiErr.Message)
			return
		}
		h.log.WithError(err).Error("request failed")
		respondError(w, http.StatusBadGateway, "upstream request failed")
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}
