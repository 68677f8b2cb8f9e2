package session

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/example/checkout-engine/internal/address"
	"github.com/example/checkout-engine/internal/backend"
	"github.com/example/checkout-engine/internal/cart"
	"github.com/example/checkout-engine/internal/checkout"
	"github.com/example/checkout-engine/internal/events"
	"github.com/example/checkout-engine/internal/promo"
)

var ErrNoCheckout = errors.New("no active checkout for session")

// Backend is the full remote surface an engine needs.
type Backend interface {
	backend.CartSyncer
	backend.PromoValidator
	backend.AddressDirectory
	backend.OrderService
}

// Engine bundles the per-buyer-session state containers. Cart and promo
// exist from first touch; the address resolver and checkout session only
// once a checkout begins.
type Engine struct {
	Cart      *cart.Store
	Promo     *promo.Resolver
	Addresses *address.Resolver
	Checkout  *checkout.Session
}

// Config carries the shared collaborators every engine is built from.
type Config struct {
	Backend    Backend
	Persister  cart.Persister
	Events     events.Publisher
	Logger     *logrus.Logger
	SuccessURL string
	CancelURL  string
}

// Manager owns one Engine per buyer session and the bridge that routes
// payment outcomes back to checkout sessions.
type Manager struct {
	mu      sync.Mutex
	engines map[string]*Engine

	cfg    Config
	bridge *checkout.Bridge
	log    *logrus.Entry
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		engines: make(map[string]*Engine),
		cfg:     cfg,
		bridge:  checkout.NewBridge(),
		log:     cfg.Logger.WithField("component", "session"),
	}
}

// Engine returns the state for a buyer session, creating and rehydrating it
// on first access.
func (m *Manager) Engine(ctx context.Context, sessionID string) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.engines[sessionID]; ok {
		return e
	}

	store := cart.NewStore(sessionID, m.cfg.Backend, m.cfg.Persister, m.cfg.Logger)
	store.Rehydrate(ctx)

	e := &Engine{
		Cart:  store,
		Promo: promo.NewResolver(m.cfg.Backend, m.cfg.Logger),
	}
	m.engines[sessionID] = e
	m.log.WithField("session", sessionID).Debug("created session engine")
	return e
}

// Bridge exposes the payment outcome router.
func (m *Manager) Bridge() *checkout.Bridge {
	return m.bridge
}

// BeginCheckout starts (or resumes) a checkout for the session. An existing
// session still in flight is returned as-is so a page reload does not
// restart the flow; a terminal one is replaced.
func (m *Manager) BeginCheckout(ctx context.Context, sessionID string, buyer checkout.BuyerIdentity) (*checkout.Session, error) {
	e := m.Engine(ctx, sessionID)

	m.mu.Lock()
	if existing := e.Checkout; existing != nil {
		step := existing.Step()
		if step != checkout.StepSuccess && step != checkout.StepCancelled {
			m.mu.Unlock()
			return existing, nil
		}
	}
	m.mu.Unlock()

	resolver, err := m.buildAddressResolver(ctx, buyer)
	if err != nil {
		return nil, err
	}

	s, err := checkout.NewSession(checkout.Config{
		Cart:       e.Cart,
		Promo:      e.Promo,
		Addresses:  resolver,
		Orders:     m.cfg.Backend,
		Events:     m.cfg.Events,
		Logger:     m.cfg.Logger,
		Buyer:      buyer,
		SuccessURL: m.cfg.SuccessURL,
		CancelURL:  m.cfg.CancelURL,
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	e.Addresses = resolver
	e.Checkout = s
	m.mu.Unlock()
	return s, nil
}

func (m *Manager) buildAddressResolver(ctx context.Context, buyer checkout.BuyerIdentity) (*address.Resolver, error) {
	if buyer.IsGuest() {
		resolver := address.NewGuestResolver(m.cfg.Logger)
		if email := buyer.Email(); email != "" {
			if err := resolver.SetGuestEmail(email); err != nil {
				return nil, err
			}
		}
		return resolver, nil
	}

	resolver := address.NewAuthenticatedResolver(m.cfg.Backend, buyer.UserID(), m.cfg.Logger)
	if err := resolver.Refresh(ctx); err != nil {
		return nil, err
	}
	return resolver, nil
}

// CompleteCheckout routes a provider confirmation to the owning checkout
// session. The session clears its cart, so the next visit starts clean.
func (m *Manager) CompleteCheckout(ctx context.Context, orderID, confirmationToken string) error {
	return m.bridge.Confirm(ctx, orderID, confirmationToken)
}

// AbandonCheckout cancels a session's in-flight checkout if one exists.
func (m *Manager) AbandonCheckout(sessionID string) error {
	m.mu.Lock()
	e, ok := m.engines[sessionID]
	var s *checkout.Session
	if ok {
		s = e.Checkout
	}
	m.mu.Unlock()

	if s == nil {
		return ErrNoCheckout
	}
	if err := s.Cancel(); err != nil {
		return err
	}
	m.bridge.Release(s.OrderID())
	return nil
}

// Drop removes a session engine entirely, releasing any order registration.
func (m *Manager) Drop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engines[sessionID]
	if !ok {
		return
	}
	if e.Checkout != nil {
		m.bridge.Release(e.Checkout.OrderID())
	}
	delete(m.engines, sessionID)
}
