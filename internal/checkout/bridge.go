package checkout

import (
	"context"
	"errors"
	"sync"
)

var ErrUnknownOrder = errors.New("no checkout session owns this order")

// Bridge routes provider payment outcomes, which arrive keyed by order id,
// back to the session that created the order.
type Bridge struct {
	mu       sync.RWMutex
	sessions map[string]*Session // order id -> owning session
}

func NewBridge() *Bridge {
	return &Bridge{sessions: make(map[string]*Session)}
}

// Register claims an order id for a session. Called once the session has an
// order, so a later confirmation can find its way back.
func (b *Bridge) Register(s *Session) {
	orderID := s.OrderID()
	if orderID == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[orderID] = s
}

// Confirm finalizes the owning session and releases the order id. The
// registration is released only once the session accepts the confirmation: a
// confirmation refused mid-flow (buyer stepped back to ADDRESS) must not
// orphan the order, since re-entering PAYMENT reuses the same order id.
func (b *Bridge) Confirm(ctx context.Context, orderID, confirmationToken string) error {
	b.mu.RLock()
	s, ok := b.sessions[orderID]
	b.mu.RUnlock()

	if !ok {
		return ErrUnknownOrder
	}
	if err := s.ConfirmPayment(ctx, confirmationToken); err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.sessions, orderID)
	b.mu.Unlock()
	return nil
}

// Fail reports a provider failure to the owning session. The registration is
// kept: the buyer may retry payment against the same order.
func (b *Bridge) Fail(orderID, reason string) error {
	b.mu.RLock()
	s, ok := b.sessions[orderID]
	b.mu.RUnlock()

	if !ok {
		return ErrUnknownOrder
	}
	return s.FailPayment(reason)
}

// Release drops a session's registration, used when a checkout is cancelled.
func (b *Bridge) Release(orderID string) {
	if orderID == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, orderID)
}
