package cart

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/example/checkout-engine/internal/backend"
	"github.com/example/checkout-engine/internal/money"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidProduct  = errors.New("product_id is required")
	ErrLineNotFound    = errors.New("cart line not found")
)

// LineItem is one product entry in the cart. Quantity is always >= 1;
// removing the last unit removes the line.
type LineItem struct {
	ProductID string      `json:"product_id"`
	Title     string      `json:"title"`
	UnitPrice money.Money `json:"unit_price"`
	Quantity  int         `json:"quantity"`
	ImageRef  string      `json:"image_ref,omitempty"`
}

// SyncState tags the outcome of a mutation's remote synchronization.
type SyncState string

const (
	// SyncLocal: the local mutation stands but the remote cart was not
	// (or not yet) updated. Never surfaced to the buyer as an error.
	SyncLocal SyncState = "local"
	// SyncReconciled: local and remote agree for this mutation.
	SyncReconciled SyncState = "reconciled"
)

// Persister stores the session cart snapshot across page reloads.
type Persister interface {
	Load(ctx context.Context, sessionID string) ([]LineItem, error)
	Save(ctx context.Context, sessionID string, lines []LineItem) error
	Clear(ctx context.Context, sessionID string) error
}

// Store is the single source of truth for the session's cart contents.
// Mutations are optimistic-first: local state updates immediately, the remote
// cart service is synced best-effort, and sync failures are logged rather
// than rolled back. Per-line sequence tokens keep last-local-write-wins:
// a remote acknowledgement that raced a newer local write is reported as
// SyncLocal instead of SyncReconciled.
type Store struct {
	mu        sync.RWMutex
	sessionID string
	lines     []LineItem
	seq       map[string]uint64
	remote    backend.CartSyncer
	persister Persister
	log       *logrus.Entry
}

func NewStore(sessionID string, remote backend.CartSyncer, persister Persister, logger *logrus.Logger) *Store {
	return &Store{
		sessionID: sessionID,
		seq:       make(map[string]uint64),
		remote:    remote,
		persister: persister,
		log: logger.WithFields(logrus.Fields{
			"component": "cart",
			"session":   sessionID,
		}),
	}
}

// Rehydrate restores the cart from session persistence. Persisted-local-wins:
// the backend cart is a write-only sync target (see DESIGN.md), so the
// persisted snapshot is authoritative on load. A load failure starts the
// session with an empty cart.
func (s *Store) Rehydrate(ctx context.Context) {
	lines, err := s.persister.Load(ctx, s.sessionID)
	if err != nil {
		s.log.WithError(err).Warn("failed to rehydrate cart, starting empty")
		return
	}
	s.mu.Lock()
	s.lines = lines
	s.mu.Unlock()
}

// AddItem merges the line into the cart (same product id increments quantity)
// and syncs the addition to the remote cart service.
func (s *Store) AddItem(ctx context.Context, line LineItem) (SyncState, error) {
	if line.ProductID == "" {
		return SyncLocal, ErrInvalidProduct
	}
	if line.Quantity < 1 {
		return SyncLocal, ErrInvalidQuantity
	}

	s.mu.Lock()
	merged := false
	for i := range s.lines {
		if s.lines[i].ProductID == line.ProductID {
			s.lines[i].Quantity += line.Quantity
			s.lines[i].UnitPrice = line.UnitPrice
			merged = true
			break
		}
	}
	if !merged {
		s.lines = append(s.lines, line)
	}
	s.seq[line.ProductID]++
	token := s.seq[line.ProductID]
	s.mu.Unlock()

	s.persist(ctx)

	if err := s.remote.AddCartItem(ctx, backend.CartItem(line)); err != nil {
		s.log.WithError(err).WithField("product_id", line.ProductID).
			Warn("remote cart add failed, keeping local state")
		return SyncLocal, nil
	}
	return s.ackState(line.ProductID, token), nil
}

// UpdateQuantity replaces the line's quantity. Quantities below 1 are a
// no-op; callers should route to RemoveItem instead.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) (SyncState, error) {
	if quantity < 1 {
		s.log.WithFields(logrus.Fields{
			"product_id": productID,
			"quantity":   quantity,
		}).Debug("ignoring quantity below floor")
		return SyncLocal, nil
	}

	s.mu.Lock()
	found := false
	for i := range s.lines {
		if s.lines[i].ProductID == productID {
			s.lines[i].Quantity = quantity
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return SyncLocal, ErrLineNotFound
	}
	s.seq[productID]++
	token := s.seq[productID]
	s.mu.Unlock()

	s.persist(ctx)

	if err := s.remote.UpdateCartItem(ctx, productID, quantity); err != nil {
		s.log.WithError(err).WithField("product_id", productID).
			Warn("remote cart update failed, keeping local state")
		return SyncLocal, nil
	}
	return s.ackState(productID, token), nil
}

// RemoveItem removes the line. Removing an absent product id is a no-op.
func (s *Store) RemoveItem(ctx context.Context, productID string) (SyncState, error) {
	s.mu.Lock()
	found := false
	for i := range s.lines {
		if s.lines[i].ProductID == productID {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return SyncReconciled, nil
	}
	s.seq[productID]++
	token := s.seq[productID]
	s.mu.Unlock()

	s.persist(ctx)

	if err := s.remote.RemoveCartItem(ctx, productID); err != nil {
		s.log.WithError(err).WithField("product_id", productID).
			Warn("remote cart delete failed, item removed locally")
		return SyncLocal, nil
	}
	return s.ackState(productID, token), nil
}

// Clear empties the cart. Called exactly once, on confirmed payment; the
// backend closes out its own cart as part of order completion.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.lines = nil
	s.seq = make(map[string]uint64)
	s.mu.Unlock()

	if err := s.persister.Clear(ctx, s.sessionID); err != nil {
		s.log.WithError(err).Warn("failed to clear persisted cart")
	}
}

// Lines returns a copy of the cart lines in insertion order.
func (s *Store) Lines() []LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LineItem, len(s.lines))
	copy(out, s.lines)
	return out
}

// ItemCount is the sum of all line quantities.
func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, line := range s.lines {
		count += line.Quantity
	}
	return count
}

// Subtotal is the sum of unit price x quantity across all lines.
func (s *Store) Subtotal() money.Money {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subtotal := money.Zero()
	for _, line := range s.lines {
		subtotal = subtotal.Add(line.UnitPrice.MulInt(line.Quantity))
	}
	return subtotal
}

func (s *Store) IsEmpty() bool {
	return s.ItemCount() == 0
}

// ackState resolves a remote acknowledgement against the line's current
// sequence token: an ack for a superseded write does not count as reconciled.
func (s *Store) ackState(productID string, token uint64) SyncState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.seq[productID] != token {
		return SyncLocal
	}
	return SyncReconciled
}

func (s *Store) persist(ctx context.Context) {
	if err := s.persister.Save(ctx, s.sessionID, s.Lines()); err != nil {
		s.log.WithError(err).Warn("failed to persist cart")
	}
}
