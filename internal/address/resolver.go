package address

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/example/checkout-engine/internal/backend"
)

var (
	ErrNoAddress      = errors.New("no shipping address resolved")
	ErrUnknownAddress = errors.New("unknown address id")
	ErrGuestOperation = errors.New("operation not available for guest buyers")
	ErrNotGuest       = errors.New("guest email applies only to guest buyers")
)

// Resolver unifies the authenticated and guest address flows behind one
// output contract: Resolved() yields a single normalized address.
//
// Authenticated buyers select from the account-owned address collection;
// guests hold exactly zero-or-one address client-side, transmitted inline at
// order creation and never persisted as a standalone entity.
type Resolver struct {
	mu sync.Mutex

	// authenticated mode
	directory  backend.AddressDirectory
	userID     string
	addresses  []Address
	selectedID string

	// guest mode
	guest      bool
	guestAddr  *Address
	guestEmail string

	log *logrus.Entry
}

func NewAuthenticatedResolver(directory backend.AddressDirectory, userID string, logger *logrus.Logger) *Resolver {
	return &Resolver{
		directory: directory,
		userID:    userID,
		log: logger.WithFields(logrus.Fields{
			"component": "address",
			"user":      userID,
		}),
	}
}

func NewGuestResolver(logger *logrus.Logger) *Resolver {
	return &Resolver{
		guest: true,
		log:   logger.WithField("component", "address"),
	}
}

func (r *Resolver) IsGuest() bool {
	return r.guest
}

// Refresh fetches the account's addresses and default-selects the marked
// default (or the first returned). Keeps an existing valid selection.
// No-op for guests.
func (r *Resolver) Refresh(ctx context.Context) error {
	if r.guest {
		return nil
	}

	addresses, err := r.directory.ListAddresses(ctx, r.userID)
	if err != nil {
		return fmt.Errorf("list addresses: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.addresses = make([]Address, len(addresses))
	for i, a := range addresses {
		r.addresses[i] = fromWire(a)
	}
	r.ensureSelectionLocked()
	return nil
}

// ensureSelectionLocked keeps selectedID pointing at an existing address,
// preferring the current selection, then the default, then the first.
func (r *Resolver) ensureSelectionLocked() {
	if r.selectedID != "" {
		for _, a := range r.addresses {
			if a.ID == r.selectedID {
				return
			}
		}
		r.selectedID = ""
	}
	for _, a := range r.addresses {
		if a.IsDefault {
			r.selectedID = a.ID
			return
		}
	}
	if len(r.addresses) > 0 {
		r.selectedID = r.addresses[0].ID
	}
}

// Addresses returns the account's addresses (empty for guests, whose single
// address is reachable via Resolved).
func (r *Resolver) Addresses() []Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Address, len(r.addresses))
	copy(out, r.addresses)
	return out
}

// SelectAddress moves the selection pointer. No remote call.
func (r *Resolver) SelectAddress(id string) error {
	if r.guest {
		return ErrGuestOperation
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.addresses {
		if a.ID == id {
			r.selectedID = id
			return nil
		}
	}
	return ErrUnknownAddress
}

// SaveAddress validates and stores an address. Authenticated: persists via
// the account collection, re-fetches the list and selects the new entry; a
// remote failure leaves no partial address selected. Guest: stores the
// address client-side, overwriting any previous one (edit in place).
func (r *Resolver) SaveAddress(ctx context.Context, input Address) (Address, error) {
	if errs := input.Validate(); errs != nil {
		return Address{}, errs
	}

	if r.guest {
		r.mu.Lock()
		input.ID = ""
		r.guestAddr = &input
		r.mu.Unlock()
		return input, nil
	}

	created, err := r.directory.CreateAddress(ctx, toWire(input))
	if err != nil {
		return Address{}, fmt.Errorf("save address: %w", err)
	}

	if err := r.Refresh(ctx); err != nil {
		// the address was created; selection falls back to default-or-first
		r.log.WithError(err).Warn("refresh after address save failed")
		return fromWire(created), nil
	}

	r.mu.Lock()
	r.selectedID = created.ID
	r.mu.Unlock()
	return fromWire(created), nil
}

// UpdateAddress edits a persisted address (authenticated only).
func (r *Resolver) UpdateAddress(ctx context.Context, id string, input Address) (Address, error) {
	if r.guest {
		return Address{}, ErrGuestOperation
	}
	if errs := input.Validate(); errs != nil {
		return Address{}, errs
	}

	updated, err := r.directory.UpdateAddress(ctx, id, toWire(input))
	if err != nil {
		return Address{}, fmt.Errorf("update address: %w", err)
	}
	if err := r.Refresh(ctx); err != nil {
		r.log.WithError(err).Warn("refresh after address update failed")
	}
	return fromWire(updated), nil
}

// DeleteAddress removes a persisted address (authenticated only). Deleting
// the selected address falls the selection back to default-or-first.
func (r *Resolver) DeleteAddress(ctx context.Context, id string) error {
	if r.guest {
		return ErrGuestOperation
	}

	if err := r.directory.DeleteAddress(ctx, id); err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	return r.Refresh(ctx)
}

// SetGuestEmail validates and stores the guest contact email.
func (r *Resolver) SetGuestEmail(email string) error {
	if !r.guest {
		return ErrNotGuest
	}
	if errs := ValidateEmail(email); errs != nil {
		return errs
	}

	r.mu.Lock()
	r.guestEmail = strings.TrimSpace(email)
	r.mu.Unlock()
	return nil
}

func (r *Resolver) GuestEmail() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.guestEmail
}

// Resolved returns the single shipping/billing address for the buyer, or
// ErrNoAddress when none is available yet.
func (r *Resolver) Resolved() (Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.guest {
		if r.guestAddr == nil {
			return Address{}, ErrNoAddress
		}
		return *r.guestAddr, nil
	}

	for _, a := range r.addresses {
		if a.ID == r.selectedID {
			return a, nil
		}
	}
	return Address{}, ErrNoAddress
}
