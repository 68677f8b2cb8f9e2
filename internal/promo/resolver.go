package promo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/example/checkout-engine/internal/backend"
	"github.com/example/checkout-engine/internal/money"
)

var (
	ErrEmptyCode  = errors.New("promo code is required")
	ErrSuperseded = errors.New("promo validation superseded")
)

type Status string

const (
	StatusNone     Status = "NONE"
	StatusApplied  Status = "APPLIED"
	StatusRejected Status = "REJECTED"
)

// State is the promo outcome for the current checkout attempt. A discount is
// only valid while AppliedAgainstSubtotal matches the live cart subtotal;
// a diverged subtotal makes the discount stale.
type State struct {
	Code                   string      `json:"code,omitempty"`
	Discount               money.Money `json:"discount"`
	AppliedAgainstSubtotal money.Money `json:"applied_against_subtotal"`
	Status                 Status      `json:"status"`
	Reason                 string      `json:"reason,omitempty"`
}

// Resolver validates promo codes against the remote authority. One resolver
// per engine; not persisted across sessions.
type Resolver struct {
	mu        sync.Mutex
	validator backend.PromoValidator
	state     State
	seq       uint64
	log       *logrus.Entry
}

func NewResolver(validator backend.PromoValidator, logger *logrus.Logger) *Resolver {
	return &Resolver{
		validator: validator,
		state:     State{Status: StatusNone},
		log:       logger.WithField("component", "promo"),
	}
}

// Apply validates the code against the given subtotal. The code is trimmed
// and uppercased before submission; an empty code never reaches the network.
// A rejection is data (State.Status == StatusRejected), not an error; only
// transport failures return an error, leaving the state untouched. If the
// promo was removed or re-applied while the validation round-trip was in
// flight, the stale response is discarded and ErrSuperseded is returned.
func (r *Resolver) Apply(ctx context.Context, code string, subtotal money.Money) (State, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return r.State(), ErrEmptyCode
	}

	r.mu.Lock()
	r.seq++
	token := r.seq
	r.mu.Unlock()

	discount, err := r.validator.ValidatePromo(ctx, code, subtotal)

	r.mu.Lock()
	defer r.mu.Unlock()

	if token != r.seq {
		r.log.WithField("code", code).Debug("discarding stale promo validation response")
		return r.state, ErrSuperseded
	}

	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.IsRejection() {
			r.state = State{
				Code:   code,
				Status: StatusRejected,
				Reason: rejectionReason(apiErr),
			}
			return r.state, nil
		}
		// transport failure: no state mutation, surfaced for retry
		return r.state, fmt.Errorf("promo validation failed: %w", err)
	}

	r.state = State{
		Code:                   code,
		Discount:               discount,
		AppliedAgainstSubtotal: subtotal,
		Status:                 StatusApplied,
	}
	return r.state, nil
}

// Remove resets the promo to NONE. No remote call; any in-flight validation
// is superseded.
func (r *Resolver) Remove() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.state = State{Status: StatusNone}
}

func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// EffectiveDiscount returns the discount that may be used in a final total
// for the given live subtotal. A discount bound to a different subtotal is
// stale and counts as zero until revalidated.
func (r *Resolver) EffectiveDiscount(subtotal money.Money) money.Money {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Status != StatusApplied {
		return money.Zero()
	}
	if !r.state.AppliedAgainstSubtotal.Equal(subtotal) {
		return money.Zero()
	}
	return r.state.Discount
}

// IsStale reports whether an applied discount no longer matches the subtotal.
func (r *Resolver) IsStale(subtotal money.Money) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Status == StatusApplied && !r.state.AppliedAgainstSubtotal.Equal(subtotal)
}

// Revalidate re-submits the applied code against the current subtotal.
// No-op when no code is applied.
func (r *Resolver) Revalidate(ctx context.Context, subtotal money.Money) (State, error) {
	r.mu.Lock()
	if r.state.Status != StatusApplied {
		state := r.state
		r.mu.Unlock()
		return state, nil
	}
	code := r.state.Code
	r.mu.Unlock()

	return r.Apply(ctx, code, subtotal)
}

func rejectionReason(err *backend.APIError) string {
	if err.Message != "" {
		return err.Message
	}
	return "This promo code could not be applied"
}
