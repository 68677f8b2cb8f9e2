package checkout

// identityKind discriminates the BuyerIdentity union.
type identityKind int

const (
	kindAuthenticated identityKind = iota
	kindGuest
)

// BuyerIdentity is a tagged union: Authenticated(userID) | Guest(email).
// The two order-creation paths branch exhaustively on it, so optional fields
// can never be silently absent on the wrong branch.
type BuyerIdentity struct {
	kind   identityKind
	userID string
	email  string
}

func AuthenticatedBuyer(userID string) BuyerIdentity {
	return BuyerIdentity{kind: kindAuthenticated, userID: userID}
}

// GuestBuyer builds a guest identity. The email may still be empty at session
// start; it is validated before the ADDRESS -> PAYMENT transition.
func GuestBuyer(email string) BuyerIdentity {
	return BuyerIdentity{kind: kindGuest, email: email}
}

func (b BuyerIdentity) IsGuest() bool {
	return b.kind == kindGuest
}

// UserID is the account id; empty for guests.
func (b BuyerIdentity) UserID() string {
	return b.userID
}

// Email is the guest contact email; empty for authenticated buyers.
func (b BuyerIdentity) Email() string {
	return b.email
}
