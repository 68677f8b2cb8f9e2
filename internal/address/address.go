package address

import (
	"regexp"
	"sort"
	"strings"

	"github.com/example/checkout-engine/internal/backend"
)

// Address is the normalized shipping/billing address produced by the
// resolver regardless of buyer identity.
type Address struct {
	ID            string `json:"id,omitempty"`
	FullName      string `json:"full_name"`
	StreetAddress string `json:"street_address"`
	Apt           string `json:"apt,omitempty"`
	City          string `json:"city"`
	StateProvince string `json:"state_province"`
	PostalCode    string `json:"postal_code"`
	Country       string `json:"country"`
	PhoneNumber   string `json:"phone_number"`
	IsDefault     bool   `json:"is_default"`
}

var (
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]+$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// FieldErrors maps field names to validation messages so callers can render
// inline errors. It satisfies the error interface.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "invalid fields: " + strings.Join(fields, ", ")
}

// Validate checks required fields and formats, reporting one message per
// offending field.
func (a Address) Validate() FieldErrors {
	errs := FieldErrors{}

	required := map[string]string{
		"full_name":      a.FullName,
		"street_address": a.StreetAddress,
		"city":           a.City,
		"state_province": a.StateProvince,
		"postal_code":    a.PostalCode,
		"country":        a.Country,
		"phone_number":   a.PhoneNumber,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			errs[field] = "This field is required"
		}
	}

	if _, ok := errs["phone_number"]; !ok && !phonePattern.MatchString(a.PhoneNumber) {
		errs["phone_number"] = "Enter a valid phone number"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateEmail checks a guest contact email.
func ValidateEmail(email string) FieldErrors {
	email = strings.TrimSpace(email)
	if email == "" {
		return FieldErrors{"email": "Email is required"}
	}
	if !emailPattern.MatchString(email) {
		return FieldErrors{"email": "Enter a valid email address"}
	}
	return nil
}

func toWire(a Address) backend.Address {
	return backend.Address(a)
}

func fromWire(a backend.Address) Address {
	return Address(a)
}
