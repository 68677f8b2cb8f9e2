package address

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/checkout-engine/internal/backend"
	"github.com/example/checkout-engine/internal/backend/mocks"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func validInput() Address {
	return Address{
		FullName:      "Jordan Doe",
		StreetAddress: "1 Main St",
		City:          "Springfield",
		StateProvince: "IL",
		PostalCode:    "62701",
		Country:       "US",
		PhoneNumber:   "+1 (555) 123-4567",
	}
}

// ============================================
// Validation Tests
// ============================================

func TestAddress_Validate_AllFieldsPresent(t *testing.T) {
	assert.Nil(t, validInput().Validate())
}

func TestAddress_Validate_MissingFieldsAreFieldScoped(t *testing.T) {
	errs := Address{PhoneNumber: "+1 555 000"}.Validate()
	require.NotNil(t, errs)

	for _, field := range []string{"full_name", "street_address", "city", "state_province", "postal_code", "country"} {
		assert.Contains(t, errs, field, field)
	}
	assert.NotContains(t, errs, "phone_number")
}

func TestAddress_Validate_Phone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		valid bool
	}{
		{"international with punctuation", "+1 (555) 123-4567", true},
		{"bare digits", "5551234567", true},
		{"letters rejected", "call me maybe", false},
		{"email rejected", "foo@bar.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			input.PhoneNumber = tt.phone
			errs := input.Validate()
			if tt.valid {
				assert.Nil(t, errs)
			} else {
				assert.Contains(t, errs, "phone_number")
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	assert.Nil(t, ValidateEmail("guest@example.com"))
	assert.Contains(t, ValidateEmail(""), "email")
	assert.Contains(t, ValidateEmail("not-an-email"), "email")
	assert.Contains(t, ValidateEmail("foo@bar"), "email")
}

func TestFieldErrors_Error(t *testing.T) {
	errs := FieldErrors{"email": "Email is required", "city": "This field is required"}
	assert.Equal(t, "invalid fields: city, email", errs.Error())
}

// ============================================
// Authenticated Flow Tests
// ============================================

func TestAuthenticated_Refresh_SelectsDefault(t *testing.T) {
	directory := mocks.NewMockBackend()
	directory.Addresses = []backend.Address{
		{ID: "addr-1", FullName: "A"},
		{ID: "addr-2", FullName: "B", IsDefault: true},
	}
	resolver := NewAuthenticatedResolver(directory, "user-1", testLogger())

	require.NoError(t, resolver.Refresh(context.Background()))

	resolved, err := resolver.Resolved()
	require.NoError(t, err)
	assert.Equal(t, "addr-2", resolved.ID)
}

func TestAuthenticated_Refresh_FallsBackToFirst(t *testing.T) {
	directory := mocks.NewMockBackend()
	directory.Addresses = []backend.Address{
		{ID: "addr-1", FullName: "A"},
		{ID: "addr-2", FullName: "B"},
	}
	resolver := NewAuthenticatedResolver(directory, "user-1", testLogger())

	require.NoError(t, resolver.Refresh(context.Background()))

	resolved, err := resolver.Resolved()
	require.NoError(t, err)
	assert.Equal(t, "addr-1", resolved.ID)
}

func TestAuthenticated_EmptyList_NoResolvedAddress(t *testing.T) {
	resolver := NewAuthenticatedResolver(mocks.NewMockBackend(), "user-1", testLogger())

	require.NoError(t, resolver.Refresh(context.Background()))

	_, err := resolver.Resolved()
	assert.ErrorIs(t, err, ErrNoAddress)
	assert.Empty(t, resolver.Addresses())
}

func TestAuthenticated_SelectAddress(t *testing.T) {
	directory := mocks.NewMockBackend()
	directory.Addresses = []backend.Address{
		{ID: "addr-1", IsDefault: true},
		{ID: "addr-2"},
	}
	resolver := NewAuthenticatedResolver(directory, "user-1", testLogger())
	require.NoError(t, resolver.Refresh(context.Background()))

	require.NoError(t, resolver.SelectAddress("addr-2"))
	resolved, err := resolver.Resolved()
	require.NoError(t, err)
	assert.Equal(t, "addr-2", resolved.ID)

	assert.ErrorIs(t, resolver.SelectAddress("addr-nope"), ErrUnknownAddress)
}

func TestAuthenticated_SaveAddress_PersistsAndSelects(t *testing.T) {
	directory := mocks.NewMockBackend()
	resolver := NewAuthenticatedResolver(directory, "user-1", testLogger())
	require.NoError(t, resolver.Refresh(context.Background()))

	saved, err := resolver.SaveAddress(context.Background(), validInput())
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	require.Len(t, directory.CreatedAddresses, 1)

	resolved, err := resolver.Resolved()
	require.NoError(t, err)
	assert.Equal(t, saved.ID, resolved.ID)
}

func TestAuthenticated_SaveAddress_RemoteFailureLeavesNoSelection(t *testing.T) {
	directory := mocks.NewMockBackend()
	directory.CreateAddressErr = assert.AnError
	resolver := NewAuthenticatedResolver(directory, "user-1", testLogger())
	require.NoError(t, resolver.Refresh(context.Background()))

	_, err := resolver.SaveAddress(context.Background(), validInput())
	require.Error(t, err)

	_, err = resolver.Resolved()
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestAuthenticated_SaveAddress_ValidationBlocksRemoteCall(t *testing.T) {
	directory := mocks.NewMockBackend()
	resolver := NewAuthenticatedResolver(directory, "user-1", testLogger())

	_, err := resolver.SaveAddress(context.Background(), Address{})
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Empty(t, directory.CreatedAddresses)
}

func TestAuthenticated_DeleteSelected_FallsBackToDefault(t *testing.T) {
	directory := mocks.NewMockBackend()
	directory.Addresses = []backend.Address{
		{ID: "addr-1", IsDefault: true},
		{ID: "addr-2"},
	}
	resolver := NewAuthenticatedResolver(directory, "user-1", testLogger())
	require.NoError(t, resolver.Refresh(context.Background()))
	require.NoError(t, resolver.SelectAddress("addr-2"))

	require.NoError(t, resolver.DeleteAddress(context.Background(), "addr-2"))

	resolved, err := resolver.Resolved()
	require.NoError(t, err)
	assert.Equal(t, "addr-1", resolved.ID)
}

// ============================================
// Guest Flow Tests
// ============================================

func TestGuest_SaveAddress_ClientSideOnly(t *testing.T) {
	resolver := NewGuestResolver(testLogger())

	saved, err := resolver.SaveAddress(context.Background(), validInput())
	require.NoError(t, err)
	assert.Empty(t, saved.ID)

	resolved, err := resolver.Resolved()
	require.NoError(t, err)
	assert.Equal(t, "Jordan Doe", resolved.FullName)
}

func TestGuest_SaveAddress_EditInPlace(t *testing.T) {
	resolver := NewGuestResolver(testLogger())

	_, err := resolver.SaveAddress(context.Background(), validInput())
	require.NoError(t, err)

	edited := validInput()
	edited.City = "Shelbyville"
	_, err = resolver.SaveAddress(context.Background(), edited)
	require.NoError(t, err)

	resolved, err := resolver.Resolved()
	require.NoError(t, err)
	assert.Equal(t, "Shelbyville", resolved.City)
}

func TestGuest_Email(t *testing.T) {
	resolver := NewGuestResolver(testLogger())

	err := resolver.SetGuestEmail("nope")
	var fieldErrs FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs, "email")

	require.NoError(t, resolver.SetGuestEmail("guest@example.com"))
	assert.Equal(t, "guest@example.com", resolver.GuestEmail())
}

func TestGuest_AccountOperationsRejected(t *testing.T) {
	resolver := NewGuestResolver(testLogger())

	assert.ErrorIs(t, resolver.SelectAddress("addr-1"), ErrGuestOperation)
	assert.ErrorIs(t, resolver.DeleteAddress(context.Background(), "addr-1"), ErrGuestOperation)
	_, err := resolver.UpdateAddress(context.Background(), "addr-1", validInput())
	assert.ErrorIs(t, err, ErrGuestOperation)
}

func TestAuthenticated_SetGuestEmailRejected(t *testing.T) {
	resolver := NewAuthenticatedResolver(mocks.NewMockBackend(), "user-1", testLogger())
	assert.ErrorIs(t, resolver.SetGuestEmail("a@b.co"), ErrNotGuest)
}
