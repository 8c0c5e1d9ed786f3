package customer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignUpValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SignUpInput)
		field  string
	}{
		{"missing first name", func(in *SignUpInput) { in.FirstName = " " }, "firstName"},
		{"missing last name", func(in *SignUpInput) { in.LastName = "" }, "lastName"},
		{"missing email", func(in *SignUpInput) { in.Email = "" }, "email"},
		{"malformed email", func(in *SignUpInput) { in.Email = "ada.example.com" }, "email"},
		{"display name email", func(in *SignUpInput) { in.Email = "Ada <ada@example.com>" }, "email"},
		{"short password", func(in *SignUpInput) { in.Password = "12345" }, "password"},
		{"long password", func(in *SignUpInput) { in.Password = "1234567890123" }, "password"},
		{"short phone", func(in *SignUpInput) { in.Phone = "987654321" }, "phone"},
		{"non-digit phone", func(in *SignUpInput) { in.Phone = "98765432ab" }, "phone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validSignUp()
			tt.mutate(&in)

			var verr *ValidationError
			require.ErrorAs(t, in.Validate(), &verr)
			assert.Equal(t, tt.field, verr.First().Field)
		})
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validSignUp().Validate())
	})

	t.Run("reports every failure in field order", func(t *testing.T) {
		var verr *ValidationError
		require.ErrorAs(t, SignUpInput{}.Validate(), &verr)
		assert.Len(t, verr.Fields, 5)
		assert.Equal(t, "firstName", verr.Fields[0].Field)
		assert.Contains(t, verr.Error(), "phone: phone is required")
	})
}

func TestSignInValidation(t *testing.T) {
	assert.NoError(t, SignInInput{Username: "a@b.co", Password: "x"}.Validate())

	var verr *ValidationError
	require.ErrorAs(t, SignInInput{Username: "a@b.co"}.Validate(), &verr)
	assert.Equal(t, FieldError{Field: "password", Message: "password is required"}, verr.First())
}

func TestAddressValidation(t *testing.T) {
	assert.NoError(t, validAddress(false).Validate())

	in := validAddress(false)
	in.Type = "castle"
	var verr *ValidationError
	require.ErrorAs(t, in.Validate(), &verr)
	assert.Equal(t, "type", verr.First().Field)

	in = validAddress(true)
	in.Mobile = "12"
	require.ErrorAs(t, in.Validate(), &verr)
	assert.Equal(t, "mobile must be exactly 10 digits", verr.First().Message)
}
