package validation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feeInput struct {
	Code      string              `json:"code" validate:"required,max=5"`
	Email     string              `json:"email" validate:"omitempty,email"`
	Kind      string              `json:"kind" validate:"oneof=online onsite"`
	BaseFee   decimal.Decimal     `json:"base_fee" validate:"gte=0"`
	OnlineFee decimal.NullDecimal `json:"online_fee" validate:"omitempty,gte=0"`
	Internal  int                 `json:"-" validate:"lte=3"`
}

func TestValidateStructReportsJSONNames(t *testing.T) {
	v := NewValidator()

	err := v.ValidateStruct(&feeInput{
		Code:      "TOOLONG",
		Email:     "nope",
		Kind:      "hybrid",
		BaseFee:   decimal.RequireFromString("-1"),
		OnlineFee: decimal.NewNullDecimal(decimal.RequireFromString("-0.01")),
		Internal:  4,
	})
	require.Error(t, err)

	fields := FormatValidationErrors(err)
	assert.Equal(t, []FieldError{
		{Field: "code", Message: "code must be at most 5"},
		{Field: "email", Message: "Invalid email format"},
		{Field: "kind", Message: "kind must be one of [online onsite]"},
		{Field: "base_fee", Message: "base_fee must be greater than or equal to 0"},
		{Field: "online_fee", Message: "online_fee must be greater than or equal to 0"},
		{Field: "Internal", Message: "Internal must be less than or equal to 3"},
	}, fields)
}

func TestValidateStructAcceptsValidInput(t *testing.T) {
	v := NewValidator()
	err := v.ValidateStruct(&feeInput{
		Code:    "BOS",
		Kind:    "onsite",
		BaseFee: decimal.RequireFromString("120000"),
	})
	assert.NoError(t, err)

	err = v.ValidateStruct(&feeInput{Kind: "online"})
	fields := FormatValidationErrors(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "code is required", fields[0].Message)
}

func TestFormatValidationErrorsIgnoresOtherErrors(t *testing.T) {
	assert.Empty(t, FormatValidationErrors(assert.AnError))
}

func TestFieldErrorString(t *testing.T) {
	assert.Equal(t, "amount: must be positive", FieldError{Field: "amount", Message: "must be positive"}.String())
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Grade 7", SanitizeString("  Grade\x00 7 \n"))
}
