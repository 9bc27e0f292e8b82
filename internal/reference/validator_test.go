package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValid(t *testing.T) {
	v := NewValidator()

	assert.False(t, v.IsValid("12345"), "5 digits is too short")
	assert.True(t, v.IsValid("123456"))
	assert.True(t, v.IsValid("  123456  "), "surrounding whitespace is trimmed")
	assert.False(t, v.IsValid("      "))
	assert.False(t, v.IsValid(""))
	assert.True(t, v.IsValid("ABC123456789"), "free text allowed by default")
}

func TestIsValidDigitsOnly(t *testing.T) {
	v := Validator{MinLength: 6, DigitsOnly: true}

	assert.True(t, v.IsValid("12-34-56"), "separators stripped before length check")
	assert.False(t, v.IsValid("ABCDEFGH"), "letters do not count when digits-only")
	assert.True(t, v.IsValid("UTR 123456"))
}

func TestZeroValueFallsBackToMinLength(t *testing.T) {
	var v Validator

	assert.False(t, v.IsValid("12345"))
	assert.True(t, v.IsValid("123456"))
}
