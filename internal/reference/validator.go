// Package reference validates the transaction reference the shopper types in
// after paying through a UPI app or QR. It is the only gate between the
// Launched and Confirmed states.
package reference

import "strings"

// MinLength is the shortest reference accepted. UPI transaction ids (UTRs)
// are 12 digits, but bank apps surface shorter references too, so the flow
// only insists on six characters.
const MinLength = 6

type Validator struct {
	MinLength int
	// DigitsOnly strips non-digit characters before length-checking. Off by
	// default: free-text references are accepted at the flow level and a
	// numeric-only rule is presentation policy.
	DigitsOnly bool
}

// NewValidator returns the canonical flow-level validator.
func NewValidator() Validator {
	return Validator{MinLength: MinLength}
}

// IsValid reports whether ref passes. Cheap and side-effect free: it runs on
// every keystroke for live feedback and once more on submission.
func (v Validator) IsValid(ref string) bool {
	s := strings.TrimSpace(ref)
	if v.DigitsOnly {
		s = digits(s)
	}
	min := v.MinLength
	if min <= 0 {
		min = MinLength
	}
	return len(s) >= min
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
