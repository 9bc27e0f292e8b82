package gateway

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned before any network call when the gateway
// credentials are missing server-side. The hosted-gateway channel is
// unavailable; the other channels are unaffected.
var ErrNotConfigured = errors.New("payment gateway credentials are not configured")

// GatewayError is a non-success response from the remote gateway. The
// message is provider-supplied and safe to surface to the shopper.
type GatewayError struct {
	Status  int
	Message string
	Details string
}

func (e *GatewayError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("gateway error (http %d, %s): %s", e.Status, e.Details, e.Message)
	}
	return fmt.Sprintf("gateway error (http %d): %s", e.Status, e.Message)
}
