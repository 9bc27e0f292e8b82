package flow

import "paylane/internal/deeplink"

// Channel names how the shopper chose to pay.
type Channel string

const (
	ChannelDirectApp     Channel = "direct_app"
	ChannelScanToPay     Channel = "scan_to_pay"
	ChannelHostedGateway Channel = "hosted_gateway"
)

func (c Channel) valid() bool {
	switch c {
	case ChannelDirectApp, ChannelScanToPay, ChannelHostedGateway:
		return true
	}
	return false
}

// Status is the state-machine state of a payment session.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusChannelSelected Status = "channel_selected"
	StatusLaunched        Status = "launched"
	StatusConfirmed       Status = "confirmed"
	StatusGatewayPending  Status = "gateway_pending"
	StatusVerified        Status = "verified"
	StatusFailed          Status = "failed"
)

// Terminal reports whether the flow is over and control has returned to the
// order system. Terminal sessions refuse every further transition, which is
// what suppresses duplicate confirmations on double-click.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusVerified || s == StatusFailed
}

// Payee is the merchant account money is instructed toward.
type Payee struct {
	Identifier  string `json:"identifier"` // VPA-like address, e.g. merchant@ybl
	DisplayName string `json:"display_name"`
}

// Session is one checkout attempt. It is mutated only by the machine owning
// it, and it is never persisted: once terminal, the result goes to the order
// sink and the session is discarded.
type Session struct {
	ID            string             `json:"id"`
	OrderID       string             `json:"order_id"`
	Amount        float64            `json:"amount"`
	Currency      string             `json:"currency"`
	Payee         Payee              `json:"payee"`
	Channel       Channel            `json:"channel,omitempty"`
	App           *deeplink.App      `json:"app,omitempty"`
	Platform      deeplink.Platform  `json:"platform"`
	Status        Status             `json:"status"`
	Reference     string             `json:"reference,omitempty"`
	GatewayHandle string             `json:"gateway_handle,omitempty"`
}
