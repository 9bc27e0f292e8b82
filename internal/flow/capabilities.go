package flow

import (
	"context"

	"go.uber.org/zap"
)

// OrderSink receives the flow's terminal events. It is the order system's
// side of the contract; the flow never looks at what happens after emission.
type OrderSink interface {
	OnConfirmed(reference string, channel Channel)
	OnGatewaySettled(orderID string)
	OnGatewayFailed(message string)
}

// NotifyKind classifies a user-facing notification.
type NotifyKind string

const (
	NotifySuccess NotifyKind = "success"
	NotifyError   NotifyKind = "error"
	NotifyInfo    NotifyKind = "info"
)

// Notifier is the injected toast/notification collaborator.
type Notifier interface {
	Notify(kind NotifyKind, message string)
}

// Clipboard is the scoped copy capability offered by the UI shell. Copy
// failing is non-fatal: the payee identifier is always presented as plain
// text too, so the shopper can copy it by hand.
type Clipboard interface {
	Copy(text string) error
}

// Navigator performs fire-and-forget navigation to a deep-link URI. There is
// no way to observe whether an app actually opened; a failed launch is
// silent by platform design.
type Navigator interface {
	Open(uri string)
}

// HostedCheckout abstracts the lazily loaded gateway checkout SDK. The
// machine only ever sees this interface, never how the capability is
// obtained.
type HostedCheckout interface {
	IsAvailable() bool
	Load(ctx context.Context) error
	Checkout(ctx context.Context, handle string) error
}

// LogSink is the default OrderSink: it records terminal events in the log.
// Real deployments swap in the order system's own implementation.
type LogSink struct {
	Logger *zap.SugaredLogger
}

func (s LogSink) OnConfirmed(reference string, channel Channel) {
	s.Logger.Infow("payment confirmed", "reference", reference, "channel", channel)
}

func (s LogSink) OnGatewaySettled(orderID string) {
	s.Logger.Infow("gateway payment settled", "order_id", orderID)
}

func (s LogSink) OnGatewayFailed(message string) {
	s.Logger.Warnw("gateway payment failed", "message", message)
}

// LogNotifier logs notifications; the HTTP surface carries the same message
// to the client in the response body.
type LogNotifier struct {
	Logger *zap.SugaredLogger
}

func (n LogNotifier) Notify(kind NotifyKind, message string) {
	n.Logger.Infow("notify", "kind", kind, "message", message)
}

// LogNavigator records the navigation attempt. Actual navigation happens on
// the shopper's device with the URI returned to it.
type LogNavigator struct {
	Logger *zap.SugaredLogger
}

func (n LogNavigator) Open(uri string) {
	n.Logger.Infow("navigate", "uri", uri)
}

// NoopClipboard always succeeds without doing anything. The server has no
// clipboard; the real capability lives in the UI shell.
type NoopClipboard struct{}

func (NoopClipboard) Copy(string) error { return nil }
