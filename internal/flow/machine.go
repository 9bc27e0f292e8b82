// Package flow holds the payment confirmation state machine. One Machine
// owns one PaymentSession and is the only thing that mutates it; transitions
// are serialized by the machine's mutex, which is the Go rendition of the
// single-threaded event model the flow assumes.
package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paylane/internal/countdown"
	"paylane/internal/deeplink"
	"paylane/internal/gateway"
	"paylane/internal/reference"
)

// GatewayClient is what the machine needs from the hosted gateway adapter.
type GatewayClient interface {
	Configured() bool
	CreateOrder(ctx context.Context, orderID string, amount float64, customer gateway.Customer) (gateway.Order, error)
	VerifyPayment(ctx context.Context, orderID string) (gateway.Verification, error)
}

// Config wires one checkout attempt.
type Config struct {
	OrderID  string
	Amount   float64
	Currency string
	Payee    Payee
	Platform deeplink.Platform
	Customer gateway.Customer

	Gateway   GatewayClient
	Sink      OrderSink
	Notifier  Notifier
	Navigator Navigator
	Clipboard Clipboard
	Checkout  HostedCheckout // optional
	Validator reference.Validator
	Logger    *zap.SugaredLogger

	// Countdown restart value; zero means the 9:59 default.
	CountdownMinutes int
	CountdownSeconds int
}

// Machine drives one payment session from Idle to a terminal state.
type Machine struct {
	mu      sync.Mutex
	session Session

	customer  gateway.Customer
	gateway   GatewayClient
	sink      OrderSink
	notifier  Notifier
	nav       Navigator
	clipboard Clipboard
	checkout  HostedCheckout
	validator reference.Validator
	logger    *zap.SugaredLogger
	clock     *countdown.Clock

	// attempt is bumped whenever the session's identity changes (channel
	// switch, reset). In-flight gateway results and scheduled fallbacks
	// compare it against their snapshot and discard themselves when stale.
	attempt  uint64
	inFlight bool
	fallback *time.Timer
}

// LaunchResult is what the caller needs to put the payment instruction in
// front of the shopper.
type LaunchResult struct {
	Link      deeplink.Link
	QRPayload string // generic UPI URI to encode as a QR, when applicable
	PayeeID   string // always present so the shopper can pay manually
}

// NewMachine creates a session in Idle and starts the decorative countdown.
func NewMachine(cfg Config) *Machine {
	mins, secs := cfg.CountdownMinutes, cfg.CountdownSeconds
	if mins == 0 && secs == 0 {
		mins, secs = 9, 59
	}

	clock := countdown.New(mins, secs)
	clock.Start(time.Second)

	m := &Machine{
		session: Session{
			ID:       uuid.NewString(),
			OrderID:  cfg.OrderID,
			Amount:   cfg.Amount,
			Currency: cfg.Currency,
			Payee:    cfg.Payee,
			Platform: cfg.Platform,
			Status:   StatusIdle,
		},
		customer:  cfg.Customer,
		gateway:   cfg.Gateway,
		sink:      cfg.Sink,
		notifier:  cfg.Notifier,
		nav:       cfg.Navigator,
		clipboard: cfg.Clipboard,
		checkout:  cfg.Checkout,
		validator: cfg.Validator,
		logger:    cfg.Logger,
		clock:     clock,
	}
	return m
}

// Snapshot returns a copy of the session for read-only use.
func (m *Machine) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Countdown returns the current display value of the payment-step clock.
func (m *Machine) Countdown() (minutes, seconds int) {
	return m.clock.Reading()
}

// Close releases the machine's timers. Called when the session is discarded.
func (m *Machine) Close() {
	m.mu.Lock()
	m.cancelFallbackLocked()
	m.mu.Unlock()
	m.clock.Stop()
}

func (m *Machine) cancelFallbackLocked() {
	if m.fallback != nil {
		m.fallback.Stop()
		m.fallback = nil
	}
}

// SelectChannel moves the session to ChannelSelected. Re-selecting (also
// after launch) starts fresh: any reference or gateway handle from the prior
// channel is cleared, and a pending Android fallback is cancelled.
func (m *Machine) SelectChannel(channel Channel, appKey string) error {
	if !channel.valid() {
		return &ValidationError{Reason: "unknown payment channel"}
	}

	var app *deeplink.App
	if channel == ChannelDirectApp {
		a, ok := deeplink.AppByKey(appKey)
		if !ok {
			return &ValidationError{Reason: "unknown payment app"}
		}
		app = &a
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Status.Terminal() {
		return ErrFlowComplete
	}
	if m.inFlight {
		return ErrBusy
	}
	switch m.session.Status {
	case StatusIdle, StatusChannelSelected, StatusLaunched:
	default:
		return &TransitionError{From: m.session.Status, Event: "select channel"}
	}

	m.attempt++
	m.cancelFallbackLocked()
	m.session.Channel = channel
	m.session.App = app
	m.session.Reference = ""
	m.session.GatewayHandle = ""
	m.session.Status = StatusChannelSelected
	return nil
}

// Launch produces the payment instruction for the selected channel and moves
// to Launched. Idempotent: "open app again" re-issues navigation without
// changing state. A prior launch's deep link cannot be cancelled; it is
// simply no longer relevant.
func (m *Machine) Launch() (LaunchResult, error) {
	m.mu.Lock()

	if m.session.Status.Terminal() {
		m.mu.Unlock()
		return LaunchResult{}, ErrFlowComplete
	}
	if m.inFlight {
		m.mu.Unlock()
		return LaunchResult{}, ErrBusy
	}
	if m.session.Status != StatusChannelSelected && m.session.Status != StatusLaunched {
		err := &TransitionError{From: m.session.Status, Event: "launch"}
		m.mu.Unlock()
		return LaunchResult{}, err
	}
	if m.session.Channel != ChannelDirectApp && m.session.Channel != ChannelScanToPay {
		err := &TransitionError{From: m.session.Status, Event: "launch a hosted gateway session"}
		m.mu.Unlock()
		return LaunchResult{}, err
	}

	payment := deeplink.Payment{
		PayeeID:   m.session.Payee.Identifier,
		PayeeName: m.session.Payee.DisplayName,
		Amount:    m.session.Amount,
		Currency:  m.session.Currency,
	}

	res := LaunchResult{PayeeID: m.session.Payee.Identifier}

	navigate := m.session.Channel == ChannelDirectApp && m.session.Platform.Mobile()
	if navigate {
		res.Link = deeplink.Build(m.session.App, m.session.Platform, payment)
	} else {
		// scan-to-pay, or a platform with no app ecosystem: show the QR
		// immediately, nothing to navigate to
		res.QRPayload = deeplink.GenericURI(payment)
	}

	m.session.Status = StatusLaunched

	if res.Link.FallbackURI != "" {
		m.cancelFallbackLocked()
		snapshot := m.attempt
		fallbackURI := res.Link.FallbackURI
		m.fallback = time.AfterFunc(res.Link.FallbackDelay, func() {
			m.fireFallback(snapshot, fallbackURI)
		})
	}
	m.mu.Unlock()

	if navigate && res.Link.URI != "" {
		m.nav.Open(res.Link.URI)
	}
	return res, nil
}

// fireFallback runs when the Android intent got no visible result within the
// fallback delay. It re-checks that the session is still the one that
// scheduled it; a channel switch or reset in the meantime makes it stale.
func (m *Machine) fireFallback(snapshot uint64, uri string) {
	m.mu.Lock()
	stale := m.attempt != snapshot || m.session.Status != StatusLaunched
	m.fallback = nil
	m.mu.Unlock()

	if stale {
		return
	}
	m.nav.Open(uri)
}

// EnterReference records what the shopper typed and reports live validity.
// It never changes state; Confirm is the authoritative gate.
func (m *Machine) EnterReference(text string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Status.Terminal() {
		return false, ErrFlowComplete
	}
	m.session.Reference = text
	return m.validator.IsValid(text), nil
}

// Confirm finishes the DirectApp/ScanToPay path. Refused with a
// ValidationError when the reference does not pass; the session stays in
// Launched and the shopper is re-prompted. On success the terminal event is
// emitted exactly once.
func (m *Machine) Confirm() error {
	m.mu.Lock()

	if m.session.Status.Terminal() {
		m.mu.Unlock()
		return ErrFlowComplete
	}
	if m.session.Status != StatusLaunched {
		err := &TransitionError{From: m.session.Status, Event: "confirm"}
		m.mu.Unlock()
		return err
	}
	if !m.validator.IsValid(m.session.Reference) {
		m.mu.Unlock()
		m.notifier.Notify(NotifyError, "Please enter a valid transaction reference")
		return &ValidationError{Reason: "transaction reference must be at least 6 characters"}
	}

	ref := strings.TrimSpace(m.session.Reference)
	channel := m.session.Channel
	m.session.Reference = ref
	m.session.Status = StatusConfirmed
	m.attempt++
	m.cancelFallbackLocked()
	m.mu.Unlock()

	m.clock.Stop()
	m.sink.OnConfirmed(ref, channel)
	m.notifier.Notify(NotifySuccess, "Payment confirmed")
	return nil
}

// StartGatewayCheckout creates the gateway order and moves to GatewayPending.
// Missing credentials or a gateway rejection fail the session immediately;
// there is no automatic retry. The mutex is not held across the network call:
// the in-flight flag keeps other transitions out, and the attempt snapshot
// discards the result if the session moved on anyway.
func (m *Machine) StartGatewayCheckout(ctx context.Context) (gateway.Order, error) {
	m.mu.Lock()

	if m.session.Status.Terminal() {
		m.mu.Unlock()
		return gateway.Order{}, ErrFlowComplete
	}
	if m.inFlight {
		m.mu.Unlock()
		return gateway.Order{}, ErrBusy
	}
	if m.session.Status != StatusChannelSelected || m.session.Channel != ChannelHostedGateway {
		err := &TransitionError{From: m.session.Status, Event: "start gateway checkout"}
		m.mu.Unlock()
		return gateway.Order{}, err
	}

	if m.gateway == nil || !m.gateway.Configured() {
		m.session.Status = StatusFailed
		m.attempt++
		m.mu.Unlock()
		m.clock.Stop()
		m.sink.OnGatewayFailed("payment method unavailable")
		m.notifier.Notify(NotifyError, "This payment method is currently unavailable")
		return gateway.Order{}, gateway.ErrNotConfigured
	}

	m.inFlight = true
	snapshot := m.attempt
	orderID, amount, customer := m.session.OrderID, m.session.Amount, m.customer
	m.mu.Unlock()

	order, err := m.gateway.CreateOrder(ctx, orderID, amount, customer)

	m.mu.Lock()
	m.inFlight = false

	if m.attempt != snapshot {
		m.mu.Unlock()
		m.logger.Infow("discarding stale gateway order", "order_id", orderID)
		return gateway.Order{}, ErrSuperseded
	}

	if err != nil {
		m.session.Status = StatusFailed
		m.attempt++
		m.mu.Unlock()

		msg := "payment gateway rejected the order"
		var gerr *gateway.GatewayError
		switch {
		case errors.Is(err, gateway.ErrNotConfigured):
			msg = "payment method unavailable"
		case errors.As(err, &gerr):
			msg = gerr.Message
		}
		m.clock.Stop()
		m.sink.OnGatewayFailed(msg)
		m.notifier.Notify(NotifyError, msg)
		return gateway.Order{}, err
	}

	m.session.GatewayHandle = order.PaymentSessionID
	m.session.Status = StatusGatewayPending
	m.mu.Unlock()

	m.openHostedCheckout(ctx, order.PaymentSessionID)
	return order, nil
}

// openHostedCheckout hands the checkout handle to the lazily loaded SDK
// capability, when one is wired. Failures here are navigation-class: logged,
// not fatal, and the gateway return still decides the outcome.
func (m *Machine) openHostedCheckout(ctx context.Context, handle string) {
	if m.checkout == nil || !m.checkout.IsAvailable() {
		return
	}
	if err := m.checkout.Load(ctx); err != nil {
		m.logger.Warnw("hosted checkout load failed", "error", err)
		return
	}
	if err := m.checkout.Checkout(ctx, handle); err != nil {
		m.logger.Warnw("hosted checkout open failed", "error", err)
	}
}

// HandleGatewayReturn resolves the hosted-gateway path after the browser
// comes back. The status the gateway put in the return URL is advisory only;
// VerifyPayment is always called and is the only authority. A verify failure
// leaves the session in GatewayPending so the return can be re-processed.
func (m *Machine) HandleGatewayReturn(ctx context.Context, advisoryStatus string) (gateway.Verification, error) {
	m.mu.Lock()

	if m.session.Status.Terminal() {
		m.mu.Unlock()
		return gateway.Verification{}, ErrFlowComplete
	}
	if m.inFlight {
		m.mu.Unlock()
		return gateway.Verification{}, ErrBusy
	}
	if m.session.Status != StatusGatewayPending {
		err := &TransitionError{From: m.session.Status, Event: "handle gateway return"}
		m.mu.Unlock()
		return gateway.Verification{}, err
	}

	m.inFlight = true
	snapshot := m.attempt
	orderID := m.session.OrderID
	m.mu.Unlock()

	ver, err := m.gateway.VerifyPayment(ctx, orderID)

	m.mu.Lock()
	m.inFlight = false

	if m.attempt != snapshot {
		m.mu.Unlock()
		m.logger.Infow("discarding stale gateway verification", "order_id", orderID)
		return gateway.Verification{}, ErrSuperseded
	}

	if err != nil {
		// unresolved, not failed: stay pending and let the caller retry
		m.mu.Unlock()
		m.logger.Errorw("gateway verification failed", "order_id", orderID, "error", err)
		return gateway.Verification{}, err
	}

	if advisoryStatus != "" && !strings.EqualFold(advisoryStatus, ver.RawStatus) {
		m.logger.Infow("return url status overridden by verification",
			"advisory", advisoryStatus, "verified", ver.RawStatus)
	}

	if ver.Settled {
		m.session.Status = StatusVerified
		m.attempt++
		m.mu.Unlock()
		m.clock.Stop()
		m.sink.OnGatewaySettled(orderID)
		m.notifier.Notify(NotifySuccess, "Payment received")
		return ver, nil
	}

	m.session.Status = StatusFailed
	m.attempt++
	m.mu.Unlock()
	m.clock.Stop()
	msg := "payment was not completed"
	if ver.RawStatus != "" {
		msg = "payment was not completed (status " + ver.RawStatus + ")"
	}
	m.sink.OnGatewayFailed(msg)
	m.notifier.Notify(NotifyError, msg)
	return ver, nil
}

// Reset returns the session to Idle for "choose a different payment method".
// Refused only while a gateway call is mid-flight; in every other state the
// shopper may abandon freely. Bumping the attempt counter makes any still
// unresolved call or scheduled fallback discard itself.
func (m *Machine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inFlight {
		return ErrBusy
	}

	m.attempt++
	m.cancelFallbackLocked()
	m.session.Channel = ""
	m.session.App = nil
	m.session.Reference = ""
	m.session.GatewayHandle = ""
	m.session.Status = StatusIdle
	return nil
}

// CopyPayeeID copies the payee identifier through the clipboard capability.
// The identifier is returned regardless: clipboard failure is non-fatal and
// the shopper can copy the plain text by hand.
func (m *Machine) CopyPayeeID() (string, error) {
	id := m.Snapshot().Payee.Identifier

	if err := m.clipboard.Copy(id); err != nil {
		m.logger.Warnw("clipboard copy failed", "error", err)
		m.notifier.Notify(NotifyInfo, "Copy failed — long-press the UPI ID to copy it manually")
		return id, &ClipboardError{Err: err}
	}
	m.notifier.Notify(NotifySuccess, "UPI ID copied")
	return id, nil
}
