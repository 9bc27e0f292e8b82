package flow

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paylane/internal/deeplink"
	"paylane/internal/gateway"
	"paylane/internal/reference"
)

type confirmedEvent struct {
	Reference string
	Channel   Channel
}

type recorderSink struct {
	mu        sync.Mutex
	confirmed []confirmedEvent
	settled   []string
	failed    []string
}

func (s *recorderSink) OnConfirmed(ref string, ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = append(s.confirmed, confirmedEvent{ref, ch})
}

func (s *recorderSink) OnGatewaySettled(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settled = append(s.settled, orderID)
}

func (s *recorderSink) OnGatewayFailed(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, msg)
}

type recorderNav struct {
	mu   sync.Mutex
	uris []string
}

func (n *recorderNav) Open(uri string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.uris = append(n.uris, uri)
}

func (n *recorderNav) opened() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.uris...)
}

type fakeGateway struct {
	mu          sync.Mutex
	configured  bool
	createCalls int
	order       gateway.Order
	createErr   error
	verifyCalls int
	verify      gateway.Verification
	verifyErr   error
	block       chan struct{} // when set, CreateOrder waits for it to close
}

func (g *fakeGateway) Configured() bool { return g.configured }

func (g *fakeGateway) CreateOrder(ctx context.Context, orderID string, amount float64, c gateway.Customer) (gateway.Order, error) {
	g.mu.Lock()
	g.createCalls++
	block := g.block
	g.mu.Unlock()
	if block != nil {
		<-block
	}
	return g.order, g.createErr
}

func (g *fakeGateway) VerifyPayment(ctx context.Context, orderID string) (gateway.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	return g.verify, g.verifyErr
}

type noopNotifier struct{}

func (noopNotifier) Notify(NotifyKind, string) {}

type failingClipboard struct{}

func (failingClipboard) Copy(string) error { return context.DeadlineExceeded }

type testDeps struct {
	sink *recorderSink
	nav  *recorderNav
	gw   *fakeGateway
}

func newTestMachine(t *testing.T, platform deeplink.Platform, gw *fakeGateway) (*Machine, testDeps) {
	t.Helper()
	if gw == nil {
		gw = &fakeGateway{configured: true}
	}
	deps := testDeps{sink: &recorderSink{}, nav: &recorderNav{}, gw: gw}

	m := NewMachine(Config{
		OrderID:  "ord-42",
		Amount:   499,
		Currency: "INR",
		Payee:    Payee{Identifier: "merchant@ybl", DisplayName: "Test Store"},
		Platform: platform,
		Customer: gateway.Customer{ID: "cust-1", Name: "Asha"},

		Gateway:   gw,
		Sink:      deps.sink,
		Notifier:  noopNotifier{},
		Navigator: deps.nav,
		Clipboard: NoopClipboard{},
		Validator: reference.NewValidator(),
		Logger:    zap.NewNop().Sugar(),
	})
	t.Cleanup(m.Close)
	return m, deps
}

func TestScanToPayHappyPath(t *testing.T) {
	m, deps := newTestMachine(t, deeplink.PlatformAndroid, nil)

	require.NoError(t, m.SelectChannel(ChannelScanToPay, ""))

	res, err := m.Launch()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.QRPayload, "upi://pay?"), res.QRPayload)
	assert.Contains(t, res.QRPayload, "am=499.00")
	assert.Empty(t, res.Link.URI, "scan-to-pay never navigates")
	assert.Equal(t, "merchant@ybl", res.PayeeID)

	valid, err := m.EnterReference("ABC123456789")
	require.NoError(t, err)
	assert.True(t, valid)

	require.NoError(t, m.Confirm())
	assert.Equal(t, StatusConfirmed, m.Snapshot().Status)
	require.Len(t, deps.sink.confirmed, 1)
	assert.Equal(t, confirmedEvent{"ABC123456789", ChannelScanToPay}, deps.sink.confirmed[0])

	// double-click: terminal state refuses, nothing emitted twice
	assert.ErrorIs(t, m.Confirm(), ErrFlowComplete)
	assert.Len(t, deps.sink.confirmed, 1)
}

func TestConfirmRejectsInvalidReference(t *testing.T) {
	m, deps := newTestMachine(t, deeplink.PlatformAndroid, nil)
	require.NoError(t, m.SelectChannel(ChannelScanToPay, ""))
	_, err := m.Launch()
	require.NoError(t, err)

	valid, err := m.EnterReference("12345")
	require.NoError(t, err)
	assert.False(t, valid)

	err = m.Confirm()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StatusLaunched, m.Snapshot().Status)
	assert.Empty(t, deps.sink.confirmed)

	// the shopper is re-prompted and can still succeed
	_, err = m.EnterReference("  123456  ")
	require.NoError(t, err)
	require.NoError(t, m.Confirm())
	require.Len(t, deps.sink.confirmed, 1)
	assert.Equal(t, "123456", deps.sink.confirmed[0].Reference, "reference is trimmed on emission")
}

func TestSelectChannelResetsPriorState(t *testing.T) {
	m, _ := newTestMachine(t, deeplink.PlatformAndroid, nil)

	require.NoError(t, m.SelectChannel(ChannelDirectApp, "gpay"))
	_, err := m.Launch()
	require.NoError(t, err)
	_, err = m.EnterReference("999888777")
	require.NoError(t, err)

	// changing channel after launch starts fresh
	require.NoError(t, m.SelectChannel(ChannelScanToPay, ""))

	s := m.Snapshot()
	assert.Equal(t, StatusChannelSelected, s.Status)
	assert.Equal(t, ChannelScanToPay, s.Channel)
	assert.Empty(t, s.Reference)
	assert.Empty(t, s.GatewayHandle)
	assert.Nil(t, s.App)
}

func TestSelectChannelUnknownApp(t *testing.T) {
	m, _ := newTestMachine(t, deeplink.PlatformAndroid, nil)

	var verr *ValidationError
	assert.ErrorAs(t, m.SelectChannel(ChannelDirectApp, "cashapp"), &verr)
	assert.Equal(t, StatusIdle, m.Snapshot().Status)
}

func TestDirectAppAndroidLaunchWithFallback(t *testing.T) {
	m, deps := newTestMachine(t, deeplink.PlatformAndroid, nil)

	require.NoError(t, m.SelectChannel(ChannelDirectApp, "phonepe"))
	res, err := m.Launch()
	require.NoError(t, err)

	assert.Contains(t, res.Link.URI, "package=com.phonepe.app")
	require.Len(t, deps.nav.opened(), 1)
	assert.Equal(t, res.Link.URI, deps.nav.opened()[0])

	// no app switch signal within the delay: the generic URI is issued
	assert.Eventually(t, func() bool {
		uris := deps.nav.opened()
		return len(uris) == 2 && strings.HasPrefix(uris[1], "upi://pay?")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestFallbackCancelledByChannelSwitch(t *testing.T) {
	m, deps := newTestMachine(t, deeplink.PlatformAndroid, nil)

	require.NoError(t, m.SelectChannel(ChannelDirectApp, "phonepe"))
	_, err := m.Launch()
	require.NoError(t, err)

	// switch before the 500ms fallback fires
	require.NoError(t, m.SelectChannel(ChannelScanToPay, ""))

	time.Sleep(deeplink.FallbackDelay + 200*time.Millisecond)
	assert.Len(t, deps.nav.opened(), 1, "stale fallback must not fire after a channel switch")
}

func TestLaunchIsIdempotent(t *testing.T) {
	m, deps := newTestMachine(t, deeplink.PlatformIOS, nil)

	require.NoError(t, m.SelectChannel(ChannelDirectApp, "gpay"))
	_, err := m.Launch()
	require.NoError(t, err)
	_, err = m.Launch() // "open app again"
	require.NoError(t, err)

	assert.Equal(t, StatusLaunched, m.Snapshot().Status)
	assert.Len(t, deps.nav.opened(), 2)
}

func TestDirectAppOnDesktopFallsBackToQR(t *testing.T) {
	m, deps := newTestMachine(t, deeplink.PlatformDesktop, nil)

	require.NoError(t, m.SelectChannel(ChannelDirectApp, "paytm"))
	res, err := m.Launch()
	require.NoError(t, err)

	assert.Empty(t, res.Link.URI)
	assert.True(t, strings.HasPrefix(res.QRPayload, "upi://pay?"))
	assert.Empty(t, deps.nav.opened())
}

func TestLaunchRequiresChannel(t *testing.T) {
	m, _ := newTestMachine(t, deeplink.PlatformAndroid, nil)

	_, err := m.Launch()
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StatusIdle, terr.From)
}

func TestLaunchRefusedForHostedGateway(t *testing.T) {
	m, _ := newTestMachine(t, deeplink.PlatformAndroid, nil)
	require.NoError(t, m.SelectChannel(ChannelHostedGateway, ""))

	_, err := m.Launch()
	var terr *TransitionError
	assert.ErrorAs(t, err, &terr)
}

func TestGatewayCheckoutMissingCredentials(t *testing.T) {
	gw := &fakeGateway{configured: false}
	m, deps := newTestMachine(t, deeplink.PlatformAndroid, gw)

	require.NoError(t, m.SelectChannel(ChannelHostedGateway, ""))
	_, err := m.StartGatewayCheckout(context.Background())

	assert.ErrorIs(t, err, gateway.ErrNotConfigured)
	assert.Equal(t, StatusFailed, m.Snapshot().Status)
	assert.Equal(t, 0, gw.createCalls, "no network call without credentials")
	require.Len(t, deps.sink.failed, 1)
	assert.Equal(t, "payment method unavailable", deps.sink.failed[0])
}

func TestGatewayCheckoutRemoteRejection(t *testing.T) {
	gw := &fakeGateway{
		configured: true,
		createErr:  &gateway.GatewayError{Status: 400, Message: "order_id already exists"},
	}
	m, deps := newTestMachine(t, deeplink.PlatformAndroid, gw)

	require.NoError(t, m.SelectChannel(ChannelHostedGateway, ""))
	_, err := m.StartGatewayCheckout(context.Background())

	var gerr *gateway.GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, StatusFailed, m.Snapshot().Status)
	require.Len(t, deps.sink.failed, 1)
	assert.Equal(t, "order_id already exists", deps.sink.failed[0], "remote message is surfaced")
}

func TestGatewayReturnVerifyOverridesURLStatus(t *testing.T) {
	gw := &fakeGateway{
		configured: true,
		order:      gateway.Order{OrderID: "ord-42", PaymentSessionID: "sess-1"},
		verify:     gateway.Verification{Settled: true, RawStatus: "PAID"},
	}
	m, deps := newTestMachine(t, deeplink.PlatformAndroid, gw)

	require.NoError(t, m.SelectChannel(ChannelHostedGateway, ""))
	order, err := m.StartGatewayCheckout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess-1", order.PaymentSessionID)
	assert.Equal(t, StatusGatewayPending, m.Snapshot().Status)
	assert.Equal(t, "sess-1", m.Snapshot().GatewayHandle)

	// the URL claimed FAILED, the verify call says PAID; verify wins
	ver, err := m.HandleGatewayReturn(context.Background(), "FAILED")
	require.NoError(t, err)
	assert.True(t, ver.Settled)
	assert.Equal(t, StatusVerified, m.Snapshot().Status)
	require.Len(t, deps.sink.settled, 1)
	assert.Equal(t, "ord-42", deps.sink.settled[0])
	assert.Empty(t, deps.sink.failed)
}

func TestGatewayReturnUnsettled(t *testing.T) {
	gw := &fakeGateway{
		configured: true,
		order:      gateway.Order{PaymentSessionID: "sess-1"},
		verify:     gateway.Verification{Settled: false, RawStatus: "EXPIRED"},
	}
	m, deps := newTestMachine(t, deeplink.PlatformAndroid, gw)

	require.NoError(t, m.SelectChannel(ChannelHostedGateway, ""))
	_, err := m.StartGatewayCheckout(context.Background())
	require.NoError(t, err)

	_, err = m.HandleGatewayReturn(context.Background(), "PAID")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, m.Snapshot().Status)
	require.Len(t, deps.sink.failed, 1)
	assert.Contains(t, deps.sink.failed[0], "EXPIRED")
}

func TestGatewayReturnVerifyErrorStaysPending(t *testing.T) {
	gw := &fakeGateway{
		configured: true,
		order:      gateway.Order{PaymentSessionID: "sess-1"},
		verifyErr:  &gateway.GatewayError{Status: 502, Message: "upstream unavailable"},
	}
	m, deps := newTestMachine(t, deeplink.PlatformAndroid, gw)

	require.NoError(t, m.SelectChannel(ChannelHostedGateway, ""))
	_, err := m.StartGatewayCheckout(context.Background())
	require.NoError(t, err)

	_, err = m.HandleGatewayReturn(context.Background(), "PAID")
	require.Error(t, err)
	assert.Equal(t, StatusGatewayPending, m.Snapshot().Status, "unresolved verify keeps the session pending")
	assert.Empty(t, deps.sink.failed)
	assert.Empty(t, deps.sink.settled)
}

func TestResetClearsSession(t *testing.T) {
	gw := &fakeGateway{configured: true, order: gateway.Order{PaymentSessionID: "sess-1"}}
	m, _ := newTestMachine(t, deeplink.PlatformAndroid, gw)

	require.NoError(t, m.SelectChannel(ChannelHostedGateway, ""))
	_, err := m.StartGatewayCheckout(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Reset())
	s := m.Snapshot()
	assert.Equal(t, StatusIdle, s.Status)
	assert.Empty(t, s.Channel)
	assert.Empty(t, s.Reference)
	assert.Empty(t, s.GatewayHandle)
}

func TestResetRefusedMidFlight(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{
		configured: true,
		order:      gateway.Order{PaymentSessionID: "sess-1"},
		block:      release,
	}
	m, _ := newTestMachine(t, deeplink.PlatformAndroid, gw)
	require.NoError(t, m.SelectChannel(ChannelHostedGateway, ""))

	done := make(chan error, 1)
	go func() {
		_, err := m.StartGatewayCheckout(context.Background())
		done <- err
	}()

	// wait for the call to be in flight
	require.Eventually(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		return gw.createCalls == 1
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, m.Reset(), ErrBusy)
	assert.ErrorIs(t, m.SelectChannel(ChannelScanToPay, ""), ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StatusGatewayPending, m.Snapshot().Status)

	// once the call resolved the shopper may abandon again
	require.NoError(t, m.Reset())
}

type fakeCheckout struct {
	mu      sync.Mutex
	loaded  bool
	handles []string
}

func (c *fakeCheckout) IsAvailable() bool { return true }

func (c *fakeCheckout) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
	return nil
}

func (c *fakeCheckout) Checkout(ctx context.Context, handle string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles = append(c.handles, handle)
	return nil
}

func TestGatewayCheckoutOpensHostedCheckout(t *testing.T) {
	gw := &fakeGateway{configured: true, order: gateway.Order{PaymentSessionID: "sess-1"}}
	checkout := &fakeCheckout{}

	m := NewMachine(Config{
		OrderID:   "ord-1",
		Amount:    10,
		Currency:  "INR",
		Payee:     Payee{Identifier: "merchant@ybl", DisplayName: "Test Store"},
		Platform:  deeplink.PlatformAndroid,
		Gateway:   gw,
		Sink:      &recorderSink{},
		Notifier:  noopNotifier{},
		Navigator: &recorderNav{},
		Clipboard: NoopClipboard{},
		Checkout:  checkout,
		Validator: reference.NewValidator(),
		Logger:    zap.NewNop().Sugar(),
	})
	t.Cleanup(m.Close)

	require.NoError(t, m.SelectChannel(ChannelHostedGateway, ""))
	_, err := m.StartGatewayCheckout(context.Background())
	require.NoError(t, err)

	assert.True(t, checkout.loaded, "SDK is loaded lazily before checkout")
	assert.Equal(t, []string{"sess-1"}, checkout.handles)
}

func TestCopyPayeeID(t *testing.T) {
	m, _ := newTestMachine(t, deeplink.PlatformAndroid, nil)

	id, err := m.CopyPayeeID()
	require.NoError(t, err)
	assert.Equal(t, "merchant@ybl", id)
}

func TestCopyPayeeIDFailureIsNonFatal(t *testing.T) {
	gw := &fakeGateway{configured: true}
	deps := testDeps{sink: &recorderSink{}, nav: &recorderNav{}, gw: gw}
	m := NewMachine(Config{
		OrderID:   "ord-1",
		Amount:    10,
		Currency:  "INR",
		Payee:     Payee{Identifier: "merchant@ybl", DisplayName: "Test Store"},
		Platform:  deeplink.PlatformAndroid,
		Gateway:   gw,
		Sink:      deps.sink,
		Notifier:  noopNotifier{},
		Navigator: deps.nav,
		Clipboard: failingClipboard{},
		Validator: reference.NewValidator(),
		Logger:    zap.NewNop().Sugar(),
	})
	t.Cleanup(m.Close)

	id, err := m.CopyPayeeID()
	var cerr *ClipboardError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "merchant@ybl", id, "identifier still returned for manual copy")
}

func TestCountdownRuns(t *testing.T) {
	m, _ := newTestMachine(t, deeplink.PlatformAndroid, nil)

	mins, secs := m.Countdown()
	assert.Equal(t, 9, mins)
	assert.Equal(t, 59, secs)
}
