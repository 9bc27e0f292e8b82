package deeplink

import (
	"fmt"
	"net/url"
	"time"
)

// Platform is the shopper's device platform, as reported by the client.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformDesktop Platform = "desktop"
)

// Mobile reports whether the platform can launch a payment app at all.
func (p Platform) Mobile() bool {
	return p == PlatformAndroid || p == PlatformIOS
}

// FallbackDelay is how long the caller should wait after issuing an Android
// intent URI before trying the generic fallback. If the intent worked the app
// switch has already happened and the fallback never fires.
const FallbackDelay = 500 * time.Millisecond

// Payment carries the fields that end up in the URI query string.
type Payment struct {
	PayeeID   string // VPA-like address, e.g. merchant@ybl
	PayeeName string
	Amount    float64
	Currency  string
}

// Link is the result of building a deep link for one (app, platform) pair.
// URI is empty on platforms with no app ecosystem; FallbackURI is only set
// for Android intent links.
type Link struct {
	URI           string
	FallbackURI   string
	FallbackDelay time.Duration
}

// query renders the standard UPI pay parameters. url.Values.Encode sorts
// keys, so identical inputs always produce byte-identical output.
func query(p Payment) string {
	q := url.Values{}
	q.Set("pa", p.PayeeID)
	q.Set("pn", p.PayeeName)
	q.Set("am", fmt.Sprintf("%.2f", p.Amount))
	q.Set("cu", p.Currency)
	q.Set("tn", "Payment to "+p.PayeeName)
	return q.Encode()
}

// GenericURI builds the universal upi://pay link understood by any compliant
// app. This is also the payload encoded into the scan-to-pay QR.
func GenericURI(p Payment) string {
	return "upi://pay?" + query(p)
}

// Build produces the deep link for the given app and platform. Pass a nil app
// for the generic scheme. Pure: no network, no storage, no clock reads.
//
// Android with a target app gets an intent URI carrying the package id so the
// launcher routes directly, plus the generic URI as a delayed fallback for
// when the intent silently fails. iOS only has custom schemes and gives no
// signal when a launch fails, so there is no fallback to schedule. Desktop
// gets nothing; the caller must show the QR instead.
func Build(app *App, platform Platform, p Payment) Link {
	if platform == PlatformDesktop || !platform.Mobile() {
		return Link{}
	}

	if app == nil {
		return Link{URI: GenericURI(p)}
	}

	switch platform {
	case PlatformAndroid:
		uri := fmt.Sprintf("intent://pay?%s#Intent;scheme=upi;package=%s;end", query(p), app.AndroidPackage)
		return Link{
			URI:           uri,
			FallbackURI:   GenericURI(p),
			FallbackDelay: FallbackDelay,
		}
	case PlatformIOS:
		return Link{URI: app.IOSScheme + "?" + query(p)}
	}

	return Link{}
}
