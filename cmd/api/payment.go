package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"paylane/internal/flow"
)

// redirectToAppReturn serves an HTML page that:
// 1) tries to open the shopper's app via deep link: {scheme}://payments/return?...params...
// 2) falls back to a web URL if the app is not installed
//
// Why HTML instead of a 302 redirect directly?
// - iOS Safari / SFSafariViewController can be inconsistent with 302 -> custom scheme.
// - HTML + JS is more reliable and also provides a button for manual open.
func (app *application) redirectToAppReturn(
	w http.ResponseWriter,
	result string, // "success" | "failed" | "pending"
	orderID string,
	gatewayState string, // PAID/EXPIRED/... (optional)
	reason string, // optional internal reason for debugging
) {
	result = strings.ToLower(strings.TrimSpace(result))
	if result != "success" && result != "failed" && result != "pending" {
		result = "pending"
	}

	// All data goes in query params so the app can route + optionally re-fetch
	// the session state.
	q := url.Values{}
	q.Set("result", result)

	if orderID != "" {
		q.Set("order_id", orderID)
	}
	if gatewayState != "" {
		q.Set("gateway_state", gatewayState)
	}
	if reason != "" {
		q.Set("reason", reason)
	}

	deepLink := fmt.Sprintf("%s://payments/return?%s", app.config.appScheme, q.Encode())

	// Optional web fallback (if app not installed)
	webFallback := fmt.Sprintf("%s/payments/return?%s", app.config.frontendURL, q.Encode())

	html := fmt.Sprintf(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Returning to app…</title>
    <style>
      body { font-family: system-ui, -apple-system, Segoe UI, Roboto; padding: 24px; }
      .btn { display: inline-block; padding: 12px 16px; border-radius: 10px; background:#111; color:#fff; text-decoration:none; }
      .muted { opacity: 0.7; margin-top: 12px; }
    </style>
  </head>
  <body>
    <h3>Returning to the app…</h3>
    <p class="muted">If you are not redirected automatically, tap the button below.</p>
    <p><a class="btn" href="%s">Open in app</a></p>
    <p class="muted">Or continue on the web:</p>
    <p><a href="%s">%s</a></p>

    <script>
      // Try deep link immediately
      window.location.href = %q;

      // If the app isn't installed, redirect to web after a short delay
      setTimeout(function() {
        window.location.href = %q;
      }, 1200);
    </script>
  </body>
</html>`,
		deepLink,
		webFallback,
		webFallback,
		deepLink,
		webFallback,
	)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

// The gateway redirects the shopper's browser here:
// GET /v1/payments/gateway/return?order_id=...&order_status=...
//
// The query-string status is whatever the gateway substituted into the
// return URL template. It is advisory only: the flow always calls the verify
// API and that answer decides the outcome.
// NOTE: this endpoint is opened in a browser/webview. Always answer with
// HTML + deep link (not JSON), otherwise the shopper sees raw JSON.
func (app *application) gatewayReturnHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orderID := strings.TrimSpace(q.Get("order_id"))
	advisory := strings.TrimSpace(q.Get("order_status"))

	if orderID == "" {
		app.redirectToAppReturn(w, "failed", "", "", "missing_order_id")
		return
	}

	m, ok := app.flows.GetByOrderID(orderID)
	if !ok {
		app.redirectToAppReturn(w, "failed", orderID, "", "session_not_found")
		return
	}

	ver, err := m.HandleGatewayReturn(r.Context(), advisory)
	if err != nil {
		// a session that already resolved (e.g. duplicate redirect) keeps
		// its outcome; anything unresolved stays pending
		if errors.Is(err, flow.ErrFlowComplete) {
			switch m.Snapshot().Status {
			case flow.StatusVerified:
				app.redirectToAppReturn(w, "success", orderID, "", "already_verified")
			case flow.StatusFailed:
				app.redirectToAppReturn(w, "failed", orderID, "", "already_failed")
			default:
				app.redirectToAppReturn(w, "pending", orderID, "", "already_complete")
			}
			return
		}
		app.logger.Errorw("gateway return handling failed", "order_id", orderID, "error", err.Error())
		app.redirectToAppReturn(w, "pending", orderID, "", "verification_failed")
		return
	}

	if ver.Settled {
		app.redirectToAppReturn(w, "success", orderID, ver.RawStatus, "")
		return
	}
	app.redirectToAppReturn(w, "failed", orderID, ver.RawStatus, "gateway_not_settled")
}
