package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"paylane/internal/deeplink"
	"paylane/internal/flow"
	"paylane/internal/gateway"
	"paylane/internal/params"
	"paylane/internal/reference"
)

type CreateSessionPayload struct {
	OrderID  string  `json:"order_id" validate:"required,max=64"`
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Platform string  `json:"platform" validate:"required,oneof=android ios desktop"`
	Customer struct {
		ID    string `json:"id" validate:"omitempty,max=64"`
		Name  string `json:"name" validate:"omitempty,max=120"`
		Email string `json:"email" validate:"omitempty,email"`
		Phone string `json:"phone" validate:"omitempty,min=8,max=15"`
	} `json:"customer"`
}

type sessionResponse struct {
	Session   flow.Session `json:"session"`
	Countdown countdownDTO `json:"countdown"`
}

type countdownDTO struct {
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

func (app *application) sessionResponse(m *flow.Machine) sessionResponse {
	mins, secs := m.Countdown()
	return sessionResponse{
		Session:   m.Snapshot(),
		Countdown: countdownDTO{Minutes: mins, Seconds: secs},
	}
}

// POST /v1/sessions
// Creates the payment session for one checkout attempt. Creating a second
// session for the same order id discards the first.
func (app *application) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var payload CreateSessionPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(&payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	customerID := payload.Customer.ID
	if customerID == "" {
		customerID = uuid.NewString()
	}

	m := app.flows.Create(flow.Config{
		OrderID:  payload.OrderID,
		Amount:   payload.Amount,
		Currency: app.config.currency,
		Payee: flow.Payee{
			Identifier:  app.config.payee.identifier,
			DisplayName: app.config.payee.displayName,
		},
		Platform: deeplink.Platform(payload.Platform),
		Customer: gateway.Customer{
			ID:    customerID,
			Name:  payload.Customer.Name,
			Email: payload.Customer.Email,
			Phone: payload.Customer.Phone,
		},

		Gateway:   app.gateway,
		Sink:      flow.LogSink{Logger: app.logger},
		Notifier:  flow.LogNotifier{Logger: app.logger},
		Navigator: flow.LogNavigator{Logger: app.logger},
		Clipboard: flow.NoopClipboard{},
		Validator: reference.NewValidator(),
		Logger:    app.logger,

		CountdownMinutes: app.config.countdown.minutes,
		CountdownSeconds: app.config.countdown.seconds,
	})

	app.jsonResponse(w, http.StatusCreated, app.sessionResponse(m))
}

func (app *application) sessionFromRequest(w http.ResponseWriter, r *http.Request) (*flow.Machine, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	m, ok := app.flows.Get(sessionID)
	if !ok {
		app.notFoundResponse(w, r, fmt.Errorf("session %s not found", sessionID))
		return nil, false
	}
	return m, true
}

// flowErrorResponse maps state-machine errors onto HTTP responses.
// Validation problems are recoverable and re-promptable; illegal transitions
// and in-flight collisions are conflicts.
func (app *application) flowErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var verr *flow.ValidationError
	var terr *flow.TransitionError
	var gerr *gateway.GatewayError

	switch {
	case errors.As(err, &verr):
		app.unprocessableEntityResponse(w, r, err)
	case errors.As(err, &terr),
		errors.Is(err, flow.ErrBusy),
		errors.Is(err, flow.ErrFlowComplete),
		errors.Is(err, flow.ErrSuperseded):
		app.conflictResponse(w, r, err)
	case errors.Is(err, gateway.ErrNotConfigured):
		writeJSONError(w, http.StatusServiceUnavailable, "payment method unavailable")
	case errors.As(err, &gerr):
		app.badGatewayResponse(w, r, err)
	default:
		app.internalServerError(w, r, err)
	}
}

// GET /v1/sessions/{sessionID}
func (app *application) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := app.sessionFromRequest(w, r)
	if !ok {
		return
	}
	app.jsonResponse(w, http.StatusOK, app.sessionResponse(m))
}

// DELETE /v1/sessions/{sessionID}
func (app *application) discardSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	app.flows.Discard(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

type SelectChannelPayload struct {
	Channel string `json:"channel" validate:"required,oneof=direct_app scan_to_pay hosted_gateway"`
	App     string `json:"app" validate:"omitempty,oneof=gpay phonepe paytm bhim"`
}

// POST /v1/sessions/{sessionID}/channel
func (app *application) selectChannelHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := app.sessionFromRequest(w, r)
	if !ok {
		return
	}

	var payload SelectChannelPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(&payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := m.SelectChannel(flow.Channel(payload.Channel), payload.App); err != nil {
		app.flowErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, app.sessionResponse(m))
}

type launchResponse struct {
	URI             string `json:"uri,omitempty"`
	FallbackURI     string `json:"fallback_uri,omitempty"`
	FallbackDelayMS int64  `json:"fallback_delay_ms,omitempty"`
	QRPayload       string `json:"qr_payload,omitempty"`
	PayeeID         string `json:"payee_id"`
}

// POST /v1/sessions/{sessionID}/launch
// Idempotent: "open app again" just re-issues the deep link.
func (app *application) launchHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := app.sessionFromRequest(w, r)
	if !ok {
		return
	}

	res, err := m.Launch()
	if err != nil {
		app.flowErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, launchResponse{
		URI:             res.Link.URI,
		FallbackURI:     res.Link.FallbackURI,
		FallbackDelayMS: res.Link.FallbackDelay.Milliseconds(),
		QRPayload:       res.QRPayload,
		PayeeID:         res.PayeeID,
	})
}

type EnterReferencePayload struct {
	Reference string `json:"reference" validate:"max=64"`
}

// POST /v1/sessions/{sessionID}/reference
// Live feedback only; Confirm is the authoritative gate.
func (app *application) enterReferenceHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := app.sessionFromRequest(w, r)
	if !ok {
		return
	}

	var payload EnterReferencePayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(&payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	valid, err := m.EnterReference(payload.Reference)
	if err != nil {
		app.flowErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, map[string]bool{"valid": valid})
}

// POST /v1/sessions/{sessionID}/confirm
func (app *application) confirmHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := app.sessionFromRequest(w, r)
	if !ok {
		return
	}

	if err := m.Confirm(); err != nil {
		app.flowErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, app.sessionResponse(m))
}

// POST /v1/sessions/{sessionID}/reset
// "Choose a different payment method."
func (app *application) resetHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := app.sessionFromRequest(w, r)
	if !ok {
		return
	}

	if err := m.Reset(); err != nil {
		app.flowErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, app.sessionResponse(m))
}

type gatewayCheckoutResponse struct {
	PaymentSessionID string `json:"payment_session_id"`
	OrderToken       string `json:"order_token,omitempty"`
	CFOrderID        string `json:"cf_order_id,omitempty"`
}

// POST /v1/sessions/{sessionID}/gateway/checkout
func (app *application) gatewayCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := app.sessionFromRequest(w, r)
	if !ok {
		return
	}

	order, err := m.StartGatewayCheckout(r.Context())
	if err != nil {
		app.flowErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, gatewayCheckoutResponse{
		PaymentSessionID: order.PaymentSessionID,
		OrderToken:       order.OrderToken,
		CFOrderID:        order.CFOrderID,
	})
}

// POST /v1/sessions/{sessionID}/payee/copy
// Clipboard failure is non-fatal; the identifier comes back as plain data
// either way so the UI can show it for manual copying.
func (app *application) copyPayeeHandler(w http.ResponseWriter, r *http.Request) {
	m, ok := app.sessionFromRequest(w, r)
	if !ok {
		return
	}

	id, err := m.CopyPayeeID()

	app.jsonResponse(w, http.StatusOK, map[string]any{
		"payee_id": id,
		"copied":   err == nil,
	})
}

type sessionListResponse struct {
	Sessions   []flow.Session    `json:"sessions"`
	Pagination params.Pagination `json:"pagination"`
}

// GET /v1/sessions?page=1&limit=15
// Operator view of the live sessions. Basic-auth'd like /debug/vars.
func (app *application) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	p := params.ParsePagination(r.URL.Query())

	all := app.flows.List()
	p.ComputeMeta(len(all))

	start := p.Offset
	if start > len(all) {
		start = len(all)
	}
	end := start + p.Limit
	if end > len(all) {
		end = len(all)
	}

	app.jsonResponse(w, http.StatusOK, sessionListResponse{
		Sessions:   all[start:end],
		Pagination: p,
	})
}

type appDTO struct {
	Key            string `json:"key"`
	Name           string `json:"name"`
	AndroidPackage string `json:"android_package"`
}

// GET /v1/apps
func (app *application) listAppsHandler(w http.ResponseWriter, r *http.Request) {
	out := make([]appDTO, 0, len(deeplink.Apps))
	for _, a := range deeplink.Apps {
		out = append(out, appDTO{Key: a.Key, Name: a.Name, AndroidPackage: a.AndroidPackage})
	}
	app.jsonResponse(w, http.StatusOK, out)
}
