package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"paylane/internal/flow"
	"paylane/internal/gateway"
	"paylane/internal/ratelimiter"
)

type application struct {
	config      config
	logger      *zap.SugaredLogger
	flows       *flow.Registry
	gateway     *gateway.Client
	rateLimiter *ratelimiter.FixedWindowRateLimiter
}

type config struct {
	addr        string
	env         string
	apiURL      string
	frontendURL string
	appScheme   string // shopper app's custom scheme for the return deep link
	currency    string
	payee       payeeConfig
	gateway     gatewayConfig
	countdown   countdownConfig
	auth        authConfig
	rateLimiter ratelimiter.Config
}

type payeeConfig struct {
	identifier  string
	displayName string
}

type gatewayConfig struct {
	appID        string
	secretKey    string
	notifyURL    string
	isProduction bool
}

type countdownConfig struct {
	minutes int
	seconds int
}

type authConfig struct {
	basic basicConfig
}

type basicConfig struct {
	user string
	pass string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(app.RateLimiterMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// request-scoped timeout; gateway calls inherit it through r.Context()
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		r.Get("/apps", app.listAppsHandler)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", app.createSessionHandler)
			r.With(app.BasicAuthMiddleware()).Get("/", app.listSessionsHandler)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", app.getSessionHandler)
				r.Delete("/", app.discardSessionHandler)
				r.Post("/channel", app.selectChannelHandler)
				r.Post("/launch", app.launchHandler)
				r.Post("/reference", app.enterReferenceHandler)
				r.Post("/confirm", app.confirmHandler)
				r.Post("/reset", app.resetHandler)
				r.Post("/gateway/checkout", app.gatewayCheckoutHandler)
				r.Post("/payee/copy", app.copyPayeeHandler)
			})
		})

		// the hosted gateway redirects the shopper's browser here
		r.Get("/payments/gateway/return", app.gatewayReturnHandler)
	})
	return r
}

func (app *application) run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	// Implementing graceful shutdown
	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
