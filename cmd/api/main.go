package main

import (
	"expvar"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"paylane/internal/flow"
	"paylane/internal/gateway"
	"paylane/internal/ratelimiter"
)

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	defaultRequests := 200
	defaultEnabled := false

	requestsPerTimeFrame := defaultRequests
	if val, exists := os.LookupEnv("RATELIMITER_REQUESTS_COUNT"); exists {
		if parsedVal, err := strconv.Atoi(val); err == nil {
			requestsPerTimeFrame = parsedVal
		} else {
			fmt.Println("Invalid RATELIMITER_REQUESTS_COUNT, defaulting to", defaultRequests)
		}
	}

	enabled := defaultEnabled
	if val, exists := os.LookupEnv("RATE_LIMITER_ENABLED"); exists {
		if parsedVal, err := strconv.ParseBool(val); err == nil {
			enabled = parsedVal
		} else {
			fmt.Println("Invalid RATE_LIMITER_ENABLED, defaulting to", defaultEnabled)
		}
	}

	return ratelimiter.Config{
		RequestsPerTimeFrame: requestsPerTimeFrame,
		TimeFrame:            5 * time.Second,
		Enabled:              enabled,
	}
}

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	level := zapcore.InfoLevel
	core := zapcore.NewCore(consoleEncoder, zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), level)

	logger := zap.New(core)

	return logger.Sugar(), nil
}

var version = "0.3.0"

func envInt(key string, fallback int) int {
	val, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		fmt.Printf("Invalid %s, defaulting to %d\n", key, fallback)
		return fallback
	}
	return parsed
}

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Fatalf("Error loading .env file: %v", err)
	}

	cfg := config{
		addr:        os.Getenv("ADDR"),
		env:         os.Getenv("ENV"),
		apiURL:      os.Getenv("EXTERNAL_URL"),
		frontendURL: os.Getenv("FRONTEND_URL"),
		appScheme:   os.Getenv("APP_SCHEME"),
		currency:    "INR",
		payee: payeeConfig{
			identifier:  os.Getenv("PAYEE_VPA"),
			displayName: os.Getenv("PAYEE_NAME"),
		},
		gateway: gatewayConfig{
			appID:        os.Getenv("CASHFREE_APP_ID"),
			secretKey:    os.Getenv("CASHFREE_SECRET_KEY"),
			notifyURL:    os.Getenv("CASHFREE_NOTIFY_URL"),
			isProduction: os.Getenv("CASHFREE_IS_PRODUCTION") == "true",
		},
		countdown: countdownConfig{
			minutes: envInt("COUNTDOWN_MINUTES", 9),
			seconds: envInt("COUNTDOWN_SECONDS", 59),
		},
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
		},
		rateLimiter: LoadRateLimiterConfig(),
	}
	if cfg.appScheme == "" {
		cfg.appScheme = "shop"
	}
	if cfg.payee.identifier == "" {
		log.Fatal("PAYEE_VPA must be set")
	}

	// Logger
	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	// Gateway client; credentials may legitimately be absent, in which case
	// the hosted-gateway channel reports "payment method unavailable"
	gw := gateway.NewClient(gateway.Config{
		AppID:        cfg.gateway.appID,
		SecretKey:    cfg.gateway.secretKey,
		Currency:     cfg.currency,
		ReturnURL:    cfg.apiURL + "/v1/payments/gateway/return",
		NotifyURL:    cfg.gateway.notifyURL,
		IsProduction: cfg.gateway.isProduction,
	})
	if !gw.Configured() {
		logger.Warn("gateway credentials missing; hosted checkout disabled")
	}

	// Rate limiter
	rateLimiter := ratelimiter.NewFixedWindowLimiter(
		cfg.rateLimiter.RequestsPerTimeFrame,
		cfg.rateLimiter.TimeFrame,
	)

	flows := flow.NewRegistry(logger)

	app := &application{
		config:      cfg,
		logger:      logger,
		flows:       flows,
		gateway:     gw,
		rateLimiter: rateLimiter,
	}

	// Metrics collected at /v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("active_sessions", expvar.Func(func() any {
		return flows.Active()
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.mount()

	logger.Fatal(app.run(mux))
}
