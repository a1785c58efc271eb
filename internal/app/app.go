// Package app wires configuration, infrastructure and domain services into
// the running API server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/order-lifecycle/internal/broker"
	"github.com/xenking/order-lifecycle/internal/counter"
	"github.com/xenking/order-lifecycle/internal/domain/order"
	"github.com/xenking/order-lifecycle/internal/domain/payment"
	"github.com/xenking/order-lifecycle/internal/domain/promotion"
	"github.com/xenking/order-lifecycle/internal/handler"
	"github.com/xenking/order-lifecycle/internal/mailer"
	"github.com/xenking/order-lifecycle/internal/notify"
	"github.com/xenking/order-lifecycle/internal/payment/momo"
	"github.com/xenking/order-lifecycle/internal/payment/stripe"
	"github.com/xenking/order-lifecycle/internal/pricing"
	"github.com/xenking/order-lifecycle/internal/repository"
	"github.com/xenking/order-lifecycle/pkg/health"
	"github.com/xenking/order-lifecycle/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Order numbers: Redis daily counter, or the PostgreSQL sequence.
	var numbers order.NumberSequence = repository.NewOrderNumberSequence(pool)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		numbers = counter.NewDaily(rdb, cfg.Redis.Prefix)
		lg.Info("Using redis order counter", zap.String("addr", cfg.Redis.Addr))
	}

	// Notifications: broker fan-out plus optional e-mail.
	mq, err := broker.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
	if err != nil {
		return errors.Wrap(err, "connect broker")
	}
	defer func() { _ = mq.Close() }()
	healthSvc.AddReadinessCheck("rabbitmq", 2*time.Second, mq.Check)

	var mail notify.Mailer
	if cfg.SMTP.Host != "" {
		smtp, err := mailer.New(mailer.Config{
			Host:       cfg.SMTP.Host,
			Port:       cfg.SMTP.Port,
			Username:   cfg.SMTP.Username,
			Password:   cfg.SMTP.Password,
			From:       cfg.SMTP.From,
			Currency:   cfg.SMTP.Currency,
			RequireTLS: cfg.SMTP.RequireTLS,
		})
		if err != nil {
			return errors.Wrap(err, "create mailer")
		}
		mail = smtp
	} else {
		lg.Info("SMTP host not set, customer e-mails disabled")
	}

	users := repository.NewUserRepository(pool)
	notifier := notify.New(mq, users, mail)

	priceClient, err := pricing.NewClient(pricing.Options{
		BaseURL:        cfg.Pricing.BaseURL,
		Timeout:        cfg.Pricing.Timeout,
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create pricing client")
	}

	// Domain services.
	orderSvc, err := order.NewService(order.Deps{
		Orders:         repository.NewOrderRepository(pool),
		References:     repository.NewReferenceRepository(pool),
		Carts:          repository.NewCartRepository(pool),
		UnitOfWork:     repository.NewUnitOfWork(pool),
		Pricing:        priceClient,
		Gifts:          promotion.NewReconciler(repository.NewVariantRepository(pool)),
		Numbers:        numbers,
		Notifier:       notifier,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	opts := handler.Options{Orders: orderSvc}
	gateways := map[order.PaymentMethod]payment.Gateway{}
	if cfg.MoMo.Enabled() {
		gw, err := momo.NewClient(cfg.MoMo, m.TracerProvider())
		if err != nil {
			return errors.Wrap(err, "create momo client")
		}
		gateways[order.PaymentMoMo] = gw
		opts.MoMo = gw
	}
	if cfg.Stripe.Enabled() {
		gw, err := stripe.New(cfg.Stripe)
		if err != nil {
			return errors.Wrap(err, "create stripe gateway")
		}
		gateways[order.PaymentStripe] = gw
		opts.Stripe = gw
	}
	lg.Info("Payment gateways", zap.Int("count", len(gateways)))
	opts.Payments = payment.NewService(orderSvc, gateways)

	opts.Security, err = handler.NewSecurity(handler.SecurityConfig{
		Secret: []byte(cfg.JWT.Secret),
		Issuer: cfg.JWT.Issuer,
		Leeway: cfg.JWT.Leeway,
	})
	if err != nil {
		return errors.Wrap(err, "create security")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	router := newRouter(ctx, cfg, lg, healthSvc, handler.New(opts))
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(router, "orders-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newRouter mounts the probes and the API behind the middleware chain.
func newRouter(ctx context.Context, cfg *Config, lg *zap.Logger, hs *health.Health, api *handler.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.RequestID(),
		httpmiddleware.Recovery(),
		httpmiddleware.LogRequests(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.HeaderRequestID},
			ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
	)
	r.Get("/livez", hs.LiveEndpoint)
	r.Get("/readyz", hs.ReadyEndpoint)
	r.Mount("/api", api.Routes())
	return r
}
