package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kjfer/peri-craft-campus-sub001/config"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/auth"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/db"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/enrollment"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/handlers"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/metrics"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/middleware"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/notify"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/providers"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/reconcile"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/scheduler"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/status"
	"github.com/Kjfer/peri-craft-campus-sub001/logging"
	"github.com/go-chi/chi/v5"
)

func main() {
	logger := logging.GetSugaredLogger()
	defer logger.Sync()

	cfg := config.GetConfig()
	auth.Init(cfg.JWTSecret)

	database, err := db.NewManager(cfg)
	if err != nil {
		logger.Fatal(err)
	}
	defer database.Close()

	registry := metrics.NewRegistry()
	hub := status.NewHub()

	var notifier notify.Notifier
	if cfg.KafkaBrokers != "" {
		notifier = notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	} else {
		notifier = &notify.LogNotifier{Logger: logger}
	}

	granter := enrollment.NewGranter(database, registry, logger)
	engine := reconcile.NewEngine(database, granter, notifier, hub, registry, logger, cfg.LookupRetryDelay)
	observer := status.NewObserver(database, hub, cfg.PollInterval, cfg.PollMaxWait, logger)
	gateway := providers.NewGatewayAdapter(registry, logger)
	manual := providers.NewManualAdapter(database, &providers.StructuralVerifier{
		Database: database,
		Window:   cfg.OrderExpiry,
	}, logger)

	jobs := scheduler.New(logger)
	err = jobs.Register("expire-pending-orders", 5*time.Minute, func(ctx context.Context) {
		expired, err := engine.ExpirePending(time.Now().Add(-cfg.OrderExpiry))
		if err != nil {
			logger.Warnw("failed to expire pending orders", "error", err)
			return
		}
		if expired > 0 {
			logger.Infow("expired pending orders", "count", expired)
		}
	})
	if err != nil {
		logger.Fatalw("failed to register job", "error", err)
	}
	if err = jobs.Register("retry-enrollments", cfg.EnrollmentRetryInterval, granter.RetryPending); err != nil {
		logger.Fatalw("failed to register job", "error", err)
	}
	jobs.StartAll()

	h := handlers.Handler{
		Database: database,
		Logger:   logger,
		Engine:   engine,
		Observer: observer,
		Gateway:  gateway,
		Manual:   manual,
	}

	r := initRouter(h, cfg, registry)

	server := &http.Server{Addr: cfg.RunAddress, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := jobs.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("scheduler shutdown incomplete", "error", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("server shutdown incomplete", "error", err)
		}
	}()

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Fatalw("failed to start server", "error", err)
	}
}

func initRouter(h handlers.Handler, cfg *config.Config, registry *metrics.Registry) *chi.Mux {
	webhookRateLimit := middleware.RateLimit(cfg.WebhookRateLimit, cfg.WebhookRateBurst)

	r := chi.NewRouter()
	r.Post(`/api/user/register`,
		func(w http.ResponseWriter, r *http.Request) {
			middleware.Conveyor(
				http.HandlerFunc(h.Register),
				h.Logger,
				middleware.WriteWithCompression,
				middleware.ReadWithCompression,
				middleware.ValidateCredentialsAndHashLogin,
			).ServeHTTP(w, r)
		},
	)
	r.Post(`/api/user/login`,
		func(w http.ResponseWriter, r *http.Request) {
			middleware.Conveyor(
				http.HandlerFunc(h.Login),
				h.Logger,
				middleware.WriteWithCompression,
				middleware.ReadWithCompression,
				middleware.ValidateCredentialsAndHashLogin,
			).ServeHTTP(w, r)
		},
	)
	r.Post(`/api/orders`,
		func(w http.ResponseWriter, r *http.Request) {
			middleware.Conveyor(
				http.HandlerFunc(h.CreateOrder),
				h.Logger,
				middleware.WriteWithCompression,
				middleware.ReadWithCompression,
				middleware.ValidateAuth,
			).ServeHTTP(w, r)
		},
	)
	r.Post(`/api/payments/webhook`,
		func(w http.ResponseWriter, r *http.Request) {
			middleware.Conveyor(
				http.HandlerFunc(h.Webhook),
				h.Logger,
				webhookRateLimit,
			).ServeHTTP(w, r)
		},
	)
	r.Post(`/api/payments/confirm`,
		func(w http.ResponseWriter, r *http.Request) {
			middleware.Conveyor(
				http.HandlerFunc(h.Confirm),
				h.Logger,
				middleware.WriteWithCompression,
				middleware.ReadWithCompression,
				middleware.ValidateAuth,
			).ServeHTTP(w, r)
		},
	)
	r.Get(`/api/orders/{orderID}`,
		func(w http.ResponseWriter, r *http.Request) {
			middleware.Conveyor(
				http.HandlerFunc(h.OrderStatus),
				h.Logger,
				middleware.WriteWithCompression,
				middleware.ValidateAuth,
			).ServeHTTP(w, r)
		},
	)
	r.Get(`/api/orders/{orderID}/wait`,
		func(w http.ResponseWriter, r *http.Request) {
			middleware.Conveyor(
				http.HandlerFunc(h.OrderStatusWait),
				h.Logger,
				middleware.ValidateAuth,
			).ServeHTTP(w, r)
		},
	)
	r.Method(http.MethodGet, `/metrics`, registry.Handler())
	return r
}
