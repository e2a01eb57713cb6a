package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-orders/internal/cache"
	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/promo"
	"github.com/xenking/kart-orders/internal/handler"
	"github.com/xenking/kart-orders/internal/observability"
	"github.com/xenking/kart-orders/internal/outbox"
	"github.com/xenking/kart-orders/internal/repository"
	"github.com/xenking/kart-orders/pkg/health"
	"github.com/xenking/kart-orders/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the outbox relay,
// and handles graceful shutdown. It is the single wiring point for the
// application.
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
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Repositories.
	products := repository.NewProductRepository(pool)
	promos := repository.NewPromoRepository(pool)
	orders := repository.NewOrderRepository(pool)
	apikeys := repository.NewAPIKeyRepository(pool)
	events := repository.NewOutboxRepository(pool)

	// Confirmations are always recorded in the outbox so that enabling Kafka
	// later publishes the backlog.
	orderOpts := []order.Option{
		order.WithEvents(outbox.NewWriter(events, cfg.Kafka.Topic)),
	}

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
		orderOpts = append(orderOpts, order.WithCache(cache.NewConfirmed(rdb, cfg.Redis.TTL)))
		lg.Info("Confirmed order cache enabled", zap.String("redis", cfg.Redis.Addr))
	}

	// Domain services.
	orderSvc := order.NewService(repository.NewTransactor(pool), products, promos, orders, orderOpts...)
	cart, err := observability.NewCart(orderSvc, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "instrument cart service")
	}
	promoSvc := promo.NewService(promos)
	authenticator := auth.NewAuthenticator(apikeys, []byte(cfg.APIKeyPepper))

	// HTTP: health endpoints + gin API routes on one server.
	api := handler.NewRouter(handler.NewHandler(cart, promoSvc, authenticator), "/api")
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", api)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument("kart-api", m),
			httpmiddleware.LogRequests(),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.HeaderKey(handler.HeaderUserID),
			}),
		),
	}

	g, gctx := errgroup.WithContext(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := outbox.NewKafkaPublisher(cfg.Kafka.Brokers)
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Warn("Close kafka publisher", zap.Error(err))
			}
		}()
		relay := outbox.NewRelay(events, publisher, cfg.Outbox.Interval, cfg.Outbox.BatchSize)
		g.Go(func() error {
			lg.Info("Outbox relay started",
				zap.Strings("brokers", cfg.Kafka.Brokers),
				zap.String("topic", cfg.Kafka.Topic),
			)
			return relay.Run(gctx)
		})
	} else {
		lg.Info("Kafka brokers not configured, outbox relay disabled")
	}

	healthSvc.Start(gctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
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
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
