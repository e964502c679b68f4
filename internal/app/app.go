package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/emart-orders/internal/domain/assignment"
	"github.com/xenking/emart-orders/internal/domain/coupon"
	"github.com/xenking/emart-orders/internal/domain/order"
	"github.com/xenking/emart-orders/internal/domain/payment"
	"github.com/xenking/emart-orders/internal/events"
	"github.com/xenking/emart-orders/internal/gateway"
	"github.com/xenking/emart-orders/internal/handler"
	"github.com/xenking/emart-orders/internal/history"
	"github.com/xenking/emart-orders/internal/idempotency"
	"github.com/xenking/emart-orders/internal/repository"
	"github.com/xenking/emart-orders/internal/tracker"
	"github.com/xenking/emart-orders/pkg/health"
	"github.com/xenking/emart-orders/pkg/httpmiddleware"
)

const serviceName = "emart-orders"

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Run creates all dependencies, starts the HTTP server and the outbox relay,
// and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))

	// Status history is optional; without MongoDB the history endpoint
	// returns an empty trail.
	var statusLog order.StatusLog
	if cfg.Mongo.URI != "" {
		client, err := history.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return errors.Wrap(err, "connect mongo")
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		hist := history.New(client.Database(cfg.Mongo.Database))
		if err := hist.EnsureIndexes(ctx); err != nil {
			return errors.Wrap(err, "history indexes")
		}
		statusLog = hist
		healthSvc.AddReadinessCheck("mongo", 5*time.Second, health.PingCheck(pingerFunc(func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		})), health.WithFailureThreshold(5))
	} else {
		lg.Warn("MongoDB not configured, status history disabled")
	}

	var idem idempotency.Backend
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		idem = idempotency.NewStore(rdb, serviceName, cfg.Redis.IdempotencyTTL)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(pingerFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})), health.WithFailureThreshold(5))
	} else {
		lg.Warn("Redis not configured, Idempotency-Key is ignored")
	}

	var gw payment.Gateway = gateway.Noop{}
	if cfg.Payment.Endpoint != "" {
		gw = gateway.New(cfg.Payment, m.TracerProvider())
	} else {
		lg.Warn("Payment gateway not configured, online payments use the sandbox URL")
	}

	// Repositories.
	tx := repository.NewTransactor(pool)
	productRepo := repository.NewProductRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	accountRepo := repository.NewAccountRepository(pool)
	assignmentRepo := repository.NewAssignmentRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool, cfg.Kafka.Topic)

	// Domain services.
	orderService, err := order.NewService(order.Deps{
		Tx:             tx,
		Products:       productRepo,
		Coupons:        coupon.NewRepoValidator(couponRepo),
		CouponRules:    couponRepo,
		Orders:         orderRepo,
		Payments:       paymentRepo,
		Gateway:        gw,
		Accounts:       accountRepo,
		Outbox:         outboxRepo,
		History:        statusLog,
		Delivery:       cfg.Delivery.Rates(),
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	assignmentService := assignment.NewService(assignment.Deps{
		Tx:          tx,
		Orders:      orderRepo,
		Assignments: assignmentRepo,
		Accounts:    accountRepo,
		Outbox:      outboxRepo,
		History:     statusLog,
	})

	var relay *events.Relay
	if brokers := events.ParseBrokers(cfg.Kafka.Brokers); len(brokers) > 0 {
		pub := events.NewKafkaPublisher(brokers)
		defer func() { _ = pub.Close() }()

		relay = events.NewRelay(tx, outboxRepo, pub, events.RelayConfig{
			Interval:  cfg.Kafka.PollInterval,
			BatchSize: cfg.Kafka.BatchSize,
		}, events.NewRelayMetrics(reg), lg.Named("relay"))
	} else {
		lg.Warn("Kafka not configured, events stay in the outbox")
	}

	hub := tracker.NewHub(tracker.Config{AllowOrigins: cfg.CORS.Origins}, tracker.NewMetrics(reg), lg.Named("tracker"))

	httpMetrics := httpmiddleware.NewHTTPMetrics("emart", reg)
	if err := healthSvc.Register(reg, "emart"); err != nil {
		return errors.Wrap(err, "register health metrics")
	}

	router := handler.NewRouter(
		handler.NewHandler(orderService, assignmentService),
		handler.RouterConfig{
			Auth:        handler.NewAuthenticator(cfg.JWT.Secret, cfg.JWT.Issuer),
			Idempotency: idem,
			Middlewares: []func(http.Handler) http.Handler{
				httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
				httpmiddleware.LogRequests(),
				httpMetrics.Middleware(),
			},
		},
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	router.Handle("/ws/tracking", hub)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", idempotency.Header},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, idempotency.ReplayedHeader, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				RPS:   cfg.RateLimit.RPS,
				Burst: cfg.RateLimit.Burst,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		hub.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	return g.Wait()
}
