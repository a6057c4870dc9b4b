package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/scent-shop/internal/catalog"
	"github.com/xenking/scent-shop/internal/domain/auth"
	"github.com/xenking/scent-shop/internal/domain/order"
	"github.com/xenking/scent-shop/internal/domain/product"
	"github.com/xenking/scent-shop/internal/handler"
	"github.com/xenking/scent-shop/internal/storage/memory"
	"github.com/xenking/scent-shop/internal/storage/postgres"
	"github.com/xenking/scent-shop/pkg/health"
	"github.com/xenking/scent-shop/pkg/httpmiddleware"
)

// storage is the selected backend for products and orders.
type storage struct {
	products product.Repository
	orders   order.Repository
	ready    health.CheckFunc
	close    func()
}

func openStorage(ctx context.Context, lg *zap.Logger, cfg *Config) (*storage, error) {
	switch cfg.Storage.Driver {
	case DriverMemory:
		products, err := catalog.Load(cfg.Storage.CatalogFile)
		if err != nil {
			return nil, errors.Wrap(err, "load catalog")
		}
		lg.Info("Using in-memory storage",
			zap.String("catalog", cfg.Storage.CatalogFile),
			zap.Int("products", len(products)),
		)
		return &storage{
			products: memory.NewProductStore(products...),
			orders:   memory.NewOrderStore(),
			ready:    func(context.Context) error { return nil },
			close:    func() {},
		}, nil
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		lg.Info("Using PostgreSQL storage")
		return &storage{
			products: postgres.NewProductRepository(pool),
			orders:   postgres.NewOrderRepository(pool),
			ready:    health.PingCheck(pool),
			close:    pool.Close,
		}, nil
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	store, err := openStorage(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck(cfg.Storage.Driver, 5*time.Second, store.ready)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()

	tokens, err := auth.NewTokens(auth.TokenConfig{
		Secret: []byte(cfg.Auth.Secret),
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.TTL,
	})
	if err != nil {
		return errors.Wrap(err, "create token verifier")
	}

	orderService, err := order.NewService(store.products, store.orders,
		order.Config{
			RestoreAttempts:   cfg.Order.RestoreAttempts,
			RestoreBackoff:    cfg.Order.RestoreBackoff,
			RestoreMaxBackoff: cfg.Order.RestoreMaxBackoff,
			RestoreTimeout:    cfg.Order.RestoreTimeout,
		},
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	limiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		PerMinute: cfg.RateLimit.PerMinute,
		Burst:     cfg.RateLimit.Burst,
		KeyFunc:   handler.CallerKey,
	})
	h := handler.NewHandler(orderService, tokens, handler.Config{PlaceOrderLimiter: limiter})

	router := chi.NewRouter()
	router.Use(
		httpmiddleware.LogRequests(handler.RoutePattern),
		httpmiddleware.Labeler(handler.RoutePattern),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Mount("/api/v1", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Instrument("scent-shop", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
		),
	}
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := limiter.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "rate limiter cleanup")
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown: flip readiness, let load balancers notice, drain.
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
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
