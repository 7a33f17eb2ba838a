package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/application/claimsync"
	"github.com/shopflow/backend/internal/application/ingestion"
	"github.com/shopflow/backend/internal/application/invoicing"
	"github.com/shopflow/backend/internal/application/stocksync"
	"github.com/shopflow/backend/internal/application/tracking"
	"github.com/shopflow/backend/internal/infrastructure/carriers"
	"github.com/shopflow/backend/internal/infrastructure/channels"
	"github.com/shopflow/backend/internal/infrastructure/config"
	"github.com/shopflow/backend/internal/infrastructure/event"
	"github.com/shopflow/backend/internal/infrastructure/keymutex"
	"github.com/shopflow/backend/internal/infrastructure/logger"
	"github.com/shopflow/backend/internal/infrastructure/persistence"
	"github.com/shopflow/backend/internal/infrastructure/retry"
	"github.com/shopflow/backend/internal/infrastructure/runlock"
	"github.com/shopflow/backend/internal/infrastructure/scheduler"
	"github.com/shopflow/backend/internal/interfaces/http/handler"
	"github.com/shopflow/backend/internal/interfaces/http/middleware"
	"github.com/shopflow/backend/internal/interfaces/http/router"

	"github.com/shopflow/backend/internal/domain/carrier"
	"github.com/shopflow/backend/internal/domain/channel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	defer func() {
		_ = log.Sync()
	}()

	log.Info("starting shopflow backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("error closing database", zap.Error(err))
		}
	}()
	log.Info("database connected")

	// Repositories
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	claimRepo := persistence.NewGormClaimRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	runRepo := persistence.NewGormBatchRunRepository(db.DB)
	cursorRepo := persistence.NewGormCursorRepository(db.DB)

	// Event bus with the audit log subscriber
	eventBus := event.NewInMemoryBus(log)
	eventBus.Subscribe(event.NewLogHandler(log))

	// The batch run lock is shared through redis when available so a
	// second process cannot start a concurrent run. Without redis a
	// process-local lock still protects this instance.
	var batchLocker runlock.Locker = runlock.NewInMemoryLocker()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, falling back to in-process batch lock", zap.Error(err))
	} else {
		batchLocker = runlock.NewRedisLocker(redisClient, cfg.Batch.LockTTL, log)
		log.Info("redis connected", zap.String("addr", cfg.Redis.Addr()))
	}
	cancelPing()
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("error closing redis client", zap.Error(err))
		}
	}()

	// External adapters
	channelRegistry := channels.NewRegistry(cfg.Channels, cfg.Ingestion.PageSize, log)
	carrierRegistry, err := carriers.NewRegistry(cfg.Carriers, cfg.Batch.DefaultCarrier, log)
	if err != nil {
		log.Fatal("failed to build carrier registry", zap.Error(err))
	}
	log.Info("adapters registered",
		zap.Int("channels", len(channelRegistry.All())),
		zap.Int("carriers", len(carrierRegistry.All())),
	)

	retryPolicy := retry.NewPolicy(
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialDelay,
		cfg.Retry.MaxDelay,
		cfg.Retry.MaxElapsed,
		func(err error) bool {
			return channel.IsRetryable(err) || carrier.IsRetryable(err)
		},
	)
	locks := keymutex.New()

	// Application services
	ingestionService := ingestion.NewService(channelRegistry, orderRepo, cursorRepo, retryPolicy, locks, log)
	batchProcessor := invoicing.NewBatchProcessor(
		channelRegistry, carrierRegistry,
		orderRepo, runRepo, productRepo,
		batchLocker, locks, retryPolicy,
		eventBus, cfg.Carriers.Sender, log,
	)
	stockService := stocksync.NewService(channelRegistry, productRepo, retryPolicy, locks, eventBus, cfg.StockSync.Concurrency, log)
	claimService := claimsync.NewService(channelRegistry, claimRepo, orderRepo, productRepo, retryPolicy, locks, eventBus, cfg.ClaimSync.Lookback, log)
	trackingService := tracking.NewService(carrierRegistry, orderRepo, retryPolicy, locks, eventBus, log)

	// Background schedule: the invoice batch trigger plus the interval
	// jobs, each of which is also reachable through the API.
	var batchTrigger *scheduler.BatchTrigger
	if cfg.Batch.Enabled {
		batchTrigger, err = scheduler.NewBatchTrigger(cfg.Batch, batchProcessor, log)
		if err != nil {
			log.Fatal("invalid batch schedule", zap.Error(err))
		}
	}
	var jobs []scheduler.Job
	if cfg.Ingestion.Enabled {
		jobs = append(jobs, scheduler.Job{
			Name:     "order-ingestion",
			Interval: cfg.Ingestion.Interval,
			Run: func(ctx context.Context) error {
				_, err := ingestionService.CollectNewOrders(ctx)
				return err
			},
		})
	}
	if cfg.StockSync.Enabled {
		jobs = append(jobs, scheduler.Job{
			Name:     "stock-sync",
			Interval: cfg.StockSync.Interval,
			Run: func(ctx context.Context) error {
				_, err := stockService.SyncAll(ctx)
				return err
			},
		})
	}
	if cfg.ClaimSync.Enabled {
		jobs = append(jobs, scheduler.Job{
			Name:     "claim-sync",
			Interval: cfg.ClaimSync.Interval,
			Run: func(ctx context.Context) error {
				_, err := claimService.SyncClaims(ctx)
				return err
			},
		})
	}
	if cfg.Tracking.Enabled {
		jobs = append(jobs, scheduler.Job{
			Name:     "tracking-refresh",
			Interval: cfg.Tracking.Interval,
			Run: func(ctx context.Context) error {
				_, err := trackingService.RefreshTracking(ctx)
				return err
			},
		})
	}
	sched := scheduler.NewScheduler(batchTrigger, jobs, log)
	if err := sched.Start(context.Background()); err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sched.Stop(stopCtx); err != nil {
			log.Error("error stopping scheduler", zap.Error(err))
		}
	}()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("failed to set trusted proxies", zap.Error(err))
		}
	}
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowOrigins: cfg.HTTP.CORSAllowOrigins,
		AllowMethods: cfg.HTTP.CORSAllowMethods,
		AllowHeaders: cfg.HTTP.CORSAllowHeaders,
		MaxAge:       12 * time.Hour,
	}))

	// Liveness probe outside API versioning
	engine.GET("/health", healthHandler(db))

	router.NewRouter(engine).
		Register(handler.NewSystemHandler(cfg.App.Name, cfg.App.Env)).
		Register(handler.NewOrderHandler(orderRepo, claimRepo, ingestionService, batchProcessor, trackingService)).
		Register(handler.NewClaimHandler(claimRepo, claimService)).
		Register(handler.NewBatchHandler(runRepo, batchProcessor)).
		Register(handler.NewProductHandler(productRepo, stockService)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exited")
}

func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
