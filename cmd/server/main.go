package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/inventory-reservation/internal/audit"
	"github.com/iliyamo/inventory-reservation/internal/config"
	"github.com/iliyamo/inventory-reservation/internal/database"
	"github.com/iliyamo/inventory-reservation/internal/handler"
	"github.com/iliyamo/inventory-reservation/internal/logger"
	"github.com/iliyamo/inventory-reservation/internal/middleware"
	"github.com/iliyamo/inventory-reservation/internal/observability"
	"github.com/iliyamo/inventory-reservation/internal/queue"
	"github.com/iliyamo/inventory-reservation/internal/repository"
	"github.com/iliyamo/inventory-reservation/internal/router"
	"github.com/iliyamo/inventory-reservation/internal/service"
	"github.com/iliyamo/inventory-reservation/internal/worker"
)

func main() {
	_ = godotenv.Load() // a missing .env is fine; the environment wins

	rcfg := config.LoadReservationConfig()
	cfg := config.Load(rcfg.StoreDriver)

	lg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, config.LoadTracingConfig())
	if err != nil {
		lg.Error("tracing setup failed", zap.Error(err))
	}

	// Persistence.
	var (
		store repository.Store
		db    *sql.DB
	)
	switch rcfg.StoreDriver {
	case config.StoreMemory:
		lg.Warn("using in-memory store; data is lost on restart")
		store = repository.NewMemoryStore(rcfg.LockWaitTimeout)
	default:
		db, err = database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			lg.Fatal("database open failed", zap.Error(err))
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			lg.Fatal("database migrate failed", zap.Error(err))
		}
		store = repository.NewMySQLStore(db, rcfg.LockWaitTimeout)
	}

	// Redis is optional: without it the cache, rate limiter and sweep
	// lease are disabled.
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		lg.Warn("redis unavailable; cache, rate limit and sweep lease disabled", zap.Error(err))
	} else {
		defer rdb.Close()
	}

	amqpURL := config.AMQPURL()
	var pub *queue.Publisher
	if rcfg.Scheduler == config.SchedulerAMQP || rcfg.AuditSink == config.AuditAMQP {
		pub = queue.NewPublisher(amqpURL, lg.Named("publisher"))
		defer pub.Close()
	}

	// Audit sink.
	var rec service.Recorder
	switch rcfg.AuditSink {
	case config.AuditAMQP:
		rec = audit.NewAMQPRecorder(pub)
		go func() {
			if err := queue.StartAuditConsumer(ctx, amqpURL, audit.NewSQLRecorder(store), lg); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	case config.AuditLog:
		rec = audit.NewLogRecorder(lg)
	default:
		rec = audit.NewSQLRecorder(store)
	}

	// Core services.  The local scheduler needs the reservation service
	// and the service needs the scheduler, hence the closure.
	ledger := service.NewStockLedger(lg.Named("ledger"))
	var (
		reservations *service.ReservationService
		sched        service.Scheduler
		local        *worker.LocalScheduler
	)
	switch rcfg.Scheduler {
	case config.SchedulerLocal:
		local = worker.NewLocalScheduler(func(ctx context.Context, id string) (service.ExpireResult, error) {
			return reservations.ExpireReservation(ctx, id)
		}, lg)
		sched = local
	default:
		sched = queue.NewExpiryScheduler(pub)
	}
	reservations = service.NewReservationService(store, ledger, sched, rec, service.ReservationConfig{
		HoldDuration:   rcfg.HoldDuration,
		SweepBatchSize: rcfg.SweepBatchSize,
	}, lg.Named("reservations"))
	orders := service.NewOrderService(store, ledger, rec, nil, lg.Named("orders"))

	if rcfg.Scheduler == config.SchedulerAMQP {
		go func() {
			if err := queue.StartExpiryConsumer(ctx, amqpURL, reservations, lg); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("expiry consumer stopped", zap.Error(err))
			}
		}()
	}

	var lease worker.Lease
	if rdb != nil && rcfg.SweepLease {
		lease = worker.NewRedisLease(rdb, "")
	}
	sweeper := worker.NewSweeper(reservations.SweepExpiredReservations, rcfg.SweepInterval, lease, lg)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(ctx)
	}()

	// HTTP.
	cacheCfg := config.LoadCacheConfig()
	purger := newPurger(cacheCfg, rdb)
	e := echo.New()
	e.HideBanner = true
	health := handler.NewHealthHandler(nil)
	if db != nil {
		health = handler.NewHealthHandler(db)
	}
	router.RegisterRoutes(e, router.Deps{
		JWTSecret:    cfg.JWTSecret,
		Health:       health,
		Products:     handler.NewProductHandler(store),
		Reservations: handler.NewReservationHandler(reservations, purger),
		Orders:       handler.NewOrderHandler(orders, purger),
		Redis:        rdb,
		RateLimit:    config.LoadRateLimitConfig(),
		Cache:        cacheCfg,
		Log:          lg,
	})

	addr := ":" + cfg.Port
	go func() {
		lg.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env),
			zap.String("store", rcfg.StoreDriver), zap.String("scheduler", rcfg.Scheduler), zap.String("audit", rcfg.AuditSink))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown", zap.Error(err))
	}
	<-sweepDone
	if local != nil {
		local.Stop()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		lg.Warn("tracing shutdown", zap.Error(err))
	}
}

// newPurger returns nil without Redis so handlers skip purging.
func newPurger(cfg config.CacheConfig, rdb *redis.Client) *middleware.CachePurger {
	if rdb == nil {
		return nil
	}
	return middleware.NewCachePurger(cfg, rdb)
}
