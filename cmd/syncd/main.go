package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/syncd/internal/application/notify"
	"github.com/erp/syncd/internal/application/optimistic"
	syncapp "github.com/erp/syncd/internal/application/sync"
	"github.com/erp/syncd/internal/domain/catalog"
	"github.com/erp/syncd/internal/domain/inventory"
	"github.com/erp/syncd/internal/domain/report"
	"github.com/erp/syncd/internal/domain/review"
	"github.com/erp/syncd/internal/domain/shared"
	"github.com/erp/syncd/internal/domain/trade"
	"github.com/erp/syncd/internal/infrastructure/config"
	"github.com/erp/syncd/internal/infrastructure/logger"
	"github.com/erp/syncd/internal/infrastructure/telemetry"
	"github.com/erp/syncd/internal/infrastructure/transport"
	"github.com/erp/syncd/internal/interfaces/http/handler"
	"github.com/erp/syncd/internal/interfaces/http/middleware"
	"github.com/erp/syncd/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting syncd",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("endpoint", cfg.Transport.Endpoint),
		zap.String("port", cfg.App.Port),
	)

	var metrics *telemetry.SyncMetrics
	if cfg.Telemetry.Enabled {
		metrics, err = telemetry.NewSyncMetrics(nil)
		if err != nil {
			log.Fatal("Failed to initialize metrics", zap.Error(err))
		}
	}

	// Wire codec
	codec, err := transport.NewCodec(cfg.Transport.Codec)
	if err != nil {
		log.Fatal("Failed to create wire codec", zap.Error(err))
	}

	// Push-channel connection
	conn := transport.NewConnection(cfg.Transport.Endpoint,
		transport.Identity{Role: cfg.Transport.Role, Token: cfg.Transport.Token},
		transport.WithLogger(log.Named("transport")),
		transport.WithCodec(codec),
		transport.WithMaxAttempts(cfg.Transport.MaxAttempts),
		transport.WithBackoff(cfg.Transport.BackoffBase, cfg.Transport.BackoffMax),
		transport.WithWriteTimeout(cfg.Transport.WriteTimeout),
		transport.WithRetryHook(func(int) { metrics.RecordReconnect() }),
	)

	// Notification pipeline: log sink plus the SSE stream to browser tabs
	streamHandler := handler.NewStreamHandler(
		handler.WithStreamLogger(log.Named("stream")),
	)
	dispatcher := notify.NewDispatcher(
		notify.Fanout(notify.LogSink(log.Named("notify")), streamHandler),
		notify.WithWindow(cfg.Notify.Window),
		notify.WithDispatcherLogger(log.Named("notify")),
	)

	// Optimistic write tracker
	tracker := optimistic.NewTracker(
		optimistic.WithTimeout(cfg.Optimistic.Timeout),
		optimistic.WithSweepInterval(cfg.Optimistic.SweepInterval),
		optimistic.WithTrackerLogger(log.Named("optimistic")),
		optimistic.WithTimeoutHandler(func(w optimistic.PendingWrite) {
			metrics.RecordTimeout(w.Domain)
			dispatcher.WriteTimedOut(w.Domain, w.EntityID)
		}),
	)
	defer tracker.Close()

	onConflict := func(desc shared.ChangeDescriptor) {
		metrics.RecordConflict(desc.Domain)
		dispatcher.Conflict(desc)
	}

	// Domain caches
	cacheLog := log.Named("cache")
	categories := syncapp.NewCategoryCache(
		syncapp.WithCacheLogger[catalog.Category](cacheLog),
		syncapp.WithTracker[catalog.Category](tracker),
		syncapp.WithConflictHandler[catalog.Category](onConflict),
	)
	products := syncapp.NewProductCache(
		syncapp.WithCacheLogger[catalog.Product](cacheLog),
		syncapp.WithTracker[catalog.Product](tracker),
		syncapp.WithConflictHandler[catalog.Product](onConflict),
	)
	orders := syncapp.NewOrderCache(
		syncapp.WithCacheLogger[trade.Order](cacheLog),
		syncapp.WithTracker[trade.Order](tracker),
		syncapp.WithConflictHandler[trade.Order](onConflict),
	)
	analytics := syncapp.NewAnalyticsCache(
		syncapp.WithCacheLogger[report.Metric](cacheLog),
	)
	reviews := syncapp.NewReviewCache(
		syncapp.WithCacheLogger[review.Review](cacheLog),
		syncapp.WithTracker[review.Review](tracker),
		syncapp.WithConflictHandler[review.Review](onConflict),
	)
	stock := syncapp.NewStockCache(
		syncapp.WithCacheLogger[inventory.StockLevel](cacheLog),
		syncapp.WithTracker[inventory.StockLevel](tracker),
		syncapp.WithConflictHandler[inventory.StockLevel](onConflict),
	)

	// Router and engine
	syncRouter := syncapp.NewRouter(log.Named("router"))
	syncRouter.Register(categories)
	syncRouter.Register(products)
	syncRouter.Register(orders)
	syncRouter.Register(analytics)
	syncRouter.Register(reviews)
	syncRouter.Register(stock)

	engine := syncapp.NewEngine(
		syncapp.NewDecoder(log.Named("decoder")),
		syncRouter,
		dispatcher,
		syncapp.WithEngineLogger(log.Named("engine")),
		syncapp.WithMetrics(metrics),
	)
	engine.Start(conn)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if err := conn.Connect(ctx); err != nil {
		log.Fatal("Failed to start transport", zap.Error(err))
	}

	// HTTP read-model API
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	ginEngine := gin.New()
	ginEngine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log.Named("http")),
		logger.Recovery(log.Named("http")),
		middleware.Secure(),
	)
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	ginEngine.Use(middleware.CORSWithConfig(corsCfg))
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := ginEngine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Invalid trusted proxies", zap.Error(err))
		}
	}

	views := []syncapp.View{categories, products, orders, analytics, reviews, stock}
	r := router.NewRouter(ginEngine)
	r.Register(handler.NewSystemHandler(cfg.App.Name, version)).
		Register(handler.NewSyncHandler(views, tracker, conn, log.Named("http"))).
		Register(streamHandler)
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        ginEngine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	conn.Disconnect()
	engine.Stop()
	streamHandler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
