package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/channelsync/backend/internal/application/jobs"
	"github.com/channelsync/backend/internal/application/materialize"
	"github.com/channelsync/backend/internal/application/stock"
	"github.com/channelsync/backend/internal/application/stocksync"
	"github.com/channelsync/backend/internal/domain/marketplace"
	"github.com/channelsync/backend/internal/domain/order"
	"github.com/channelsync/backend/internal/infrastructure/audit"
	"github.com/channelsync/backend/internal/infrastructure/auth"
	"github.com/channelsync/backend/internal/infrastructure/cache"
	"github.com/channelsync/backend/internal/infrastructure/config"
	"github.com/channelsync/backend/internal/infrastructure/ecommerce"
	"github.com/channelsync/backend/internal/infrastructure/erpclient"
	"github.com/channelsync/backend/internal/infrastructure/logger"
	"github.com/channelsync/backend/internal/infrastructure/persistence"
	"github.com/channelsync/backend/internal/infrastructure/queue"
	"github.com/channelsync/backend/internal/infrastructure/storage"
	"github.com/channelsync/backend/internal/infrastructure/telemetry"
	"github.com/channelsync/backend/internal/interfaces/http/handler"
	"github.com/channelsync/backend/internal/interfaces/http/middleware"
	"github.com/channelsync/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

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

	log.Info("Starting ChannelSync Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize repositories
	auditRepo := persistence.NewGormAuditRecordRepository(db.DB)
	reportRepo := persistence.NewGormSyncReportRepository(db.DB)

	// Audit trail sink: database always, Kafka when enabled
	auditWriters := []audit.Writer{auditRepo}
	var kafkaPublisher *audit.KafkaPublisher
	if cfg.Kafka.Enabled {
		kafkaPublisher = audit.NewKafkaPublisher(cfg.Kafka)
		auditWriters = append(auditWriters, kafkaPublisher)
		log.Info("Kafka audit publishing enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}
	sink := audit.NewAsyncSink(log, 256, auditWriters...)
	defer func() {
		if err := sink.Close(); err != nil {
			log.Error("Error closing audit sink", zap.Error(err))
		}
		if kafkaPublisher != nil {
			if err := kafkaPublisher.Close(); err != nil {
				log.Error("Error closing Kafka publisher", zap.Error(err))
			}
		}
	}()

	// ERP client
	erpCfg := erpclient.NewConfig(cfg.ERP.BaseURL, cfg.ERP.Database, cfg.ERP.Username, cfg.ERP.APIKey)
	if cfg.ERP.Timeout > 0 {
		erpCfg.TimeoutSeconds = int(cfg.ERP.Timeout / time.Second)
	}
	erpClient, err := erpclient.NewClient(erpCfg, log)
	if err != nil {
		log.Fatal("Failed to create ERP client", zap.Error(err))
	}

	// Marketplace adapters
	adapters := buildAdapters(cfg, log)
	if len(adapters) == 0 {
		log.Warn("No marketplace adapters configured, webhook intake and stock fan-out are inert")
	}
	registry, err := ecommerce.NewRegistry(log, adapters...)
	if err != nil {
		log.Fatal("Failed to build marketplace registry", zap.Error(err))
	}

	// ERP stock mutator, shared by materialization and resync
	mutator := stock.NewMutator(erpClient, cfg.ERP.LocationID, log, sink)

	// Stock sync engine fanning updates out to every configured marketplace
	engineOpts := []stocksync.Option{
		stocksync.WithReportStore(reportRepo),
		stocksync.WithAuditSink(sink),
	}
	if cfg.Queue.TargetTimeout > 0 {
		engineOpts = append(engineOpts, stocksync.WithTargetTimeout(cfg.Queue.TargetTimeout))
	}
	syncEngine := stocksync.NewEngine(registry, registry.Names(), mutator, log, engineOpts...)

	// Work queue broker: Redis when reachable, in-memory otherwise
	var broker queue.Broker
	redisBroker, err := queue.NewRedisBroker(queue.RedisBrokerConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis unavailable, falling back to in-memory queue broker. "+
			"Jobs will not survive a restart.",
			zap.Error(err),
		)
		broker = queue.NewMemoryBroker()
	} else {
		broker = redisBroker
		defer func() {
			if err := redisBroker.Close(); err != nil {
				log.Error("Error closing Redis broker", zap.Error(err))
			}
		}()
		log.Info("Redis queue broker connected", zap.String("addr", cfg.Redis.Addr()))
	}
	enqueuer := jobs.NewEnqueuer(broker)

	// Order materializer
	taxRate, err := decimal.NewFromString(cfg.ERP.TaxRate)
	if err != nil {
		log.Fatal("Invalid tax rate", zap.String("tax_rate", cfg.ERP.TaxRate), zap.Error(err))
	}
	materializer := materialize.NewMaterializer(erpClient, mutator, enqueuer, materialize.Config{
		TaxRate:      taxRate,
		RefPrefixes:  cfg.ERP.RefPrefixes,
		ShippingSKUs: cfg.ERP.ShippingSKUs,
	}, log, sink)

	// Queue dispatcher with configured lane overrides
	lanes := queue.DefaultLanes()
	for i := range lanes {
		if lanes[i].Name == queue.LaneProcessOrder {
			continue
		}
		if cfg.Queue.SyncConcurrency > 0 {
			lanes[i].Concurrency = cfg.Queue.SyncConcurrency
		}
		if cfg.Queue.SyncMaxAttempts > 0 {
			lanes[i].MaxAttempts = cfg.Queue.SyncMaxAttempts
		}
		if cfg.Queue.RetryDelay > 0 {
			lanes[i].RetryDelay = cfg.Queue.RetryDelay
		}
	}
	dispatcher := queue.NewDispatcher(broker, lanes, log)
	jobs.NewHandlers(materializer, syncEngine, registry, log).RegisterAll(dispatcher)
	dispatcher.Start(context.Background())
	log.Info("Queue dispatcher started",
		zap.Int("lanes", len(lanes)),
		zap.Int("sync_concurrency", cfg.Queue.SyncConcurrency),
	)

	// Webhook deduplication store
	dedupFactory := cache.NewDedupStoreFactory(cfg.Redis, cache.WithLogger(log))
	dedupStore, err := dedupFactory.CreateStore()
	if err != nil {
		log.Fatal("Failed to create webhook dedup store", zap.Error(err))
	}

	// Raw payload archive
	var archive storage.PayloadArchive = storage.NewNopArchive()
	if cfg.Storage.Enabled {
		s3Archive, err := storage.NewS3PayloadArchive(&cfg.Storage)
		if err != nil {
			log.Fatal("Failed to create payload archive", zap.Error(err))
		}
		archive = s3Archive
		log.Info("Payload archive enabled", zap.String("bucket", cfg.Storage.Bucket))
	}

	// Telemetry providers (no-ops when disabled)
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.ProfilingServer,
		ApplicationName:   cfg.App.Name,
		ProfileCPU:        true,
		ProfileInuseSpace: true,
		ProfileAllocSpace: true,
		ProfileGoroutines: true,
		ProfileMutexCount: true,
		ProfileBlockCount: true,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()

	// Pipeline metrics over the queue broker
	var pipelineMetrics *telemetry.PipelineMetrics
	if cfg.Telemetry.Enabled {
		laneNames := make([]string, 0, len(lanes))
		for _, lane := range lanes {
			laneNames = append(laneNames, lane.Name)
		}
		pipelineMetrics, err = telemetry.NewPipelineMetrics(telemetry.PipelineMetricsConfig{
			Meter:         meterProvider.Meter("channelsync/pipeline"),
			Logger:        log,
			QueueProvider: telemetry.NewBrokerQueueMetricsProvider(broker, laneNames...),
		})
		if err != nil {
			log.Fatal("Failed to initialize pipeline metrics", zap.Error(err))
		}
		pipelineMetrics.StartPeriodicCollection(context.Background(), time.Minute)
		defer pipelineMetrics.Stop()
	}

	// Database telemetry plugins
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		tracingPlugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		}, log)
		if err := tracingPlugin.RegisterOtelGorm(db.DB); err != nil {
			log.Warn("Failed to install database tracing plugin", zap.Error(err))
		}
	}

	// Initialize HTTP handlers
	webhookOpts := []handler.WebhookHandlerOption{}
	if pipelineMetrics != nil {
		webhookOpts = append(webhookOpts, handler.WithPipelineMetrics(pipelineMetrics))
	}
	webhookHandler := handler.NewWebhookHandler(registry, dedupStore, archive,
		func(ctx context.Context, o *order.Order) (string, error) {
			job, err := enqueuer.EnqueueProcessOrder(ctx, o)
			if err != nil {
				return "", err
			}
			return job.ID.String(), nil
		}, log, webhookOpts...)
	syncHandler := handler.NewSyncHandler(syncEngine, reportRepo, log)
	queueHandler := handler.NewQueueHandler(dispatcher, nil, log,
		handler.WithDeadLetterLimit(cfg.Queue.DeadLetterLimit))
	auditHandler := handler.NewAuditHandler(auditRepo, log)
	systemHandler := handler.NewSystemHandler(db)

	// Operator API tokens
	tokenService := auth.NewTokenService(cfg.JWT)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Tracing/Metrics - Telemetry (if enabled)
	// 5. Security - Add security headers
	// 6. CORS - Handle cross-origin requests
	// 7. BodyLimit - Limit request body size
	// 8. RateLimit - Apply rate limiting (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	if cfg.Telemetry.Enabled {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.HTTPMetricsWithMeter(meterProvider.Meter("channelsync/http"), true))
	}
	if cfg.Telemetry.ProfilingEnabled {
		engine.Use(middleware.Profiling())
	}
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Rate limiting (if enabled)
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Marketplace webhook intake (signature-verified, no operator token)
	engine.POST("/webhooks/:marketplace", webhookHandler.Receive)

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Apply JWT authentication middleware to API routes
	// Configure skip paths for public endpoints
	jwtConfig := middleware.JWTMiddlewareConfig{
		TokenService: tokenService,
		SkipPaths: []string{
			"/api/v1/ping",
			"/api/v1/system/ping",
			"/api/v1/system/info",
		},
		Logger: log,
	}
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))

	// Stock domain (authoritative quantity propagation)
	stockRoutes := router.NewDomainGroup("stock", "/stock")
	stockRoutes.POST("/:sku/resync", syncHandler.Resync)

	// Sync report queries
	reportRoutes := router.NewDomainGroup("reports", "/reports")
	reportRoutes.GET("", syncHandler.ListReports)
	reportRoutes.GET("/:id", syncHandler.GetReport)

	// Queue inspection and dead letter recovery
	queueRoutes := router.NewDomainGroup("queues", "/queues")
	queueRoutes.GET("", queueHandler.ListLanes)
	queueRoutes.GET("/:lane/dead", queueHandler.ListDeadLetters)
	queueRoutes.POST("/:lane/dead/:id/requeue", queueHandler.RequeueDeadLetter)

	// Audit trail queries
	auditRoutes := router.NewDomainGroup("audit", "/audit")
	auditRoutes.GET("", auditHandler.ListRecords)
	auditRoutes.GET("/failures", auditHandler.FailureCount)

	// System routes
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)
	systemRoutes.GET("/health", systemHandler.Health)

	// Register all domain groups
	r.Register(stockRoutes).
		Register(reportRoutes).
		Register(queueRoutes).
		Register(auditRoutes).
		Register(systemRoutes)

	// Setup routes
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
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
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	// Drain in-flight queue jobs before the deferred resource teardown runs
	drained := make(chan struct{})
	go func() {
		dispatcher.Stop()
		close(drained)
	}()
	select {
	case <-drained:
		log.Info("Queue dispatcher drained")
	case <-time.After(cfg.Queue.ShutdownDrainTime):
		log.Warn("Queue drain timed out, in-flight jobs may be retried on restart",
			zap.Duration("drain_time", cfg.Queue.ShutdownDrainTime),
		)
	}

	log.Info("Server exited gracefully")
}

// buildAdapters constructs one adapter per enabled marketplace credential set.
func buildAdapters(cfg *config.Config, log *zap.Logger) []marketplace.Marketplace {
	var adapters []marketplace.Marketplace

	if cfg.Marketplaces.Shopee.Enabled {
		shopeeCfg := ecommerce.NewShopeeConfig(
			cfg.Marketplaces.Shopee.PartnerID,
			cfg.Marketplaces.Shopee.PartnerKey,
			cfg.Marketplaces.Shopee.ShopID,
			cfg.Marketplaces.Shopee.WebhookSecret,
		)
		if cfg.Marketplaces.Shopee.BaseURL != "" {
			shopeeCfg.APIBaseURL = cfg.Marketplaces.Shopee.BaseURL
		}
		adapter, err := ecommerce.NewShopeeAdapter(shopeeCfg)
		if err != nil {
			log.Fatal("Failed to create Shopee adapter", zap.Error(err))
		}
		adapters = append(adapters, adapter)
		log.Info("Shopee adapter configured", zap.String("shop_id", cfg.Marketplaces.Shopee.ShopID))
	}

	if cfg.Marketplaces.Lazada.Enabled {
		lazadaCfg := ecommerce.NewLazadaConfig(
			cfg.Marketplaces.Lazada.PartnerID,
			cfg.Marketplaces.Lazada.PartnerKey,
			cfg.Marketplaces.Lazada.ShopID,
			cfg.Marketplaces.Lazada.WebhookSecret,
		)
		if cfg.Marketplaces.Lazada.BaseURL != "" {
			lazadaCfg.APIBaseURL = cfg.Marketplaces.Lazada.BaseURL
		}
		adapter, err := ecommerce.NewLazadaAdapter(lazadaCfg)
		if err != nil {
			log.Fatal("Failed to create Lazada adapter", zap.Error(err))
		}
		adapters = append(adapters, adapter)
		log.Info("Lazada adapter configured", zap.String("seller_id", cfg.Marketplaces.Lazada.ShopID))
	}

	return adapters
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
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
