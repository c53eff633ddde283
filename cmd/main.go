package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "freight-billing-backend/config"
	"freight-billing-backend/metrics"
	"freight-billing-backend/middleware"
	"freight-billing-backend/utils"

	// Repositories
	charge_repositories "freight-billing-backend/charges/repositories"
	ingestion_repositories "freight-billing-backend/ingestion/repositories"
	invoice_status_repositories "freight-billing-backend/invoicestatus/repositories"

	// Services
	charge_services "freight-billing-backend/charges/services"
	ingestion_services "freight-billing-backend/ingestion/services"
	invoice_status_services "freight-billing-backend/invoicestatus/services"

	// Routes
	charge_routes "freight-billing-backend/charges/routes"
	ingestion_routes "freight-billing-backend/ingestion/routes"
	invoice_status_routes "freight-billing-backend/invoicestatus/routes"

	// WebSocket
	"freight-billing-backend/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()
	config.InitLogger(cfg.LogLevel, cfg.Development)
	defer config.Logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewRegistry()

	// Databases and redis
	primaryDB, secondaryDB := config.ConfigureDatabases(cfg)
	redisClient := config.InitRedisServer(ctx, cfg)
	defer redisClient.Close()

	asynqClient := asynq.NewClient(config.AsynqRedisOpt(cfg))
	defer asynqClient.Close()

	// ------ WebSocket Hub, also the notifier for every service ------
	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)

	// ------ Invoice status ------
	catalogRepo := invoice_status_repositories.NewStatusCatalogRepository(primaryDB)
	legacyCatalogRepo := invoice_status_repositories.NewLegacyStatusCatalogRepository(primaryDB)
	shipmentStatusRepo := invoice_status_repositories.NewShipmentStatusRepository(primaryDB)
	auditRepo := invoice_status_repositories.NewAuditRepository(primaryDB)

	registry := invoice_status_services.NewRegistry(catalogRepo, legacyCatalogRepo, cfg.StatusCacheTTL, config.Logger, m)
	if err := registry.ValidateDefault(ctx); err != nil {
		config.Logger.Fatal("Invoice status catalog is not usable", zap.Error(err))
	}
	authority := invoice_status_services.NewTransitionAuthority(shipmentStatusRepo, auditRepo, registry, wsHub, config.Logger, m)

	// ------ Charges ------
	chargeRepo := charge_repositories.NewChargeRepository(primaryDB)
	detailCache := charge_services.NewDetailCache(
		charge_services.NewDetailService(chargeRepo, auditRepo, registry), config.Logger, m)
	summaryCache := utils.NewRedisCache(redisClient, "charges_summary", cfg.SummaryCacheTTL)

	registry.OnChange(detailCache.InvalidateAll)
	authority.OnTransition(func(shipmentID uuid.UUID, from, to string) {
		detailCache.Forget(shipmentID.String())
		summaryCache.InvalidateAllAsync(func(err error) {
			config.Logger.Warn("Failed to invalidate charges summary cache", zap.Error(err))
		})
	})

	// ------ EDI ingestion ------
	primaryUploads := ingestion_repositories.NewUploadRepository("primary", primaryDB)
	stores := []ingestion_services.UploadStore{primaryUploads}
	if secondaryDB != nil {
		stores = append(stores, ingestion_repositories.NewUploadRepository("secondary", secondaryDB))
	}
	chain := ingestion_services.NewStoreChain(config.Logger, m, stores...)

	var feed ingestion_services.ChangeFeed
	var publisher ingestion_services.ChangePublisher
	switch cfg.IngestionFeed {
	case "poll":
		feed = ingestion_services.NewPollingChangeFeed(cfg.IngestionPollInterval)
	default:
		redisFeed := ingestion_services.NewRedisChangeFeed(redisClient, config.Logger)
		feed = redisFeed
		publisher = redisFeed
	}
	config.Logger.Info("Ingestion change feed selected", zap.String("feed", cfg.IngestionFeed))

	stateMachine := ingestion_services.NewStateMachine(chain, feed, wsHub, cfg.IngestionStallAfter, config.Logger, m)
	fileStorage := utils.NewLocalFileStorage(cfg.UploadStoragePath)
	uploadService := ingestion_services.NewUploadService(primaryUploads, fileStorage, asynqClient, publisher, config.Logger)
	repairService := ingestion_services.NewRepairService(chain, asynqClient, wsHub, cfg.StallRepairAfter, config.Logger, m)

	// ------ Background workers ------
	asynqServer := asynq.NewServer(config.AsynqRedisOpt(cfg), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Logger:      config.Logger.Sugar(),
	})
	mux := asynq.NewServeMux()
	repairService.RegisterHandlers(mux)
	if err := asynqServer.Start(mux); err != nil {
		config.Logger.Fatal("Failed to start task worker", zap.Error(err))
	}
	defer asynqServer.Shutdown()

	scheduler := utils.NewScheduler(config.Logger)
	_, err := scheduler.Schedule(cfg.StallSweepCron, "stalled-upload-sweep", utils.DefaultRetryPolicy, func(ctx context.Context) error {
		task, err := ingestion_services.NewRepairStalledTask(cfg.StallRepairAfter)
		if err != nil {
			return err
		}
		_, err = asynqClient.EnqueueContext(ctx, task, asynq.Unique(time.Minute))
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return err
	})
	if err != nil {
		config.Logger.Fatal("Invalid stalled upload sweep schedule",
			zap.String("spec", cfg.StallSweepCron), zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	// ------ HTTP ------
	app := fiber.New()
	middleware.InitCors(app, cfg.AllowedOrigins)

	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	charge_routes.ChargeRouterInit(app, chargeRepo, detailCache, summaryCache)
	invoice_status_routes.InvoiceStatusRouterInit(app, registry, authority, catalogRepo)
	ingestion_routes.UploadRouterInit(app, uploadService, chain, repairService)

	wsHandler := websocket.NewWsHandler(wsHub, stateMachine)
	app.Get("/ws", middleware.ActorRoute(), wsHandler.HandleWebSocket)
	config.Logger.Info("WebSocket endpoint registered at /ws")

	go func() {
		config.Logger.Info("Server starting", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			config.Logger.Error("Server stopped", zap.String("port", cfg.Port), zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	config.Logger.Info("Shutting down",
		zap.Int("active_upload_subscriptions", stateMachine.ActiveSubscriptions()))
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		config.Logger.Warn("HTTP shutdown did not complete cleanly", zap.Error(err))
	}
}
