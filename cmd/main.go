package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/blockchain"
	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/config"
	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/handler"
	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/models"
	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/repository"
	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/scheduler"
	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/service"
	"github.com/Jikuna-xyz/jiku-swap-sub000/pkg/logger"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	db, err := initDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}
	defer closeDatabase(db)

	client, err := blockchain.NewClient(&cfg.Chain)
	if err != nil {
		logger.Fatal("Failed to create blockchain client:", err)
	}
	defer client.Close()

	eventRepo := repository.NewSwapEventRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	metaRepo := repository.NewMetadataRepository(db)
	cursorRepo := repository.NewCursorRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	parser := blockchain.NewParser(cfg.Contracts.WMON, cfg.Points.VolumeDivisor)
	scanner := blockchain.NewScanner(&cfg.Scanner, &cfg.Contracts, parser, client, eventRepo, cursorRepo)

	settlement, err := blockchain.NewSettlement(&cfg.Settlement, &cfg.Contracts, client, balanceRepo)
	if err != nil {
		logger.Fatal("Failed to create settlement:", err)
	}

	pointsSvc := service.NewPointsService(eventRepo, ledgerRepo, parser, cfg.Points.SyncInterval)
	orch := service.NewOrchestrator(scanner, pointsSvc, settlement, metaRepo, cfg.Points.SyncInterval)

	syncScheduler := scheduler.NewSyncScheduler(orch, cfg.Points.SyncCron)
	if err := syncScheduler.Start(); err != nil {
		logger.Fatal("Failed to start scheduler:", err)
	}
	defer syncScheduler.Stop()

	router := setupHTTPRouter(orch, pointsSvc, settlement, client, eventRepo, balanceRepo, metaRepo, cursorRepo)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Server starting on port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error:", err)
	}

	logger.Info("Server stopped")
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := db.AutoMigrate(
		&models.SwapEvent{},
		&models.PendingBalance{},
		&models.RunMetadata{},
		&models.ScanCursor{},
		&models.SettlementHold{},
	); err != nil {
		return nil, err
	}

	return db, nil
}

func closeDatabase(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("Failed to get database instance:", err)
		return
	}
	sqlDB.Close()
}

func setupHTTPRouter(
	orch *service.Orchestrator,
	pointsSvc *service.PointsService,
	settlement *blockchain.Settlement,
	client *blockchain.Client,
	eventRepo *repository.SwapEventRepository,
	balanceRepo *repository.BalanceRepository,
	metaRepo *repository.MetadataRepository,
	cursorRepo *repository.CursorRepository,
) http.Handler {
	router := http.NewServeMux()

	syncHandler := handler.NewSyncHandler(orch)
	statusHandler := handler.NewStatusHandler(metaRepo, eventRepo, orch)
	balanceHandler := handler.NewBalanceHandler(balanceRepo)
	eventsHandler := handler.NewEventsHandler(eventRepo)
	adminHandler := handler.NewAdminHandler(cursorRepo, balanceRepo, client, settlement, pointsSvc)

	router.HandleFunc("/api/sync", syncHandler.TriggerSync)
	router.HandleFunc("/api/status", statusHandler.GetStatus)
	router.HandleFunc("/api/balance/list", balanceHandler.ListBalances)
	router.HandleFunc("/api/balance/", balanceHandler.GetBalance)
	router.HandleFunc("/api/events/recent", eventsHandler.GetRecent)
	router.HandleFunc("/api/admin/cursor/reset", adminHandler.ResetCursor)
	router.HandleFunc("/api/admin/credit", adminHandler.CreditUser)
	router.HandleFunc("/api/admin/review/resolve", adminHandler.ResolveReview)
	router.HandleFunc("/api/admin/settlement/reconcile", adminHandler.ReconcileSettlement)
	router.HandleFunc("/health", handler.HandleHealth)

	return router
}
