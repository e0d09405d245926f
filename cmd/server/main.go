package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/arkava/warehouse-ledger-service/config"
	"github.com/arkava/warehouse-ledger-service/internal/alerts"
	"github.com/arkava/warehouse-ledger-service/internal/audit"
	catRepoPkg "github.com/arkava/warehouse-ledger-service/internal/catalog/repository"
	ledgerH "github.com/arkava/warehouse-ledger-service/internal/ledger/handler"
	ledgerListenerPkg "github.com/arkava/warehouse-ledger-service/internal/ledger/listener"
	ledgerRepoPkg "github.com/arkava/warehouse-ledger-service/internal/ledger/repository"
	ledgerUCPkg "github.com/arkava/warehouse-ledger-service/internal/ledger/usecase"
	"github.com/arkava/warehouse-ledger-service/pkg/broker"
	"github.com/arkava/warehouse-ledger-service/pkg/cache"
	"github.com/arkava/warehouse-ledger-service/pkg/db/postgres"
	"github.com/arkava/warehouse-ledger-service/pkg/logger"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	appLogger := logger.NewZapLogger(&logger.Config{
		Level:             cfg.Logger.Level,
		Encoding:          cfg.Logger.Encoding,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	})
	defer appLogger.Sync()

	// 3. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	// 4. Initialize Redis
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// 5. Initialize Kafka publishers
	auditPublisher := broker.NewPublisher(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.AuditTopic,
	})
	defer auditPublisher.Close()
	alertPublisher := broker.NewPublisher(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.AlertTopic,
	})
	defer alertPublisher.Close()
	appLogger.Info("Connected to Kafka",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("audit_topic", cfg.Kafka.AuditTopic),
		zap.String("alert_topic", cfg.Kafka.AlertTopic),
	)

	// 6. Initialize Repositories
	ledgerRepo := ledgerRepoPkg.NewPGRepository(db)
	catalogRepo := catRepoPkg.NewPGRepository(db)

	// 7. Initialize side-effect sinks and UseCase
	auditSink := audit.NewKafkaSink(auditPublisher, appLogger)
	alertChecker := alerts.NewChecker(alertPublisher, cfg.Ledger.LowStockThreshold, appLogger)
	ledgerUC := ledgerUCPkg.NewLedgerUseCase(ledgerRepo, catalogRepo, redisClient, auditSink, alertChecker, appLogger)

	// 8. Start order events listener
	orderConsumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.OrderTopic,
		GroupID: cfg.Kafka.GroupID,
	})
	defer orderConsumer.Close()

	listenerCtx, cancelListener := context.WithCancel(context.Background())
	defer cancelListener()
	orderListener := ledgerListenerPkg.NewOrderListener(orderConsumer, ledgerUC, appLogger)
	go orderListener.Start(listenerCtx)

	// 9. Initialize Handlers and Router
	if cfg.Server.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ledgerHandler := ledgerH.NewLedgerHandler(ledgerUC, appLogger)
	ledgerHandler.RegisterRoutes(router.Group("/api/v1/ledger"))

	// 10. Start HTTP Server
	port := cfg.Server.HTTPPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	srv := &http.Server{
		Addr:    port,
		Handler: router,
	}

	appLogger.Info("Starting HTTP server", zap.String("port", port))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
