package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/grantflow/grantflow-backend/internal/ballot"
	"github.com/grantflow/grantflow-backend/internal/config"
	"github.com/grantflow/grantflow-backend/internal/db"
	httpHandlers "github.com/grantflow/grantflow-backend/internal/http/handlers"
	httpRouter "github.com/grantflow/grantflow-backend/internal/http/router"
	"github.com/grantflow/grantflow-backend/internal/logger"
	"github.com/grantflow/grantflow-backend/internal/repository"
	"github.com/grantflow/grantflow-backend/internal/service"
	"github.com/grantflow/grantflow-backend/internal/token"
	"github.com/grantflow/grantflow-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Вспомогательные сервисы и клиенты внешних служб.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	ballotClient := ballot.NewClient(cfg.BallotBaseURL, cfg.BallotAuthorityToken, cfg.BallotTreasurySymbol)
	tokenClient := token.NewClient(cfg.TokenBaseURL, cfg.BallotAuthorityToken)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	profileRepo := repository.NewProfileRepository(dbConn)
	ledgerRepo := repository.NewLedgerRepository(dbConn)
	balanceRepo := repository.NewBalanceRepository(dbConn)
	proposalRepo := repository.NewProposalRepository(dbConn)
	deliverableRepo := repository.NewDeliverableRepository(dbConn)

	// Вебсокеты.
	hub := ws.NewHub()
	go hub.Run()

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager)
	profileService := service.NewProfileService(profileRepo)
	treasuryService := service.NewTreasuryService(ledgerRepo, balanceRepo, userRepo, tokenClient, hub)
	proposalService := service.NewProposalService(proposalRepo, ledgerRepo, profileRepo, userRepo, ballotClient, tokenClient, cfg.BallotFeeAccount, hub)
	deliverableService := service.NewDeliverableService(deliverableRepo, proposalRepo, userRepo, hub)
	reconcileService := service.NewReconcileService(proposalRepo, ledgerRepo, ballotClient, hub)

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	profileHandler := httpHandlers.NewProfileHandler(profileService)
	treasuryHandler := httpHandlers.NewTreasuryHandler(treasuryService)
	proposalHandler := httpHandlers.NewProposalHandler(proposalService)
	deliverableHandler := httpHandlers.NewDeliverableHandler(deliverableService)
	webhookHandler := httpHandlers.NewWebhookHandler(treasuryService, reconcileService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(
		cfg,
		authHandler,
		profileHandler,
		treasuryHandler,
		proposalHandler,
		deliverableHandler,
		webhookHandler,
		wsHandler,
		healthHandler,
		tokenManager,
	)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
