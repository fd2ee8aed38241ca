package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/duel-arena/config"
	"github.com/Dosada05/duel-arena/db"
	"github.com/Dosada05/duel-arena/handlers"
	"github.com/Dosada05/duel-arena/judge"
	"github.com/Dosada05/duel-arena/middleware"
	"github.com/Dosada05/duel-arena/realtime"
	"github.com/Dosada05/duel-arena/repositories"
	api "github.com/Dosada05/duel-arena/routes"
	"github.com/Dosada05/duel-arena/services"
	"github.com/Dosada05/duel-arena/storage"
	"github.com/go-chi/chi/v5"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.String("db_driver", cfg.DatabaseDriver),
		slog.String("problem_policy", cfg.ProblemPolicy))

	// Реляционная БД: результаты и участия
	dbConn, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	if err := db.Migrate(dbConn); err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database connection established")

	// Документное хранилище: сетки и сессии
	docStore, err := db.OpenDocumentStore(cfg.DocumentStorePath)
	if err != nil {
		logger.Error("failed to open document store", slog.String("path", cfg.DocumentStorePath), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := docStore.Close(); err != nil {
			logger.Error("failed to close document store", slog.Any("error", err))
		}
	}()

	appCtx, stopApp := context.WithCancel(context.Background())
	defer stopApp()

	var archiver storage.BracketArchiver
	if cfg.ArchiveEnabled() {
		uploader, err := storage.NewR2Uploader(appCtx, storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		archiver = storage.NewBracketArchiver(uploader)
		logger.Info("bracket archive enabled", slog.String("bucket", cfg.R2BucketName))
	}

	wsHub := realtime.NewHub(logger)

	// Репозитории
	resultRepo := repositories.NewResultRepository(dbConn)
	participationRepo := repositories.NewParticipationRepository(dbConn)
	bracketRepo := repositories.NewBracketRepository(docStore)
	sessionRepo := repositories.NewSessionRepository(docStore)

	// Судья (Codeforces API)
	judgeClient := judge.NewClient(judge.ClientConfig{
		BaseURL:         cfg.JudgeBaseURL,
		RequestInterval: cfg.JudgeRequestInterval,
		Timeout:         cfg.JudgeTimeout,
	})
	judgeService := judge.NewService(judgeClient, judge.Config{
		MinRating:       cfg.ProblemMinRating,
		MaxRating:       cfg.ProblemMaxRating,
		Policy:          judge.Policy(cfg.ProblemPolicy),
		CatalogTTL:      cfg.ProblemCatalogTTL,
		SolvedTTL:       cfg.SolvedCacheTTL,
		SolvedCacheSize: cfg.SolvedCacheSize,
		ProblemBaseURL:  cfg.JudgeProblemBaseURL,
	}, logger)
	go judgeService.Run(appCtx)

	// Сервисы
	bracketService, err := services.NewBracketService(bracketRepo, participationRepo, archiver, cfg.BracketCacheSize, logger)
	if err != nil {
		logger.Error("failed to create bracket service", slog.Any("error", err))
		os.Exit(1)
	}
	sessionStore, err := services.NewSessionStore(sessionRepo, cfg.SessionCacheSize)
	if err != nil {
		logger.Error("failed to create session store", slog.Any("error", err))
		os.Exit(1)
	}
	resultService := services.NewResultService(dbConn, bracketService, resultRepo, participationRepo, wsHub, archiver, logger)
	matchService := services.NewMatchService(sessionStore, wsHub, judgeService, resultService, services.MatchServiceConfig{
		IdleTTL: cfg.SessionIdleTTL,
	}, logger)

	// Планировщик очистки брошенных сессий
	if !cfg.ReaperEnabled() {
		logger.Info("session reaper disabled", slog.Duration("idle_ttl", cfg.SessionIdleTTL))
	} else {
		go runSessionReaper(appCtx, matchService, cfg.SessionReaperInterval, cfg.SessionIdleTTL, logger)
	}

	// HTTP
	auth := middleware.NewAuthenticator(cfg.JWTSecretKey, logger)
	bracketHandler := handlers.NewBracketHandler(bracketService, logger)
	resultHandler := handlers.NewResultHandler(resultService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, matchService, bracketService, cfg.AllowedOrigins, logger)

	router := chi.NewRouter()
	api.SetupRoutes(router, auth, cfg.AllowedOrigins, bracketHandler, resultHandler, webSocketHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stopApp()
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		stopApp()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}

func runSessionReaper(ctx context.Context, matchService services.MatchService, interval, idleTTL time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("session reaper started",
		slog.Duration("interval", interval),
		slog.Duration("idle_ttl", idleTTL))

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := matchService.ReapAbandonedSessions(ctx, now); err != nil {
				logger.Error("session reaper run failed", slog.Any("error", err))
			}
		}
	}
}
