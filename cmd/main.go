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

	"github.com/ak-bharadwaj/concurrence2k26-sub000/config"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/db"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/events"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/handlers"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/middleware"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/repositories"
	api "github.com/ak-bharadwaj/concurrence2k26-sub000/routes"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/services"
	"github.com/ak-bharadwaj/concurrence2k26-sub000/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
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
	logger.Info("Cloudflare R2 uploader initialized")

	hub := events.NewHub(logger)
	go hub.Run()
	logger.Info("event hub started")

	transactor := repositories.NewSQLTransactor(dbConn)
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	teamRepo := repositories.NewPostgresTeamRepository(dbConn)
	requestRepo := repositories.NewPostgresJoinRequestRepository(dbConn)
	channelRepo := repositories.NewPostgresPaymentChannelRepository(dbConn)
	logRepo := repositories.NewPostgresActionLogRepository(dbConn)
	adminRepo := repositories.NewPostgresAdminRepository(dbConn)
	logger.Info("repositories initialized")

	emailService := services.NewEmailService(cfg)
	authService := services.NewAuthService(userRepo, adminRepo, emailService, logger)
	rosterService := services.NewRosterService(transactor, teamRepo, userRepo, requestRepo, hub, logger)
	joinService := services.NewJoinRequestService(transactor, requestRepo, teamRepo, userRepo, emailService, hub, logger)
	channelService := services.NewChannelService(channelRepo, userRepo, uploader, cfg.FeeAmount)
	verificationService := services.NewVerificationService(
		transactor,
		userRepo,
		channelRepo,
		logRepo,
		joinService,
		emailService,
		hub,
		uploader,
		logger,
		cfg.CommunityLink,
	)
	logger.Info("services initialized")

	auth := middleware.NewAuthenticator(cfg.JWTSecretKey)
	authHandler := handlers.NewAuthHandler(authService, cfg.JWTSecretKey)
	teamHandler := handlers.NewTeamHandler(rosterService)
	joinRequestHandler := handlers.NewJoinRequestHandler(joinService)
	paymentHandler := handlers.NewPaymentHandler(channelService, verificationService, uploader)
	adminHandler := handlers.NewAdminHandler(verificationService, channelService)
	webSocketHandler := handlers.NewWebSocketHandler(hub)
	logger.Info("HTTP handlers initialized")

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		auth,
		authHandler,
		teamHandler,
		joinRequestHandler,
		paymentHandler,
		adminHandler,
		webSocketHandler,
	)
	logger.Info("routes configured")

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
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shut down gracefully")
	}
}
