package main

import (
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/elmyly/whaty/internal/infrastructure"
	"github.com/elmyly/whaty/internal/interfaces/http"
	"github.com/elmyly/whaty/internal/repository"
	"github.com/elmyly/whaty/internal/usecases"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// Load .env file; the environment may already be populated in deployments
	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	databaseURL := os.Getenv("DATABASE_URL")
	jwtSecret := os.Getenv("JWT_SECRET")
	if databaseURL == "" || jwtSecret == "" {
		panic("DATABASE_URL and JWT_SECRET must be set")
	}
	defaultQuota, err := strconv.Atoi(envOr("DEFAULT_QUOTA", "100"))
	if err != nil {
		panic("DEFAULT_QUOTA must be a number")
	}

	// Connect to PostgreSQL
	pgClient, err := infrastructure.NewPostgresClient(databaseURL)
	if err != nil {
		panic("Failed to connect to database: " + err.Error())
	}
	defer pgClient.Close()

	// Initialize Repositories
	userRepo := repository.NewUserRepository(pgClient.Pool)
	listRepo := repository.NewListRepository(pgClient.Pool)

	// Initialize Auth
	authUsecase := usecases.NewAuthUsecase(userRepo, jwtSecret, defaultQuota)
	if err := authUsecase.EnsureAdmin(envOr("ADMIN_EMAIL", "admin@localhost"), envOr("ADMIN_PASSWORD", "changeme")); err != nil {
		log.Warn().Err(err).Msg("failed to ensure admin user")
	}

	// Initialize provider connector (per-session device stores)
	connector, err := infrastructure.NewWhatsAppConnector(envOr("DEVICE_DIR", "devices"), log)
	if err != nil {
		panic("Failed to initialize provider connector: " + err.Error())
	}

	// Event distribution + session registry
	bus := infrastructure.NewBroadcaster(log)
	inbox := infrastructure.NewInboxBuffer(200)
	registry := infrastructure.NewSessionRegistry(connector, bus, inbox, log)
	defer registry.TeardownAll()

	// Quota + send pipeline
	ledger := usecases.NewQuotaLedger(userRepo)
	sendService := usecases.NewSendService(registry, ledger, log)
	chatService := usecases.NewChatService(registry)

	// Setup HTTP server
	r := gin.Default()
	handler := http.NewHandler(registry, bus, inbox, sendService, chatService, ledger, userRepo, listRepo)
	middleware := http.NewMiddleware(jwtSecret)
	http.SetupRoutes(r, handler, authUsecase, middleware)

	addr := envOr("LISTEN_ADDR", "0.0.0.0:8080")
	log.Info().Str("addr", addr).Msg("gateway listening")
	if err := r.Run(addr); err != nil {
		log.Error().Err(err).Msg("HTTP server stopped")
		os.Exit(1)
	}
}
