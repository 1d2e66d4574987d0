package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/joshua-takyi/hiver/internal/config"
	"github.com/joshua-takyi/hiver/internal/connect"
	"github.com/joshua-takyi/hiver/internal/container"
	"github.com/joshua-takyi/hiver/internal/models"
	"github.com/joshua-takyi/hiver/internal/routes"
)

func main() {
	// Load environment variables
	_ = godotenv.Load(".env.local")

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("Starting Hiver API server", "environment", cfg.Environment, "store", cfg.StoreBackend)

	ctx := context.Background()
	clients := container.Clients{}

	clients.Cloudinary, err = connect.CloudinaryCredentials(cfg)
	if err != nil {
		logger.Error("Failed to connect to Cloudinary", "error", err)
		os.Exit(1)
	}
	if clients.Cloudinary == nil {
		logger.Warn("Cloudinary not configured, cover image uploads are disabled")
	}

	clients.Supabase, err = connect.InitSupabase(cfg)
	if err != nil {
		logger.Error("Failed to connect to Supabase", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to Supabase successfully")

	switch cfg.StoreBackend {
	case config.BackendMongo:
		clients.MongoDB, err = connect.MongoDBConnect(ctx, cfg)
		if err != nil {
			logger.Error("Failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		logger.Info("Connected to MongoDB successfully", "database", cfg.MongoDBDatabase)
	case config.BackendSQLite:
		clients.SQLite, err = models.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			logger.Error("Failed to open SQLite database", "error", err, "path", cfg.SQLitePath)
			os.Exit(1)
		}
		logger.Info("Opened SQLite database", "path", cfg.SQLitePath)
	case config.BackendMemory:
		logger.Warn("Using in-memory store, data is lost on restart")
	}

	appContainer, err := container.NewContainer(ctx, cfg, logger, clients)
	if err != nil {
		logger.Error("Failed to build container", "error", err)
		os.Exit(1)
	}

	router := routes.SetupRoutes(appContainer)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	appContainer.Close()
	if err := connect.MongoDBDisconnect(clients.MongoDB); err != nil {
		logger.Error("Error disconnecting from MongoDB", "error", err)
	}
	if clients.SQLite != nil {
		if err := clients.SQLite.Close(); err != nil {
			logger.Error("Error closing SQLite database", "error", err)
		}
	}

	logger.Info("Server exited")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.Level(),
		})
	} else {
		// human-readable output in development
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.Level(),
		})
	}

	return slog.New(handler)
}
