package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agroplanner/opscenter-sync/internal/api"
	"github.com/agroplanner/opscenter-sync/internal/auth"
	"github.com/agroplanner/opscenter-sync/internal/config"
	"github.com/agroplanner/opscenter-sync/internal/deere"
	"github.com/agroplanner/opscenter-sync/internal/logger"
	"github.com/agroplanner/opscenter-sync/internal/store"
	syncpkg "github.com/agroplanner/opscenter-sync/internal/sync"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync server",
	Long: `Start the sync server to mirror Operations Center equipment and field
data and serve it over a REST API.

The server requires a configuration file (--config) that specifies:
- The Operations Center API connection and OAuth2 credentials
- The sync interval and storage backend
- All other operational settings

See examples/ directory for sample configurations.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second // Also bounds the in-flight sync tick on shutdown
	serverRequestTimeout   = 30 * time.Second // Work plan submission proxies to the upstream API
	serverReadTimeout      = 10 * time.Second // Enough for headers and small requests
	serverWriteTimeout     = 35 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second // Keep connections alive for reuse
)

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides server.address from config)")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		logger.Fatalf("Failed to bind address flag: %v", err)
	}
	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		logger.Fatalf("Failed to bind config flag: %v", err)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		logger.Fatalf("Failed to mark config flag as required: %v", err)
	}
}

// buildStore creates the entity store selected by the configuration
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.GetStorageType() {
	case config.StorageTypePostgres:
		connString, err := cfg.Database.GetConnectionString()
		if err != nil {
			return nil, fmt.Errorf("failed to build connection string: %w", err)
		}

		var maxConns int32
		if cfg.Database != nil {
			maxConns = cfg.Database.MaxOpenConns
		}

		st, err := store.NewPostgresStore(ctx, connString, maxConns)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return st, nil
	case config.StorageTypeMemory:
		logger.Warn("Using in-memory storage: synced data will not survive restarts")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.GetStorageType())
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	// Load and validate configuration
	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	address := viper.GetString("address")
	if address == "" {
		address = cfg.GetAddress()
	}

	logger.Infof("Loaded configuration from %s (organization: %s, storage: %s)",
		configPath, cfg.Deere.OrganizationID, cfg.GetStorageType())

	clientSecret, err := cfg.Deere.GetClientSecret()
	if err != nil {
		return err
	}

	signingKey, err := cfg.Auth.GetSigningKey()
	if err != nil {
		return err
	}

	issuer, err := auth.NewTokenIssuer(signingKey, cfg.Auth.GetTokenTTL())
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	st, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	client := deere.New(&cfg.Deere, clientSecret)

	// Create and start the background sync scheduler
	manager := syncpkg.NewManager(client, st)
	scheduler := syncpkg.NewScheduler(manager, st, cfg.Sync.GetInterval())

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	go func() {
		if err := scheduler.Start(schedCtx); err != nil {
			logger.Errorf("Sync scheduler failed: %v", err)
		}
	}()

	// Create the API server with middleware
	router := api.NewServer(st, scheduler, client, issuer,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
		),
	)

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Server listening on %s", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Stop the scheduler first; this waits for an in-flight tick to finish
	scheduler.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}
