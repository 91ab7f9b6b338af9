package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cinderhouse/watchkeeper/internal/core/api"
	"github.com/cinderhouse/watchkeeper/internal/core/auth"
	"github.com/cinderhouse/watchkeeper/internal/core/config"
	"github.com/cinderhouse/watchkeeper/internal/core/db"
	"github.com/cinderhouse/watchkeeper/internal/core/metrics"
	"github.com/cinderhouse/watchkeeper/internal/core/server"
	"github.com/cinderhouse/watchkeeper/internal/notify"
	"github.com/cinderhouse/watchkeeper/internal/rules"
	"github.com/cinderhouse/watchkeeper/internal/store"
)

const Version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP ingestion and rule-authoring API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "HTTP server host")
	serveCmd.Flags().Int("port", 0, "HTTP server port")
	serveCmd.Flags().String("webhook-url", "", "notification webhook URL (log-only dispatch when empty)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadServerConfig(cmd)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	var migrationID string
	checkQuery := `SELECT migration_id FROM migrations WHERE migration_id = '001_initial_schema.sql'`
	err = database.Get(&migrationID, database.Rebind(checkQuery))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("migration 001_initial_schema not applied - run 'watchkeeper migrate' first")
		}
		return fmt.Errorf("failed to check migrations: %w", err)
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set WK_HMAC_SECRET environment variable)")
	}
	authenticator := auth.NewAuthenticator(secrets, queries)

	var dispatcher rules.Dispatcher
	if cfg.WebhookURL != "" {
		dispatcher = notify.NewWebhookDispatcher(cfg.WebhookURL, nil, log)
	} else {
		log.Warn("no webhook URL configured, notifications are logged only")
		dispatcher = notify.NewLogDispatcher(log)
	}

	registry := rules.NewRegistry()
	if err := rules.RegisterBuiltins(registry, dispatcher); err != nil {
		return fmt.Errorf("failed to register rule nodes: %w", err)
	}

	m := metrics.New()
	service, err := api.NewService(
		store.NewSQLRuleStore(queries),
		store.NewSQLEventStore(queries),
		registry,
		rules.NewEvaluator(registry, log),
		m,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	router := api.NewRouter(api.RouterConfig{
		Service:        service,
		Auth:           authenticator,
		Metrics:        m,
		DB:             database,
		Log:            log,
		RequestTimeout: cfg.RequestTimeout,
	})

	httpServer, err := server.NewHTTPServer(cfg, router)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info("starting watchkeeper API", "version", Version, "host", cfg.Host, "port", cfg.Port)
	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		log.Info("shutting down gracefully")
		return httpServer.Shutdown(ctx)
	}
}

// loadServerConfig layers persistent and command flags over the file and
// environment configuration.
func loadServerConfig(cmd *cobra.Command) (*config.ServerConfig, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("webhook-url") {
		cfg.WebhookURL, _ = cmd.Flags().GetString("webhook-url")
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	return cfg, nil
}

func newLogger(cfg *config.ServerConfig) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}
