// Package main is the entry point for the galleryd asset management server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/galleryd/galleryd/internal/assets"
	"github.com/galleryd/galleryd/internal/auth"
	"github.com/galleryd/galleryd/internal/blob"
	"github.com/galleryd/galleryd/internal/config"
	"github.com/galleryd/galleryd/internal/logging"
	"github.com/galleryd/galleryd/internal/metadata"
	"github.com/galleryd/galleryd/internal/metrics"
	"github.com/galleryd/galleryd/internal/projects"
	"github.com/galleryd/galleryd/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from config or 8480)")
	host := flag.String("host", "", "override listening host (default: from config or 0.0.0.0)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	logFormat := flag.String("log-format", "", "log format: text, json (default: from config or text)")
	shutdownTimeout := flag.Int("shutdown-timeout", 0, "graceful shutdown timeout in seconds (default: from config or 30)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *shutdownTimeout != 0 {
		cfg.Server.ShutdownTimeout = *shutdownTimeout
	}

	// An empty admin secret must stop the process here, not surface later
	// as per-request auth failures.
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	ctx := context.Background()

	metaStore, lookup, err := buildMetadata(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize metadata store: %v\n", err)
		os.Exit(1)
	}
	defer metaStore.Close()

	blobStore, err := buildBlobStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize blob store: %v\n", err)
		os.Exit(1)
	}

	metrics.Register()

	sessions := auth.NewSessionManager(cfg.Auth.AdminSecret, cfg.Auth.SessionTTLDuration())
	coord := assets.NewCoordinator(metaStore, blobStore, lookup, cfg.Server.OpTimeoutDuration())
	ordering := assets.NewOrdering(metaStore, cfg.Server.OpTimeoutDuration())

	srv := server.New(cfg, metaStore, blobStore, coord, ordering, sessions)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("galleryd listening", "addr", addr, "metadata", cfg.Metadata.Engine, "blob", cfg.Blob.Backend)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received signal, shutting down", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Shutdown error", "error", err)
		}
		slog.Info("Server stopped")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}

// buildMetadata creates the configured metadata store plus the project
// lookup appropriate to it. SQLite shares its database file with the
// external project service; remote engines have no local project catalog,
// so they accept any non-empty project id.
func buildMetadata(ctx context.Context, cfg *config.Config) (metadata.Store, projects.Lookup, error) {
	switch cfg.Metadata.Engine {
	case "sqlite":
		dbPath := cfg.Metadata.SQLite.Path
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating metadata directory: %w", err)
		}
		store, err := metadata.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, nil, err
		}
		lookup, err := projects.NewSQLiteLookup(store.DB())
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		slog.Info("Metadata store initialized", "engine", "sqlite", "path", dbPath)
		return store, lookup, nil

	case "memory":
		slog.Info("Metadata store initialized", "engine", "memory")
		return metadata.NewMemoryStore(), projects.StaticLookup{}, nil

	case "dynamodb":
		store, err := metadata.NewDynamoDBStore(cfg.Metadata.DynamoDB)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Metadata store initialized", "engine", "dynamodb", "table", cfg.Metadata.DynamoDB.Table)
		return store, projects.StaticLookup{}, nil

	case "firestore":
		store, err := metadata.NewFirestoreStore(ctx, cfg.Metadata.Firestore)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Metadata store initialized", "engine", "firestore", "project", cfg.Metadata.Firestore.ProjectID)
		return store, projects.StaticLookup{}, nil

	case "cosmos":
		store, err := metadata.NewCosmosStore(ctx, cfg.Metadata.Cosmos)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Metadata store initialized", "engine", "cosmos", "database", cfg.Metadata.Cosmos.Database)
		return store, projects.StaticLookup{}, nil

	default:
		return nil, nil, fmt.Errorf("unknown metadata engine %q", cfg.Metadata.Engine)
	}
}

func buildBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.Blob.Backend {
	case "aws":
		if cfg.Blob.AWSBucket == "" {
			return nil, fmt.Errorf("blob.aws_bucket is required when backend is 'aws'")
		}
		region := cfg.Blob.AWSRegion
		if region == "" {
			region = "us-east-1"
		}
		store, err := blob.NewS3Store(ctx, blob.S3Options{
			Bucket:       cfg.Blob.AWSBucket,
			Region:       region,
			Prefix:       cfg.Blob.AWSPrefix,
			EndpointURL:  cfg.Blob.AWSEndpointURL,
			UsePathStyle: cfg.Blob.AWSUsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("Blob store initialized", "backend", "aws", "bucket", cfg.Blob.AWSBucket, "region", region)
		return store, nil

	case "gcp":
		if cfg.Blob.GCSBucket == "" {
			return nil, fmt.Errorf("blob.gcs_bucket is required when backend is 'gcp'")
		}
		store, err := blob.NewGCSStore(ctx, cfg.Blob.GCSBucket, cfg.Blob.GCSPrefix, cfg.Blob.GCSCredentialsFile)
		if err != nil {
			return nil, err
		}
		slog.Info("Blob store initialized", "backend", "gcp", "bucket", cfg.Blob.GCSBucket)
		return store, nil

	case "azure":
		if cfg.Blob.AzureContainer == "" {
			return nil, fmt.Errorf("blob.azure_container is required when backend is 'azure'")
		}
		if cfg.Blob.AzureAccountURL == "" {
			return nil, fmt.Errorf("blob.azure_account_url is required when backend is 'azure'")
		}
		store, err := blob.NewAzureStore(ctx, cfg.Blob.AzureContainer, cfg.Blob.AzureAccountURL, cfg.Blob.AzurePrefix)
		if err != nil {
			return nil, err
		}
		slog.Info("Blob store initialized", "backend", "azure", "container", cfg.Blob.AzureContainer)
		return store, nil

	case "memory":
		slog.Info("Blob store initialized", "backend", "memory")
		return blob.NewMemoryStore(), nil

	default:
		store, err := blob.NewLocalStore(cfg.Blob.Local.RootDir, cfg.Blob.Local.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		// Incomplete writes from a previous crash leave temp files behind;
		// every startup sweeps them.
		if err := store.CleanTempFiles(); err != nil {
			slog.Warn("Failed to clean temp files", "error", err)
		}
		slog.Info("Blob store initialized", "backend", "local", "root", cfg.Blob.Local.RootDir)
		return store, nil
	}
}
