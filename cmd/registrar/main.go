package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/registrar/internal/catalog"
	"github.com/zombor/registrar/internal/export"
	"github.com/zombor/registrar/internal/extraction"
	"github.com/zombor/registrar/internal/registrar"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// newLogger builds the process logger from the --log-* flags
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q", format)
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env file is fine; flags and the environment still apply.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error loading .env: %v\n", err)
		os.Exit(1)
	}

	fs := ff.NewFlagSet("registrar")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "registrar.db", "Database file path")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		backendType    = fs.StringLong("backend", "gemini", "Extraction backend: 'gemini' or 'ollama'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", extraction.DefaultGeminiModel, "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llama3.1", "Ollama model name")
		extractTimeout = fs.DurationLong("extract-timeout", extraction.DefaultTimeout, "Maximum time to wait for the backend")
		storeType      = fs.StringLong("store", "local", "Image store: 'local' or 's3'")
		storagePath    = fs.StringLong("storage", "./exports", "Storage directory path for the local store")
		s3Bucket       = fs.StringLong("s3-bucket", "", "S3 bucket for exported images")
		s3Region       = fs.StringLong("s3-region", "us-east-1", "S3 region")
		s3Endpoint     = fs.StringLong("s3-endpoint", "", "Custom S3 endpoint, e.g. MinIO (optional)")
		s3AccessKey    = fs.StringLong("s3-access-key", "", "S3 access key (optional, defaults to the AWS credential chain)")
		s3SecretKey    = fs.StringLong("s3-secret-key", "", "S3 secret key")
		s3Prefix       = fs.StringLong("s3-prefix", "", "Key prefix inside the bucket (optional)")
		concurrency    = fs.IntLong("export-concurrency", export.DefaultConcurrency, "Images processed at once during an export")
		logLevel       = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat      = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("REGISTRAR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger, err := newLogger(os.Stderr, *logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	db, err := catalog.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize backend based on type
	var backend extraction.Backend
	switch *backendType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini backend...", "model", *geminiModel)
		backend, err = extraction.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama backend...", "url", *ollamaURL, "model", *ollamaModel)
		backend, err = extraction.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid backend type", "type", *backendType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer backend.Close()

	extractor := extraction.NewExtractor(backend)
	extractor.Timeout = *extractTimeout

	// Initialize storage
	var store export.Store
	switch *storeType {
	case "local":
		slog.Info("Initializing local storage...", "path", *storagePath)
		store, err = export.NewLocalStorage(*storagePath)
	case "s3":
		slog.Info("Initializing S3 storage...", "bucket", *s3Bucket, "region", *s3Region, "endpoint", *s3Endpoint)
		store, err = export.NewS3Storage(ctx, export.S3Config{
			Bucket:    *s3Bucket,
			Region:    *s3Region,
			Endpoint:  *s3Endpoint,
			AccessKey: *s3AccessKey,
			SecretKey: *s3SecretKey,
			Prefix:    *s3Prefix,
		})
	default:
		err = fmt.Errorf("invalid store type %q, valid: local or s3", *storeType)
	}
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	coordinator := export.NewCoordinator(store)
	coordinator.Concurrency = *concurrency

	// Initialize service
	service := registrar.NewService(extractor, coordinator, db, store)

	// Initialize server
	basicAuth := registrar.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := registrar.NewServer(service, basicAuth)

	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}
