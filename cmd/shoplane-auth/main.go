// ABOUTME: Entry point for the shoplane-auth server
// ABOUTME: Wires stores, services, and the HTTP route table explicitly at startup

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/shoplane/shoplane-auth/internal/accounts"
	"github.com/shoplane/shoplane-auth/internal/auth"
	"github.com/shoplane/shoplane-auth/internal/config"
	"github.com/shoplane/shoplane-auth/internal/httpapi"
	"github.com/shoplane/shoplane-auth/internal/mail"
	"github.com/shoplane/shoplane-auth/internal/store"
)

// version is overridden at build time via -ldflags.
var version = "dev"

const starterConfig = `server:
  http_addr: ":8080"

database:
  driver: sqlite
  path: shoplane.db

auth:
  jwt_secret: ${SHOPLANE_JWT_SECRET}
  access_ttl: 15m
  refresh_ttl: 720h

codes:
  recovery_ttl: 1h
  verification_ttl: 24h

mail:
  sender: log

logging:
  level: info
  format: text
`

// getConfigPath returns the path to the config file.
// Priority: SHOPLANE_CONFIG env var > ./shoplane.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SHOPLANE_CONFIG"); envPath != "" {
		return envPath
	}
	return "shoplane.yaml"
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: shoplane-auth <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                                Start the auth server")
		fmt.Println("  init                                 Write a starter config file")
		fmt.Println("  bootstrap --email E --password P     Create the initial administrator")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting shoplane-auth", "version", version)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// Single-use codes optionally live in Redis instead of the database.
	var codes store.CodeStore = st
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		codes = store.NewRedisCodeStore(client, cfg.Redis.KeyPrefix)
		logger.Info("using Redis code store", "addr", cfg.Redis.Addr)
	}

	sender := buildSender(cfg.Mail, logger)
	issuer := auth.NewIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)

	svcCfg := accounts.Config{
		RecoveryCodeTTL:     cfg.Codes.RecoveryTTL,
		VerificationCodeTTL: cfg.Codes.VerificationTTL,
		BcryptCost:          cfg.Auth.BcryptCost,
	}

	// One service per actor kind; same workflow, separate wiring.
	services := make(map[store.ActorKind]*accounts.Service, len(store.Kinds))
	for _, kind := range store.Kinds {
		services[kind] = accounts.NewService(kind, st, codes, st, issuer, sender, svcCfg)
	}

	api := httpapi.New(services, issuer)
	server := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: api.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	return nil
}

func runInit() error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

// runBootstrap creates the initial verified administrator, since the admin
// registration endpoint itself requires an existing administrator.
func runBootstrap(ctx context.Context) error {
	fs := flag.NewFlagSet("bootstrap", flag.ExitOnError)
	email := fs.String("email", "", "administrator email")
	password := fs.String("password", "", "administrator password")
	name := fs.String("name", "Administrator", "administrator display name")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("--email and --password are required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	cost := cfg.Auth.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(*password), cost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	admin := &store.Actor{
		ID:           uuid.New().String(),
		Kind:         store.ActorKindAdmin,
		Email:        *email,
		Name:         *name,
		PasswordHash: string(hash),
		Verified:     true,
	}
	if err := st.CreateActor(ctx, admin); err != nil {
		return fmt.Errorf("creating administrator: %w", err)
	}

	fmt.Printf("Created administrator %s (%s)\n", *email, admin.ID)
	return nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		st, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		return st, nil
	}
}

func buildSender(cfg config.MailConfig, logger *slog.Logger) mail.Sender {
	if cfg.Sender == "smtp" {
		return mail.NewSMTPSender(cfg.Host, cfg.Port, cfg.From, cfg.Username, cfg.Password)
	}
	return mail.NewLogSender(logger)
}

// setupLogger configures the default slog logger from config.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
