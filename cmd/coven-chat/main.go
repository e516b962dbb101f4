// ABOUTME: Entry point for coven-chat, the conversation history server
// ABOUTME: Serves the chat HTTP API and offers local inspection and codec commands

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/coven-chat/internal/api"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/envelope"
	"github.com/2389/coven-chat/internal/hitcount"
	"github.com/2389/coven-chat/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                        _           _
  ___ _____   _____ _ __            ___| |__   __ _| |_
 / __/ _ \ \ / / _ \ '_ \  _____   / __| '_ \ / _' | __|
| (_| (_) \ V /  __/ | | ||_____| | (__| | | | (_| | |_
 \___\___/ \_/ \___|_| |_|         \___|_| |_|\__,_|\__|
`

const shutdownTimeout = 10 * time.Second

// getConfigPath returns the path to the chat config file.
// Priority: COVEN_CHAT_CONFIG env var > XDG_CONFIG_HOME/coven/chat.yaml > ~/.config/coven/chat.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COVEN_CHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "chat.yaml")
}

// loadConfig loads the config file, falling back to defaults when it does
// not exist. The .env file (or .env.dev) is loaded first so the config can
// reference its variables.
func loadConfig(dev bool) (*config.Config, string, error) {
	envFile := ".env"
	if dev {
		envFile = ".env.dev"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("loading %s: %w", envFile, err)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), "(defaults)", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func usage() {
	fmt.Println("Usage: coven-chat [--dev] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                 Start the chat HTTP server")
	fmt.Println("  get <participant-id>  Print the conversations resolved for a participant")
	fmt.Println("  users                 List the participant directory")
	fmt.Println("  encode <text>         Encode text into a stored message envelope")
	fmt.Println("  decode <envelope>     Decode a stored message envelope")
}

func main() {
	args := os.Args[1:]
	dev := false
	if len(args) > 0 && args[0] == "--dev" {
		dev = true
		args = args[1:]
	}
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch args[0] {
	case "serve":
		err = runServe(ctx, dev)
	case "get":
		err = runGet(ctx, dev, args[1:])
	case "users":
		err = runUsers(ctx, dev)
	case "encode":
		err = runEncode(args[1:])
	case "decode":
		err = runDecode(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, dev bool) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig(dev)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s", cfg.Database.Driver)
	gray.Printf(" (%s)\n", databaseTarget(cfg.Database))
	green.Print("    ▶ ")
	fmt.Printf("Counter:   %s\n", cfg.Counter.Backend)
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	fmt.Println()

	logger.Info("starting coven-chat",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"driver", cfg.Database.Driver,
	)

	convStore, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer convStore.Close()

	counter, err := openCounter(ctx, cfg.Counter)
	if err != nil {
		return err
	}
	defer counter.Close()

	opts := api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		MaxPerWindow:   cfg.Counter.MaxPerWindow,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}

	svc := conversation.New(convStore, logger)
	server := api.NewServer(svc, counter, opts, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

func runGet(ctx context.Context, dev bool, args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("usage: coven-chat get <participant-id>")
	}

	cfg, _, err := loadConfig(dev)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	convStore, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer convStore.Close()

	convs, err := conversation.New(convStore, logger).GetConversations(ctx, store.Participant{ID: args[0]})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(convs)
}

func runUsers(ctx context.Context, dev bool) error {
	cfg, _, err := loadConfig(dev)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	convStore, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer convStore.Close()

	users, err := convStore.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No users found.")
		return nil
	}

	gray := color.New(color.FgHiBlack)
	for _, u := range users {
		fmt.Printf("%s  %s", u.ID, u.Name)
		if u.Email != "" {
			gray.Printf("  <%s>", u.Email)
		}
		fmt.Println()
	}
	return nil
}

func runEncode(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: coven-chat encode <text>")
	}
	env, err := envelope.Encode(strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Println(env)
	return nil
}

func runDecode(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: coven-chat decode <envelope>")
	}
	text, err := envelope.Decode(args[0])
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*store.ConversationStore, error) {
	var (
		coll store.Collection
		err  error
	)
	switch cfg.Driver {
	case config.DriverSQLite:
		coll, err = store.NewSQLiteCollection(cfg.Path, logger)
	default:
		coll, err = store.NewMongoCollection(ctx, store.MongoConfig{
			URI:             cfg.URI,
			Database:        cfg.Name,
			Collection:      cfg.Collection,
			UsersDatabase:   cfg.UsersDatabase,
			UsersCollection: cfg.UsersCollection,
			AppName:         cfg.AppName,
			ConnectTimeout:  cfg.ConnectTimeout,
		}, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Driver, err)
	}
	return store.NewConversationStore(coll, logger), nil
}

// openCounter creates the configured request counter.
func openCounter(ctx context.Context, cfg config.CounterConfig) (hitcount.Counter, error) {
	if cfg.Backend == config.CounterRedis {
		c, err := hitcount.NewRedisCounter(ctx, cfg.RedisURL, cfg.Window)
		if err != nil {
			return nil, fmt.Errorf("opening redis counter: %w", err)
		}
		return c, nil
	}
	return hitcount.NewMemoryCounter(cfg.Window, cfg.MaxKeys), nil
}

// databaseTarget describes where the store lives without leaking credentials.
func databaseTarget(cfg config.DatabaseConfig) string {
	if cfg.Driver == config.DriverSQLite {
		return cfg.Path
	}
	return cfg.Name + "." + cfg.Collection
}
