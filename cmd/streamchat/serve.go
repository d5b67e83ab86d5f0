package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/corvidlabs/streamchat/api/httpapi"
	"github.com/corvidlabs/streamchat/internal/batchwriter"
	"github.com/corvidlabs/streamchat/internal/eventlog"
	"github.com/corvidlabs/streamchat/internal/idgen"
	"github.com/corvidlabs/streamchat/internal/ports"
	"github.com/corvidlabs/streamchat/internal/producer"
	"github.com/corvidlabs/streamchat/internal/provideradapter"
	"github.com/corvidlabs/streamchat/internal/ratelimit"
	"github.com/corvidlabs/streamchat/internal/stopregistry"
	"github.com/corvidlabs/streamchat/internal/store"
	"github.com/corvidlabs/streamchat/internal/subscriber"
	"github.com/corvidlabs/streamchat/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func maskDatabaseURL(dbURL string) string {
	parsed, err := url.Parse(dbURL)
	if err != nil {
		return "[invalid URL]"
	}
	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "****")
		}
	}
	return parsed.String()
}

func runServe(ctx context.Context) error {
	tel, err := telemetry.Init(telemetry.Config{
		ServiceName: "streamchat-api",
		Environment: os.Getenv("SC_ENV"),
		PrettyLogs:  os.Getenv("SC_ENV") != "production",
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	logger := tel.Logger
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger.Info("starting streamchat api", "http_addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), "database", maskDatabaseURL(cfg.Database.URL))

	if err := store.Migrate(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("migrations applied")

	pool, err := store.Connect(ctx, store.Config{URL: cfg.Database.URL})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	s := store.New(pool)
	convs := store.NewConversationRepo(s)
	messages := store.NewMessageRepo(s)

	writerRedis := redis.NewClient(&redis.Options{Addr: cfg.Redis.WriterAddr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer writerRedis.Close()
	readerRedis := redis.NewClient(&redis.Options{Addr: cfg.Redis.ReaderAddr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer readerRedis.Close()

	if err := writerRedis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis writer: %w", err)
	}

	log := eventlog.NewRedisLog(writerRedis, readerRedis, cfg.Redis.StreamTTL)
	writer := batchwriter.New(log, cfg.BatchWriter.MaxBatchSize, cfg.BatchWriter.FlushEvery, logger)
	defer writer.Close()

	stops := stopregistry.New(writerRedis, cfg.StopTTL)
	limiter := ratelimit.New(writerRedis, cfg.RateLimit.FreeTierLimit, cfg.RateLimit.WindowDuration)
	ids := idgen.New()

	providers := map[string]ports.ProviderAdapter{}
	if cfg.Providers.OpenAIAPIKey != "" {
		providers["openai"] = provideradapter.NewOpenAIAdapter(cfg.Providers.OpenAIAPIKey, cfg.Providers.OpenAIBaseURL)
		logger.Info("openai provider configured")
	}
	if cfg.Providers.AnthropicAPIKey != "" {
		providers["anthropic"] = provideradapter.NewAnthropicAdapter(cfg.Providers.AnthropicAPIKey)
		logger.Info("anthropic provider configured")
	}
	if len(providers) == 0 {
		logger.Warn("no provider API keys configured; sendWithStream will fail with model_not_found")
	}

	p := producer.New(convs, messages, writer, stops, limiter, providers, ids, cfg.DefaultModelID, logger)
	sub := subscriber.New(log, logger)

	httpServer := httpapi.NewServer(httpapi.Config{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		CORSOrigins: cfg.Server.CORSOrigins,
		RequireAuth: cfg.Server.RequireAuth,
		ServiceName: "streamchat-api",
	}, p, sub, stops, convs, messages, pool.Ping, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		logger.Info("server stopped")
		return nil
	}
}
