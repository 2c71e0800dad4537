package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/hellolink/internal/config"
	"github.com/dropDatabas3/hellolink/internal/domain/repository"
	"github.com/dropDatabas3/hellolink/internal/email"
	"github.com/dropDatabas3/hellolink/internal/flow"
	httpx "github.com/dropDatabas3/hellolink/internal/http"
	"github.com/dropDatabas3/hellolink/internal/observability/logger"
	"github.com/dropDatabas3/hellolink/internal/rate"
	"github.com/dropDatabas3/hellolink/internal/store/memory"
	"github.com/dropDatabas3/hellolink/internal/store/pg"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el broker HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(parent context.Context, cfg *config.Config) error {
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "hellolink",
	})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("serve")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	limiter, err := buildLimiter(ctx, cfg, store)
	if err != nil {
		return err
	}

	svc := flow.NewService(store, limiter, rate.Limits{
		IPPerMinute:     cfg.Rate.Limits.IPPerMinute,
		EmailPerMinute:  cfg.Rate.Limits.EmailPerMinute,
		EmailPerHour:    cfg.Rate.Limits.EmailPerHour,
		ClientPerMinute: cfg.Rate.Limits.ClientPerMinute,
	}, buildSender(cfg), flow.Config{
		PublicBaseURL:  cfg.Server.PublicBaseURL,
		TokenTTL:       cfg.TokenTTL(),
		CodeTTL:        cfg.CodeTTL(),
		ResendCooldown: cfg.ResendCooldown(),
		MaxAttempts:    cfg.Auth.MaxAttempts,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httpx.NewRouter(httpx.RouterConfig{Flow: svc, Store: store}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening",
			logger.String("addr", cfg.Server.Addr),
			logger.String("public_base_url", cfg.Server.PublicBaseURL),
			logger.String("storage", cfg.Storage.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return memory.New(), nil
	case "postgres":
		return pg.Connect(ctx, cfg.Storage.DSN, cfg.Storage.Postgres.MaxOpenConns, cfg.Storage.Postgres.MaxIdleConns)
	default:
		return nil, fmt.Errorf("storage driver desconocido: %q", cfg.Storage.Driver)
	}
}

// buildLimiter elige el backend de rate limiting. "auto" prefiere redis
// si hay addr configurada, después el store durable, y memoria como
// último recurso (solo single-node).
func buildLimiter(ctx context.Context, cfg *config.Config, store repository.Store) (rate.Limiter, error) {
	backend := cfg.Rate.Backend
	if backend == "" || backend == "auto" {
		switch {
		case cfg.Rate.Redis.Addr != "":
			backend = "redis"
		case cfg.Storage.Driver == "postgres":
			backend = "store"
		default:
			backend = "memory"
		}
	}

	switch backend {
	case "redis":
		client := rdb.NewClient(&rdb.Options{Addr: cfg.Rate.Redis.Addr, DB: cfg.Rate.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return rate.NewRedisLimiter(client, cfg.Rate.Redis.Prefix), nil
	case "store":
		return rate.NewStoreLimiter(store.RateLimits()), nil
	case "memory":
		return rate.NewMemoryLimiter(), nil
	default:
		return nil, fmt.Errorf("rate backend desconocido: %q", backend)
	}
}

func buildSender(cfg *config.Config) email.Sender {
	if cfg.SMTP.Host == "" || cfg.Email.DebugEchoLinks {
		return email.EchoSender{}
	}
	return email.FromConfig(email.SMTPConfig{
		Host:               cfg.SMTP.Host,
		Port:               cfg.SMTP.Port,
		Username:           cfg.SMTP.Username,
		Password:           cfg.SMTP.Password,
		FromEmail:          cfg.SMTP.From,
		FromName:           cfg.SMTP.FromName,
		TLSMode:            cfg.SMTP.TLS,
		InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
	})
}
