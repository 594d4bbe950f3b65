package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/agentdeck/agentdeck/internal/adapter/cmdvalidator"
	adhttp "github.com/agentdeck/agentdeck/internal/adapter/http"
	admcp "github.com/agentdeck/agentdeck/internal/adapter/mcp"
	"github.com/agentdeck/agentdeck/internal/adapter/memcache"
	"github.com/agentdeck/agentdeck/internal/adapter/memstore"
	adnats "github.com/agentdeck/agentdeck/internal/adapter/nats"
	"github.com/agentdeck/agentdeck/internal/adapter/natskv"
	adotel "github.com/agentdeck/agentdeck/internal/adapter/otel"
	"github.com/agentdeck/agentdeck/internal/adapter/postgres"
	adristretto "github.com/agentdeck/agentdeck/internal/adapter/ristretto"
	"github.com/agentdeck/agentdeck/internal/adapter/ws"
	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/logger"
	"github.com/agentdeck/agentdeck/internal/port/cache"
	"github.com/agentdeck/agentdeck/internal/port/messagequeue"
	"github.com/agentdeck/agentdeck/internal/port/store"
	"github.com/agentdeck/agentdeck/internal/remote"
	"github.com/agentdeck/agentdeck/internal/secrets"
	"github.com/agentdeck/agentdeck/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Backend,
		"cache", cfg.Remote.CacheBackend,
		"remote", cfg.Remote.BaseURL,
	)

	ctx := context.Background()

	// --- Telemetry ---
	var metrics *adotel.Metrics
	if cfg.Telemetry.Enabled {
		shutdown, err := adotel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Warn("telemetry shutdown", "error", err)
			}
		}()

		metrics, err = adotel.NewMetrics()
		if err != nil {
			return fmt.Errorf("telemetry metrics: %w", err)
		}
		slog.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint)
	}

	// --- Store ---
	var projectStore store.Store
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		projectStore = postgres.NewStore(pool)
		slog.Info("postgres store ready")
	default:
		projectStore = memstore.New()
		slog.Info("in-memory store ready")
	}

	// --- NATS (optional) ---
	var natsQueue *adnats.Queue
	var queue messagequeue.Queue
	if cfg.NATS.URL != "" {
		natsQueue, err = adnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = natsQueue.Close() }()
		queue = natsQueue
		slog.Info("nats connected", "url", cfg.NATS.URL)
	}

	// --- Remote client registry ---
	newCache, err := cacheFactory(ctx, cfg, natsQueue)
	if err != nil {
		return err
	}
	registry := remote.NewRegistry(cfg.Remote, cfg.Breaker, newCache)
	if metrics != nil {
		registry.OnSample(func(s remote.Sample) {
			metrics.RemoteLatency.Record(ctx, s.Latency.Seconds(), metric.WithAttributes(
				attribute.String("method", s.Method),
				attribute.Int("status", s.Status),
				attribute.Bool("cached", s.Cached),
			))
		})
	}

	// Credentials can be rotated without a restart: SIGHUP re-reads the
	// environment and points Default() at the new pair.
	vault, err := secrets.NewVault(secrets.EnvLoader(secrets.KeyOrgID, secrets.KeyAPIToken))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	reloadOnSIGHUP(vault, registry)

	// --- Services ---
	hub := ws.NewHub()
	projectSvc := service.NewProjectService(projectStore, hub)
	lifecycleSvc := service.NewLifecycleService(projectStore, registry, hub, queue, metrics, cfg.Agent)
	validationSvc := service.NewValidationService(projectStore, cmdvalidator.New(cfg.Validation), hub, queue, metrics)

	// --- MCP (optional) ---
	if cfg.MCP.Enabled {
		mcpSrv := admcp.NewServer(cfg.MCP, admcp.ServerDeps{
			Projects: projectSvc,
			Runs:     lifecycleSvc,
		})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mcpSrv.Stop(stopCtx)
		}()
	}

	// --- HTTP ---
	handlers := adhttp.NewHandlers(projectSvc, lifecycleSvc, validationSvc, registry, hub)
	var handler http.Handler = adhttp.NewRouter(handlers, cfg.Server)
	if cfg.Telemetry.Enabled {
		handler = adotel.HTTPMiddleware(cfg.Logging.Service)(handler)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Let in-flight run polls record their outcomes before the store goes
	// away. Each poll is bounded by the configured poll timeout.
	slog.Info("waiting for background run polls")
	lifecycleSvc.Wait()

	if natsQueue != nil {
		if err := natsQueue.Drain(); err != nil {
			slog.Warn("nats drain", "error", err)
		}
	}
	return nil
}

// reloadOnSIGHUP reloads the secret vault on SIGHUP and rotates the
// registry's default credentials to whatever the environment now holds.
func reloadOnSIGHUP(vault *secrets.Vault, registry *remote.Registry) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := vault.Reload(); err != nil {
				slog.Error("credential reload failed, keeping previous values", "error", err)
				continue
			}
			creds := vault.Credentials()
			registry.UpdateDefault(creds.OrgID, creds.APIToken)
			slog.Info("remote credentials reloaded")
		}
	}()
}

// cacheFactory returns the per-client response cache constructor for the
// configured backend. Every remote client gets its own cache instance so
// responses never leak across credentials.
func cacheFactory(ctx context.Context, cfg *config.Config, natsQueue *adnats.Queue) (func() cache.Cache, error) {
	switch cfg.Remote.CacheBackend {
	case "ristretto":
		return func() cache.Cache {
			c, err := adristretto.New(int64(cfg.Remote.CacheMaxEntries))
			if err != nil {
				slog.Error("ristretto cache init failed, caching disabled", "error", err)
				return nil
			}
			return c
		}, nil
	case "nats":
		if natsQueue == nil {
			return nil, errors.New("cache backend nats requires a NATS connection")
		}
		kv, err := natsQueue.KeyValue(ctx, "remote-cache", cfg.Remote.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("nats kv: %w", err)
		}
		// One shared bucket: the TTL lives on the bucket, and cache keys
		// embed the organization through the endpoint path.
		return func() cache.Cache { return natskv.New(kv) }, nil
	default:
		return func() cache.Cache { return memcache.New(cfg.Remote.CacheMaxEntries) }, nil
	}
}
