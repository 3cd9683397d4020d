package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"wagateway/internal/api"
	"wagateway/internal/auth"
	"wagateway/internal/buildinfo"
	"wagateway/internal/clock"
	"wagateway/internal/config"
	"wagateway/internal/integrations"
	"wagateway/internal/integrations/uazapi"
	"wagateway/internal/integrations/zapi"
	"wagateway/internal/ledger"
	"wagateway/internal/metrics"
	"wagateway/internal/notify"
	"wagateway/internal/orchestrator"
	"wagateway/internal/store"
	"wagateway/internal/webhooks"
)

func main() {
	configPath := pflag.StringP("config", "c", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	addr := pflag.String("addr", "", "listen address, overrides config and PORT")
	version := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *version {
		fmt.Println(buildinfo.String())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	metrics.RegisterDefault()
	clk := clock.Real()

	st, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ready := map[string]api.Pinger{}
	var broker notify.Broker = notify.NewMemoryBroker()
	if cfg.Redis.URL != "" {
		rb, err := notify.NewRedisBroker(cfg.Redis.URL, cfg.Redis.Prefix, logger)
		if err != nil {
			logger.Warn("redis broker unavailable, using in-process broker", "err", err)
		} else {
			defer func() { _ = rb.Close() }()
			broker = rb
			ready["redis"] = rb
		}
	}

	obs := metrics.Observer{}
	adapter, webhookSecret, err := newAdapter(cfg, logger, obs)
	if err != nil {
		return err
	}
	logger.Info("vendor adapter selected", "provider", adapter.Name(), "capabilities", integrations.Capabilities(adapter))

	notifier := notify.NewNotifier(broker, notify.NewRegistry(), clk, logger, obs)
	worker := webhooks.NewWorker(clk, cfg.Callbacks.MaxAttempts, logger)
	worker.OnResult = func(r webhooks.Result) {
		obs.ObserveCallback(r.Delivery.EventType, r.Code, r.LatencyMs)
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Adapter:       adapter,
		Ledger:        ledger.New(st, clk, adapter.Name()),
		Tenants:       st,
		Notifier:      notifier,
		Clock:         clk,
		Logger:        logger,
		Observer:      obs,
		ManualMode:    cfg.ManualInstanceMode,
		PublicURL:     cfg.PublicBaseURL,
		WebhookSecret: webhookSecret,
	})
	if err != nil {
		return err
	}

	srvDeps, err := api.NewServer(api.Options{
		Orchestrator: orch,
		Verifier: auth.NewVerifier(auth.Options{
			Mode:        cfg.Auth.Mode,
			HMACSecret:  cfg.Auth.HMACSecret,
			JWKSURL:     cfg.Auth.JWKSURL,
			TenantClaim: cfg.Auth.TenantClaim,
			RoleClaim:   cfg.Auth.RoleClaim,
		}),
		Store:          st,
		Worker:         worker,
		CallbackSecret: cfg.Callbacks.Secret,
		Ready:          ready,
		Logger:         logger,
		Debug:          debugConfig(cfg),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srvDeps.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go worker.Run(workerCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API listening", "addr", cfg.Addr, "version", buildinfo.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Storage, logger *slog.Logger) (store.Store, error) {
	switch {
	case cfg.DatabaseURL != "":
		logger.Info("using postgres store")
		return store.NewPostgres(ctx, cfg.DatabaseURL)
	case cfg.SQLitePath != "":
		logger.Info("using sqlite store", "path", cfg.SQLitePath)
		return store.NewSQLite(ctx, cfg.SQLitePath)
	}
	logger.Warn("no DATABASE_URL or SQLITE_PATH, records are kept in memory")
	return store.NewMemory(), nil
}

// newAdapter builds the configured vendor adapter and returns the secret
// inbound callbacks must carry.
func newAdapter(cfg config.Config, logger *slog.Logger, obs metrics.Observer) (integrations.Adapter, string, error) {
	var limiter *rate.Limiter
	if cfg.Vendor.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Vendor.RequestsPerSecond), cfg.Vendor.Burst)
	}
	hc := &http.Client{Timeout: cfg.Vendor.HTTPTimeout}

	switch strings.ToLower(cfg.Provider) {
	case zapi.Name:
		a, err := zapi.New(zapi.Options{
			BaseURL:     cfg.Zapi.BaseURL,
			InstanceID:  cfg.Zapi.InstanceID,
			Token:       cfg.Zapi.Token,
			ClientToken: cfg.Zapi.ClientToken,
			HTTP:        hc,
			Limiter:     limiter,
		})
		return a, "", err
	default:
		a, err := uazapi.New(uazapi.Options{
			BaseURL: cfg.Uazapi.BaseURL,
			Keys: integrations.Keyring{
				Admin:                 cfg.Uazapi.AdminToken,
				Global:                cfg.Uazapi.Token,
				DisableGlobalFallback: cfg.Uazapi.DisableGlobalFallback,
			},
			Routes:         cfg.Uazapi.Routes,
			HTTP:           hc,
			AttemptTimeout: cfg.Vendor.AttemptTimeout,
			Deadline:       cfg.Vendor.Deadline,
			Logger:         logger,
			Observer:       obs,
			Limiter:        limiter,
		})
		return a, cfg.Uazapi.WebhookSecret, err
	}
}

func debugConfig(cfg config.Config) map[string]any {
	return map[string]any{
		"addr":                 cfg.Addr,
		"provider":             cfg.Provider,
		"publicBaseUrl":        cfg.PublicBaseURL,
		"manualInstanceMode":   cfg.ManualInstanceMode,
		"authMode":             cfg.Auth.Mode,
		"vendorRps":            cfg.Vendor.RequestsPerSecond,
		"vendorBurst":          cfg.Vendor.Burst,
		"callbackMaxAttempts":  cfg.Callbacks.MaxAttempts,
		"hasDatabaseUrl":       cfg.Storage.DatabaseURL != "",
		"hasSqlitePath":        cfg.Storage.SQLitePath != "",
		"hasRedisUrl":          cfg.Redis.URL != "",
		"hasWebhookSecret":     cfg.Uazapi.WebhookSecret != "",
		"globalFallbackActive": !cfg.Uazapi.DisableGlobalFallback && cfg.Uazapi.Token != "",
	}
}
