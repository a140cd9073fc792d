package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SoarinFerret/IdleWarden/internal/auth"
	"github.com/SoarinFerret/IdleWarden/internal/clock"
	"github.com/SoarinFerret/IdleWarden/internal/config"
	"github.com/SoarinFerret/IdleWarden/internal/engine"
	"github.com/SoarinFerret/IdleWarden/internal/gateway"
	"github.com/SoarinFerret/IdleWarden/internal/ipc"
	"github.com/SoarinFerret/IdleWarden/internal/logging"
	"github.com/SoarinFerret/IdleWarden/internal/metrics"
	"github.com/SoarinFerret/IdleWarden/internal/monitor"
	"github.com/SoarinFerret/IdleWarden/internal/state"
)

func main() {
	// check for argument to determine config location
	argPath := "/etc/idlewarden/config.toml"
	if len(os.Args) > 1 {
		argPath = os.Args[1]
	}

	cfg, err := config.LoadConfigFromFile(argPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.LoadSecrets(".env"); err != nil {
		logrus.WithError(err).Fatal("Failed to load secrets")
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log.WithField("path", argPath).Info("Using config file")
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	clk := clock.Real{}

	// initialize the state manager
	stateMgr, err := state.NewManager(cfg.State.Path, clk, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize state manager")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newRevocationStore(ctx, cfg, clk, log)
	defer store.Close()

	validator, err := auth.NewValidator(cfg.Secrets.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Algorithm, clk)
	if err != nil {
		log.WithError(err).Fatal("Failed to create token validator")
	}
	authSvc := auth.NewService(validator, store, cfg.Auth.AdminRole, clk, log)

	registry := gateway.NewRegistry()
	srv := gateway.NewServer(gateway.Options{
		Monitor:        monitorConfig(cfg.Monitor),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ActivityRate:   cfg.Server.ActivityRate,
		ActivityBurst:  cfg.Server.ActivityBurst,
		WriteTimeout:   cfg.Server.WriteTimeout.Std(),
	}, authSvc, registry, stateMgr, metrics.New(), clk, log)

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.WithField("signal", s.String()).Info("Shutting down")
		cancel()
	}()

	var wg sync.WaitGroup

	// Start the websocket and admin HTTP server
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.WithField("addr", cfg.Server.Listen).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server error")
			cancel()
		}
	}()

	// Start the D-Bus service
	if cfg.DBus.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			system := cfg.DBus.System == nil || *cfg.DBus.System
			sm := &ipc.SessionManager{State: stateMgr, Registry: registry, Clock: clk, Log: log}
			if err := ipc.Serve(ctx, system, sm); err != nil {
				log.WithError(err).Error("D-Bus service error")
			}
		}()
	}

	// Start the sweep engine
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweep := engine.NewEngine(presences(registry), authSvc, stateMgr,
			cfg.Engine.Interval.Std(), cfg.State.Retention.Std(), clk, log)
		if err := sweep.Run(ctx); err != nil {
			log.WithError(err).Error("Engine error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()
	srv.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server did not shut down cleanly")
	}

	wg.Wait()
	log.Info("Shutdown complete")
}

// newRevocationStore connects to Redis when enabled and falls back to the
// in-memory store when it is disabled or unreachable.
func newRevocationStore(ctx context.Context, cfg *config.Config, clk clock.Clock, log logrus.FieldLogger) auth.Store {
	if cfg.Redis.Enabled {
		store, err := auth.NewRedisStore(ctx, cfg.Redis.URL, cfg.Secrets.RedisPassword,
			cfg.Redis.KeyPrefix, cfg.Redis.DialTimeout.Std(), log)
		if err == nil {
			return store
		}
		log.WithError(err).Warn("Redis unavailable, using in-memory revocation store")
	}
	return auth.NewMemoryStore(clk, log)
}

func monitorConfig(c config.MonitorConfig) monitor.Config {
	kinds := make([]monitor.EventKind, 0, len(c.ActivityEvents))
	for _, k := range c.ActivityEvents {
		kinds = append(kinds, monitor.EventKind(k))
	}
	return monitor.Config{
		TotalTimeout:   c.TotalTimeout.Std(),
		WarningLead:    c.WarningLead.Std(),
		ExcludedRoutes: c.ExcludedRoutes,
		ActivityKinds:  kinds,
		LoginRoute:     c.LoginRoute,
	}
}

func presences(registry *gateway.Registry) func() []engine.Presence {
	return func() []engine.Presence {
		list := registry.List()
		out := make([]engine.Presence, 0, len(list))
		for _, sess := range list {
			out = append(out, sess)
		}
		return out
	}
}
