// Command accounts runs the account and session authentication service.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bridgehq/bridge-accounts/pkg/account"
	"github.com/bridgehq/bridge-accounts/pkg/api"
	"github.com/bridgehq/bridge-accounts/pkg/auth"
	"github.com/bridgehq/bridge-accounts/pkg/config"
	"github.com/bridgehq/bridge-accounts/pkg/notify"
	"github.com/bridgehq/bridge-accounts/pkg/observability"
	"github.com/bridgehq/bridge-accounts/pkg/session"
	"github.com/bridgehq/bridge-accounts/pkg/token"
)

const tokenIssuerName = "bridge-accounts"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, os.Stdout)
	logger.WithField("port", cfg.Server.Port).Info("starting accounts service")

	db, err := account.Open(cfg.Database)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	err = account.Migrate(migrateCtx, db)
	cancelMigrate()
	if err != nil {
		logger.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}

	redisClient, err := session.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}
	defer redisClient.Close()

	metrics := observability.NewMetrics(nil)
	store := account.NewPostgresStore(db)
	issuer := token.NewIssuer(cfg.Auth.JWTSecret, tokenIssuerName)
	sessions := session.NewManager(redisClient,
		session.WithTTLs(cfg.Auth.SessionTTL, cfg.Auth.RememberMeTTL),
		session.WithCache(cfg.Auth.SessionCacheSize),
	)
	notifier := notify.NewLogNotifier(logger)

	service := auth.NewService(store, issuer, sessions, notifier, logger,
		auth.WithMetrics(metrics),
		auth.WithBcryptCost(cfg.Auth.BcryptCost),
		auth.WithResetTokenTTL(cfg.Auth.ResetTokenTTL),
	)

	serverOpts := []api.ServerOption{api.WithServerMetrics(metrics)}
	if cfg.Google.Enabled() {
		discoverCtx, cancelDiscover := context.WithTimeout(context.Background(), 10*time.Second)
		google, err := auth.NewGoogleProvider(discoverCtx, cfg.Google)
		cancelDiscover()
		if err != nil {
			logger.WithError(err).Error("failed to configure google auth")
			os.Exit(1)
		}
		serverOpts = append(serverOpts, api.WithGoogleAuthenticator(google))
		logger.Info("google auth enabled")
	} else {
		logger.Info("google auth disabled: client id/secret not configured")
	}

	apiServer := api.NewServer(service, cfg, logger, serverOpts...)

	// Hourly maintenance: drop reset tokens past their expiry
	maintenance := cron.New()
	if _, err := maintenance.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := service.PurgeExpiredResetTokens(ctx); err != nil {
			logger.WithError(err).Warn("reset token purge failed")
		}
	}); err != nil {
		logger.WithError(err).Error("failed to schedule maintenance job")
		os.Exit(1)
	}
	maintenance.Start()
	defer maintenance.Stop()

	healthChecker := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", healthChecker.Liveness)
	healthMux.HandleFunc("/readyz", healthChecker.Readiness)
	healthMux.Handle("/metrics", metrics.Handler())

	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}
	go func() {
		logger.WithField("port", cfg.Server.HealthPort).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("api server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		logger.WithError(err).Error("api server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("api server shutdown failed")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("health server shutdown failed")
	}
	logger.Info("shutdown complete")
}
