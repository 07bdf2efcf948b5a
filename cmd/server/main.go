package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/nitematch/nitematch/internal/cache"
	"github.com/nitematch/nitematch/internal/config"
	"github.com/nitematch/nitematch/internal/database"
	"github.com/nitematch/nitematch/internal/httpserver"
	"github.com/nitematch/nitematch/internal/identity"
	"github.com/nitematch/nitematch/internal/middleware"
	"github.com/nitematch/nitematch/internal/monitoring"
	"github.com/nitematch/nitematch/internal/notification"
	"github.com/nitematch/nitematch/internal/phase"
	"github.com/nitematch/nitematch/internal/services"
	"github.com/nitematch/nitematch/internal/telemetry"
)

const (
	serviceName     = "nitematch"
	shutdownTimeout = 30 * time.Second
	pruneInterval   = time.Hour
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "nitematch: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := telemetry.InitGlobalLogger(&cfg.Log); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"service":     serviceName,
		"version":     cfg.Version,
		"environment": cfg.Environment,
	})
	logger.WithFields(map[string]interface{}{
		"unlock_at":    cfg.Unlock.Format(time.RFC3339),
		"email_domain": cfg.EmailDomain,
		"mail_driver":  cfg.MailDriver,
	}).Info("Starting nitematch")

	provider, err := telemetry.NewProvider(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("OpenTelemetry shutdown failed")
		}
	}()

	db, err := database.NewConnection(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close database")
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	store, err := cache.NewStore(ctx, cfg.Redis, cfg.MatchCacheTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close Redis")
		}
	}()

	metrics := monitoring.NewMetricsCollector()
	var instruments *monitoring.OTelInstruments
	if provider.Enabled() {
		instruments, err = monitoring.NewOTelInstruments(nil)
		if err != nil {
			return err
		}
		metrics.AttachOTel(instruments)
	}

	health := monitoring.NewHealthChecker(serviceName, cfg.Version)
	health.RegisterDatabaseCheck("database", db.DB)
	health.RegisterRedisCheck("redis", store)

	var mailer notification.Sender = notification.LogSender{}
	if cfg.MailDriver == config.MailDriverSMTP {
		mailer = notification.NewSMTPSender(cfg.SMTP)
	}

	gate := cfg.Gate()
	clock := phase.SystemClock
	domain := identity.NewDomainGate(cfg.EmailDomain)

	profiles := database.NewProfileStore(db)
	tokens := database.NewTokenStore(db)
	messages := database.NewMessageStore(db)

	profileService := services.NewProfileService(profiles, gate, clock, domain, cfg.NoteMaxLength, metrics)
	authService := services.NewAuthService(profiles, tokens, store, mailer, domain, clock, services.AuthConfig{
		BaseURL:      cfg.BaseURL,
		MagicLinkTTL: cfg.MagicLinkTTL,
		SessionTTL:   cfg.SessionTTL,
	}, metrics)
	matchingService := services.NewMatchingService(profiles, store, cfg.Policy, gate, clock, metrics)
	messagingService := services.NewMessagingService(messages, matchingService, clock, cfg.MessageMaxLength, metrics)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	traceService := ""
	if provider.Enabled() {
		traceService = serviceName
	}
	router := httpserver.NewRouter(httpserver.Options{
		Profiles:      profileService,
		Auth:          authService,
		Matches:       matchingService,
		Messages:      messagingService,
		Gate:          gate,
		Clock:         clock,
		Monitoring:    monitoring.NewMonitoringMiddleware(metrics, health, nil),
		OTel:          instruments,
		TraceService:  traceService,
		Errors:        middleware.ErrorHandlerConfig{ExposeDetails: !cfg.IsProduction()},
		SecureCookies: cfg.IsProduction(),
	})
	srv := httpserver.New(cfg.HTTPAddr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		pruneTokens(groupCtx, tokens, clock, metrics)
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("HTTP shutdown failed")
			return err
		}
		logger.Info("Graceful shutdown completed")
		return nil
	})

	return group.Wait()
}

// pruneTokens deletes sign-in tokens that expired over a day ago, hourly
// until ctx ends
func pruneTokens(ctx context.Context, tokens *database.TokenStore, clock phase.Clock, metrics *monitoring.MetricsCollector) {
	logger := telemetry.GetContextualLogger(ctx).WithField("operation", "prune_tokens")
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := tokens.DeleteExpired(ctx, clock.Now().Add(-24*time.Hour))
			if err != nil {
				logger.WithError(err).Warn("Failed to prune tokens")
				metrics.RecordError("token_pruner", "database")
				continue
			}
			if n > 0 {
				logger.WithField("deleted", n).Info("Pruned sign-in tokens")
			}
		}
	}
}
