package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/veraclinic/agendabot/internal/api/router"
	appconfig "github.com/veraclinic/agendabot/internal/config"
	"github.com/veraclinic/agendabot/internal/conversation"
	"github.com/veraclinic/agendabot/internal/messaging"
	"github.com/veraclinic/agendabot/internal/observability/metrics"
	"github.com/veraclinic/agendabot/internal/registry"
	"github.com/veraclinic/agendabot/internal/scheduling"
	"github.com/veraclinic/agendabot/internal/session"
	"github.com/veraclinic/agendabot/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting agendabot API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Redis session store
	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	sessions := session.NewStore(redisClient, cfg.SessionTTL, logger)

	// External collaborators
	portalClient, err := registry.NewPortalClient(registry.Config{
		BaseURL: cfg.PortalBaseURL,
		APIKey:  cfg.PortalAPIKey,
	})
	if err != nil {
		logger.Error("failed to build portal client", "error", err)
		os.Exit(1)
	}
	agendaClient, err := scheduling.NewAgendaClient(scheduling.Config{
		BaseURL: cfg.SchedulingBaseURL,
		APIKey:  cfg.SchedulingAPIKey,
	})
	if err != nil {
		logger.Error("failed to build agenda client", "error", err)
		os.Exit(1)
	}

	clinicLoc, err := scheduling.ParseUTCOffset(cfg.ClinicUTCOffset)
	if err != nil {
		logger.Error("invalid clinic utc offset", "error", err, "offset", cfg.ClinicUTCOffset)
		os.Exit(1)
	}
	slots := scheduling.NewEligibility(
		cfg.BookingMinLeadTime,
		clinicLoc,
		cfg.BookingLookaheadDays,
		cfg.BookingDateChoices,
		cfg.BookingPageSize,
	)

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	conversationMetrics := metrics.NewConversationMetrics(promRegistry)

	// Conversation engine and WhatsApp transport
	sender := messaging.NewWhatsAppSender(cfg.WhatsAppAPIBaseURL, cfg.WhatsAppToken, cfg.WhatsAppPhoneNumberID, logger)
	engine := conversation.NewEngine(
		sessions,
		portalClient,
		agendaClient,
		slots,
		sender,
		conversationMetrics,
		logger,
		conversation.Options{
			ProviderID:           cfg.ProviderID,
			ResetKeyword:         cfg.ResetKeyword,
			SupportHandoffNumber: cfg.SupportHandoffNumber,
		},
	)
	webhook := messaging.NewHandler(cfg.WhatsAppVerifyToken, engine, logger)

	// Setup router
	r := router.New(&router.Config{
		Webhook:        webhook,
		MetricsHandler: promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := redisClient.Close(); err != nil {
		logger.Warn("redis close failed", "error", err)
	}

	logger.Info("server stopped")
}
