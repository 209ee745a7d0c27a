package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/kenneth/identity-helper/internal/api"
	"github.com/kenneth/identity-helper/internal/audit"
	"github.com/kenneth/identity-helper/internal/cache"
	"github.com/kenneth/identity-helper/internal/config"
	"github.com/kenneth/identity-helper/internal/crypto"
	"github.com/kenneth/identity-helper/internal/helper"
	"github.com/kenneth/identity-helper/internal/metrics"
	"github.com/kenneth/identity-helper/internal/middleware"
	"github.com/kenneth/identity-helper/internal/storage"
	"github.com/kenneth/identity-helper/internal/tracing"
	"github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	applyLogLevel(logger, cfg.LogLevel)

	logger.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
	}).Info("Starting identity helper")

	// Keys are decoded once; Validate already proved they decode.
	keys, err := cfg.DecodeKeys()
	if err != nil {
		logger.WithError(err).Fatal("Failed to decode identity keys")
	}

	// Tracing
	if cfg.Tracing.ServiceVersion == "" {
		cfg.Tracing.ServiceVersion = version
	}
	shutdownTracing, err := tracing.Setup(context.Background(), &cfg.Tracing)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracing")
	}
	if cfg.Tracing.Enabled {
		logger.WithFields(logrus.Fields{
			"exporter":       cfg.Tracing.Exporter,
			"sampling_ratio": cfg.Tracing.SamplingRatio,
		}).Info("Tracing enabled")
	}

	// Initialize metrics
	m := metrics.NewMetrics()
	stopMetrics := make(chan struct{})
	m.StartSystemMetricsCollector(stopMetrics)

	// Cryptography oracle
	rawOracle, oracleCloser, err := api.BuildOracle(&cfg.Oracle, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create cryptography oracle")
	}
	defer oracleCloser.Close()
	oracle := crypto.Instrument(rawOracle, m)

	// Object storage
	storeOpts := []storage.Option{storage.WithRecorder(m)}
	if cfg.ArchiveCache.Enabled {
		storeOpts = append(storeOpts, storage.WithArchiveCache(
			cache.NewMemoryCache(cfg.ArchiveCache.MaxBytes, cfg.ArchiveCache.MaxItems, cfg.ArchiveCache.TTL),
		))
		logger.WithFields(logrus.Fields{
			"max_bytes": cfg.ArchiveCache.MaxBytes,
			"max_items": cfg.ArchiveCache.MaxItems,
			"ttl":       cfg.ArchiveCache.TTL,
		}).Info("Archive cache enabled")
	}
	store, err := api.BuildStore(&cfg.ObjectStorage, logger, storeOpts...)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create object storage")
	}

	// Initialize audit logger if enabled
	var auditLogger audit.Logger
	if cfg.Audit.Enabled {
		auditLogger = audit.NewLogger(cfg.Audit.MaxEvents, nil)
		logger.WithFields(logrus.Fields{
			"max_events": cfg.Audit.MaxEvents,
		}).Info("Audit logging enabled")
	}

	engine, err := helper.NewEngine(oracle, keys, store, cfg.RootFolder(),
		helper.WithLogger(logger),
		helper.WithRecorder(m),
		helper.WithAuditLogger(auditLogger),
		helper.WithObjectOptions(cfg.ObjectStorage.ContentType, cfg.ObjectStorage.ACL),
	)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create helper engine")
	}

	handler := api.NewHandler(engine, logger, m,
		api.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		api.WithReadinessChecks(5*time.Second, metrics.Check{Name: "storage", Run: store.Ping}),
	)

	// Setup router
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	// Apply middleware, innermost first
	httpHandler := middleware.BodyLimitMiddleware(cfg.Server.MaxBodyBytes, logger)(router)

	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			cfg.RateLimit.Limit,
			cfg.RateLimit.Window,
			logger,
		)
		defer rateLimiter.Stop()
		httpHandler = middleware.RateLimitMiddleware(rateLimiter)(httpHandler)
		logger.WithFields(logrus.Fields{
			"limit":  cfg.RateLimit.Limit,
			"window": cfg.RateLimit.Window,
		}).Info("Rate limiting enabled")
	}

	httpHandler = middleware.SecurityHeadersMiddleware()(httpHandler)
	httpHandler = middleware.LoggingMiddleware(logger, &cfg.Logging)(httpHandler)
	if cfg.Tracing.Enabled {
		httpHandler = middleware.TracingMiddleware(cfg.Tracing.RedactSensitive)(httpHandler)
	}
	httpHandler = middleware.RequestIDMiddleware()(httpHandler)
	httpHandler = middleware.RecoveryMiddleware(logger)(httpHandler)

	// Hot reload: only settings that are safe to change take effect
	reloader, err := config.NewConfigReloader(configPath, cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("Config hot reload disabled")
	} else {
		reloader.SetOnReloadCallback(func(old, new *config.Config) error {
			if old.LogLevel != new.LogLevel {
				applyLogLevel(logger, new.LogLevel)
				logger.WithField("log_level", new.LogLevel).Info("Log level changed")
			}
			return nil
		})
		go reloader.Start()
		defer reloader.Stop()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpHandler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
		ConnState: func(_ net.Conn, state http.ConnState) {
			switch state {
			case http.StateNew:
				m.IncrementActiveConnections()
			case http.StateHijacked, http.StateClosed:
				m.DecrementActiveConnections()
			}
		},
	}

	// Start server in goroutine
	go func() {
		var err error
		if cfg.TLS.Enabled {
			logger.WithFields(logrus.Fields{
				"addr":      cfg.ListenAddr,
				"cert_file": cfg.TLS.CertFile,
				"key_file":  cfg.TLS.KeyFile,
			}).Info("Starting HTTPS server")
			err = server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			logger.WithField("addr", cfg.ListenAddr).Info("Starting HTTP server")
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	} else {
		logger.Info("Server stopped gracefully")
	}

	close(stopMetrics)
	if err := shutdownTracing(ctx); err != nil {
		logger.WithError(err).Warn("Failed to flush traces")
	}
}

func applyLogLevel(logger *logrus.Logger, name string) {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}
