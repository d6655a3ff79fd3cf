package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/audichuang/openclaw-telegram-files/internal/api"
	"github.com/audichuang/openclaw-telegram-files/internal/audit"
	"github.com/audichuang/openclaw-telegram-files/internal/events"
	"github.com/audichuang/openclaw-telegram-files/internal/fileops"
	"github.com/audichuang/openclaw-telegram-files/internal/logging"
	"github.com/audichuang/openclaw-telegram-files/internal/metrics"
	"github.com/audichuang/openclaw-telegram-files/internal/operator"
	"github.com/audichuang/openclaw-telegram-files/internal/pairing"
	"github.com/audichuang/openclaw-telegram-files/internal/pathguard"
	"github.com/audichuang/openclaw-telegram-files/internal/quota"
	"github.com/audichuang/openclaw-telegram-files/internal/session"
)

const (
	shutdownTimeout = 10 * time.Second
	// limiterIdle is how long an idle client bucket is kept.
	limiterIdle = 10 * time.Minute
)

func runServe(ctx context.Context, v *viper.Viper) error {
	cfg, configFile, err := loadConfig(v)
	if err != nil {
		return err
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		return err
	}
	defer logging.Sync()

	logging.Info("tgfiles gateway starting",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("config_file", configFile),
		zap.Int("pid", os.Getpid()))

	guard, err := pathguard.New(cfg.AllowedPaths)
	if err != nil {
		return err
	}
	for _, root := range guard.Roots() {
		if _, err := pathguard.Canonicalize(root); err != nil {
			logging.Warn("allowed path cannot be resolved; it will deny everything", zap.String("root", root))
		}
	}
	logging.Info("allow-list loaded", zap.Strings("roots", guard.Roots()))

	pairings := pairing.New(pairing.Config{TTL: cfg.PairingTTL, Capacity: cfg.PairingCapacity})
	sessions := session.New(session.Config{TTL: cfg.SessionTTL, Capacity: cfg.SessionCapacity})

	op, err := operator.New(operator.Config{
		Secret:       cfg.OperatorSecret,
		PasswordHash: cfg.OperatorPasswordHash,
	})
	if err != nil {
		return err
	}

	broadcaster := events.NewBroadcaster(nil)

	var auditLog audit.Recorder
	if cfg.DatabaseURL != "" {
		logging.Info("connecting to PostgreSQL...")
		pg, err := audit.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		auditLog = pg
	} else {
		auditLog = audit.NewMemory(audit.MaxRecentLimit)
	}
	defer auditLog.Close()

	var limiter *quota.RateLimiter
	if cfg.ExchangePerMinute > 0 {
		limiter = quota.NewRateLimiter(cfg.ExchangePerMinute, nil)
	}

	srv := api.NewServer(api.Deps{
		Pairings:        pairings,
		Sessions:        sessions,
		Guard:           guard,
		Files:           fileops.New(fileops.Config{}),
		Operator:        op,
		Events:          broadcaster,
		Audit:           auditLog,
		ExchangeLimiter: limiter,
		AllowedOrigin:   cfg.Origin(),
		PairingBaseURL:  cfg.ExternalURL,
	})

	// Start metrics server
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	useTLS := cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
	if useTLS {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	// Periodic expiry sweep
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				codes := pairings.Sweep()
				creds := sessions.Sweep()
				var buckets int
				if limiter != nil {
					buckets = limiter.Cleanup(limiterIdle)
				}
				metrics.SetPendingPairings(pairings.Len())
				metrics.SetActiveSessions(sessions.Len())
				if codes+creds+buckets > 0 {
					logging.Debug("expired entries swept",
						zap.Int("pairing_codes", codes),
						zap.Int("sessions", creds),
						zap.Int("rate_buckets", buckets))
				}
			}
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		if useTLS {
			logging.Info("server listening (TLS 1.3)",
				zap.String("addr", cfg.ListenAddr),
				zap.String("cert", cfg.TLSCertFile))
			serveErr <- httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
			return
		}
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logging.Error("server error", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	logging.Info("shutting down...")
	broadcaster.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn("graceful shutdown incomplete", zap.Error(err))
		httpServer.Close()
	}
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}
	return nil
}
