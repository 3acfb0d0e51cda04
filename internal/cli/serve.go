package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lazypower/crisp/internal/auth"
	"github.com/lazypower/crisp/internal/config"
	"github.com/lazypower/crisp/internal/engine"
	"github.com/lazypower/crisp/internal/quota"
	"github.com/lazypower/crisp/internal/server"
	"github.com/lazypower/crisp/internal/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Quotas live in Redis when configured so several servers share them.
	var (
		counter engine.QuotaCounter = store.NewQuotas(db, cfg.Engagement.DailyRefreshes)
		pinger  server.Pinger
	)
	if cfg.Redis.URL != "" {
		rs, err := quota.NewRedisStore(cfg.Redis.URL, cfg.Engagement.DailyRefreshes)
		if err != nil {
			return err
		}
		defer rs.Close()
		counter, pinger = rs, rs
		logger.Info("quota: redis")
	} else {
		logger.Info("quota: sqlite")
	}

	eng := engine.New(db, counter, cfg.Engagement, logger)
	eng.StartSweepTimer(cfg.Engagement.SweepInterval)
	defer eng.Stop()

	if cfg.UsesDevSecret() {
		logger.Warn("CRISP_JWT_SECRET not set; tokens are signed with the built-in development secret")
	}
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	srv := server.New(eng, db, pinger, verifier, logger, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.WithField("addr", addr).WithField("db", db.Path).Info("crisp serving")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	<-done
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}

// openDB opens the configured database, defaulting to ~/.crisp/crisp.db.
func openDB(cfg config.Config) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	return store.Open(dbPath)
}
