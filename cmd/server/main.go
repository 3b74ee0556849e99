package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/opspay/payroll/internal/logger"
	"github.com/opspay/payroll/internal/metrics"
	"github.com/opspay/payroll/payroll"
	"github.com/opspay/payroll/registry"
)

func main() {
	cfg, err := LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	m := metrics.New()
	reg := registry.New(m)

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to open database", "error", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatal("failed to ping database", "error", err)
		}

		store := payroll.NewPostgresRuleSetStore(db)
		if err := reg.LoadStore(store); err != nil {
			logger.Error("some stored rule sets failed to load", "error", err)
		}
	} else {
		if err := reg.LoadDir(cfg.RulesDir); err != nil {
			logger.Error("some rule set files failed to load", "error", err)
		}
	}

	if reg.Len() == 0 {
		logger.Fatal("no rule sets loaded")
	}
	logger.Info("rule sets loaded", "count", reg.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.WatchRules && cfg.DatabaseURL == "" {
		watcher, err := registry.NewWatcher(reg, cfg.RulesDir, 200*time.Millisecond)
		if err != nil {
			logger.Fatal("failed to start rule set watcher", "error", err)
		}
		defer watcher.Close()
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("rule set watcher exited", "error", err)
			}
		}()
	}

	server := NewServer(reg, m, db)
	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
