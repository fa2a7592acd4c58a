// Command worker runs the schedule poller on its own timer.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/ignite/campaign-dispatch/internal/app"
	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("load config", "error", err.Error())
		os.Exit(1)
	}
	if err := cfg.Validate(false); err != nil {
		logger.Error("invalid config", "error", err.Error())
		os.Exit(1)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logger.Error("startup failed", "error", err.Error())
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Poller.Start(); err != nil {
		logger.Error("start poller", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("dispatch worker running", "provider", cfg.Mail.Provider)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	a.Poller.Stop()
	logger.Info("worker stopped")
}
