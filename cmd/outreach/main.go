package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/outreach"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	err = logging.Init(cfg)
	if err != nil {
		panic(err)
	}

	err = run(cfg)
	_ = logging.Logger.Sync()

	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := outreach.NewApp(cfg)
	if err != nil {
		logging.Logger.Error("failed to create outreach app", zap.String("error", err.Error()))
		return err
	}

	err = app.Run(ctx)
	if err != nil {
		logging.Logger.Error("outreach app stopped with error", zap.String("error", err.Error()))
		return err
	}

	return nil
}
