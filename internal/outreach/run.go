package outreach

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/kafka"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Run starts every component and blocks until ctx is done or one of the
// servers fails. Jobs still queued at shutdown go to the dead letter.
func (app *Outreach) Run(ctx context.Context) error {
	logging.Logger.Info("[Run] starting app goroutines...")

	err := app.Dispatcher.Start(ctx)
	if err != nil {
		logging.Logger.Error("[Run] failed to start dispatcher", zap.String("error", err.Error()))
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		app.HealthCheckerService.Monitor(groupCtx)
		return nil
	})

	group.Go(func() error {
		return prometheus.Run(groupCtx, app.Config)
	})

	group.Go(func() error {
		return app.Server.Run(groupCtx, app.Config)
	})

	if app.DeadLetterWorker != nil {
		logging.Logger.Info("[Run] starting dead letter worker")

		group.Go(func() error {
			app.DeadLetterWorker.Run(groupCtx)
			return nil
		})
	}

	if app.KafkaConsumer != nil {
		logging.Logger.Info("[Run] starting Kafka batch consumer", zap.String("topic", app.KafkaConsumer.Topic))

		group.Go(func() error {
			return app.KafkaConsumer.Consume(groupCtx, kafka.NewBatchHandler(app.BatchService))
		})
	}

	err = group.Wait()
	if err != nil {
		logging.Logger.Error("[Run] app goroutine returned error", zap.String("error", err.Error()))
	}

	app.shutdown()

	return err
}

func (app *Outreach) shutdown() {
	logging.Logger.Info("[shutdown] stopping dispatcher...")
	app.Dispatcher.Stop()
	logging.Logger.Info("[shutdown] dispatcher stopped")

	if app.KafkaConsumer != nil {
		_ = app.KafkaConsumer.Close()
	}

	if app.KafkaProducer != nil {
		_ = app.KafkaProducer.Close()
	}

	sqlDB, err := app.DBConn.DB()
	if err == nil {
		err = sqlDB.Close()
	}

	if err != nil {
		logging.Logger.Error("[shutdown] failed to close database", zap.String("error", err.Error()))
	}

	logging.Logger.Info("[shutdown] ===== app shutdown complete =====")
}
