package deadletter

import (
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

type Worker struct {
	WorkerPool *ants.Pool
	DLService  *Service
	Interval   time.Duration
}

func NewWorker(cfg *config.Config, dlService *Service) (*Worker, error) {
	workerPool, err := ants.NewPool(cfg.DeadLetterPoolSize, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}

	return &Worker{
		WorkerPool: workerPool,
		DLService:  dlService,
		Interval:   time.Duration(cfg.DeadLetterCallInterval) * time.Minute,
	}, nil
}

func (dlWorker *Worker) Run(ctx context.Context) {
	defer dlWorker.WorkerPool.Release()

	ticker := time.NewTicker(dlWorker.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dlWorker.processDeadLetterCalls(ctx)
		}
	}
}

func (dlWorker *Worker) processDeadLetterCalls(ctx context.Context) {
	dlCalls, err := dlWorker.DLService.DLRepository.GetPendingCalls(ctx)
	if err != nil {
		return
	}

	if len(dlCalls) == 0 {
		logging.Logger.Debug("[processDeadLetterCalls] no dead letter calls are due")
		return
	}

	logging.Logger.Info("[processDeadLetterCalls] start redelivering dead letter calls",
		zap.Int("count_dl_calls", len(dlCalls)),
	)

	for idx := range dlCalls {
		dlCall := dlCalls[idx]

		err := dlWorker.WorkerPool.Submit(func() {
			err := dlWorker.DLService.Redeliver(ctx, &dlCall)
			if err != nil {
				logging.Logger.Error("[processDeadLetterCalls] failed to redeliver dead letter call",
					zap.String("listing_id", dlCall.ListingID),
					zap.String("error", err.Error()),
				)
			}
		})
		if err != nil {
			logging.Logger.Error("[processDeadLetterCalls] failed to submit to dead letter worker pool",
				zap.String("listing_id", dlCall.ListingID),
				zap.String("error", err.Error()),
			)
		}
	}
}
