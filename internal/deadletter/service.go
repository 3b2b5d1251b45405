package deadletter

import (
	"context"
	"fmt"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	prometheusOutreach "git.mci.dev/mse/sre/phoenix/golang/outreach/internal/prometheus"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

type Submitter interface {
	Submit(jobs ...call.CallJob) error
}

// Service dead letters failed call placements and hands them back to the
// dispatcher later.
type Service struct {
	DLRepository *Repository
	Dispatcher   Submitter
}

func NewService(dlRepository *Repository, dispatcher Submitter) *Service {
	return &Service{
		DLRepository: dlRepository,
		Dispatcher:   dispatcher,
	}
}

func (dlService *Service) RecordFailure(ctx context.Context, job call.CallJob, reason string) {
	job.Attempt = 0

	msg, err := json.Marshal(job)
	if err != nil {
		logging.Logger.Error("[RecordFailure] failed to marshal call job",
			zap.String("listing_id", job.ListingID),
			zap.String("error", err.Error()),
		)

		return
	}

	_, err = dlService.DLRepository.Save(ctx, job.ListingID, job.SearchID, msg, reason)
	if err != nil {
		logging.Logger.Error("[RecordFailure] failed to dead letter call job",
			zap.String("listing_id", job.ListingID),
			zap.String("error", err.Error()),
		)

		return
	}

	logging.Logger.Info("[RecordFailure] marked call job as dead letter",
		zap.String("listing_id", job.ListingID),
		zap.String("search_id", job.SearchID),
		zap.String("reason", reason),
	)
}

func (dlService *Service) RecordSuccess(ctx context.Context, job call.CallJob) {
	err := dlService.DLRepository.Delete(ctx, job.ListingID)
	if err != nil {
		logging.Logger.Warn("[RecordSuccess] failed to clear dead letter call job",
			zap.String("listing_id", job.ListingID),
			zap.String("error", err.Error()),
		)
	}
}

// Redeliver puts a dead lettered job back on the dispatcher queue.
func (dlService *Service) Redeliver(ctx context.Context, dlCall *CallPlacementDeadLetter) error {
	var job call.CallJob

	err := json.Unmarshal(dlCall.Msg, &job)
	if err != nil {
		prometheusOutreach.DeadLetterRedeliveries.WithLabelValues(prometheusOutreach.ResultFailed).Inc()
		return fmt.Errorf("decode dead letter %s: %w", dlCall.ListingID, err)
	}

	err = dlService.DLRepository.MarkRedelivered(ctx, dlCall)
	if err != nil {
		prometheusOutreach.DeadLetterRedeliveries.WithLabelValues(prometheusOutreach.ResultFailed).Inc()
		return fmt.Errorf("mark dead letter %s redelivered: %w", dlCall.ListingID, err)
	}

	err = dlService.Dispatcher.Submit(job)
	if err != nil {
		prometheusOutreach.DeadLetterRedeliveries.WithLabelValues(prometheusOutreach.ResultFailed).Inc()
		return fmt.Errorf("resubmit dead letter %s: %w", dlCall.ListingID, err)
	}

	prometheusOutreach.DeadLetterRedeliveries.WithLabelValues(prometheusOutreach.ResultOK).Inc()

	logging.Logger.Info("[Redeliver] dead letter call job resubmitted",
		zap.String("listing_id", dlCall.ListingID),
		zap.Int("retry_count", dlCall.RetryCount+1),
	)

	return nil
}
