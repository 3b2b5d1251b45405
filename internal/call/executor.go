package call

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/conversation"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	prometheusOutreach "git.mci.dev/mse/sre/phoenix/golang/outreach/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/voice"
	"go.uber.org/zap"
)

// ConversationStore is the part of the store the executor needs.
type ConversationStore interface {
	GetOrCreate(ctx context.Context, callID, listingID string) (*conversation.Conversation, error)
	Activate(
		ctx context.Context,
		placeholderID, callID, listingID string,
		questions []string,
	) (*conversation.Conversation, error)
}

// FailureRecorder is told about placements that failed and jobs that later succeeded.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, job CallJob, reason string)
	RecordSuccess(ctx context.Context, job CallJob)
}

type Executor struct {
	Store            ConversationStore
	Gateway          voice.Gateway
	Recorder         FailureRecorder
	PlacementTimeout time.Duration
}

func NewExecutor(cfg *config.Config, store ConversationStore, gateway voice.Gateway, recorder FailureRecorder) *Executor {
	return &Executor{
		Store:            store,
		Gateway:          gateway,
		Recorder:         recorder,
		PlacementTimeout: time.Duration(cfg.CallPlacementTimeout) * time.Second,
	}
}

// CallbackPath is the webhook route for a listing's call. The listing id
// lets the first webhook find the listing before the call is activated.
func CallbackPath(listingID string) string {
	return voice.VoicePath + "?" + url.Values{"listing_id": {listingID}}.Encode()
}

// Execute places exactly one call for job. A job without a destination is
// skipped and is not an error.
func (executor *Executor) Execute(ctx context.Context, job CallJob) (err error) {
	startTime := time.Now()
	result := prometheusOutreach.ResultPlaced

	defer func() {
		if err != nil {
			result = prometheusOutreach.ResultFailed
		}

		prometheusOutreach.CallJobs.WithLabelValues(result).Inc()
		prometheusOutreach.CallJobDuration.WithLabelValues(result).Observe(time.Since(startTime).Seconds())
	}()

	destination := strings.TrimSpace(job.DestinationNumber())
	if destination == "" {
		logging.Logger.Info("[Execute] skipping job without phone number",
			zap.String("listing_id", job.ListingID),
			zap.String("search_id", job.SearchID),
		)

		result = prometheusOutreach.ResultSkipped

		return nil
	}

	placeholderID := conversation.PlaceholderID(job.ListingID)

	_, err = executor.Store.GetOrCreate(ctx, placeholderID, job.ListingID)
	if err != nil {
		return fmt.Errorf("create placeholder for listing %s: %w", job.ListingID, err)
	}

	callID, err := executor.placeCall(ctx, destination, job.ListingID)
	if err != nil {
		logging.Logger.Error("[Execute] failed to place call",
			zap.String("listing_id", job.ListingID),
			zap.String("search_id", job.SearchID),
			zap.String("error", err.Error()),
		)

		if executor.Recorder != nil {
			executor.Recorder.RecordFailure(ctx, job, err.Error())
		}

		return fmt.Errorf("place call for listing %s: %w", job.ListingID, err)
	}

	logging.Logger.Info("[Execute] placed call",
		zap.String("listing_id", job.ListingID),
		zap.String("search_id", job.SearchID),
		zap.String("call_id", callID),
	)

	_, err = executor.Store.Activate(ctx, placeholderID, callID, job.ListingID, job.Questions)
	if err != nil {
		return fmt.Errorf("activate conversation %s: %w", callID, err)
	}

	logging.Logger.Info("[Execute] attached questions to conversation",
		zap.String("call_id", callID),
		zap.Int("questions", len(job.Questions)),
	)

	if executor.Recorder != nil {
		executor.Recorder.RecordSuccess(ctx, job)
	}

	return nil
}

func (executor *Executor) placeCall(ctx context.Context, destination, listingID string) (string, error) {
	if executor.PlacementTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, executor.PlacementTimeout)
		defer cancel()
	}

	return executor.Gateway.PlaceCall(ctx, destination, CallbackPath(listingID))
}
