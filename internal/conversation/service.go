package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dialogue"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/listing"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/lock"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	prometheusOutreach "git.mci.dev/mse/sre/phoenix/golang/outreach/internal/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const releaseTimeout = 5 * time.Second

type ListingLookup interface {
	GetByID(ctx context.Context, listingID string) (*listing.Listing, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, listing dialogue.ListingContext, answers map[string]string) (string, error)
}

// CallResult is published once a conversation reaches END.
type CallResult struct {
	CallSID     string            `json:"call_sid"`
	ListingID   string            `json:"listing_id"`
	Answers     map[string]string `json:"answers"`
	Summary     string            `json:"summary"`
	CompletedAt time.Time         `json:"completed_at"`
}

type ResultPublisher interface {
	PublishResult(ctx context.Context, result CallResult) error
}

// Turn is one webhook delivery. Utterance is nil when the gateway sent no speech.
type Turn struct {
	CallID    string
	Utterance *string
	ListingID string
}

type TurnResult struct {
	Prompt string
	State  dialogue.State
	Hangup bool
}

type TurnService struct {
	Store          Store
	Locker         lock.Locker
	Listings       ListingLookup
	Clarifier      dialogue.Clarifier
	Summarizer     Summarizer
	Publisher      ResultPublisher
	LockWait       time.Duration
	ClarifyTimeout time.Duration
	SummaryTimeout time.Duration
}

func NewTurnService(
	cfg *config.Config,
	store Store,
	locker lock.Locker,
	listings ListingLookup,
	clarifier dialogue.Clarifier,
	summarizer Summarizer,
	publisher ResultPublisher,
) *TurnService {
	return &TurnService{
		Store:          store,
		Locker:         locker,
		Listings:       listings,
		Clarifier:      clarifier,
		Summarizer:     summarizer,
		Publisher:      publisher,
		LockWait:       time.Duration(cfg.LockWait) * time.Second,
		ClarifyTimeout: time.Duration(cfg.ClarifyTimeout) * time.Second,
		SummaryTimeout: time.Duration(cfg.SummaryTimeout) * time.Second,
	}
}

// HandleTurn rehydrates the dialogue for turn.CallID, applies the utterance
// and persists the result. Turns of the same call are serialized.
func (turnService *TurnService) HandleTurn(ctx context.Context, turn Turn) (*TurnResult, error) {
	lease, err := turnService.acquire(ctx, turn.CallID)
	if err != nil {
		return nil, err
	}

	defer turnService.release(turn.CallID, lease)

	conversation, err := turnService.Store.GetOrCreate(ctx, turn.CallID, turn.ListingID)
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", turn.CallID, err)
	}

	snapshot := conversation.Snapshot()
	listingContext := turnService.listingContext(ctx, conversation.ListingID)

	timer := prometheus.NewTimer(prometheusOutreach.TurnDuration.WithLabelValues(snapshot.State.String()))
	defer timer.ObserveDuration()

	machine := dialogue.Restore(listingContext, snapshot, turnService.Clarifier)

	if turn.Utterance != nil {
		machine.HandleResponse(*turn.Utterance)
	}

	prompt := turnService.nextPrompt(ctx, machine)
	next := machine.Snapshot()

	err = turnService.Store.Update(ctx, turn.CallID, next)
	if err != nil {
		return nil, fmt.Errorf("persist conversation %s: %w", turn.CallID, err)
	}

	logging.Logger.Debug("[HandleTurn] turn handled",
		zap.String("call_id", turn.CallID),
		zap.String("from", snapshot.State.String()),
		zap.String("to", next.State.String()),
		zap.Int("question_index", next.Index),
	)

	if machine.Done() && snapshot.State != dialogue.StateEnd {
		turnService.complete(ctx, conversation, listingContext, next.Answers)
	}

	return &TurnResult{
		Prompt: prompt,
		State:  next.State,
		Hangup: machine.Done(),
	}, nil
}

func (turnService *TurnService) acquire(ctx context.Context, callID string) (lock.Lease, error) {
	lockCtx := ctx

	if turnService.LockWait > 0 {
		var cancel context.CancelFunc

		lockCtx, cancel = context.WithTimeout(ctx, turnService.LockWait)
		defer cancel()
	}

	lease, err := turnService.Locker.Lock(lockCtx, lock.ConversationKey(callID))
	if err != nil {
		logging.Logger.Warn("[HandleTurn] failed to lock conversation",
			zap.String("call_id", callID),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	return lease, nil
}

func (turnService *TurnService) release(callID string, lease lock.Lease) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	err := lease.Release(ctx)
	if err != nil {
		logging.Logger.Warn("[HandleTurn] failed to release conversation lock",
			zap.String("call_id", callID),
			zap.String("error", err.Error()),
		)
	}
}

func (turnService *TurnService) nextPrompt(ctx context.Context, machine *dialogue.Machine) string {
	if machine.State() != dialogue.StateClarify || turnService.ClarifyTimeout <= 0 {
		return machine.NextPrompt(ctx)
	}

	clarifyCtx, cancel := context.WithTimeout(ctx, turnService.ClarifyTimeout)
	defer cancel()

	return machine.NextPrompt(clarifyCtx)
}

// listingContext falls back to a generic context when the listing is unknown.
func (turnService *TurnService) listingContext(ctx context.Context, listingID string) dialogue.ListingContext {
	if listingID == "" || turnService.Listings == nil {
		return dialogue.ListingContext{}
	}

	found, err := turnService.Listings.GetByID(ctx, listingID)
	if err != nil {
		if !errors.Is(err, listing.ErrListingNotFound) {
			logging.Logger.Warn("[HandleTurn] failed to load listing",
				zap.String("listing_id", listingID),
				zap.String("error", err.Error()),
			)
		}

		return dialogue.ListingContext{}
	}

	return dialogue.ListingContext{
		Address: found.AddressText(),
		Title:   found.TitleText(),
	}
}

// complete summarizes a finished conversation. Failures are logged only.
func (turnService *TurnService) complete(
	ctx context.Context,
	conversation *Conversation,
	listingContext dialogue.ListingContext,
	answers map[string]string,
) {
	summary := turnService.summarize(ctx, conversation.CallSID, listingContext, answers)

	err := turnService.Store.SaveSummary(ctx, conversation.CallSID, summary)
	if err != nil {
		logging.Logger.Error("[HandleTurn] failed to save summary",
			zap.String("call_id", conversation.CallSID),
			zap.String("error", err.Error()),
		)
	}

	if turnService.Publisher == nil {
		return
	}

	err = turnService.Publisher.PublishResult(ctx, CallResult{
		CallSID:     conversation.CallSID,
		ListingID:   conversation.ListingID,
		Answers:     answers,
		Summary:     summary,
		CompletedAt: time.Now(),
	})
	if err != nil {
		logging.Logger.Error("[HandleTurn] failed to publish call result",
			zap.String("call_id", conversation.CallSID),
			zap.String("error", err.Error()),
		)
	}
}

func (turnService *TurnService) summarize(
	ctx context.Context,
	callID string,
	listingContext dialogue.ListingContext,
	answers map[string]string,
) string {
	if turnService.Summarizer == nil {
		prometheusOutreach.Summaries.WithLabelValues(prometheusOutreach.ResultFallback).Inc()
		return NoSummary
	}

	if turnService.SummaryTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, turnService.SummaryTimeout)
		defer cancel()
	}

	summary, err := turnService.Summarizer.Summarize(ctx, listingContext, answers)
	if err == nil {
		summary = strings.TrimSpace(summary)
	}

	if err != nil || summary == "" {
		reason := "empty summary"
		if err != nil {
			reason = err.Error()
		}

		logging.Logger.Warn("[HandleTurn] summarizer failed, storing sentinel",
			zap.String("call_id", callID),
			zap.String("error", reason),
		)
		prometheusOutreach.Summaries.WithLabelValues(prometheusOutreach.ResultFallback).Inc()

		return NoSummary
	}

	prometheusOutreach.Summaries.WithLabelValues(prometheusOutreach.ResultOK).Inc()

	return summary
}
