package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/listing"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"go.uber.org/zap"
)

var ErrNoListings = errors.New("no listings found for search id")

type ListingLister interface {
	ListBySearchID(ctx context.Context, searchID string) ([]listing.Listing, error)
}

type Submitter interface {
	Submit(jobs ...call.CallJob) error
}

// Request asks for one call per listing of a search.
type Request struct {
	SearchID      string   `json:"search_id"      validate:"required"`
	UserQuestions []string `json:"user_questions"`
}

type Service struct {
	Listings    ListingLister
	Dispatcher  Submitter
	MaxListings int
}

func NewService(cfg *config.Config, listings ListingLister, dispatcher Submitter) *Service {
	return &Service{
		Listings:    listings,
		Dispatcher:  dispatcher,
		MaxListings: cfg.MaxListingsSearch,
	}
}

// StartCalls schedules a call job for every stored listing of searchID that
// has a contact number and returns how many were scheduled. Jobs run
// asynchronously.
func (batchService *Service) StartCalls(ctx context.Context, searchID string, userQuestions []string) (int, error) {
	listings, err := batchService.Listings.ListBySearchID(ctx, searchID)
	if err != nil {
		return 0, fmt.Errorf("list listings for search %s: %w", searchID, err)
	}

	if len(listings) == 0 {
		return 0, ErrNoListings
	}

	if batchService.MaxListings > 0 && len(listings) > batchService.MaxListings {
		logging.Logger.Warn("[StartCalls] search has more listings than allowed, truncating",
			zap.String("search_id", searchID),
			zap.Int("listings", len(listings)),
			zap.Int("max_listings", batchService.MaxListings),
		)

		listings = listings[:batchService.MaxListings]
	}

	questions := BuildQuestionSet(userQuestions)

	jobs := make([]call.CallJob, 0, len(listings))
	for idx := range listings {
		job := call.CallJob{
			ListingID:   listings[idx].ListingID,
			Destination: listings[idx].ContactPhone,
			Questions:   questions,
			SearchID:    searchID,
		}

		if strings.TrimSpace(job.DestinationNumber()) == "" {
			continue
		}

		jobs = append(jobs, job)
	}

	if skipped := len(listings) - len(jobs); skipped > 0 {
		logging.Logger.Info("[StartCalls] listings without contact number skipped",
			zap.String("search_id", searchID),
			zap.Int("skipped", skipped),
		)
	}

	err = batchService.Dispatcher.Submit(jobs...)
	if err != nil {
		return 0, fmt.Errorf("submit calls for search %s: %w", searchID, err)
	}

	logging.Logger.Info("[StartCalls] scheduled calls",
		zap.String("search_id", searchID),
		zap.Int("scheduled", len(jobs)),
		zap.Int("questions", len(questions)),
	)

	return len(jobs), nil
}
