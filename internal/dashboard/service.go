package dashboard

import (
	"context"
	"fmt"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/conversation"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/listing"
)

type ListingLister interface {
	ListBySearchID(ctx context.Context, searchID string) ([]listing.Listing, error)
}

type SummaryLister interface {
	ListSummaries(ctx context.Context, listingIDs []string) ([]conversation.Conversation, error)
}

// SummaryItem is one summarized conversation next to its listing.
type SummaryItem struct {
	CallSID        string            `json:"call_sid"`
	ListingID      string            `json:"listing_id"`
	ListingDetails listing.Details   `json:"listing_details"`
	SummaryText    string            `json:"summary_text"`
	Answers        map[string]string `json:"answers"`
	RecordingKey   *string           `json:"recording_key,omitempty"`
}

type Service struct {
	Listings      ListingLister
	Conversations SummaryLister
}

func NewService(listings ListingLister, conversations SummaryLister) *Service {
	return &Service{Listings: listings, Conversations: conversations}
}

// Summaries returns the summarized conversations of a search in listing order.
func (dashboardService *Service) Summaries(ctx context.Context, searchID string) ([]SummaryItem, error) {
	listings, err := dashboardService.Listings.ListBySearchID(ctx, searchID)
	if err != nil {
		return nil, fmt.Errorf("list listings for search %s: %w", searchID, err)
	}

	items := []SummaryItem{}
	if len(listings) == 0 {
		return items, nil
	}

	byID := make(map[string]*listing.Listing, len(listings))
	listingIDs := make([]string, 0, len(listings))

	for idx := range listings {
		byID[listings[idx].ListingID] = &listings[idx]
		listingIDs = append(listingIDs, listings[idx].ListingID)
	}

	conversations, err := dashboardService.Conversations.ListSummaries(ctx, listingIDs)
	if err != nil {
		return nil, fmt.Errorf("list summaries for search %s: %w", searchID, err)
	}

	grouped := make(map[string][]conversation.Conversation, len(conversations))
	for _, summarized := range conversations {
		grouped[summarized.ListingID] = append(grouped[summarized.ListingID], summarized)
	}

	for _, listingID := range listingIDs {
		for _, summarized := range grouped[listingID] {
			items = append(items, SummaryItem{
				CallSID:        summarized.CallSID,
				ListingID:      listingID,
				ListingDetails: byID[listingID].Details(),
				SummaryText:    summarized.Summary(),
				Answers:        summarized.AnswerMap(),
				RecordingKey:   summarized.RecordingKey,
			})
		}
	}

	return items, nil
}
