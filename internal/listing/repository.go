package listing

import (
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrListingNotFound          = errors.New("listing not found")
	ErrInvalidListingResult     = errors.New("invalid result type, it should be pointer to Listing struct")
	ErrInvalidListingListResult = errors.New("invalid result type, it should be slice of Listing")
)

type Repository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB, cbSettings gobreaker.Settings) *Repository {
	return &Repository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// UpsertMany inserts listings or overwrites the stored row with the same id.
// Listings without an id are skipped.
func (listingRepository *Repository) UpsertMany(ctx context.Context, listings []Listing) (int, error) {
	valid := make([]Listing, 0, len(listings))

	for _, listing := range listings {
		if listing.ListingID == "" {
			logging.Logger.Warn("[UpsertMany] skipping listing without id", zap.String("provider", listing.Provider))
			continue
		}

		valid = append(valid, listing)
	}

	if len(valid) == 0 {
		return 0, nil
	}

	_, err := listingRepository.CircuitBreaker.Execute(func() (any, error) {
		err := listingRepository.DBConn.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "listing_id"}},
				DoUpdates: clause.AssignmentColumns(upsertColumns),
			}).
			Create(&valid).Error
		if err != nil {
			logging.Logger.Error("[UpsertMany] failed to upsert listings",
				zap.Int("count", len(valid)),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})
	if err != nil {
		return 0, err
	}

	return len(valid), nil
}

var upsertColumns = []string{
	"provider", "search_id", "title", "address", "city", "state", "zipcode",
	"price", "beds", "baths", "sqft", "url", "contact_phone", "updated_at",
}

func (listingRepository *Repository) ListBySearchID(ctx context.Context, searchID string) ([]Listing, error) {
	result, err := listingRepository.CircuitBreaker.Execute(func() (any, error) {
		var listings []Listing

		err := listingRepository.DBConn.WithContext(ctx).
			Where("search_id = ?", searchID).
			Order("listing_id ASC").
			Find(&listings).Error
		if err != nil {
			logging.Logger.Error("[ListBySearchID] failed to fetch listings",
				zap.String("search_id", searchID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return listings, nil
	})
	if err != nil {
		return nil, err
	}

	listings, ok := result.([]Listing)
	if !ok {
		return nil, ErrInvalidListingListResult
	}

	return listings, nil
}

// GetByID returns ErrListingNotFound when no row matches.
func (listingRepository *Repository) GetByID(ctx context.Context, listingID string) (*Listing, error) {
	result, err := listingRepository.CircuitBreaker.Execute(func() (any, error) {
		var listing Listing

		err := listingRepository.DBConn.WithContext(ctx).
			Where("listing_id = ?", listingID).
			Take(&listing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		if err != nil {
			logging.Logger.Error("[GetByID] failed to fetch listing",
				zap.String("listing_id", listingID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &listing, nil
	})
	if err != nil {
		return nil, err
	}

	if result == nil {
		return nil, ErrListingNotFound
	}

	listing, ok := result.(*Listing)
	if !ok {
		return nil, ErrInvalidListingResult
	}

	return listing, nil
}
