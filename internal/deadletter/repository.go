package deadletter

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidDeadLetterResult      = errors.New("invalid result type, it should be pointer to CallPlacementDeadLetter")
	ErrInvalidDeadLetterSliceResult = errors.New("invalid result type, it should be slice of CallPlacementDeadLetter")
)

type Repository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
	MaxRetries     int
	Limit          int
	RetryDelay     time.Duration
}

func NewRepository(cfg *config.Config, dbConn *gorm.DB, cbSettings gobreaker.Settings) *Repository {
	return &Repository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
		MaxRetries:     cfg.DeadLetterCallMaxRetries,
		Limit:          cfg.DeadLetterCallLimit,
		RetryDelay:     time.Duration(cfg.DeadLetterCallRetryDelay) * time.Minute,
	}
}

// Save stores a failed job as pending. An existing record keeps its retry count.
func (dlRepository *Repository) Save(
	ctx context.Context,
	listingID, searchID string,
	msg []byte,
	errMsg string,
) (*CallPlacementDeadLetter, error) {
	result, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		now := time.Now()
		dlCall := CallPlacementDeadLetter{
			ListingID:   listingID,
			SearchID:    searchID,
			Msg:         msg,
			Error:       errMsg,
			Status:      StatusPending,
			LastRetryAt: &now,
		}

		err := dlRepository.DBConn.WithContext(ctx).
			Where("listing_id = ?", listingID).
			Assign(map[string]any{
				"search_id":     searchID,
				"msg":           msg,
				"error":         errMsg,
				"status":        StatusPending,
				"last_retry_at": &now,
			}).
			FirstOrCreate(&dlCall).Error
		if err != nil {
			logging.Logger.Error("[Save] failed to create dead letter record",
				zap.String("listing_id", listingID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &dlCall, nil
	})
	if err != nil {
		return nil, err
	}

	dlCall, ok := result.(*CallPlacementDeadLetter)
	if !ok {
		return nil, ErrInvalidDeadLetterResult
	}

	return dlCall, nil
}

// GetPendingCalls returns records due for redelivery, oldest first. Jobs
// stuck in progress for longer than the retry delay count as pending again.
func (dlRepository *Repository) GetPendingCalls(ctx context.Context) ([]CallPlacementDeadLetter, error) {
	result, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		var records []CallPlacementDeadLetter

		err := dlRepository.DBConn.WithContext(ctx).
			Where(
				"status IN ? AND last_retry_at <= ? AND retry_count < ?",
				[]string{StatusPending, StatusInProgress},
				time.Now().Add(-dlRepository.RetryDelay),
				dlRepository.MaxRetries,
			).
			Order("created_at ASC").
			Limit(dlRepository.Limit).
			Find(&records).Error
		if err != nil {
			logging.Logger.Error("[GetPendingCalls] failed to fetch dead letter calls",
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return records, nil
	})
	if err != nil {
		return nil, err
	}

	records, ok := result.([]CallPlacementDeadLetter)
	if !ok {
		return nil, ErrInvalidDeadLetterSliceResult
	}

	return records, nil
}

// MarkRedelivered counts one more attempt and flags the record as in progress.
func (dlRepository *Repository) MarkRedelivered(ctx context.Context, dlCall *CallPlacementDeadLetter) error {
	_, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		err := dlRepository.DBConn.WithContext(ctx).
			Model(&CallPlacementDeadLetter{}).
			Where("listing_id = ?", dlCall.ListingID).
			Updates(map[string]any{
				"retry_count":   gorm.Expr("retry_count + 1"),
				"last_retry_at": time.Now(),
				"status":        StatusInProgress,
			}).Error
		if err != nil {
			logging.Logger.Error("[MarkRedelivered] failed to update dead letter call",
				zap.String("listing_id", dlCall.ListingID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return dlCall, nil
	})

	return err
}

func (dlRepository *Repository) Delete(ctx context.Context, listingID string) error {
	_, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		err := dlRepository.DBConn.WithContext(ctx).
			Where("listing_id = ?", listingID).
			Delete(&CallPlacementDeadLetter{}).
			Error

		return nil, err
	})

	return err
}
