package conversation

import (
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dialogue"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidConversationResult     = errors.New("invalid result type, it should be pointer to Conversation struct")
	ErrInvalidConversationListResult = errors.New("invalid result type, it should be slice of Conversation")
)

// Repository is the gorm backed Store.
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

func (repository *Repository) GetOrCreate(ctx context.Context, callID, listingID string) (*Conversation, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var conversation Conversation

		err := repository.DBConn.WithContext(ctx).
			Where("call_sid = ?", callID).
			Take(&conversation).Error
		if err == nil {
			return &conversation, nil
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logging.Logger.Error("[GetOrCreate] failed to fetch conversation",
				zap.String("call_id", callID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		err = repository.DBConn.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(newConversation(callID, listingID)).Error
		if err != nil {
			logging.Logger.Error("[GetOrCreate] failed to create conversation",
				zap.String("call_id", callID),
				zap.String("listing_id", listingID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		err = repository.DBConn.WithContext(ctx).
			Where("call_sid = ?", callID).
			Take(&conversation).Error
		if err != nil {
			return nil, err
		}

		logging.Logger.Info("[GetOrCreate] conversation did not exist, so it was created",
			zap.String("call_id", callID),
			zap.String("listing_id", conversation.ListingID),
		)

		return &conversation, nil
	})
	if err != nil {
		return nil, err
	}

	return asConversation(result)
}

func (repository *Repository) Get(ctx context.Context, callID string) (*Conversation, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var conversation Conversation

		err := repository.DBConn.WithContext(ctx).
			Where("call_sid = ?", callID).
			Take(&conversation).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		if err != nil {
			logging.Logger.Error("[Get] failed to fetch conversation",
				zap.String("call_id", callID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &conversation, nil
	})
	if err != nil {
		return nil, err
	}

	if result == nil {
		return nil, ErrConversationNotFound
	}

	return asConversation(result)
}

func (repository *Repository) Activate(
	ctx context.Context,
	placeholderID, callID, listingID string,
	questions []string,
) (*Conversation, error) {
	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var activated *Conversation

		err := repository.DBConn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error

			activated, err = activateTx(tx, placeholderID, callID, listingID, questions)

			return err
		})
		if err != nil {
			logging.Logger.Error("[Activate] failed to activate conversation",
				zap.String("placeholder_id", placeholderID),
				zap.String("call_id", callID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return activated, nil
	})
	if err != nil {
		return nil, err
	}

	return asConversation(result)
}

func activateTx(tx *gorm.DB, placeholderID, callID, listingID string, questions []string) (*Conversation, error) {
	var placeholder Conversation

	err := tx.Where("call_sid = ?", placeholderID).Take(&placeholder).Error

	switch {
	case err == nil:
		if placeholder.ListingID != "" {
			listingID = placeholder.ListingID
		}

		err = tx.Where("call_sid = ?", placeholderID).Delete(&Conversation{}).Error
		if err != nil {
			return nil, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		logging.Logger.Warn("[Activate] placeholder not found, creating conversation directly",
			zap.String("placeholder_id", placeholderID),
			zap.String("call_id", callID),
		)
	default:
		return nil, err
	}

	var existing Conversation

	err = tx.Where("call_sid = ?", callID).Take(&existing).Error
	if err == nil {
		updates := map[string]any{"questions": encodeQuestions(questions)}
		if existing.ListingID == "" {
			updates["listing_id"] = listingID
		}

		err = tx.Model(&existing).Updates(updates).Error
		if err != nil {
			return nil, err
		}

		existing.Questions = encodeQuestions(questions)
		if existing.ListingID == "" {
			existing.ListingID = listingID
		}

		return &existing, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conversation := newConversation(callID, listingID)
	conversation.Questions = encodeQuestions(questions)

	err = tx.Create(conversation).Error
	if err != nil {
		return nil, err
	}

	return conversation, nil
}

func (repository *Repository) Update(ctx context.Context, callID string, snapshot dialogue.Snapshot) error {
	_, err := repository.CircuitBreaker.Execute(func() (any, error) {
		result := repository.DBConn.WithContext(ctx).
			Model(&Conversation{}).
			Where("call_sid = ?", callID).
			Updates(map[string]any{
				"state":          snapshot.State.String(),
				"question_index": snapshot.Index,
				"answers":        encodeAnswers(snapshot.Answers),
			})
		if result.Error != nil {
			logging.Logger.Error("[Update] failed to update conversation",
				zap.String("call_id", callID),
				zap.String("state", snapshot.State.String()),
				zap.String("error", result.Error.Error()),
			)

			return nil, result.Error
		}

		if result.RowsAffected > 0 {
			return nil, nil
		}

		conversation := newConversation(callID, "")
		conversation.State = snapshot.State.String()
		conversation.QuestionIndex = snapshot.Index
		conversation.Answers = encodeAnswers(snapshot.Answers)

		err := repository.DBConn.WithContext(ctx).Create(conversation).Error
		if err != nil {
			logging.Logger.Error("[Update] failed to create conversation",
				zap.String("call_id", callID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		logging.Logger.Info("[Update] created conversation record on update", zap.String("call_id", callID))

		return nil, nil
	})

	return err
}

func (repository *Repository) AttachQuestions(ctx context.Context, callID string, questions []string) error {
	return repository.decorate(ctx, "AttachQuestions", callID, map[string]any{
		"questions": encodeQuestions(questions),
	})
}

func (repository *Repository) SaveSummary(ctx context.Context, callID, summary string) error {
	return repository.decorate(ctx, "SaveSummary", callID, map[string]any{"summary_text": summary})
}

func (repository *Repository) SaveRecording(ctx context.Context, callID, key string) error {
	return repository.decorate(ctx, "SaveRecording", callID, map[string]any{"recording_key": key})
}

// decorate updates columns of an existing record; a missing record is only logged.
func (repository *Repository) decorate(ctx context.Context, operation, callID string, updates map[string]any) error {
	_, err := repository.CircuitBreaker.Execute(func() (any, error) {
		result := repository.DBConn.WithContext(ctx).
			Model(&Conversation{}).
			Where("call_sid = ?", callID).
			Updates(updates)
		if result.Error != nil {
			logging.Logger.Error("["+operation+"] failed to update conversation",
				zap.String("call_id", callID),
				zap.String("error", result.Error.Error()),
			)

			return nil, result.Error
		}

		if result.RowsAffected == 0 {
			logging.Logger.Warn("["+operation+"] conversation not found", zap.String("call_id", callID))
		}

		return nil, nil
	})

	return err
}

func (repository *Repository) ListSummaries(ctx context.Context, listingIDs []string) ([]Conversation, error) {
	if len(listingIDs) == 0 {
		return []Conversation{}, nil
	}

	result, err := repository.CircuitBreaker.Execute(func() (any, error) {
		var conversations []Conversation

		err := repository.DBConn.WithContext(ctx).
			Where("listing_id IN ?", listingIDs).
			Where("summary_text IS NOT NULL AND summary_text <> ''").
			Order("created_at ASC").
			Find(&conversations).Error
		if err != nil {
			logging.Logger.Error("[ListSummaries] failed to fetch summaries",
				zap.Int("listings", len(listingIDs)),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return conversations, nil
	})
	if err != nil {
		return nil, err
	}

	conversations, ok := result.([]Conversation)
	if !ok {
		return nil, ErrInvalidConversationListResult
	}

	return conversations, nil
}

func asConversation(result any) (*Conversation, error) {
	conversation, ok := result.(*Conversation)
	if !ok {
		return nil, ErrInvalidConversationResult
	}

	return conversation, nil
}
