package conversation

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dialogue"
	"gorm.io/gorm"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Store persists conversations keyed by call id. Operations on a missing
// record that only decorate it log a warning and do nothing.
type Store interface {
	// GetOrCreate returns the record for callID, creating an INTRO record for
	// listingID when none exists.
	GetOrCreate(ctx context.Context, callID, listingID string) (*Conversation, error)
	Get(ctx context.Context, callID string) (*Conversation, error)
	// Activate moves the placeholder record to callID with a fresh INTRO
	// state and the question script. A record already created for callID by
	// an early webhook keeps its progress and only gains the script.
	Activate(ctx context.Context, placeholderID, callID, listingID string, questions []string) (*Conversation, error)
	// Update writes state, index and answers, creating the record with an
	// empty listing id when it is missing.
	Update(ctx context.Context, callID string, snapshot dialogue.Snapshot) error
	AttachQuestions(ctx context.Context, callID string, questions []string) error
	SaveSummary(ctx context.Context, callID, summary string) error
	SaveRecording(ctx context.Context, callID, key string) error
	// ListSummaries returns the conversations of the given listings that have a summary.
	ListSummaries(ctx context.Context, listingIDs []string) ([]Conversation, error)
}

// NewStore picks the variant named by STORE_PROVIDER. dbConn is only used
// by the postgres variant.
func NewStore(cfg *config.Config, dbConn *gorm.DB) Store {
	if cfg.StoreProvider == config.StoreProviderMemory {
		return NewMemoryStore(time.Duration(cfg.StoreTTL) * time.Second)
	}

	return NewRepository(dbConn, database.GetCircuitBreakerSettings(cfg))
}
