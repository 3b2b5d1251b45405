package conversation

import (
	"context"
	"slices"
	"sync"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dialogue"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const memoryCleanupInterval = 10 * time.Minute

// MemoryStore keeps conversations in process memory. A ttl of zero keeps
// records forever.
type MemoryStore struct {
	mu    sync.Mutex
	items *cache.Cache
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	expiration := cache.NoExpiration
	if ttl > 0 {
		expiration = ttl
	}

	return &MemoryStore{items: cache.New(expiration, memoryCleanupInterval)}
}

func (memoryStore *MemoryStore) load(callID string) (*Conversation, bool) {
	value, ok := memoryStore.items.Get(callID)
	if !ok {
		return nil, false
	}

	conversation, ok := value.(*Conversation)

	return conversation, ok
}

func (memoryStore *MemoryStore) save(conversation *Conversation) {
	now := time.Now()
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = now
	}

	conversation.UpdatedAt = now

	memoryStore.items.SetDefault(conversation.CallSID, conversation)
}

func (memoryStore *MemoryStore) GetOrCreate(_ context.Context, callID, listingID string) (*Conversation, error) {
	memoryStore.mu.Lock()
	defer memoryStore.mu.Unlock()

	conversation, ok := memoryStore.load(callID)
	if !ok {
		conversation = newConversation(callID, listingID)
		memoryStore.save(conversation)

		logging.Logger.Info("[GetOrCreate] conversation did not exist, so it was created",
			zap.String("call_id", callID),
			zap.String("listing_id", listingID),
		)
	}

	return conversation.clone(), nil
}

func (memoryStore *MemoryStore) Get(_ context.Context, callID string) (*Conversation, error) {
	memoryStore.mu.Lock()
	defer memoryStore.mu.Unlock()

	conversation, ok := memoryStore.load(callID)
	if !ok {
		return nil, ErrConversationNotFound
	}

	return conversation.clone(), nil
}

func (memoryStore *MemoryStore) Activate(
	_ context.Context,
	placeholderID, callID, listingID string,
	questions []string,
) (*Conversation, error) {
	memoryStore.mu.Lock()
	defer memoryStore.mu.Unlock()

	placeholder, ok := memoryStore.load(placeholderID)
	if ok {
		if placeholder.ListingID != "" {
			listingID = placeholder.ListingID
		}

		memoryStore.items.Delete(placeholderID)
	} else {
		logging.Logger.Warn("[Activate] placeholder not found, creating conversation directly",
			zap.String("placeholder_id", placeholderID),
			zap.String("call_id", callID),
		)
	}

	conversation, ok := memoryStore.load(callID)
	if ok {
		conversation = conversation.clone()
		if conversation.ListingID == "" {
			conversation.ListingID = listingID
		}
	} else {
		conversation = newConversation(callID, listingID)
	}

	conversation.Questions = encodeQuestions(questions)
	memoryStore.save(conversation)

	return conversation.clone(), nil
}

func (memoryStore *MemoryStore) Update(_ context.Context, callID string, snapshot dialogue.Snapshot) error {
	memoryStore.mu.Lock()
	defer memoryStore.mu.Unlock()

	conversation, ok := memoryStore.load(callID)
	if ok {
		conversation = conversation.clone()
	} else {
		conversation = newConversation(callID, "")

		logging.Logger.Info("[Update] created conversation record on update", zap.String("call_id", callID))
	}

	conversation.State = snapshot.State.String()
	conversation.QuestionIndex = snapshot.Index
	conversation.Answers = encodeAnswers(snapshot.Answers)
	memoryStore.save(conversation)

	return nil
}

func (memoryStore *MemoryStore) AttachQuestions(_ context.Context, callID string, questions []string) error {
	memoryStore.decorate("AttachQuestions", callID, func(conversation *Conversation) {
		conversation.Questions = encodeQuestions(questions)
	})

	return nil
}

func (memoryStore *MemoryStore) SaveSummary(_ context.Context, callID, summary string) error {
	memoryStore.decorate("SaveSummary", callID, func(conversation *Conversation) {
		conversation.SummaryText = &summary
	})

	return nil
}

func (memoryStore *MemoryStore) SaveRecording(_ context.Context, callID, key string) error {
	memoryStore.decorate("SaveRecording", callID, func(conversation *Conversation) {
		conversation.RecordingKey = &key
	})

	return nil
}

func (memoryStore *MemoryStore) decorate(operation, callID string, apply func(*Conversation)) {
	memoryStore.mu.Lock()
	defer memoryStore.mu.Unlock()

	conversation, ok := memoryStore.load(callID)
	if !ok {
		logging.Logger.Warn("["+operation+"] conversation not found", zap.String("call_id", callID))
		return
	}

	conversation = conversation.clone()
	apply(conversation)
	memoryStore.save(conversation)
}

func (memoryStore *MemoryStore) ListSummaries(_ context.Context, listingIDs []string) ([]Conversation, error) {
	memoryStore.mu.Lock()
	defer memoryStore.mu.Unlock()

	conversations := []Conversation{}

	for _, item := range memoryStore.items.Items() {
		conversation, ok := item.Object.(*Conversation)
		if !ok || conversation.Summary() == "" || !slices.Contains(listingIDs, conversation.ListingID) {
			continue
		}

		conversations = append(conversations, *conversation.clone())
	}

	slices.SortFunc(conversations, func(a, b Conversation) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return conversations, nil
}
