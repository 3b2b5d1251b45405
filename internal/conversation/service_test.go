package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dialogue"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/listing"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeListings map[string]*listing.Listing

func (listings fakeListings) GetByID(_ context.Context, listingID string) (*listing.Listing, error) {
	found, ok := listings[listingID]
	if !ok {
		return nil, listing.ErrListingNotFound
	}

	return found, nil
}

type fakeSummarizer struct {
	mu      sync.Mutex
	summary string
	err     error
	calls   []map[string]string
	listing []dialogue.ListingContext
}

func (summarizer *fakeSummarizer) Summarize(
	_ context.Context,
	listingContext dialogue.ListingContext,
	answers map[string]string,
) (string, error) {
	summarizer.mu.Lock()
	defer summarizer.mu.Unlock()

	summarizer.calls = append(summarizer.calls, answers)
	summarizer.listing = append(summarizer.listing, listingContext)

	return summarizer.summary, summarizer.err
}

type fakePublisher struct {
	results []CallResult
}

func (publisher *fakePublisher) PublishResult(_ context.Context, result CallResult) error {
	publisher.results = append(publisher.results, result)
	return nil
}

type fixedClarifier string

func (clarifier fixedClarifier) Clarify(context.Context, string) (string, error) {
	return string(clarifier), nil
}

func text(value string) *string {
	return &value
}

type turnFixture struct {
	service    *TurnService
	store      *MemoryStore
	summarizer *fakeSummarizer
	publisher  *fakePublisher
}

func newTurnFixture(t *testing.T, questions []string) *turnFixture {
	t.Helper()

	address := "12 Elm St"
	store := NewMemoryStore(0)
	summarizer := &fakeSummarizer{summary: "The unit is available."}
	publisher := &fakePublisher{}

	_, err := store.Activate(context.Background(), PlaceholderID("l1"), "CA1", "l1", questions)
	require.NoError(t, err)

	service := &TurnService{
		Store:          store,
		Locker:         lock.NewMemoryLocker(),
		Listings:       fakeListings{"l1": {ListingID: "l1", Address: &address}},
		Clarifier:      fixedClarifier("Could you give me more detail?"),
		Summarizer:     summarizer,
		Publisher:      publisher,
		LockWait:       time.Second,
		ClarifyTimeout: time.Second,
		SummaryTimeout: time.Second,
	}

	return &turnFixture{service: service, store: store, summarizer: summarizer, publisher: publisher}
}

func TestHandleTurnFullConversation(t *testing.T) {
	fixture := newTurnFixture(t, []string{"Is it available?", "Pets allowed?"})
	ctx := context.Background()

	steps := []struct {
		utterance *string
		prompt    string
		state     dialogue.State
	}{
		{nil, "Hi, I'm calling about 12 Elm St. Do you have a moment to answer a few quick questions?", dialogue.StateIntro},
		{text("yes"), "Is it available?", dialogue.StateAsking},
		{text("yes from June"), "Pets allowed?", dialogue.StateAsking},
		{text("no"), "Could you give me more detail?", dialogue.StateClarify},
		{text("only small dogs"), dialogue.WrapupPrompt, dialogue.StateWrapup},
		{text("bye"), "", dialogue.StateEnd},
	}

	for _, step := range steps {
		result, err := fixture.service.HandleTurn(ctx, Turn{CallID: "CA1", Utterance: step.utterance})
		require.NoError(t, err)
		assert.Equal(t, step.prompt, result.Prompt)
		assert.Equal(t, step.state, result.State)
		assert.Equal(t, step.state == dialogue.StateEnd, result.Hangup)
	}

	require.Len(t, fixture.summarizer.calls, 1)
	assert.Equal(t, map[string]string{
		"Is it available?": "yes from June",
		"Pets allowed?":    "no only small dogs",
	}, fixture.summarizer.calls[0])
	assert.Equal(t, "12 Elm St", fixture.summarizer.listing[0].Address)

	stored, err := fixture.store.Get(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, "The unit is available.", stored.Summary())

	require.Len(t, fixture.publisher.results, 1)
	assert.Equal(t, "CA1", fixture.publisher.results[0].CallSID)
	assert.Equal(t, "l1", fixture.publisher.results[0].ListingID)
}

func TestHandleTurnSummarizesOnlyOnce(t *testing.T) {
	fixture := newTurnFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, fixture.store.Update(ctx, "CA1", dialogue.Snapshot{State: dialogue.StateWrapup}))

	for range 3 {
		result, err := fixture.service.HandleTurn(ctx, Turn{CallID: "CA1", Utterance: text("thanks")})
		require.NoError(t, err)
		assert.True(t, result.Hangup)
	}

	assert.Len(t, fixture.summarizer.calls, 1)
}

func TestHandleTurnSummaryFailureStoresSentinel(t *testing.T) {
	fixture := newTurnFixture(t, nil)
	fixture.summarizer.err = errors.New("model unavailable")
	ctx := context.Background()

	require.NoError(t, fixture.store.Update(ctx, "CA1", dialogue.Snapshot{State: dialogue.StateWrapup}))

	result, err := fixture.service.HandleTurn(ctx, Turn{CallID: "CA1", Utterance: text("bye")})
	require.NoError(t, err)
	assert.True(t, result.Hangup)

	stored, err := fixture.store.Get(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, NoSummary, stored.Summary())
}

func TestHandleTurnUnknownCallUsesGenericListing(t *testing.T) {
	fixture := newTurnFixture(t, nil)

	result, err := fixture.service.HandleTurn(context.Background(), Turn{CallID: "CA-unknown", ListingID: "missing"})
	require.NoError(t, err)
	assert.Contains(t, result.Prompt, dialogue.FallbackListingName)

	stored, err := fixture.store.Get(context.Background(), "CA-unknown")
	require.NoError(t, err)
	assert.Equal(t, "missing", stored.ListingID)
}

func TestHandleTurnEmptyUtteranceClarifies(t *testing.T) {
	fixture := newTurnFixture(t, []string{"Q1", "Q2", "Q3"})
	ctx := context.Background()

	require.NoError(t, fixture.store.Update(ctx, "CA1", dialogue.Snapshot{
		State:   dialogue.StateAsking,
		Index:   1,
		Answers: map[string]string{"Q1": "yes indeed"},
	}))

	result, err := fixture.service.HandleTurn(ctx, Turn{CallID: "CA1", Utterance: text("")})
	require.NoError(t, err)
	assert.Equal(t, dialogue.StateClarify, result.State)

	stored, err := fixture.store.Get(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, "", stored.AnswerMap()["Q2"])
	assert.Equal(t, 1, stored.QuestionIndex)
}

func TestHandleTurnSerializesSameCall(t *testing.T) {
	questions := make([]string, 0, 20)
	for _, q := range "abcdefghijklmnopqrst" {
		questions = append(questions, "question "+string(q))
	}

	fixture := newTurnFixture(t, questions)
	ctx := context.Background()

	_, err := fixture.service.HandleTurn(ctx, Turn{CallID: "CA1", Utterance: text("yes")})
	require.NoError(t, err)

	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, turnErr := fixture.service.HandleTurn(ctx, Turn{CallID: "CA1", Utterance: text("a long enough answer")})
			assert.NoError(t, turnErr)
		}()
	}

	wg.Wait()

	stored, err := fixture.store.Get(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, 10, stored.QuestionIndex)
	assert.Len(t, stored.AnswerMap(), 10)
}

func TestHandleTurnLockTimeout(t *testing.T) {
	fixture := newTurnFixture(t, nil)
	fixture.service.LockWait = 20 * time.Millisecond

	lease, err := fixture.service.Locker.Lock(context.Background(), lock.ConversationKey("CA1"))
	require.NoError(t, err)

	defer func() {
		_ = lease.Release(context.Background())
	}()

	_, err = fixture.service.HandleTurn(context.Background(), Turn{CallID: "CA1", Utterance: text("yes")})
	require.ErrorIs(t, err, lock.ErrLockNotAcquired)
}
