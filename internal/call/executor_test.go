package call

import (
	"context"
	"errors"
	"sync"
	"testing"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/conversation"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dialogue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu       sync.Mutex
	callID   string
	err      error
	placed   []string
	callback []string
}

func (gateway *fakeGateway) PlaceCall(_ context.Context, destination, callbackPath string) (string, error) {
	gateway.mu.Lock()
	defer gateway.mu.Unlock()

	gateway.placed = append(gateway.placed, destination)
	gateway.callback = append(gateway.callback, callbackPath)

	return gateway.callID, gateway.err
}

func (*fakeGateway) Hangup(context.Context, string) error {
	return nil
}

type fakeRecorder struct {
	failures  []string
	successes []string
}

func (recorder *fakeRecorder) RecordFailure(_ context.Context, job CallJob, _ string) {
	recorder.failures = append(recorder.failures, job.ListingID)
}

func (recorder *fakeRecorder) RecordSuccess(_ context.Context, job CallJob) {
	recorder.successes = append(recorder.successes, job.ListingID)
}

func phone(number string) *string {
	return &number
}

func TestExecutePlacesCallAndActivatesConversation(t *testing.T) {
	store := conversation.NewMemoryStore(0)
	gateway := &fakeGateway{callID: "CA1"}
	recorder := &fakeRecorder{}
	executor := &Executor{Store: store, Gateway: gateway, Recorder: recorder}

	questions := []string{"Q1", "Q2"}
	err := executor.Execute(context.Background(), CallJob{
		ListingID:   "L1",
		Destination: phone("+15550001"),
		Questions:   questions,
		SearchID:    "s1",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"+15550001"}, gateway.placed)
	assert.Equal(t, []string{"/twilio/voice?listing_id=L1"}, gateway.callback)

	activated, err := store.Get(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, "L1", activated.ListingID)
	assert.Equal(t, questions, activated.QuestionList())
	assert.Equal(t, dialogue.StateIntro.String(), activated.State)

	_, err = store.Get(context.Background(), conversation.PlaceholderID("L1"))
	require.ErrorIs(t, err, conversation.ErrConversationNotFound)

	assert.Equal(t, []string{"L1"}, recorder.successes)
	assert.Empty(t, recorder.failures)
}

func TestExecuteSkipsJobWithoutDestination(t *testing.T) {
	store := conversation.NewMemoryStore(0)
	gateway := &fakeGateway{callID: "CA1"}
	executor := &Executor{Store: store, Gateway: gateway}

	for _, destination := range []*string{nil, phone(""), phone("   ")} {
		err := executor.Execute(context.Background(), CallJob{ListingID: "L1", Destination: destination})
		require.NoError(t, err)
	}

	assert.Empty(t, gateway.placed)

	_, err := store.Get(context.Background(), conversation.PlaceholderID("L1"))
	require.ErrorIs(t, err, conversation.ErrConversationNotFound)
}

func TestExecuteRecordsPlacementFailure(t *testing.T) {
	store := conversation.NewMemoryStore(0)
	gateway := &fakeGateway{err: errors.New("provider down")}
	recorder := &fakeRecorder{}
	executor := &Executor{Store: store, Gateway: gateway, Recorder: recorder}

	err := executor.Execute(context.Background(), CallJob{ListingID: "L2", Destination: phone("+15550002")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")

	assert.Equal(t, []string{"L2"}, recorder.failures)
	assert.Empty(t, recorder.successes)

	placeholder, err := store.Get(context.Background(), conversation.PlaceholderID("L2"))
	require.NoError(t, err)
	assert.Equal(t, "L2", placeholder.ListingID)
}

func TestCallbackPathEscapesListingID(t *testing.T) {
	assert.Equal(t, "/twilio/voice?listing_id=a+b%26c", CallbackPath("a b&c"))
}
