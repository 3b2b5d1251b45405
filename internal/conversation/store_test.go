package conversation

import (
	"context"
	"testing"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/database/databasetest"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dialogue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeVariants(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()

	return map[string]func(t *testing.T) Store{
		"memory": func(_ *testing.T) Store {
			return NewMemoryStore(0)
		},
		"gorm": func(t *testing.T) Store {
			dbConn := databasetest.NewSQLite(t, &Conversation{})
			cfg := &config.Config{DBIntervalCB: 30, DBConsecutiveFailuresCB: 3}

			return NewRepository(dbConn, database.GetCircuitBreakerSettings(cfg))
		},
	}
}

func forEachStore(t *testing.T, test func(t *testing.T, store Store)) {
	t.Helper()

	for name, build := range storeVariants(t) {
		t.Run(name, func(t *testing.T) {
			test(t, build(t))
		})
	}
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		first, err := store.GetOrCreate(ctx, PlaceholderID("l1"), "l1")
		require.NoError(t, err)
		assert.Equal(t, "pending-l1", first.CallSID)
		assert.Equal(t, "l1", first.ListingID)
		assert.Equal(t, dialogue.StateIntro.String(), first.State)
		assert.Empty(t, first.AnswerMap())
		assert.Empty(t, first.QuestionList())

		second, err := store.GetOrCreate(ctx, PlaceholderID("l1"), "other")
		require.NoError(t, err)
		assert.Equal(t, "l1", second.ListingID)
	})
}

func TestActivateMovesPlaceholder(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		questions := []string{"Q1", "Q2"}

		_, err := store.GetOrCreate(ctx, PlaceholderID("l1"), "l1")
		require.NoError(t, err)

		activated, err := store.Activate(ctx, PlaceholderID("l1"), "CA100", "l1", questions)
		require.NoError(t, err)
		assert.Equal(t, "CA100", activated.CallSID)

		stored, err := store.Get(ctx, "CA100")
		require.NoError(t, err)

		snapshot := stored.Snapshot()
		assert.Equal(t, dialogue.StateIntro, snapshot.State)
		assert.Zero(t, snapshot.Index)
		assert.Empty(t, snapshot.Answers)
		assert.Equal(t, questions, snapshot.Questions)
		assert.Equal(t, "l1", stored.ListingID)

		_, err = store.Get(ctx, PlaceholderID("l1"))
		require.ErrorIs(t, err, ErrConversationNotFound)
	})
}

func TestActivateKeepsProgressOfEarlyWebhook(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		_, err := store.GetOrCreate(ctx, PlaceholderID("l1"), "l1")
		require.NoError(t, err)

		require.NoError(t, store.Update(ctx, "CA1", dialogue.Snapshot{State: dialogue.StateAsking}))

		_, err = store.Activate(ctx, PlaceholderID("l1"), "CA1", "l1", []string{"Q1"})
		require.NoError(t, err)

		stored, err := store.Get(ctx, "CA1")
		require.NoError(t, err)
		assert.Equal(t, dialogue.StateAsking.String(), stored.State)
		assert.Equal(t, "l1", stored.ListingID)
		assert.Equal(t, []string{"Q1"}, stored.QuestionList())
	})
}

func TestActivateWithoutPlaceholder(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		activated, err := store.Activate(ctx, PlaceholderID("l9"), "CA9", "l9", []string{"Q1"})
		require.NoError(t, err)
		assert.Equal(t, "l9", activated.ListingID)
	})
}

func TestUpdatePersistsSnapshot(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		_, err := store.Activate(ctx, PlaceholderID("l1"), "CA1", "l1", []string{"Q1", "Q2"})
		require.NoError(t, err)

		err = store.Update(ctx, "CA1", dialogue.Snapshot{
			State:   dialogue.StateClarify,
			Index:   1,
			Answers: map[string]string{"Q1": "yes it is", "Q2": ""},
		})
		require.NoError(t, err)

		stored, err := store.Get(ctx, "CA1")
		require.NoError(t, err)

		snapshot := stored.Snapshot()
		assert.Equal(t, dialogue.StateClarify, snapshot.State)
		assert.Equal(t, 1, snapshot.Index)
		assert.Equal(t, map[string]string{"Q1": "yes it is", "Q2": ""}, snapshot.Answers)
		assert.Equal(t, []string{"Q1", "Q2"}, snapshot.Questions)
	})
}

func TestUpdateCreatesMissingRecord(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		require.NoError(t, store.Update(ctx, "CA7", dialogue.Snapshot{State: dialogue.StateAsking}))

		stored, err := store.Get(ctx, "CA7")
		require.NoError(t, err)
		assert.Empty(t, stored.ListingID)
		assert.Equal(t, dialogue.StateAsking.String(), stored.State)
	})
}

func TestDecoratingMissingRecordIsNoop(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		require.NoError(t, store.AttachQuestions(ctx, "ghost", []string{"Q1"}))
		require.NoError(t, store.SaveSummary(ctx, "ghost", "summary"))
		require.NoError(t, store.SaveRecording(ctx, "ghost", "ghost.mp3"))

		_, err := store.Get(ctx, "ghost")
		require.ErrorIs(t, err, ErrConversationNotFound)
	})
}

func TestAttachQuestionsAndRecording(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		_, err := store.GetOrCreate(ctx, "CA1", "l1")
		require.NoError(t, err)

		require.NoError(t, store.AttachQuestions(ctx, "CA1", []string{"Q1", "Q2"}))
		require.NoError(t, store.SaveRecording(ctx, "CA1", "recordings/CA1.mp3"))

		stored, err := store.Get(ctx, "CA1")
		require.NoError(t, err)
		assert.Equal(t, []string{"Q1", "Q2"}, stored.QuestionList())
		require.NotNil(t, stored.RecordingKey)
		assert.Equal(t, "recordings/CA1.mp3", *stored.RecordingKey)
	})
}

func TestListSummaries(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		for callID, listingID := range map[string]string{"CA1": "l1", "CA2": "l2", "CA3": "l3"} {
			_, err := store.GetOrCreate(ctx, callID, listingID)
			require.NoError(t, err)
		}

		require.NoError(t, store.SaveSummary(ctx, "CA1", "Available in June."))
		require.NoError(t, store.SaveSummary(ctx, "CA3", "Pets allowed."))

		summaries, err := store.ListSummaries(ctx, []string{"l1", "l2"})
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, "CA1", summaries[0].CallSID)
		assert.Equal(t, "Available in June.", summaries[0].Summary())

		none, err := store.ListSummaries(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
