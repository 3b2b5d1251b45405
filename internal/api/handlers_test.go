package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/batch"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/conversation"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dashboard"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dialogue"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/listing"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/lock"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/recording"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/textgen"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/voice"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalls struct {
	searchID  string
	questions []string
	scheduled int
	err       error
}

func (calls *fakeCalls) StartCalls(_ context.Context, searchID string, userQuestions []string) (int, error) {
	calls.searchID = searchID
	calls.questions = userQuestions

	return calls.scheduled, calls.err
}

type fakeListings struct {
	received []listing.Listing
}

func (listings *fakeListings) UpsertMany(_ context.Context, items []listing.Listing) (int, error) {
	listings.received = items
	return len(items), nil
}

type fakeTurns struct {
	turns  []conversation.Turn
	result *conversation.TurnResult
	err    error
}

func (turns *fakeTurns) HandleTurn(_ context.Context, turn conversation.Turn) (*conversation.TurnResult, error) {
	turns.turns = append(turns.turns, turn)
	return turns.result, turns.err
}

type fakeArchiver struct {
	callbacks []recording.Callback
	err       error
}

func (archiver *fakeArchiver) Archive(_ context.Context, callback recording.Callback) (string, error) {
	archiver.callbacks = append(archiver.callbacks, callback)
	return recording.ObjectKey(callback.CallSID), archiver.err
}

type fakeSummaries struct {
	items []dashboard.SummaryItem
}

func (summaries *fakeSummaries) Summaries(_ context.Context, _ string) ([]dashboard.SummaryItem, error) {
	return summaries.items, nil
}

type fixture struct {
	calls     *fakeCalls
	listings  *fakeListings
	turns     *fakeTurns
	archiver  *fakeArchiver
	summaries *fakeSummaries
	handler   http.Handler
}

func newFixture(withRecordings bool) *fixture {
	fix := &fixture{
		calls:     &fakeCalls{scheduled: 2},
		listings:  &fakeListings{},
		turns:     &fakeTurns{result: &conversation.TurnResult{Prompt: "Is it available?", State: dialogue.StateAsking}},
		archiver:  &fakeArchiver{},
		summaries: &fakeSummaries{items: []dashboard.SummaryItem{}},
	}

	var archiver RecordingArchiver
	if withRecordings {
		archiver = fix.archiver
	}

	cfg := &config.Config{TwilioSayVoice: "alice", TwilioSpeechTimeout: 3}
	server := NewServer(cfg, fix.calls, fix.listings, fix.turns, archiver, fix.summaries, nil)
	fix.handler = server.Router()

	return fix
}

func (fix *fixture) do(method, target, contentType, body string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}

	recorder := httptest.NewRecorder()
	fix.handler.ServeHTTP(recorder, request)

	return recorder
}

func (fix *fixture) form(target string, values url.Values) *httptest.ResponseRecorder {
	return fix.do(http.MethodPost, target, "application/x-www-form-urlencoded", values.Encode())
}

func TestStartCalls(t *testing.T) {
	fix := newFixture(false)

	resp := fix.do(http.MethodPost, "/calls/start", "application/json",
		`{"search_id":"s1","user_questions":["Pets?"]}`)

	require.Equal(t, http.StatusAccepted, resp.Code)
	assert.JSONEq(t, `{"scheduled":2}`, resp.Body.String())
	assert.Equal(t, "s1", fix.calls.searchID)
	assert.Equal(t, []string{"Pets?"}, fix.calls.questions)
}

func TestStartCallsErrors(t *testing.T) {
	fix := newFixture(false)

	resp := fix.do(http.MethodPost, "/calls/start", "application/json", `{"user_questions":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = fix.do(http.MethodPost, "/calls/start", "application/json", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	fix.calls.err = batch.ErrNoListings
	resp = fix.do(http.MethodPost, "/calls/start", "application/json", `{"search_id":"s1"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	fix.calls.err = errors.New("db down")
	resp = fix.do(http.MethodPost, "/calls/start", "application/json", `{"search_id":"s1"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestIngestListingsStampsSearchID(t *testing.T) {
	fix := newFixture(false)

	resp := fix.do(http.MethodPost, "/listings", "application/json",
		`{"search_id":"s9","listings":[{"listing_id":"l1","provider":"zillow"},{"listing_id":"l2"}]}`)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"search_id":"s9","upserted":2}`, resp.Body.String())
	require.Len(t, fix.listings.received, 2)

	for _, item := range fix.listings.received {
		require.NotNil(t, item.SearchID)
		assert.Equal(t, "s9", *item.SearchID)
	}
}

func TestIngestListingsRejectsMissingIDs(t *testing.T) {
	fix := newFixture(false)

	resp := fix.do(http.MethodPost, "/listings", "application/json",
		`{"search_id":"s9","listings":[{"provider":"zillow"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = fix.do(http.MethodPost, "/listings", "application/json", `{"listings":[{"listing_id":"l1"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Nil(t, fix.listings.received)
}

func TestVoiceWebhookGathersNextAnswer(t *testing.T) {
	fix := newFixture(false)

	resp := fix.form("/twilio/voice?listing_id=l1", url.Values{
		"CallSid":      {"CA1"},
		"SpeechResult": {"yes it is"},
	})

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/xml", resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Body.String(), `<Say voice="alice">Is it available?</Say>`)
	assert.Contains(t, resp.Body.String(), `<Gather input="speech" action="/twilio/voice?gathered=1" method="POST" actionOnEmptyResult="true" timeout="3">`)

	require.Len(t, fix.turns.turns, 1)
	turn := fix.turns.turns[0]
	assert.Equal(t, "CA1", turn.CallID)
	assert.Equal(t, "l1", turn.ListingID)
	require.NotNil(t, turn.Utterance)
	assert.Equal(t, "yes it is", *turn.Utterance)
}

func TestVoiceWebhookUtterancePresence(t *testing.T) {
	fix := newFixture(false)

	fix.form("/twilio/voice", url.Values{"CallSid": {"CA1"}})
	fix.form("/twilio/voice", url.Values{"CallSid": {"CA1"}, "SpeechResult": {""}})

	require.Len(t, fix.turns.turns, 2)
	assert.Nil(t, fix.turns.turns[0].Utterance)
	require.NotNil(t, fix.turns.turns[1].Utterance)
	assert.Empty(t, *fix.turns.turns[1].Utterance)
}

func TestVoiceWebhookSilentGatherIsEmptyAnswer(t *testing.T) {
	fix := newFixture(false)

	fix.form("/twilio/voice?gathered=1", url.Values{"CallSid": {"CA1"}})

	require.Len(t, fix.turns.turns, 1)
	require.NotNil(t, fix.turns.turns[0].Utterance)
	assert.Empty(t, *fix.turns.turns[0].Utterance)
}

func newDialogueServer(t *testing.T) (http.Handler, *conversation.MemoryStore) {
	t.Helper()

	store := conversation.NewMemoryStore(0)
	turns := conversation.NewTurnService(
		&config.Config{LockWait: 1, ClarifyTimeout: 1, SummaryTimeout: 1},
		store,
		lock.NewMemoryLocker(),
		nil,
		textgen.StaticClient{},
		textgen.StaticClient{},
		nil,
	)
	server := NewServer(&config.Config{}, &fakeCalls{}, &fakeListings{}, turns, nil, &fakeSummaries{}, nil)

	return server.Router(), store
}

func TestVoiceWebhookSilenceDrivesDialogue(t *testing.T) {
	handler, store := newDialogueServer(t)
	ctx := context.Background()
	questions := []string{"Is it available?", "Where is it?", "Pets allowed?"}

	_, err := store.Activate(ctx, "CA1", "CA1", "", questions)
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, "CA1", dialogue.Snapshot{
		State:     dialogue.StateAsking,
		Index:     1,
		Answers:   map[string]string{questions[0]: "yes it is"},
		Questions: questions,
	}))

	silentGather := func() *httptest.ResponseRecorder {
		request := httptest.NewRequest(http.MethodPost, voice.GatherPath,
			strings.NewReader(url.Values{"CallSid": {"CA1"}}.Encode()))
		request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)

		return recorder
	}

	resp := silentGather()
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), dialogue.FallbackClarify)

	record, err := store.Get(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, dialogue.StateClarify, record.Snapshot().State)

	require.NoError(t, store.Update(ctx, "CA1", dialogue.Snapshot{
		State:     dialogue.StateWrapup,
		Index:     len(questions),
		Answers:   map[string]string{questions[0]: "yes it is"},
		Questions: questions,
	}))

	resp = silentGather()
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "<Hangup></Hangup>")

	record, err = store.Get(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, dialogue.StateEnd, record.Snapshot().State)
	require.NotNil(t, record.SummaryText)
	assert.NotEmpty(t, *record.SummaryText)
}

func TestVoiceWebhookHangup(t *testing.T) {
	fix := newFixture(false)
	fix.turns.result = &conversation.TurnResult{Prompt: "Thanks, goodbye.", State: dialogue.StateEnd, Hangup: true}

	resp := fix.form("/twilio/voice", url.Values{"CallSid": {"CA1"}})

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "<Hangup></Hangup>")
	assert.NotContains(t, resp.Body.String(), "<Gather")
}

func TestVoiceWebhookErrors(t *testing.T) {
	fix := newFixture(false)

	resp := fix.form("/twilio/voice", url.Values{"SpeechResult": {"hi"}})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, fix.turns.turns)

	fix.turns.err = lock.ErrLockNotAcquired
	resp = fix.form("/twilio/voice", url.Values{"CallSid": {"CA1"}})
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	fix.turns.err = errors.New("store down")
	resp = fix.form("/twilio/voice", url.Values{"CallSid": {"CA1"}})
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestRecordingWebhook(t *testing.T) {
	fix := newFixture(true)

	resp := fix.form("/twilio/recording", url.Values{
		"CallSid":           {"CA1"},
		"RecordingSid":      {"RE1"},
		"RecordingUrl":      {"https://api.twilio.com/rec/RE1"},
		"RecordingStatus":   {"completed"},
		"RecordingDuration": {"42"},
	})

	require.Equal(t, http.StatusNoContent, resp.Code)
	require.Len(t, fix.archiver.callbacks, 1)
	assert.Equal(t, recording.Callback{
		CallSID:           "CA1",
		RecordingSID:      "RE1",
		RecordingURL:      "https://api.twilio.com/rec/RE1",
		RecordingStatus:   "completed",
		RecordingDuration: "42",
	}, fix.archiver.callbacks[0])

	fix.archiver.err = recording.ErrIncompleteCallback
	resp = fix.form("/twilio/recording", url.Values{"CallSid": {"CA1"}})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRecordingWebhookDisabled(t *testing.T) {
	fix := newFixture(false)

	resp := fix.form("/twilio/recording", url.Values{"CallSid": {"CA1"}, "RecordingUrl": {"x"}})

	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Empty(t, fix.archiver.callbacks)
}

func TestDashboardSummaries(t *testing.T) {
	fix := newFixture(false)

	resp := fix.do(http.MethodGet, "/dashboard/summaries", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = fix.do(http.MethodGet, "/dashboard/summaries?search_id=s1", "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"items":[]}`, resp.Body.String())

	fix.summaries.items = []dashboard.SummaryItem{{CallSID: "CA1", ListingID: "l1", SummaryText: "Available in May."}}
	resp = fix.do(http.MethodGet, "/dashboard/summaries?search_id=s1", "", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Items []dashboard.SummaryItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "CA1", body.Items[0].CallSID)
}
