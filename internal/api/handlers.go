package api

import (
	"errors"
	"net/http"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/batch"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/conversation"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/listing"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/lock"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/recording"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/voice"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const maxBodyBytes = 8 << 20

type startCallsResponse struct {
	Scheduled int `json:"scheduled"`
}

type ingestListingsRequest struct {
	SearchID string            `json:"search_id" validate:"required"`
	Listings []listing.Listing `json:"listings"  validate:"required,min=1,dive"`
}

type ingestListingsResponse struct {
	SearchID string `json:"search_id"`
	Upserted int    `json:"upserted"`
}

type summariesResponse struct {
	Items any `json:"items"`
}

func (server *Server) decode(writer http.ResponseWriter, request *http.Request, target any) bool {
	err := json.NewDecoder(http.MaxBytesReader(writer, request.Body, maxBodyBytes)).Decode(target)
	if err == nil {
		err = server.validate.Struct(target)
	}

	if err != nil {
		respondError(writer, http.StatusBadRequest, err.Error())
		return false
	}

	return true
}

// StartCalls schedules one call per stored listing of a search.
func (server *Server) StartCalls() http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var body batch.Request
		if !server.decode(writer, request, &body) {
			return
		}

		scheduled, err := server.Calls.StartCalls(request.Context(), body.SearchID, body.UserQuestions)
		if errors.Is(err, batch.ErrNoListings) {
			respondError(writer, http.StatusNotFound, "no listings found for search_id")
			return
		}

		if err != nil {
			logging.Logger.Error("[StartCalls] failed to start calls",
				zap.String("search_id", body.SearchID),
				zap.String("error", err.Error()),
			)
			respondError(writer, http.StatusInternalServerError, "failed to start calls")

			return
		}

		respondJSON(writer, http.StatusAccepted, startCallsResponse{Scheduled: scheduled})
	}
}

// IngestListings stores listings found for a search.
func (server *Server) IngestListings() http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var body ingestListingsRequest
		if !server.decode(writer, request, &body) {
			return
		}

		for idx := range body.Listings {
			searchID := body.SearchID
			body.Listings[idx].SearchID = &searchID
		}

		upserted, err := server.Listings.UpsertMany(request.Context(), body.Listings)
		if err != nil {
			logging.Logger.Error("[IngestListings] failed to store listings",
				zap.String("search_id", body.SearchID),
				zap.String("error", err.Error()),
			)
			respondError(writer, http.StatusInternalServerError, "failed to store listings")

			return
		}

		respondJSON(writer, http.StatusOK, ingestListingsResponse{SearchID: body.SearchID, Upserted: upserted})
	}
}

// VoiceWebhook runs one dialogue turn and answers with TwiML. A gather
// callback without SpeechResult is an empty answer. A turn whose
// conversation is locked by another delivery gets 503 so the gateway retries.
func (server *Server) VoiceWebhook() http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		err := request.ParseForm()
		if err != nil {
			respondError(writer, http.StatusBadRequest, err.Error())
			return
		}

		callID := request.PostForm.Get("CallSid")
		if callID == "" {
			respondError(writer, http.StatusBadRequest, "CallSid is required")
			return
		}

		turn := conversation.Turn{
			CallID:    callID,
			ListingID: request.Form.Get("listing_id"),
		}

		if speech, ok := request.PostForm["SpeechResult"]; ok && len(speech) > 0 {
			turn.Utterance = &speech[0]
		} else if request.Form.Get(voice.GatheredParam) != "" {
			silence := ""
			turn.Utterance = &silence
		}

		result, err := server.Turns.HandleTurn(request.Context(), turn)
		if errors.Is(err, lock.ErrLockNotAcquired) {
			respondError(writer, http.StatusServiceUnavailable, "conversation is busy")
			return
		}

		if err != nil {
			logging.Logger.Error("[VoiceWebhook] failed to handle turn",
				zap.String("call_id", callID),
				zap.String("error", err.Error()),
			)
			respondError(writer, http.StatusInternalServerError, "failed to handle turn")

			return
		}

		payload, err := voice.NewTurnResponse(result.Prompt, result.Hangup, server.TwiML).Render()
		if err != nil {
			respondError(writer, http.StatusInternalServerError, err.Error())
			return
		}

		respondXML(writer, http.StatusOK, payload)
	}
}

// RecordingWebhook archives a finished call recording.
func (server *Server) RecordingWebhook() http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		err := request.ParseForm()
		if err != nil {
			respondError(writer, http.StatusBadRequest, err.Error())
			return
		}

		callback := recording.Callback{
			CallSID:           request.PostForm.Get("CallSid"),
			RecordingSID:      request.PostForm.Get("RecordingSid"),
			RecordingURL:      request.PostForm.Get("RecordingUrl"),
			RecordingStatus:   request.PostForm.Get("RecordingStatus"),
			RecordingDuration: request.PostForm.Get("RecordingDuration"),
		}

		if server.Recordings == nil {
			logging.Logger.Info("[RecordingWebhook] recording archival disabled, ignoring callback",
				zap.String("call_id", callback.CallSID),
				zap.String("recording_sid", callback.RecordingSID),
			)
			writer.WriteHeader(http.StatusNoContent)

			return
		}

		_, err = server.Recordings.Archive(request.Context(), callback)
		if errors.Is(err, recording.ErrIncompleteCallback) {
			respondError(writer, http.StatusBadRequest, err.Error())
			return
		}

		if err != nil {
			logging.Logger.Error("[RecordingWebhook] failed to archive recording",
				zap.String("call_id", callback.CallSID),
				zap.String("recording_sid", callback.RecordingSID),
				zap.String("error", err.Error()),
			)
			respondError(writer, http.StatusInternalServerError, "failed to archive recording")

			return
		}

		writer.WriteHeader(http.StatusNoContent)
	}
}

// DashboardSummaries lists summarized conversations of a search.
func (server *Server) DashboardSummaries() http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		searchID := request.URL.Query().Get("search_id")
		if searchID == "" {
			respondError(writer, http.StatusBadRequest, "search_id is required")
			return
		}

		items, err := server.Summaries.Summaries(request.Context(), searchID)
		if err != nil {
			logging.Logger.Error("[DashboardSummaries] failed to list summaries",
				zap.String("search_id", searchID),
				zap.String("error", err.Error()),
			)
			respondError(writer, http.StatusInternalServerError, "failed to list summaries")

			return
		}

		respondJSON(writer, http.StatusOK, summariesResponse{Items: items})
	}
}
