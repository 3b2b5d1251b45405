package recording

import (
	"context"
	"errors"
	"fmt"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	prometheusOutreach "git.mci.dev/mse/sre/phoenix/golang/outreach/internal/prometheus"
	"go.uber.org/zap"
)

const contentType = "audio/mpeg"

var ErrIncompleteCallback = errors.New("recording callback is missing call sid or recording url")

type Fetcher interface {
	FetchRecording(ctx context.Context, recordingURL string) ([]byte, error)
}

type Uploader interface {
	Upload(ctx context.Context, data []byte, objectKey, contentType string) (string, error)
}

type Store interface {
	SaveRecording(ctx context.Context, callID, recordingKey string) error
}

// Callback is the recording status notification sent by the voice gateway.
type Callback struct {
	CallSID           string
	RecordingSID      string
	RecordingURL      string
	RecordingStatus   string
	RecordingDuration string
}

// Service copies finished call recordings into object storage.
type Service struct {
	Fetcher  Fetcher
	Uploader Uploader
	Store    Store
}

func NewService(fetcher Fetcher, uploader Uploader, store Store) *Service {
	return &Service{
		Fetcher:  fetcher,
		Uploader: uploader,
		Store:    store,
	}
}

// ObjectKey names the stored recording of callID.
func ObjectKey(callID string) string {
	return callID + ".mp3"
}

// Archive downloads the recording, uploads it as <call_sid>.mp3 and records
// the key on the conversation. It returns the stored key.
func (recordingService *Service) Archive(ctx context.Context, callback Callback) (key string, err error) {
	defer func() {
		result := prometheusOutreach.ResultOK
		if err != nil {
			result = prometheusOutreach.ResultFailed
		}

		prometheusOutreach.Recordings.WithLabelValues(result).Inc()
	}()

	if callback.CallSID == "" || callback.RecordingURL == "" {
		return "", ErrIncompleteCallback
	}

	logging.Logger.Info("[Archive] archiving call recording",
		zap.String("call_id", callback.CallSID),
		zap.String("recording_sid", callback.RecordingSID),
		zap.String("recording_status", callback.RecordingStatus),
		zap.String("recording_duration", callback.RecordingDuration),
	)

	data, err := recordingService.Fetcher.FetchRecording(ctx, callback.RecordingURL)
	if err != nil {
		return "", fmt.Errorf("fetch recording %s: %w", callback.RecordingSID, err)
	}

	key, err = recordingService.Uploader.Upload(ctx, data, ObjectKey(callback.CallSID), contentType)
	if err != nil {
		return "", fmt.Errorf("upload recording %s: %w", callback.RecordingSID, err)
	}

	err = recordingService.Store.SaveRecording(ctx, callback.CallSID, key)
	if err != nil {
		return "", fmt.Errorf("save recording key for call %s: %w", callback.CallSID, err)
	}

	logging.Logger.Info("[Archive] call recording archived",
		zap.String("call_id", callback.CallSID),
		zap.String("object_key", key),
		zap.Int("size", len(data)),
	)

	return key, nil
}
