package recording

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	urls []string
	err  error
}

func (fake *fakeFetcher) FetchRecording(_ context.Context, recordingURL string) ([]byte, error) {
	fake.urls = append(fake.urls, recordingURL)
	return []byte("mp3"), fake.err
}

type fakeUploader struct {
	keys         []string
	contentTypes []string
}

func (fake *fakeUploader) Upload(_ context.Context, _ []byte, objectKey, contentType string) (string, error) {
	fake.keys = append(fake.keys, objectKey)
	fake.contentTypes = append(fake.contentTypes, contentType)

	return "recordings/" + objectKey, nil
}

type fakeStore struct {
	saved map[string]string
}

func (fake *fakeStore) SaveRecording(_ context.Context, callID, recordingKey string) error {
	fake.saved[callID] = recordingKey
	return nil
}

func TestArchiveStoresRecording(t *testing.T) {
	fetcher := &fakeFetcher{}
	uploader := &fakeUploader{}
	store := &fakeStore{saved: map[string]string{}}
	service := NewService(fetcher, uploader, store)

	key, err := service.Archive(context.Background(), Callback{
		CallSID:      "CA1",
		RecordingSID: "RE1",
		RecordingURL: "https://api.twilio.com/2010-04-01/Accounts/AC1/Recordings/RE1",
	})
	require.NoError(t, err)

	assert.Equal(t, "recordings/CA1.mp3", key)
	assert.Equal(t, []string{"https://api.twilio.com/2010-04-01/Accounts/AC1/Recordings/RE1"}, fetcher.urls)
	assert.Equal(t, []string{"CA1.mp3"}, uploader.keys)
	assert.Equal(t, []string{"audio/mpeg"}, uploader.contentTypes)
	assert.Equal(t, map[string]string{"CA1": "recordings/CA1.mp3"}, store.saved)
}

func TestArchiveRejectsIncompleteCallback(t *testing.T) {
	service := NewService(&fakeFetcher{}, &fakeUploader{}, &fakeStore{saved: map[string]string{}})

	_, err := service.Archive(context.Background(), Callback{CallSID: "CA1"})
	require.ErrorIs(t, err, ErrIncompleteCallback)
}

func TestArchiveStopsOnFetchError(t *testing.T) {
	uploader := &fakeUploader{}
	service := NewService(&fakeFetcher{err: errors.New("gone")}, uploader, &fakeStore{saved: map[string]string{}})

	_, err := service.Archive(context.Background(), Callback{CallSID: "CA1", RecordingURL: "https://x/RE1"})
	require.Error(t, err)
	assert.Empty(t, uploader.keys)
}
