package healthchecker

import (
	"bytes"
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/minio"
	"go.uber.org/zap"
)

const testFileKey = "healthcheck/ping.txt"

var (
	testFile                = []byte("healthchecker ping")
	ErrHealthObjectMismatch = errors.New("health object content mismatch")
)

// MinioChecker writes and reads back a small object.
func MinioChecker(minioClient *minio.MinioClient) Checker {
	return func(ctx context.Context) error {
		_, err := minioClient.Upload(ctx, testFile, testFileKey, "text/plain")
		if err != nil {
			logging.Logger.Warn("[MinioChecker] health object upload failed", zap.String("error", err.Error()))
			return err
		}

		data, err := minioClient.Download(ctx, testFileKey)
		if err != nil {
			return err
		}

		if !bytes.Equal(data, testFile) {
			return ErrHealthObjectMismatch
		}

		return nil
	}
}
