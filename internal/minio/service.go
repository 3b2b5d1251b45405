package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	prometheusOutreach "git.mci.dev/mse/sre/phoenix/golang/outreach/internal/prometheus"
	"github.com/avast/retry-go"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var (
	ErrConvertToStringKey = errors.New("failed to convert result key to string")
	ErrConvertToBytes     = errors.New("failed to convert result to byte slice")
	ErrBucketNotFound     = errors.New("minio bucket does not exist")
)

// MinioClient stores call recordings in one bucket under PathPrefix.
type MinioClient struct {
	Client          *minio.Client
	CircuitBreaker  *gobreaker.CircuitBreaker[any]
	BucketName      string
	PathPrefix      string
	Timeout         time.Duration
	RetryAttempts   uint
	RetryBackoffMin time.Duration
	RetryBackoffMax time.Duration
}

func NewMinioClient(cfg *config.Config) (*MinioClient, error) {
	client, err := minio.New(cfg.MinioEndpointURL, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		logging.Logger.Error("[NewMinioClient] failed to initialize MinIO client",
			zap.String("endpoint", cfg.MinioEndpointURL),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("[NewMinioClient] MinIO client created",
		zap.String("endpoint", cfg.MinioEndpointURL),
		zap.String("bucket", cfg.MinioBucketName),
	)

	return &MinioClient{
		Client: client,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](circuitbreak.Settings(
			circuitbreak.MinioService,
			cfg.MinioIntervalCB,
			cfg.MinioConsecutiveFailuresCB,
		)),
		BucketName:      cfg.MinioBucketName,
		PathPrefix:      cfg.MinioPathPrefix,
		Timeout:         time.Duration(cfg.MinioTimeout) * time.Second,
		RetryAttempts:   max(cfg.MinioMaxRetryAttempts, 1),
		RetryBackoffMin: time.Duration(cfg.MinioRetryBackoffMinSeconds) * time.Second,
		RetryBackoffMax: time.Duration(cfg.MinioRetryBackoffMaxSeconds) * time.Second,
	}, nil
}

// Upload stores data under objectKey and returns the full object key.
func (minioClient *MinioClient) Upload(ctx context.Context, data []byte, objectKey, contentType string) (string, error) {
	logging.Logger.Info("[Upload] starting MinIO upload",
		zap.String("object_key", objectKey),
		zap.Int("size", len(data)),
	)

	result, err := minioClient.CircuitBreaker.Execute(func() (any, error) {
		return minioClient.doUpload(ctx, data, objectKey, contentType)
	})
	if err != nil {
		return "", err
	}

	key, ok := result.(string)
	if !ok {
		return "", ErrConvertToStringKey
	}

	return key, nil
}

func (minioClient *MinioClient) Download(ctx context.Context, objectKey string) ([]byte, error) {
	result, err := minioClient.CircuitBreaker.Execute(func() (any, error) {
		return minioClient.doDownload(ctx, objectKey)
	})
	if err != nil {
		return nil, err
	}

	data, ok := result.([]byte)
	if !ok {
		return nil, ErrConvertToBytes
	}

	return data, nil
}

// Ping checks that the bucket is reachable. It bypasses the breaker.
func (minioClient *MinioClient) Ping(ctx context.Context) error {
	exists, err := minioClient.Client.BucketExists(ctx, minioClient.BucketName)
	if err != nil {
		return err
	}

	if !exists {
		return ErrBucketNotFound
	}

	return nil
}

func (minioClient *MinioClient) doUpload(ctx context.Context, data []byte, objectKey, contentType string) (string, error) {
	timer := prometheus.NewTimer(prometheusOutreach.MinioOperationDuration.WithLabelValues("upload"))
	defer timer.ObserveDuration()

	key := minioClient.Key(objectKey)

	err := minioClient.withRetry(ctx, func(ctx context.Context) error {
		_, err := minioClient.Client.PutObject(
			ctx,
			minioClient.BucketName,
			key,
			bytes.NewReader(data),
			int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType},
		)

		return err
	})
	if err != nil {
		logging.Logger.Error("[doUpload] MinIO upload failed after all retry attempts",
			zap.String("object_key", key),
			zap.String("error", err.Error()),
		)

		return "", err
	}

	logging.Logger.Info("[doUpload] MinIO upload completed successfully", zap.String("object_key", key))

	return key, nil
}

func (minioClient *MinioClient) doDownload(ctx context.Context, objectKey string) ([]byte, error) {
	timer := prometheus.NewTimer(prometheusOutreach.MinioOperationDuration.WithLabelValues("download"))
	defer timer.ObserveDuration()

	var data []byte

	key := minioClient.Key(objectKey)

	err := minioClient.withRetry(ctx, func(ctx context.Context) error {
		object, err := minioClient.Client.GetObject(ctx, minioClient.BucketName, key, minio.GetObjectOptions{})
		if err != nil {
			return err
		}

		defer func() {
			cerr := object.Close()
			if cerr != nil {
				logging.Logger.Error("[doDownload] failed to close MinIO object reader",
					zap.String("object_key", key),
					zap.String("error", cerr.Error()),
				)
			}
		}()

		data, err = io.ReadAll(object)

		return err
	})
	if err != nil {
		logging.Logger.Error("[doDownload] MinIO download failed after all retry attempts",
			zap.String("object_key", key),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	return data, nil
}

func (minioClient *MinioClient) withRetry(ctx context.Context, operation func(context.Context) error) error {
	if minioClient.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, minioClient.Timeout)
		defer cancel()
	}

	return retry.Do(
		func() error {
			return operation(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(minioClient.RetryAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(minioClient.RetryBackoffMin),
		retry.MaxDelay(minioClient.RetryBackoffMax),
		retry.LastErrorOnly(true),
	)
}

// Key is the object key objectKey is stored under.
func (minioClient *MinioClient) Key(objectKey string) string {
	return path.Join(minioClient.PathPrefix, objectKey)
}
