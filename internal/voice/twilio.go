package voice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var (
	ErrTwilioRequest     = errors.New("twilio request failed")
	ErrTwilioServerError = errors.New("twilio server error")
	ErrEmptyCallSID      = errors.New("twilio returned no call sid")
	ErrRecordingTooLarge = errors.New("recording exceeds size limit")
)

type twilioCall struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type TwilioGateway struct {
	Client           *resty.Client
	CircuitBreaker   *gobreaker.CircuitBreaker[*resty.Response]
	AccountSID       string
	CallerID         string
	PublicBaseURL    string
	MaxRecordingSize int64
	RetryAttempts    uint
	RetryBackoffMin  time.Duration
	RetryBackoffMax  time.Duration
}

func NewTwilioGateway(cfg *config.Config) *TwilioGateway {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.TwilioBaseURL, "/")).
		SetBasicAuth(cfg.TwilioAccountSID, cfg.TwilioAuthToken).
		SetTimeout(time.Duration(cfg.TwilioTimeout) * time.Second)
	client.JSONMarshal = json.Marshal
	client.JSONUnmarshal = json.Unmarshal

	cbSettings := circuitbreak.Settings(
		circuitbreak.TwilioService,
		cfg.TwilioIntervalCB,
		cfg.TwilioConsecutiveFailuresCB,
	)
	cbSettings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrTwilioRequest)
	}

	return &TwilioGateway{
		Client:           client,
		CircuitBreaker:   gobreaker.NewCircuitBreaker[*resty.Response](cbSettings),
		AccountSID:       cfg.TwilioAccountSID,
		CallerID:         cfg.TwilioCallerID,
		PublicBaseURL:    strings.TrimRight(cfg.PublicBaseURL, "/"),
		MaxRecordingSize: cfg.TwilioMaxRecordingSize,
		RetryAttempts:    max(cfg.TwilioRetryMaxAttempts, 1),
		RetryBackoffMin:  time.Duration(cfg.TwilioRetryBackoffMin) * time.Second,
		RetryBackoffMax:  time.Duration(cfg.TwilioRetryBackoffMax) * time.Second,
	}
}

func (twilioGateway *TwilioGateway) callsPath() string {
	return fmt.Sprintf("/2010-04-01/Accounts/%s/Calls.json", twilioGateway.AccountSID)
}

func (twilioGateway *TwilioGateway) callPath(callID string) string {
	return fmt.Sprintf("/2010-04-01/Accounts/%s/Calls/%s.json", twilioGateway.AccountSID, callID)
}

// PlaceCall dials destination once. The call is recorded and Twilio reports
// the finished recording to RecordingPath.
func (twilioGateway *TwilioGateway) PlaceCall(ctx context.Context, destination, callbackPath string) (string, error) {
	var call twilioCall

	resp, err := twilioGateway.execute(func() (*resty.Response, error) {
		return twilioGateway.Client.R().
			SetContext(ctx).
			SetFormData(map[string]string{
				"To":                            destination,
				"From":                          twilioGateway.CallerID,
				"Url":                           twilioGateway.PublicBaseURL + callbackPath,
				"Method":                        http.MethodPost,
				"Record":                        "true",
				"RecordingStatusCallback":       twilioGateway.PublicBaseURL + RecordingPath,
				"RecordingStatusCallbackMethod": http.MethodPost,
			}).
			SetResult(&call).
			Post(twilioGateway.callsPath())
	})
	if err != nil {
		logging.Logger.Error("[PlaceCall] twilio call creation failed",
			zap.String("destination", destination),
			zap.String("error", err.Error()),
		)

		return "", err
	}

	if call.SID == "" {
		return "", ErrEmptyCallSID
	}

	logging.Logger.Info("[PlaceCall] twilio call created",
		zap.String("call_id", call.SID),
		zap.String("status", call.Status),
		zap.Int("status_code", resp.StatusCode()),
	)

	return call.SID, nil
}

func (twilioGateway *TwilioGateway) Hangup(ctx context.Context, callID string) error {
	return twilioGateway.withRetry(ctx, func() error {
		_, err := twilioGateway.execute(func() (*resty.Response, error) {
			return twilioGateway.Client.R().
				SetContext(ctx).
				SetFormData(map[string]string{"Status": "completed"}).
				Post(twilioGateway.callPath(callID))
		})

		return err
	})
}

// FetchRecording downloads a finished recording as mp3.
func (twilioGateway *TwilioGateway) FetchRecording(ctx context.Context, recordingURL string) ([]byte, error) {
	var body []byte

	err := twilioGateway.withRetry(ctx, func() error {
		resp, err := twilioGateway.execute(func() (*resty.Response, error) {
			return twilioGateway.Client.R().
				SetContext(ctx).
				Get(recordingURL + ".mp3")
		})
		if err != nil {
			return err
		}

		body = resp.Body()

		return nil
	})
	if err != nil {
		return nil, err
	}

	if twilioGateway.MaxRecordingSize > 0 && int64(len(body)) > twilioGateway.MaxRecordingSize {
		return nil, ErrRecordingTooLarge
	}

	return body, nil
}

// execute runs a request behind the breaker and maps status codes to errors.
// Only server side failures count against the breaker.
func (twilioGateway *TwilioGateway) execute(request func() (*resty.Response, error)) (*resty.Response, error) {
	return twilioGateway.CircuitBreaker.Execute(func() (*resty.Response, error) {
		resp, err := request()
		if err != nil {
			return nil, err
		}

		if resp.StatusCode() >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: status %d", ErrTwilioServerError, resp.StatusCode())
		}

		if resp.IsError() {
			return nil, fmt.Errorf("%w: status %d: %s", ErrTwilioRequest, resp.StatusCode(), resp.String())
		}

		return resp, nil
	})
}

func (twilioGateway *TwilioGateway) withRetry(ctx context.Context, operation func() error) error {
	return retry.Do(
		func() error {
			if ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}

			err := operation()
			if errors.Is(err, ErrTwilioRequest) {
				return retry.Unrecoverable(err)
			}

			return err
		},
		retry.Attempts(twilioGateway.RetryAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(twilioGateway.RetryBackoffMin),
		retry.MaxDelay(twilioGateway.RetryBackoffMax),
		retry.LastErrorOnly(true),
	)
}

// Ping fetches the account resource without going through the breaker.
func (twilioGateway *TwilioGateway) Ping(ctx context.Context) error {
	resp, err := twilioGateway.Client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/2010-04-01/Accounts/%s.json", twilioGateway.AccountSID))
	if err != nil {
		return err
	}

	if resp.IsError() {
		return fmt.Errorf("%w: status %d", ErrTwilioRequest, resp.StatusCode())
	}

	return nil
}
