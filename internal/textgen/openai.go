package textgen

import (
	"context"
	"errors"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dialogue"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/avast/retry-go"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var ErrEmptyCompletion = errors.New("completion returned no content")

type completionParams struct {
	system      string
	user        string
	temperature float64
	maxTokens   int64
}

// OpenAIClient implements Clarifier and Summarizer with chat completions.
type OpenAIClient struct {
	Client             *openai.Client
	CircuitBreaker     *gobreaker.CircuitBreaker[string]
	Model              string
	ClarifyTemperature float64
	ClarifyMaxTokens   int64
	SummaryTemperature float64
	SummaryMaxTokens   int64
	RetryAttempts      uint
	RetryMinBackoff    time.Duration
	RetryMaxBackoff    time.Duration
}

func NewOpenAIClient(cfg *config.Config) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.OpenAIAPIKey),
		option.WithBaseURL(cfg.OpenAIBaseURL),
		option.WithRequestTimeout(time.Duration(cfg.OpenAITimeout) * time.Second),
		option.WithMaxRetries(0),
	}

	client := openai.NewClient(opts...)

	return &OpenAIClient{
		Client: &client,
		CircuitBreaker: gobreaker.NewCircuitBreaker[string](circuitbreak.Settings(
			circuitbreak.OpenAIService,
			cfg.OpenAIIntervalCB,
			cfg.OpenAIConsecutiveFailuresCB,
		)),
		Model:              cfg.OpenAIModel,
		ClarifyTemperature: cfg.ClarifyTemperature,
		ClarifyMaxTokens:   cfg.ClarifyMaxTokens,
		SummaryTemperature: cfg.SummaryTemperature,
		SummaryMaxTokens:   cfg.SummaryMaxTokens,
		RetryAttempts:      max(cfg.OpenAIRetryMaxAttempts, 1),
		RetryMinBackoff:    time.Duration(cfg.OpenAIRetryMinBackoff) * time.Second,
		RetryMaxBackoff:    time.Duration(cfg.OpenAIRetryMaxBackoff) * time.Second,
	}
}

func (openAIClient *OpenAIClient) Clarify(ctx context.Context, vagueAnswer string) (string, error) {
	return openAIClient.complete(ctx, completionParams{
		system:      clarifySystemPrompt,
		user:        clarifyUserPrompt(vagueAnswer),
		temperature: openAIClient.ClarifyTemperature,
		maxTokens:   openAIClient.ClarifyMaxTokens,
	})
}

func (openAIClient *OpenAIClient) Summarize(
	ctx context.Context,
	listing dialogue.ListingContext,
	answers map[string]string,
) (string, error) {
	return openAIClient.complete(ctx, completionParams{
		system:      summarizeSystemPrompt,
		user:        summarizeUserPrompt(listing, answers),
		temperature: openAIClient.SummaryTemperature,
		maxTokens:   openAIClient.SummaryMaxTokens,
	})
}

func (openAIClient *OpenAIClient) complete(ctx context.Context, params completionParams) (string, error) {
	return openAIClient.CircuitBreaker.Execute(func() (string, error) {
		var content string

		err := retry.Do(
			func() error {
				if ctx.Err() != nil {
					return retry.Unrecoverable(ctx.Err())
				}

				var err error

				content, err = openAIClient.doCompletion(ctx, params)

				return err
			},
			retry.Attempts(openAIClient.RetryAttempts),
			retry.DelayType(retry.BackOffDelay),
			retry.Delay(openAIClient.RetryMinBackoff),
			retry.MaxDelay(openAIClient.RetryMaxBackoff),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			logging.Logger.Error("[complete] completion failed after all retry attempts",
				zap.String("model", openAIClient.Model),
				zap.String("error", err.Error()),
			)

			return "", err
		}

		return content, nil
	})
}

func (openAIClient *OpenAIClient) doCompletion(ctx context.Context, params completionParams) (string, error) {
	resp, err := openAIClient.Client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(openAIClient.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(params.system),
			openai.UserMessage(params.user),
		},
		Temperature: openai.Float(params.temperature),
		MaxTokens:   openai.Int(params.maxTokens),
	})
	if err != nil {
		logging.Logger.Warn("[doCompletion] completion request failed", zap.String("error", err.Error()))
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}

	return content, nil
}

// Ping looks up the configured model without going through the breaker.
func (openAIClient *OpenAIClient) Ping(ctx context.Context) error {
	_, err := openAIClient.Client.Models.Get(ctx, openAIClient.Model)
	return err
}
