package kafka

import (
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/batch"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/IBM/sarama"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

type MessageHandler func(context.Context, *sarama.ConsumerMessage)

// Consumer reads batch requests from the batch topic.
type Consumer struct {
	Client sarama.ConsumerGroup
	Topic  string
}

func NewConsumer(cfg *config.Config) (*Consumer, error) {
	client, err := createConsumerGroup(cfg, cfg.KafkaBatchGroupID)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		Client: client,
		Topic:  cfg.KafkaBatchTopic,
	}, nil
}

// Consume blocks until ctx is done.
func (consumer *Consumer) Consume(ctx context.Context, messageHandler MessageHandler) error {
	runConsumerLoop(ctx, consumer.Client, consumer.Topic, &consumerGroupHandler{messageHandler: messageHandler})

	return nil
}

func (consumer *Consumer) Close() error {
	err := consumer.Client.Close()
	if err != nil {
		logging.Logger.Error("[Close] failed to close Kafka consumer", zap.String("error", err.Error()))
		return err
	}

	logging.Logger.Info("[Close] Kafka consumer closed successfully")

	return nil
}

type consumerGroupHandler struct {
	messageHandler MessageHandler
}

func (*consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (*consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (handler *consumerGroupHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			handler.messageHandler(session.Context(), message)

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

type CallStarter interface {
	StartCalls(ctx context.Context, searchID string, userQuestions []string) (int, error)
}

// NewBatchHandler decodes batch requests and starts their calls. Malformed
// messages and searches without listings are logged and skipped.
func NewBatchHandler(starter CallStarter) MessageHandler {
	validate := validator.New()

	return func(ctx context.Context, message *sarama.ConsumerMessage) {
		var request batch.Request

		err := json.Unmarshal(message.Value, &request)
		if err == nil {
			err = validate.Struct(request)
		}

		if err != nil {
			logging.Logger.Error("[BatchHandler] invalid batch request",
				zap.Int32("partition", message.Partition),
				zap.Int64("offset", message.Offset),
				zap.ByteString("msg_value", message.Value),
				zap.String("error", err.Error()),
			)

			return
		}

		scheduled, err := starter.StartCalls(ctx, request.SearchID, request.UserQuestions)
		if err != nil {
			level := logging.Logger.Error
			if errors.Is(err, batch.ErrNoListings) {
				level = logging.Logger.Warn
			}

			level("[BatchHandler] failed to start calls",
				zap.String("search_id", request.SearchID),
				zap.String("error", err.Error()),
			)

			return
		}

		logging.Logger.Info("[BatchHandler] batch request scheduled",
			zap.String("search_id", request.SearchID),
			zap.Int("scheduled", scheduled),
			zap.Int64("offset", message.Offset),
		)
	}
}
