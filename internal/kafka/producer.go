package kafka

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/conversation"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type ProducerResult struct {
	Partition int32
	Offset    int64
}

// Producer publishes completed call results.
type Producer struct {
	Client         sarama.SyncProducer
	CircuitBreaker *gobreaker.CircuitBreaker[ProducerResult]
	Topic          string
}

func NewProducer(cfg *config.Config) (*Producer, error) {
	client, err := sarama.NewSyncProducer([]string{cfg.KafkaBootstrapServer}, newSaramaConfig(cfg))
	if err != nil {
		logging.Logger.Error("[NewProducer] failed to create Kafka producer",
			zap.String("bootstrap", cfg.KafkaBootstrapServer),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("[NewProducer] connected to Kafka producer",
		zap.String("bootstrap", cfg.KafkaBootstrapServer),
		zap.String("mechanism", mechanism(cfg)),
	)

	return newProducer(cfg, client), nil
}

func newProducer(cfg *config.Config, client sarama.SyncProducer) *Producer {
	settings := circuitbreak.Settings(
		circuitbreak.KafkaProducerService,
		cfg.KafkaIntervalCB,
		cfg.KafkaConsecutiveFailuresCB,
	)

	return &Producer{
		Client:         client,
		CircuitBreaker: gobreaker.NewCircuitBreaker[ProducerResult](settings),
		Topic:          cfg.KafkaResultTopic,
	}
}

// PublishResult sends result keyed by its call sid.
func (producer *Producer) PublishResult(_ context.Context, result conversation.CallResult) error {
	value, err := json.Marshal(result)
	if err != nil {
		return err
	}

	partition, offset, err := producer.SendMessage(producer.Topic, []byte(result.CallSID), value)
	if err != nil {
		return err
	}

	logging.Logger.Info("[PublishResult] call result published",
		zap.String("call_id", result.CallSID),
		zap.String("listing_id", result.ListingID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return nil
}

func (producer *Producer) SendMessage(topic string, key, value []byte) (int32, int64, error) {
	result, err := producer.CircuitBreaker.Execute(func() (ProducerResult, error) {
		return producer.doSendMessage(topic, key, value)
	})
	if err != nil {
		return 0, 0, err
	}

	return result.Partition, result.Offset, nil
}

func (producer *Producer) Close() error {
	err := producer.Client.Close()
	if err != nil {
		logging.Logger.Error("[Close] failed to close Kafka producer", zap.String("error", err.Error()))
		return err
	}

	logging.Logger.Info("[Close] Kafka producer closed successfully")

	return nil
}

func (producer *Producer) doSendMessage(topic string, key, value []byte) (ProducerResult, error) {
	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err := producer.Client.SendMessage(message)
	if err != nil {
		logging.Logger.Error("[doSendMessage] failed to send message to Kafka",
			zap.String("topic", topic),
			zap.String("error", err.Error()),
		)

		return ProducerResult{}, err
	}

	logging.Logger.Debug("[doSendMessage] message sent successfully",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return ProducerResult{Partition: partition, Offset: offset}, nil
}
