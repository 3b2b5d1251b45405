package kafka

import (
	"context"
	"sync"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// newSaramaConfig builds the client config shared by consumers and producers.
// SASL uses the configured SCRAM mechanism when enabled.
func newSaramaConfig(cfg *config.Config) *sarama.Config {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = sarama.V3_8_0_0

	if cfg.KafkaSASLEnabled {
		saramaCfg.Net.SASL.Enable = true
		saramaCfg.Net.SASL.Mechanism = sarama.SASLMechanism(cfg.KafkaSASLMechanism)
		saramaCfg.Net.SASL.User = cfg.KafkaUsername
		saramaCfg.Net.SASL.Password = cfg.KafkaPassword
		saramaCfg.Net.SASL.Handshake = true
		saramaCfg.Net.SASL.SCRAMClientGeneratorFunc = newSCRAMClientGenerator(cfg.KafkaSASLMechanism)
	}

	saramaCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
		sarama.NewBalanceStrategyRoundRobin(),
	}
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Consumer.Group.ResetInvalidOffsets = true
	saramaCfg.Consumer.Return.Errors = true

	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll

	return saramaCfg
}

func mechanism(cfg *config.Config) string {
	if cfg.KafkaSASLEnabled {
		return cfg.KafkaSASLMechanism
	}

	return "PLAINTEXT"
}

func createConsumerGroup(cfg *config.Config, groupID string) (sarama.ConsumerGroup, error) {
	client, err := sarama.NewConsumerGroup([]string{cfg.KafkaBootstrapServer}, groupID, newSaramaConfig(cfg))
	if err != nil {
		logging.Logger.Error("[createConsumerGroup] failed to create Kafka consumer group",
			zap.String("bootstrap", cfg.KafkaBootstrapServer),
			zap.String("group_id", groupID),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("[createConsumerGroup] connected to Kafka",
		zap.String("bootstrap", cfg.KafkaBootstrapServer),
		zap.String("group_id", groupID),
		zap.String("mechanism", mechanism(cfg)),
	)

	return client, nil
}

// runConsumerLoop rejoins the group after every rebalance until ctx is done.
func runConsumerLoop(
	ctx context.Context,
	client sarama.ConsumerGroup,
	topic string,
	handler sarama.ConsumerGroupHandler,
) {
	var waitGroup sync.WaitGroup

	waitGroup.Add(1)

	go func() {
		defer waitGroup.Done()

		topics := []string{topic}

		for {
			err := client.Consume(ctx, topics, handler)
			if err != nil {
				logging.Logger.Error("[runConsumerLoop] Kafka consume error",
					zap.String("topic", topic),
					zap.String("error", err.Error()),
				)
			}

			if ctx.Err() != nil {
				logging.Logger.Info("[runConsumerLoop] Kafka consumer stopping",
					zap.String("topic", topic),
					zap.String("error", ctx.Err().Error()),
				)

				return
			}
		}
	}()

	go func() {
		for err := range client.Errors() {
			logging.Logger.Error("[runConsumerLoop] Kafka consumer internal error",
				zap.String("topic", topic),
				zap.String("error", err.Error()),
			)
		}
	}()

	waitGroup.Wait()
}

// Ping connects to the bootstrap server and refreshes cluster metadata.
func Ping(cfg *config.Config) error {
	client, err := sarama.NewClient([]string{cfg.KafkaBootstrapServer}, newSaramaConfig(cfg))
	if err != nil {
		return err
	}

	defer func() {
		cerr := client.Close()
		if cerr != nil {
			logging.Logger.Warn("[Ping] failed to close Kafka client", zap.String("error", cerr.Error()))
		}
	}()

	return client.RefreshMetadata()
}
