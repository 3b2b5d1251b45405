package healthchecker

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/kafka"
)

func KafkaProducerChecker(cfg *config.Config) Checker {
	return func(context.Context) error {
		return kafka.Ping(cfg)
	}
}
