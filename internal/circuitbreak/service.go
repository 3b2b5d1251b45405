package circuitbreak

import (
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	DBService            = "database"
	TwilioService        = "twilio"
	OpenAIService        = "openai"
	MinioService         = "minio"
	RedisService         = "redis"
	KafkaProducerService = "kafka_producer"
)

const chanSize = 16

var CircuitBreakChan = make(chan string, chanSize)

// TriggerError reports an opened breaker. Reports are dropped while the
// channel is full, since the health checker only tracks the degraded set.
func TriggerError(service string) {
	select {
	case CircuitBreakChan <- service:
	default:
		logging.Logger.Warn("[TriggerError] circuit break channel full", zap.String("service", service))
	}
}

// Settings builds breaker settings that trip after consecutiveFailures and
// report the open state to the health checker.
func Settings(service string, interval, consecutiveFailures uint32) gobreaker.Settings {
	return gobreaker.Settings{
		Name:     service,
		Interval: time.Duration(interval) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			willTrip := counts.ConsecutiveFailures >= consecutiveFailures

			if willTrip {
				logging.Logger.Error("[ReadyToTrip] circuit breaker about to trip",
					zap.String("service", service),
					zap.Uint32("total_requests", counts.Requests),
					zap.Uint32("total_successes", counts.TotalSuccesses),
					zap.Uint32("total_failures", counts.TotalFailures),
					zap.Uint32("consecutive_failures", counts.ConsecutiveFailures),
					zap.Uint32("threshold", consecutiveFailures),
				)
			}

			return willTrip
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Error("[OnStateChange] circuit breaker state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				TriggerError(service)
			}
		},
	}
}
