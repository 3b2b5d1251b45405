package voice

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogGateway never dials. It hands out call ids so the rest of the flow can
// be driven by posting webhooks by hand.
type LogGateway struct{}

func NewLogGateway() *LogGateway {
	return &LogGateway{}
}

func (*LogGateway) PlaceCall(_ context.Context, destination, callbackPath string) (string, error) {
	callID := "LG" + uuid.NewString()

	logging.Logger.Info("[PlaceCall] log gateway placed call",
		zap.String("call_id", callID),
		zap.String("destination", destination),
		zap.String("callback_path", callbackPath),
	)

	return callID, nil
}

func (*LogGateway) Hangup(_ context.Context, callID string) error {
	logging.Logger.Info("[Hangup] log gateway hung up call", zap.String("call_id", callID))
	return nil
}
