package voice

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
)

const (
	VoicePath     = "/twilio/voice"
	RecordingPath = "/twilio/recording"

	// GatheredParam marks webhooks sent by a finished <Gather>, so a turn
	// without SpeechResult can be told apart from the call being answered.
	GatheredParam = "gathered"
	GatherPath    = VoicePath + "?" + GatheredParam + "=1"
)

// Gateway places and ends outbound calls. callbackPath is the route the
// gateway requests for every dialogue turn.
type Gateway interface {
	PlaceCall(ctx context.Context, destination, callbackPath string) (string, error)
	Hangup(ctx context.Context, callID string) error
}

// NewGateway picks the variant named by VOICE_PROVIDER.
func NewGateway(cfg *config.Config) Gateway {
	if cfg.VoiceProvider == config.VoiceProviderLog {
		return NewLogGateway()
	}

	return NewTwilioGateway(cfg)
}
