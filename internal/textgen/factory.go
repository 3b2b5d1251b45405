package textgen

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dialogue"
)

// Generator provides both dialogue collaborators.
type Generator interface {
	dialogue.Clarifier
	Summarize(ctx context.Context, listing dialogue.ListingContext, answers map[string]string) (string, error)
}

// New picks the variant named by TEXTGEN_PROVIDER.
func New(cfg *config.Config) Generator {
	if cfg.TextGenProvider == config.TextGenProviderStatic {
		return StaticClient{}
	}

	return NewOpenAIClient(cfg)
}
