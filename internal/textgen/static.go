package textgen

import (
	"context"
	"strings"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dialogue"
)

// StaticClient answers without a model, for local runs.
type StaticClient struct{}

func (StaticClient) Clarify(context.Context, string) (string, error) {
	return dialogue.FallbackClarify, nil
}

func (StaticClient) Summarize(_ context.Context, listing dialogue.ListingContext, answers map[string]string) (string, error) {
	return "Call about " + listing.Name() + ".\n" + strings.TrimSpace(formatAnswers(answers)), nil
}
