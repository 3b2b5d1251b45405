package textgen

import (
	"fmt"
	"slices"
	"strings"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/dialogue"
)

const (
	clarifySystemPrompt   = "You clarify vague answers."
	summarizeSystemPrompt = "You are a summarization assistant."
)

func clarifyUserPrompt(vagueAnswer string) string {
	return fmt.Sprintf(
		"You are a rental inquiry assistant. The user gave a vague answer: %q.\n"+
			"Generate a polite clarification question to get more detail.",
		vagueAnswer,
	)
}

func summarizeUserPrompt(listing dialogue.ListingContext, answers map[string]string) string {
	name := listing.Title
	if name == "" {
		name = listing.Address
	}

	if name == "" {
		name = "Rental"
	}

	return fmt.Sprintf(
		"Summarize the following rental inquiry conversation into a short paragraph.\n"+
			"Do not list the questions. Focus only on the answers and key insights.\n\n"+
			"Listing: %s\nAnswers:\n%s",
		name,
		formatAnswers(answers),
	)
}

// formatAnswers renders answers one per line in question order.
func formatAnswers(answers map[string]string) string {
	questions := make([]string, 0, len(answers))
	for question := range answers {
		questions = append(questions, question)
	}

	slices.Sort(questions)

	var builder strings.Builder

	for _, question := range questions {
		fmt.Fprintf(&builder, "- %s: %s\n", question, answers[question])
	}

	return builder.String()
}
