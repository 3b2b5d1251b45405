package dialogue

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/logging"
	"go.uber.org/zap"
)

const (
	// MinAnswerLength is the trimmed length below which an answer needs clarifying.
	MinAnswerLength = 4

	FallbackListingName = "the rental"
	FallbackClarify     = "Sorry, could you tell me a bit more about that?"
	WrapupPrompt        = "Thank you for your time. I will summarize our conversation and follow up if needed."
)

// ListingContext is the part of a listing the dialogue refers to.
type ListingContext struct {
	Address string
	Title   string
}

func (listing ListingContext) Name() string {
	if listing.Address != "" {
		return listing.Address
	}

	if listing.Title != "" {
		return listing.Title
	}

	return FallbackListingName
}

// Clarifier produces a follow-up question for a vague answer.
type Clarifier interface {
	Clarify(ctx context.Context, vagueAnswer string) (string, error)
}

// Snapshot is everything needed to rehydrate a Machine.
type Snapshot struct {
	State     State
	Index     int
	Answers   map[string]string
	Questions []string
}

// Machine is rebuilt from a Snapshot on every turn and holds no other state.
type Machine struct {
	listing   ListingContext
	clarifier Clarifier
	state     State
	index     int
	answers   map[string]string
	questions []string
}

func Restore(listing ListingContext, snapshot Snapshot, clarifier Clarifier) *Machine {
	state := snapshot.State
	if state == "" {
		state = StateIntro
	}

	answers := make(map[string]string, len(snapshot.Answers))
	maps.Copy(answers, snapshot.Answers)

	return &Machine{
		listing:   listing,
		clarifier: clarifier,
		state:     state,
		index:     max(snapshot.Index, 0),
		answers:   answers,
		questions: slices.Clone(snapshot.Questions),
	}
}

func (machine *Machine) State() State {
	return machine.state
}

func (machine *Machine) Done() bool {
	return machine.state == StateEnd
}

func (machine *Machine) Snapshot() Snapshot {
	answers := make(map[string]string, len(machine.answers))
	maps.Copy(answers, machine.answers)

	return Snapshot{
		State:     machine.state,
		Index:     machine.index,
		Answers:   answers,
		Questions: slices.Clone(machine.questions),
	}
}

// HandleResponse applies one caller utterance.
func (machine *Machine) HandleResponse(text string) {
	switch machine.state {
	case StateIntro:
		machine.state = StateAsking
	case StateAsking:
		question, ok := machine.currentQuestion()
		if !ok {
			machine.state = StateWrapup
			return
		}

		machine.answers[question] = text

		if len(strings.TrimSpace(text)) < MinAnswerLength {
			machine.state = StateClarify
			return
		}

		machine.advance()
	case StateClarify:
		question, ok := machine.currentQuestion()
		if !ok {
			machine.state = StateWrapup
			return
		}

		machine.answers[question] = strings.TrimSpace(machine.answers[question] + " " + text)
		machine.advance()
	case StateWrapup:
		machine.state = StateEnd
	case StateEnd:
	}
}

// NextPrompt renders what the gateway should say for the current state.
// CLARIFY asks about the answer recorded for the current question.
func (machine *Machine) NextPrompt(ctx context.Context) string {
	switch machine.state {
	case StateIntro:
		return fmt.Sprintf(
			"Hi, I'm calling about %s. Do you have a moment to answer a few quick questions?",
			machine.listing.Name(),
		)
	case StateAsking:
		question, ok := machine.currentQuestion()
		if !ok {
			return WrapupPrompt
		}

		return question
	case StateClarify:
		question, _ := machine.currentQuestion()
		return machine.clarify(ctx, machine.answers[question])
	case StateWrapup:
		return WrapupPrompt
	default:
		return ""
	}
}

// Answers returns a copy of the recorded answers.
func (machine *Machine) Answers() map[string]string {
	answers := make(map[string]string, len(machine.answers))
	maps.Copy(answers, machine.answers)

	return answers
}

func (machine *Machine) clarify(ctx context.Context, vagueAnswer string) string {
	if machine.clarifier == nil {
		return FallbackClarify
	}

	question, err := machine.clarifier.Clarify(ctx, vagueAnswer)
	if err != nil {
		logging.Logger.Warn("[clarify] clarifier failed, using fallback",
			zap.String("error", err.Error()),
		)

		return FallbackClarify
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return FallbackClarify
	}

	return question
}

func (machine *Machine) currentQuestion() (string, bool) {
	if machine.index >= len(machine.questions) {
		return "", false
	}

	return machine.questions[machine.index], true
}

func (machine *Machine) advance() {
	machine.index++

	if machine.index >= len(machine.questions) {
		machine.state = StateWrapup
		return
	}

	machine.state = StateAsking
}
