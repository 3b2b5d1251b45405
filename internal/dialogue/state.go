package dialogue

import "errors"

type State string

const (
	StateIntro   State = "INTRO"
	StateAsking  State = "ASKING"
	StateClarify State = "CLARIFY"
	StateWrapup  State = "WRAPUP"
	StateEnd     State = "END"
)

var ErrUnknownState = errors.New("unknown dialogue state")

// ParseState accepts the persisted state name. An empty name is INTRO.
func ParseState(name string) (State, error) {
	switch State(name) {
	case "":
		return StateIntro, nil
	case StateIntro, StateAsking, StateClarify, StateWrapup, StateEnd:
		return State(name), nil
	default:
		return "", ErrUnknownState
	}
}

func (s State) String() string {
	return string(s)
}
