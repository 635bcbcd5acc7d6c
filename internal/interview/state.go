// Package interview runs the turn-based interview state machine.
//
// Every user message is one turn: the session is loaded, the message is
// classified into an intent, and a chain of steps (consult, generate,
// evaluate, feedback, report) runs until the machine either waits for the
// next message or terminates. Collaborators that talk to a language model
// sit behind the small interfaces in collaborators.go; their failures
// degrade a turn but never fail it.
package interview

import "strings"

// State is a node of the turn state machine.
type State string

const (
	StateLoading     State = "LOADING"
	StateRouting     State = "ROUTING"
	StateConsulting  State = "CONSULTING"
	StateGenerating  State = "GENERATING"
	StateEvaluating  State = "EVALUATING"
	StateFeedingBack State = "FEEDING_BACK"
	StateReporting   State = "REPORTING"
	StateTerminated  State = "TERMINATED"
)

// Intent is the classified purpose of a user message.
type Intent string

const (
	IntentAnswer       Intent = "ANSWER"
	IntentNextQuestion Intent = "NEXT_QUESTION"
	IntentChangeTopic  Intent = "CHANGE_TOPIC"
	IntentConsult      Intent = "CONSULT"
	IntentQuit         Intent = "QUIT"
)

// ParseIntent maps a classifier label onto the closed intent set.
func ParseIntent(s string) (Intent, bool) {
	switch Intent(strings.ToUpper(strings.TrimSpace(s))) {
	case IntentAnswer:
		return IntentAnswer, true
	case IntentNextQuestion:
		return IntentNextQuestion, true
	case IntentChangeTopic:
		return IntentChangeTopic, true
	case IntentConsult:
		return IntentConsult, true
	case IntentQuit:
		return IntentQuit, true
	}
	return "", false
}

// NextState is the transition out of ROUTING. An answer with no open
// question is treated as a request for one.
func NextState(intent Intent, hasActive bool) State {
	switch intent {
	case IntentAnswer:
		if hasActive {
			return StateEvaluating
		}
		return StateGenerating
	case IntentNextQuestion, IntentChangeTopic:
		return StateGenerating
	case IntentQuit:
		return StateReporting
	default:
		return StateConsulting
	}
}
