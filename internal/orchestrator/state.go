package orchestrator

import "errors"

// State identifies where a turn is in its lifecycle. States advance
// monotonically except for the Reasoning/ToolDispatch cycle, which
// repeats until the model stops requesting tools or the iteration cap
// is reached.
type State int

const (
	// StateReasoning means the model is producing its next step.
	StateReasoning State = iota
	// StateRetrieving means the document index is being queried.
	StateRetrieving
	// StateToolDispatch means requested tool calls are executing.
	StateToolDispatch
	// StateFinalizing means the final answer is being persisted.
	StateFinalizing
	// StateFailed means the turn ended without a usable answer.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReasoning:
		return "reasoning"
	case StateRetrieving:
		return "retrieving"
	case StateToolDispatch:
		return "tool_dispatch"
	case StateFinalizing:
		return "finalizing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Turn-level failures callers can test with errors.Is.
var (
	// ErrEmptyInput rejects a turn with no user text.
	ErrEmptyInput = errors.New("orchestrator: empty input")

	// ErrTurnBudgetExceeded means the wall-clock budget for the turn
	// elapsed before an answer was produced.
	ErrTurnBudgetExceeded = errors.New("orchestrator: turn budget exceeded")

	// ErrToolIterationsExceeded means the model kept requesting tools
	// past the iteration cap.
	ErrToolIterationsExceeded = errors.New("orchestrator: tool iteration limit reached")

	// ErrModelUnavailable means the model could not be reached after
	// retries, or the circuit breaker refused the call.
	ErrModelUnavailable = errors.New("orchestrator: model unavailable")
)
