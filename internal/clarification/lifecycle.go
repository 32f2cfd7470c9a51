package clarification

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Lifecycle states.
const (
	StateIdle             = "idle"
	StateAwaitingResponse = "awaiting_response"
)

// Lifecycle events.
const (
	EventAsk     = "ask"
	EventResolve = "resolve"
	EventSkip    = "skip"
	EventAbandon = "abandon"
)

var (
	// ErrClarificationPending is returned when a second clarification is asked
	// while one is still awaiting a response.
	ErrClarificationPending = errors.New("a clarification is already pending")
	// ErrNoClarification is returned when closing a clarification that isn't open.
	ErrNoClarification = errors.New("no clarification is pending")
)

type lifecycleContext struct {
	UserID string
}

// Lifecycle is the per-conversation clarification state machine. It is
// rebuilt on each turn from whether the pending slot is occupied.
type Lifecycle struct {
	interpreter *statekit.Interpreter[lifecycleContext]
}

// NewLifecycle starts a machine in awaiting_response when pending is true,
// idle otherwise.
func NewLifecycle(userID string, pending bool) (*Lifecycle, error) {
	initial := StateIdle
	if pending {
		initial = StateAwaitingResponse
	}

	builder := statekit.NewMachine[lifecycleContext]("clarification-lifecycle").
		WithInitial(statekit.StateID(initial)).
		WithContext(lifecycleContext{UserID: userID})

	builder.State(StateIdle).
		On(EventAsk).Target(StateAwaitingResponse).
		Done()

	builder.State(StateAwaitingResponse).
		On(EventResolve).Target(StateIdle).
		On(EventSkip).Target(StateIdle).
		On(EventAbandon).Target(StateIdle).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build clarification lifecycle: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	return &Lifecycle{interpreter: interpreter}, nil
}

// Transition applies event, or explains why it isn't allowed in the current state.
func (l *Lifecycle) Transition(event string) error {
	before := l.Current()
	l.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	if l.Current() != before {
		return nil
	}

	switch {
	case event == EventAsk && before == StateAwaitingResponse:
		return ErrClarificationPending
	case before == StateIdle:
		return fmt.Errorf("%s: %w", event, ErrNoClarification)
	default:
		return fmt.Errorf("event %q is not allowed in state %q", event, before)
	}
}

// Current returns the current state name.
func (l *Lifecycle) Current() string {
	return string(l.interpreter.State().Value)
}

// Awaiting reports whether a clarification is outstanding.
func (l *Lifecycle) Awaiting() bool {
	return l.Current() == StateAwaitingResponse
}
