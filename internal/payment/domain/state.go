package domain

// State is a payment lifecycle state.
type State string

const (
	StateCreated        State = "created"
	StateRequiresAction State = "requires_action"
	StateProcessing     State = "processing"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
	StateCanceled       State = "canceled"
)

// States lists every defined state in lifecycle order.
func States() []State {
	return []State{
		StateCreated,
		StateRequiresAction,
		StateProcessing,
		StateSucceeded,
		StateFailed,
		StateCanceled,
	}
}

func (s State) Valid() bool {
	switch s {
	case StateCreated, StateRequiresAction, StateProcessing, StateSucceeded, StateFailed, StateCanceled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition may leave s.
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCanceled:
		return true
	default:
		return false
	}
}

func (s State) String() string { return string(s) }

// Trigger is a state machine input derived from a verified processor event.
type Trigger string

const (
	TriggerRequireAction Trigger = "require_action"
	TriggerSubmit        Trigger = "submit"
	TriggerSucceed       Trigger = "succeed"
	TriggerFail          Trigger = "fail"
	TriggerCancel        Trigger = "cancel"
)

func (t Trigger) String() string { return string(t) }

// ClientTrigger is the subset of triggers client-facing code may request.
// None of them lead to a terminal state.
type ClientTrigger string

const (
	ClientTriggerRequiresAction ClientTrigger = "client_requires_action"
	ClientTriggerSubmitted      ClientTrigger = "client_submitted"
)

// PendingState is a non-terminal state reachable through a client transition.
// Its field is unexported, so the only values outside this package are
// PendingRequiresAction, PendingProcessing and the invalid zero value.
type PendingState struct {
	state State
}

var (
	PendingRequiresAction = PendingState{state: StateRequiresAction}
	PendingProcessing     = PendingState{state: StateProcessing}
)

func (p PendingState) State() State { return p.state }

// Valid is false for the zero value.
func (p PendingState) Valid() bool {
	return p.state == StateRequiresAction || p.state == StateProcessing
}

func (p PendingState) String() string { return string(p.state) }
