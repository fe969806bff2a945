package domain

import "time"

// NormalizedEvent is a verified processor event reduced to the fields the
// lifecycle cares about.
type NormalizedEvent struct {
	ProcessorEventID  string
	ProcessorIntentID string
	EventType         string
	OccurredAt        time.Time

	// ObjectStatus is the processor-side object status carried in the payload,
	// used to disambiguate event types.
	ObjectStatus  string
	FailureReason string
	RawPayload    []byte
}

// Route is the router's decision for a normalized event.
type Route struct {
	Trigger           Trigger
	ProcessorIntentID string
	FailureReason     string
}

// Transition describes a state change for audit and logging.
type Transition struct {
	From State
	To   State
}

func (t Transition) String() string {
	return string(t.From) + "->" + string(t.To)
}
