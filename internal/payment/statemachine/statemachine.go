// Package statemachine holds the payment lifecycle transition table.
// Everything here is pure; nothing touches storage.
package statemachine

import (
	"github.com/smallbiznis/payflow/internal/payment/domain"
)

type edge struct {
	from    domain.State
	trigger domain.Trigger
}

var transitions = map[edge]domain.State{
	{domain.StateCreated, domain.TriggerRequireAction}: domain.StateRequiresAction,
	{domain.StateCreated, domain.TriggerSubmit}:        domain.StateProcessing,
	{domain.StateRequiresAction, domain.TriggerSubmit}: domain.StateProcessing,
	{domain.StateRequiresAction, domain.TriggerFail}:   domain.StateFailed,
	{domain.StateProcessing, domain.TriggerSucceed}:    domain.StateSucceeded,
	{domain.StateProcessing, domain.TriggerFail}:       domain.StateFailed,
	{domain.StateCreated, domain.TriggerCancel}:        domain.StateCanceled,
	{domain.StateRequiresAction, domain.TriggerCancel}: domain.StateCanceled,
	{domain.StateProcessing, domain.TriggerCancel}:     domain.StateCanceled,
}

// AttemptTransition returns the state reached from current by trigger, or a
// *domain.TransitionError when the pair is not in the table. Skipping an
// unobserved intermediate state is never legal.
func AttemptTransition(current domain.State, trigger domain.Trigger) (domain.State, error) {
	if !current.Valid() {
		return "", domain.ErrInvalidState
	}
	next, ok := transitions[edge{from: current, trigger: trigger}]
	if !ok {
		return "", &domain.TransitionError{From: current, Trigger: trigger}
	}
	return next, nil
}

// AttemptClientTransition is the client-facing entry. Client triggers only
// translate to non-terminal targets, so the result is always a PendingState.
func AttemptClientTransition(current domain.State, trigger domain.ClientTrigger) (domain.PendingState, error) {
	var t domain.Trigger
	switch trigger {
	case domain.ClientTriggerRequiresAction:
		t = domain.TriggerRequireAction
	case domain.ClientTriggerSubmitted:
		t = domain.TriggerSubmit
	default:
		return domain.PendingState{}, &domain.TransitionError{From: current, Trigger: domain.Trigger(trigger)}
	}

	next, err := AttemptTransition(current, t)
	if err != nil {
		return domain.PendingState{}, err
	}
	switch next {
	case domain.StateRequiresAction:
		return domain.PendingRequiresAction, nil
	case domain.StateProcessing:
		return domain.PendingProcessing, nil
	default:
		return domain.PendingState{}, &domain.TransitionError{From: current, Trigger: t}
	}
}

// ClientTarget reports the state a client trigger aims at.
func ClientTarget(trigger domain.ClientTrigger) (domain.State, bool) {
	switch trigger {
	case domain.ClientTriggerRequiresAction:
		return domain.StateRequiresAction, true
	case domain.ClientTriggerSubmitted:
		return domain.StateProcessing, true
	default:
		return "", false
	}
}

// Rule is one row of the transition table.
type Rule struct {
	From    domain.State
	Trigger domain.Trigger
	To      domain.State
}

// LegalTransitions enumerates the table in a stable order.
func LegalTransitions() []Rule {
	triggers := []domain.Trigger{
		domain.TriggerRequireAction,
		domain.TriggerSubmit,
		domain.TriggerSucceed,
		domain.TriggerFail,
		domain.TriggerCancel,
	}
	rules := make([]Rule, 0, len(transitions))
	for _, from := range domain.States() {
		for _, trigger := range triggers {
			if to, ok := transitions[edge{from: from, trigger: trigger}]; ok {
				rules = append(rules, Rule{From: from, Trigger: trigger, To: to})
			}
		}
	}
	return rules
}
