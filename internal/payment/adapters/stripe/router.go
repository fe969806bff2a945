package stripe

import (
	"context"
	"strings"

	"github.com/smallbiznis/payflow/internal/payment/domain"
	stripe "github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
)

type mapping struct {
	trigger domain.Trigger
	// statuses the payment intent may carry for this event; empty accepts any.
	statuses []string
	// when set, the mapping only applies if the status is present and listed.
	requireStatus bool
}

var routes = map[stripe.EventType]mapping{
	stripe.EventTypePaymentIntentRequiresAction: {
		trigger:  domain.TriggerRequireAction,
		statuses: []string{"requires_action"},
	},
	stripe.EventTypePaymentIntentProcessing: {
		trigger:  domain.TriggerSubmit,
		statuses: []string{"processing"},
	},
	stripe.EventTypePaymentIntentAmountCapturableUpdated: {
		trigger:       domain.TriggerSubmit,
		statuses:      []string{"requires_capture"},
		requireStatus: true,
	},
	stripe.EventTypePaymentIntentSucceeded: {
		trigger:  domain.TriggerSucceed,
		statuses: []string{"succeeded"},
	},
	stripe.EventTypePaymentIntentPaymentFailed: {
		trigger:  domain.TriggerFail,
		statuses: []string{"requires_payment_method", "requires_action", "canceled"},
	},
	stripe.EventTypePaymentIntentCanceled: {
		trigger:  domain.TriggerCancel,
		statuses: []string{"canceled"},
	},
}

// Router maps Stripe event types onto lifecycle triggers.
type Router struct {
	log *zap.Logger
}

func NewRouter(log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{log: log.Named("payment.router")}
}

// Route resolves the trigger for event. Unrelated event types and events whose
// payload contradicts their type are acknowledged as no-ops.
func (r *Router) Route(ctx context.Context, event *domain.NormalizedEvent) (domain.Route, bool) {
	if event == nil {
		return domain.Route{}, false
	}
	m, ok := routes[stripe.EventType(event.EventType)]
	if !ok {
		r.log.Debug("ignoring unrelated event type",
			zap.String("event_type", event.EventType),
			zap.String("processor_event_id", event.ProcessorEventID),
		)
		return domain.Route{}, false
	}
	if strings.TrimSpace(event.ProcessorIntentID) == "" {
		r.log.Warn("event has no payment intent",
			zap.String("event_type", event.EventType),
			zap.String("processor_event_id", event.ProcessorEventID),
		)
		return domain.Route{}, false
	}

	status := strings.TrimSpace(event.ObjectStatus)
	if status == "" && m.requireStatus {
		r.log.Warn("cannot resolve event without object status",
			zap.String("event_type", event.EventType),
			zap.String("processor_event_id", event.ProcessorEventID),
		)
		return domain.Route{}, false
	}
	if status != "" && len(m.statuses) > 0 && !contains(m.statuses, status) {
		r.log.Warn("event type contradicts object status, ignoring",
			zap.String("event_type", event.EventType),
			zap.String("object_status", status),
			zap.String("processor_event_id", event.ProcessorEventID),
		)
		return domain.Route{}, false
	}

	return domain.Route{
		Trigger:           m.trigger,
		ProcessorIntentID: event.ProcessorIntentID,
		FailureReason:     event.FailureReason,
	}, true
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
