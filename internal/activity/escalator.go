package activity

import (
	"context"
	"fmt"

	"firewatch.io/firewatch/internal/notification"
	"firewatch.io/firewatch/internal/pkg/errors"
)

// ResponderEscalator notifies emergency responders about a high-risk event.
// Delivery failures are transient: the engine retries within the escalation
// retry budget.
type ResponderEscalator struct {
	sender notification.Sender
}

// NewEscalator creates the escalation executor.
func NewEscalator(sender notification.Sender) *ResponderEscalator {
	return &ResponderEscalator{sender: sender}
}

// Name implements Executor.
func (*ResponderEscalator) Name() Name { return Escalator }

// Execute pushes the responder notification.
func (e *ResponderEscalator) Execute(ctx context.Context, input Input) (Output, error) {
	if input.Risk == nil {
		return Output{}, errors.Permanent("MISSING_RISK", "escalation requires a risk assessment")
	}

	params := notification.Params{
		Channel: notification.ChannelResponders,
		Title:   fmt.Sprintf("Escalation: %s", input.Event.Location),
		Message: fmt.Sprintf("Disaster %s at %s escalated with risk level %d: %s",
			input.Event.ID, input.Event.Location, input.Risk.RiskLevel, input.Risk.Rationale),
		ResourceType: "disaster_event",
		ResourceID:   input.Event.ID,
	}
	if err := e.sender.Send(ctx, params); err != nil {
		return Output{}, errors.Wrap(err, errors.ClassTransient, "RESPONDER_NOTIFY_FAILED", "responder notification delivery failed")
	}
	return Output{}, nil
}

var _ Executor = (*ResponderEscalator)(nil)
