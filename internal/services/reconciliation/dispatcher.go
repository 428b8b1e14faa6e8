package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
)

// ProcessWebhook is the single entry point for an inbound webhook body.
// It routes by (resource, action), runs the matching handler, and
// returns the acknowledgment for the delivery layer. Business outcomes
// never surface as errors; a non-nil error means an internal condition
// the upstream should redeliver.
func (e *Engine) ProcessWebhook(ctx context.Context, body []byte) (Result, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Result{Status: StatusRejected, Action: "unknown", Error: "malformed body"}, nil
	}

	action := env.Resource + "." + env.Action

	event, ok := e.decode(env)
	if !ok {
		e.logger.InfoContext(ctx, "ignoring unknown webhook event",
			"resource", env.Resource, "action", env.Action)
		return ignored(action, ReasonUnknownEvent), nil
	}
	if event == nil {
		return Result{Status: StatusRejected, Action: action, Error: "malformed payload"}, nil
	}

	result, err := e.dispatch(ctx, action, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "webhook processing failed",
			"resource", env.Resource, "action", env.Action, "error", err)
		return result, err
	}

	if result.Reason != "" && result.Status != StatusIgnored && result.Reason != ReasonAlreadyProcessed {
		e.logger.ErrorContext(ctx, "webhook business rejection",
			"resource", env.Resource, "action", env.Action, "reason", result.Reason)
	}
	return result, nil
}

// decode maps (resource, action) to a typed event. The second return is
// false for unknown pairs; a nil event with true means the payload
// failed to decode.
func (e *Engine) decode(env envelope) (Event, bool) {
	unmarshal := func(v Event) Event {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return nil
		}
		return v
	}

	switch fmt.Sprintf("%s.%s", env.Resource, env.Action) {
	case ResourceCollateral + "." + ActionCreated:
		return unmarshal(&FundingEvent{}), true
	case ResourceAuthorization + "." + ActionRequest:
		return unmarshal(&SpendAuthorizationEvent{}), true
	case ResourceTransaction + "." + ActionCreated:
		return unmarshal(&SpendCreatedEvent{}), true
	case ResourceTransaction + "." + ActionUpdated:
		return unmarshal(&SpendUpdatedEvent{}), true
	case ResourceTransaction + "." + ActionCompleted:
		return unmarshal(&SpendCompletedEvent{}), true
	case ResourceCard + "." + ActionUpdated:
		return unmarshal(&CardUpdatedEvent{}), true
	case ResourceCard + "." + ActionNotification:
		return unmarshal(&CardNotificationEvent{}), true
	case ResourceDispute + "." + ActionCreated:
		return unmarshal(&DisputeCreatedEvent{}), true
	case ResourceDispute + "." + ActionUpdated:
		return unmarshal(&DisputeUpdatedEvent{}), true
	case ResourceUser + "." + ActionApproved:
		return unmarshal(&UserApprovedEvent{}), true
	case ResourceUser + "." + ActionDenied:
		return unmarshal(&UserDeniedEvent{}), true
	case ResourceContract + "." + ActionCreated:
		return unmarshal(&ContractCreatedEvent{}), true
	default:
		return nil, false
	}
}

// dispatch matches exhaustively over the event variants.
func (e *Engine) dispatch(ctx context.Context, action string, event Event) (Result, error) {
	switch ev := event.(type) {
	case *FundingEvent:
		return e.handleFunding(ctx, action, *ev)
	case *SpendAuthorizationEvent:
		return e.handleSpendAuthorization(ctx, action, *ev)
	case *SpendCreatedEvent:
		return e.handleSpendCreated(ctx, action, ev.Spend)
	case *SpendUpdatedEvent:
		return e.handleSpendUpdated(ctx, action, ev.Spend)
	case *SpendCompletedEvent:
		return e.handleSpendCompleted(ctx, action, ev.Spend)
	case *CardUpdatedEvent:
		return e.handleCardUpdated(ctx, action, *ev)
	case *CardNotificationEvent:
		return e.handleCardNotification(ctx, action, *ev)
	case *DisputeCreatedEvent:
		return e.handleDisputeCreated(ctx, action, *ev)
	case *DisputeUpdatedEvent:
		return e.handleDisputeUpdated(ctx, action, *ev)
	case *UserApprovedEvent:
		return e.handleUserStatus(ctx, action, ev.UserRef, ActionApproved, "")
	case *UserDeniedEvent:
		return e.handleUserStatus(ctx, action, ev.UserRef, ActionDenied, ev.Reason)
	case *ContractCreatedEvent:
		return e.handleContractCreated(ctx, action, *ev)
	default:
		return ignored(action, ReasonUnknownEvent), nil
	}
}
