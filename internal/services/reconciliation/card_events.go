package reconciliation

import (
	"context"
	"errors"

	"cardledger/internal/models"
	"cardledger/internal/repositories"
	"cardledger/internal/services/notification"
)

// handleCardUpdated mirrors provider-side card setting changes. No
// balance effect.
func (e *Engine) handleCardUpdated(ctx context.Context, action string, ev CardUpdatedEvent) (Result, error) {
	card, err := e.store.Cards().GetByProviderRef(ev.CardRef)
	if err != nil {
		if errors.Is(err, repositories.ErrCardNotFound) {
			return processedWithReason(action, ReasonCardNotFound), nil
		}
		return Result{}, err
	}

	switch ev.Status {
	case "", models.CardStatusPending, models.CardStatusActive, models.CardStatusInactive,
		models.CardStatusBlocked, models.CardStatusCanceled:
	default:
		return ignored(action, ReasonUnknownStatus), nil
	}

	if ev.Status != "" {
		card.Status = ev.Status
	}
	if ev.SpendLimit > 0 {
		card.SpendLimit = ev.SpendLimit
	}
	if ev.LimitFrequency != "" {
		card.LimitFrequency = ev.LimitFrequency
	}
	if ev.Frozen != nil {
		card.Frozen = *ev.Frozen
	}
	if err := e.store.Cards().Update(card); err != nil {
		return Result{}, err
	}

	return processed(action, map[string]interface{}{"card_status": card.Status}), nil
}

// handleCardNotification forwards a provider message to the card
// holder.
func (e *Engine) handleCardNotification(ctx context.Context, action string, ev CardNotificationEvent) (Result, error) {
	card, err := e.store.Cards().GetByProviderRef(ev.CardRef)
	if err != nil {
		if errors.Is(err, repositories.ErrCardNotFound) {
			return processedWithReason(action, ReasonCardNotFound), nil
		}
		return Result{}, err
	}
	user, err := e.store.CardUsers().GetByID(card.CardUserID)
	if err != nil {
		return Result{}, err
	}

	metadata := ev.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["message"] = ev.Message
	metadata["kind"] = ev.Kind

	e.notify(ctx, []notification.Channel{notification.ChannelPush}, notification.CardNotification{
		UserID:           user.UserID,
		NotificationType: notification.TypeCardSpend,
		Metadata:         metadata,
	})

	return processed(action, nil), nil
}

// handleUserStatus applies a card-holder application decision.
func (e *Engine) handleUserStatus(ctx context.Context, action, userRef, decision, reason string) (Result, error) {
	user, err := e.store.CardUsers().GetByProviderRef(userRef)
	if err != nil {
		if errors.Is(err, repositories.ErrCardUserNotFound) {
			return processedWithReason(action, ReasonCardUserNotFound), nil
		}
		return Result{}, err
	}

	var status, notificationType string
	switch decision {
	case ActionApproved:
		status = models.CardUserStatusApproved
		notificationType = notification.TypeUserApproved
	case ActionDenied:
		status = models.CardUserStatusDenied
		notificationType = notification.TypeUserDenied
	default:
		return ignored(action, ReasonUnknownStatus), nil
	}

	user.ApplicationStatus = status
	if err := e.store.CardUsers().Update(user); err != nil {
		return Result{}, err
	}

	e.notify(ctx, []notification.Channel{notification.ChannelEmail}, notification.CardNotification{
		UserID:           user.UserID,
		NotificationType: notificationType,
		Metadata: map[string]interface{}{
			"application_status": status,
			"reason":             reason,
		},
	})

	return processed(action, map[string]interface{}{"application_status": status}), nil
}

// handleContractCreated records the provider contract reference for a
// card user. No balance effect.
func (e *Engine) handleContractCreated(ctx context.Context, action string, ev ContractCreatedEvent) (Result, error) {
	user, err := e.store.CardUsers().GetByProviderRef(ev.UserRef)
	if err != nil {
		if errors.Is(err, repositories.ErrCardUserNotFound) {
			return processedWithReason(action, ReasonCardUserNotFound), nil
		}
		return Result{}, err
	}

	user.ContractRef = ev.ContractRef
	if err := e.store.CardUsers().Update(user); err != nil {
		return Result{}, err
	}

	return processed(action, map[string]interface{}{"contract_reference": ev.ContractRef}), nil
}
