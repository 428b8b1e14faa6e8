package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardledger/internal/models"
	"cardledger/internal/repositories"
	"cardledger/internal/services/notification"
)

// disputeLegalNext mirrors the dispute lifecycle:
// pending → in_review → accepted|rejected|canceled, terminal states
// self-loop only.
var disputeLegalNext = map[string]map[string]bool{
	models.DisputeStatusPending: {
		models.DisputeStatusPending:  true,
		models.DisputeStatusInReview: true,
		models.DisputeStatusAccepted: true,
		models.DisputeStatusRejected: true,
		models.DisputeStatusCanceled: true,
	},
	models.DisputeStatusInReview: {
		models.DisputeStatusInReview: true,
		models.DisputeStatusAccepted: true,
		models.DisputeStatusRejected: true,
		models.DisputeStatusCanceled: true,
	},
	models.DisputeStatusAccepted: {models.DisputeStatusAccepted: true},
	models.DisputeStatusRejected: {models.DisputeStatusRejected: true},
	models.DisputeStatusCanceled: {models.DisputeStatusCanceled: true},
}

func isTerminalDisputeStatus(status string) bool {
	switch status {
	case models.DisputeStatusAccepted, models.DisputeStatusRejected, models.DisputeStatusCanceled:
		return true
	}
	return false
}

// handleDisputeCreated opens a dispute against a known provider
// transaction. A replayed created webhook for the same dispute ref is
// an idempotent no-op.
func (e *Engine) handleDisputeCreated(ctx context.Context, action string, ev DisputeCreatedEvent) (Result, error) {
	if ev.DisputeRef == "" || ev.Reference == "" {
		return rejected(action, ReasonMissingReference), nil
	}

	ct, err := e.lookupCardTransaction(e.store, ev.Reference)
	if err != nil {
		return Result{}, err
	}
	if ct == nil {
		return processedWithReason(action, ReasonTransactionNotFound), nil
	}

	if existing, err := e.store.Disputes().GetByProviderRef(ev.DisputeRef); err == nil && existing != nil {
		return processedWithReason(action, ReasonDisputeExists), nil
	} else if err != nil && !errors.Is(err, repositories.ErrDisputeNotFound) {
		return Result{}, err
	}

	status := ev.Status
	if status == "" {
		status = models.DisputeStatusPending
	}

	var disputeID uint
	err = e.store.ExecuteInTransaction(func(s repositories.Store) error {
		dispute := &models.CardTransactionDispute{
			CardTransactionID:  ct.ID,
			ProviderDisputeRef: ev.DisputeRef,
			Status:             status,
			Evidence:           ev.Evidence,
		}
		if err := s.Disputes().Create(dispute); err != nil {
			return err
		}
		disputeID = dispute.ID
		return s.Disputes().AppendEvent(&models.CardTransactionDisputeEvent{
			DisputeID: dispute.ID,
			Kind:      models.DisputeEventCreated,
			NewStatus: status,
			Source:    models.DisputeEventSourceWebhook,
		})
	})
	if errors.Is(err, repositories.ErrDuplicateReference) {
		return processedWithReason(action, ReasonDisputeExists), nil
	}
	if err != nil {
		return Result{}, err
	}

	return processed(action, map[string]interface{}{
		"dispute_id":     disputeID,
		"dispute_status": status,
	}), nil
}

// handleDisputeUpdated moves a dispute through its lifecycle. Only an
// actual status change appends an audit event and notifies the owning
// user.
func (e *Engine) handleDisputeUpdated(ctx context.Context, action string, ev DisputeUpdatedEvent) (Result, error) {
	dispute, err := e.store.Disputes().GetByProviderRef(ev.DisputeRef)
	if err != nil {
		if errors.Is(err, repositories.ErrDisputeNotFound) {
			return processedWithReason(action, ReasonDisputeNotFound), nil
		}
		return Result{}, err
	}

	newStatus := ev.Status
	if newStatus == "" {
		newStatus = dispute.Status
	}
	if allowed, known := disputeLegalNext[dispute.Status]; !known || !allowed[newStatus] {
		return processedWithReason(action, ReasonIllegalTransition), nil
	}

	statusChanged := newStatus != dispute.Status

	err = e.store.ExecuteInTransaction(func(s repositories.Store) error {
		fresh, err := s.Disputes().GetByID(dispute.ID)
		if err != nil {
			return err
		}

		previous := fresh.Status
		fresh.Status = newStatus
		if ev.Evidence != "" {
			fresh.Evidence = ev.Evidence
		}
		if isTerminalDisputeStatus(newStatus) && fresh.ResolvedAt == nil {
			now := time.Now()
			fresh.ResolvedAt = &now
		}
		if err := s.Disputes().Update(fresh); err != nil {
			return err
		}

		if !statusChanged {
			return nil
		}
		return s.Disputes().AppendEvent(&models.CardTransactionDisputeEvent{
			DisputeID:      fresh.ID,
			Kind:           models.DisputeEventStatusChanged,
			PreviousStatus: previous,
			NewStatus:      newStatus,
			Source:         models.DisputeEventSourceWebhook,
		})
	})
	if err != nil {
		return Result{}, err
	}

	if statusChanged {
		e.notifyDisputeOwner(ctx, dispute.CardTransactionID, ev.DisputeRef, newStatus)
	}

	return processed(action, map[string]interface{}{
		"dispute_status": newStatus,
		"status_changed": statusChanged,
	}), nil
}

func (e *Engine) notifyDisputeOwner(ctx context.Context, cardTransactionID uint, disputeRef, status string) {
	ct, err := e.store.CardTransactions().GetByID(cardTransactionID)
	if err != nil {
		e.logger.ErrorContext(ctx, "dispute owner lookup failed",
			"card_transaction_id", cardTransactionID, "error", err)
		return
	}
	user, err := e.store.CardUsers().GetByID(ct.CardUserID)
	if err != nil {
		e.logger.ErrorContext(ctx, "dispute owner lookup failed",
			"card_user_id", fmt.Sprint(ct.CardUserID), "error", err)
		return
	}

	e.notify(ctx, []notification.Channel{notification.ChannelEmail}, notification.CardNotification{
		UserID:           user.UserID,
		NotificationType: notification.TypeDisputeUpdated,
		Metadata: map[string]interface{}{
			"dispute_reference": disputeRef,
			"status":            status,
		},
	})
}
