package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"cardledger/internal/models"
	"cardledger/internal/repositories"
	"cardledger/internal/services/notification"
)

// rejectionError carries a business rejection decided inside a locked
// transaction back to the handler, which folds it into the Result.
type rejectionError struct {
	reason string
}

func (e rejectionError) Error() string { return "rejected: " + e.reason }

func statusOrDefault(status string) string {
	if status == "" {
		return ProviderStatusPending
	}
	return status
}

func (e *Engine) currencyOrDefault(currency string) string {
	if currency == "" {
		return e.cfg.DefaultCurrency
	}
	return currency
}

func merchantMetadata(m Merchant) models.JSON {
	if m == (Merchant{}) {
		return nil
	}
	return models.JSON{
		"name":     m.Name,
		"city":     m.City,
		"country":  m.Country,
		"category": m.Category,
		"mcc":      m.MCC,
	}
}

// handleSpendAuthorization answers a synchronous pre-commit check. It
// is advisory: nothing is persisted, the durable record arrives with
// the created webhook.
func (e *Engine) handleSpendAuthorization(ctx context.Context, action string, ev SpendAuthorizationEvent) (Result, error) {
	if ev.Amount <= 0 {
		return rejected(action, ReasonInvalidAmount), nil
	}

	card, err := e.store.Cards().GetByProviderRef(ev.CardRef)
	if err != nil {
		if errors.Is(err, repositories.ErrCardNotFound) {
			return rejected(action, ReasonCardNotFound), nil
		}
		return Result{}, err
	}

	if card.Status != models.CardStatusActive || card.Frozen {
		return rejected(action, ReasonCardNotActive), nil
	}
	if card.Balance < ev.Amount {
		return rejected(action, ReasonInsufficientBalance), nil
	}

	res := processed(action, map[string]interface{}{"approved": true})
	return res, nil
}

// handleSpendCreated records the first durable sighting of a spend
// attempt and debits the balances, unless the provider already declined
// it.
func (e *Engine) handleSpendCreated(ctx context.Context, action string, ev Spend) (Result, error) {
	if ev.Reference == "" {
		return rejected(action, ReasonMissingReference), nil
	}

	ct, err := e.lookupCardTransaction(e.store, ev.Reference)
	if err != nil {
		return Result{}, err
	}
	if ct != nil {
		// Redelivery or a racing update for a reference we already
		// hold; the update path revalidates under the lock.
		return e.applySpendUpdate(ctx, action, ev, ct)
	}
	return e.createSpend(ctx, action, ev)
}

// createSpend is shared with the completed handler: webhook ordering is
// not guaranteed, so a completed event may be the first sighting.
func (e *Engine) createSpend(ctx context.Context, action string, ev Spend) (Result, error) {
	status := statusOrDefault(ev.Status)
	failed := isFailedStatus(status)

	if ev.Amount <= 0 && !failed {
		return rejected(action, ReasonInvalidAmount), nil
	}

	card, err := e.store.Cards().GetByProviderRef(ev.CardRef)
	if err != nil {
		if errors.Is(err, repositories.ErrCardNotFound) {
			return processedWithReason(action, ReasonCardNotFound), nil
		}
		return Result{}, err
	}
	user, err := e.store.CardUsers().GetByID(card.CardUserID)
	if err != nil {
		return Result{}, fmt.Errorf("card user for card %d: %w", card.ID, err)
	}
	if ev.UserRef != "" && user.ProviderRef != ev.UserRef {
		return processedWithReason(action, ReasonCardUserMismatch), nil
	}

	debit := ev.Amount
	if failed {
		// Invariant: a failed transaction has zero ledger effect.
		debit = 0
	}

	var (
		cardAfter, userAfter int64
		escalation           escalationOutcome
	)

	err = e.withExclusiveTransaction(ctx, lockKey(user.ID, ev.Reference, card.ID), func(s repositories.Store) error {
		if existing, err := e.lookupCardTransaction(s, ev.Reference); err != nil {
			return err
		} else if existing != nil {
			return errAlreadyApplied
		}

		freshCard, err := s.Cards().GetByID(card.ID)
		if err != nil {
			return err
		}
		freshUser, err := s.CardUsers().GetByID(user.ID)
		if err != nil {
			return err
		}

		if !failed && freshCard.Balance < debit {
			return errInsufficientBalance
		}

		cardAfter = freshCard.Balance - debit
		userAfter = freshUser.Balance - debit

		ct := &models.CardTransaction{
			CardID:            freshCard.ID,
			CardUserID:        freshUser.ID,
			TransactionType:   models.CardTransactionTypeSpend,
			Type:              models.EntryTypeDebit,
			Amount:            debit,
			Currency:          e.currencyOrDefault(ev.Currency),
			Status:            cardStatus(status),
			ProviderReference: ev.Reference,
			BalanceBefore:     freshCard.Balance,
			BalanceAfter:      cardAfter,
			MerchantMetadata:  merchantMetadata(ev.Merchant),
			DeclineReason:     ev.DeclineReason,
		}
		if err := s.CardTransactions().Create(ct); err != nil {
			return err
		}

		if err := s.Transactions().Create(&models.Transaction{
			Reference:     ev.Reference,
			UserID:        freshUser.UserID,
			CardUserID:    freshUser.ID,
			Amount:        debit,
			Currency:      ct.Currency,
			Status:        ledgerStatus(status),
			Category:      models.TransactionCategorySpend,
			Description:   spendDescription(ev.Merchant),
			BalanceBefore: ct.BalanceBefore,
			BalanceAfter:  ct.BalanceAfter,
		}); err != nil {
			return err
		}

		freshCard.Balance = cardAfter
		freshUser.Balance = userAfter

		if failed && insufficientFundsPattern.MatchString(ev.DeclineReason) {
			out, err := e.escalate(s, freshCard, freshUser, ev.Reference)
			if err != nil {
				return err
			}
			escalation = out
			cardAfter = freshCard.Balance
			userAfter = freshUser.Balance
		} else {
			if !failed && freshCard.InsufficientFundsDeclineCount != 0 {
				freshCard.InsufficientFundsDeclineCount = 0
			}
			if err := s.Cards().Update(freshCard); err != nil {
				return err
			}
			if err := s.CardUsers().Update(freshUser); err != nil {
				return err
			}
		}

		return verifyBalances(s, card.ID, cardAfter, user.ID, userAfter)
	})
	switch {
	case errors.Is(err, errAlreadyApplied), errors.Is(err, repositories.ErrDuplicateReference):
		return processedWithReason(action, ReasonAlreadyProcessed), nil
	case errors.Is(err, errInsufficientBalance):
		return processedWithReason(action, ReasonInsufficientBalance), nil
	case err != nil:
		return Result{}, err
	}

	if escalation.Blocked {
		e.applyCardBlock(ctx, card.ProviderRef, user)
	}

	return processed(action, map[string]interface{}{
		"spend_status": cardStatus(status),
		"debited":      debit,
		"penalty_fee":  escalation.Penalty,
		"card_blocked": escalation.Blocked,
		"card_balance": cardAfter,
	}), nil
}

// handleSpendUpdated adjusts a previously recorded spend: incremental
// authorizations change the debit by the delta, declines and reversals
// credit back whatever had been debited.
func (e *Engine) handleSpendUpdated(ctx context.Context, action string, ev Spend) (Result, error) {
	ct, err := e.lookupCardTransaction(e.store, ev.Reference)
	if err != nil {
		return Result{}, err
	}
	if ct == nil {
		return processedWithReason(action, ReasonTransactionNotFound), nil
	}
	return e.applySpendUpdate(ctx, action, ev, ct)
}

func (e *Engine) applySpendUpdate(ctx context.Context, action string, ev Spend, ct *models.CardTransaction) (Result, error) {
	status := statusOrDefault(ev.Status)
	newFailed := isFailedStatus(status)

	card, err := e.store.Cards().GetByID(ct.CardID)
	if err != nil {
		return Result{}, fmt.Errorf("card for transaction %d: %w", ct.ID, err)
	}
	user, err := e.store.CardUsers().GetByID(ct.CardUserID)
	if err != nil {
		return Result{}, fmt.Errorf("card user for transaction %d: %w", ct.ID, err)
	}

	var cardAfter, userAfter int64

	err = e.withExclusiveTransaction(ctx, lockKey(user.ID, ev.Reference, card.ID), func(s repositories.Store) error {
		fresh, err := s.CardTransactions().GetByID(ct.ID)
		if err != nil {
			return err
		}
		tx, err := e.lookupTransaction(s, ev.Reference)
		if err != nil {
			return err
		}

		// Revalidate against the state under the lock; a racing
		// delivery may have advanced it since the first read.
		eff := ev.Amount
		if newFailed {
			eff = 0
		}
		switch d := validateUpdate(fresh, tx, incoming{Status: status, Amount: eff, Currency: ev.Currency}); d.Verdict {
		case VerdictSkipDuplicate:
			return errAlreadyApplied
		case VerdictReject:
			return rejectionError{reason: d.Reason}
		}

		freshCard, err := s.Cards().GetByID(card.ID)
		if err != nil {
			return err
		}
		freshUser, err := s.CardUsers().GetByID(user.ID)
		if err != nil {
			return err
		}

		if newFailed {
			cardAfter = freshCard.Balance
			userAfter = freshUser.Balance
			// Credit back whatever the earlier delivery debited.
			if fresh.Status != models.CardTransactionStatusDeclined && fresh.Amount > 0 {
				cardAfter += fresh.Amount
				userAfter += fresh.Amount
			}
			fresh.BalanceBefore = freshCard.Balance
			fresh.BalanceAfter = cardAfter
			fresh.Status = models.CardTransactionStatusDeclined
			fresh.Amount = 0
			if ev.DeclineReason != "" {
				fresh.DeclineReason = ev.DeclineReason
			}
		} else {
			delta := ev.Amount - fresh.Amount
			if delta > 0 && freshCard.Balance < delta {
				return errInsufficientBalance
			}
			cardAfter = freshCard.Balance - delta
			userAfter = freshUser.Balance - delta
			fresh.BalanceBefore = freshCard.Balance
			fresh.BalanceAfter = cardAfter
			fresh.Amount = ev.Amount
			fresh.Status = cardStatus(status)
		}
		if err := s.CardTransactions().Update(fresh); err != nil {
			return err
		}

		if tx == nil {
			tx = &models.Transaction{
				Reference:  ev.Reference,
				UserID:     freshUser.UserID,
				CardUserID: freshUser.ID,
				Currency:   fresh.Currency,
				Category:   models.TransactionCategorySpend,
			}
			tx.Amount = fresh.Amount
			tx.Status = ledgerStatus(status)
			tx.BalanceBefore = fresh.BalanceBefore
			tx.BalanceAfter = fresh.BalanceAfter
			if err := s.Transactions().Create(tx); err != nil {
				return err
			}
		} else {
			tx.Amount = fresh.Amount
			tx.Status = ledgerStatus(status)
			tx.BalanceBefore = fresh.BalanceBefore
			tx.BalanceAfter = fresh.BalanceAfter
			if err := s.Transactions().Update(tx); err != nil {
				return err
			}
		}

		freshCard.Balance = cardAfter
		freshUser.Balance = userAfter
		if err := s.Cards().Update(freshCard); err != nil {
			return err
		}
		if err := s.CardUsers().Update(freshUser); err != nil {
			return err
		}

		return verifyBalances(s, card.ID, cardAfter, user.ID, userAfter)
	})

	var rejection rejectionError
	switch {
	case errors.Is(err, errAlreadyApplied):
		return processedWithReason(action, ReasonAlreadyProcessed), nil
	case errors.Is(err, errInsufficientBalance):
		return processedWithReason(action, ReasonInsufficientBalance), nil
	case errors.As(err, &rejection):
		return processedWithReason(action, rejection.reason), nil
	case err != nil:
		return Result{}, err
	}

	return processed(action, map[string]interface{}{
		"spend_status": cardStatus(status),
		"card_balance": cardAfter,
		"user_balance": userAfter,
	}), nil
}

// handleSpendCompleted settles a spend. When the created event was
// already applied, settlement only flips statuses: the debit happened
// then and must not repeat. When completed arrives first, it is treated
// as the first durable sighting.
func (e *Engine) handleSpendCompleted(ctx context.Context, action string, ev Spend) (Result, error) {
	ct, err := e.lookupCardTransaction(e.store, ev.Reference)
	if err != nil {
		return Result{}, err
	}
	if ct == nil {
		ev.Status = ProviderStatusCompleted
		return e.createSpend(ctx, action, ev)
	}

	card, err := e.store.Cards().GetByID(ct.CardID)
	if err != nil {
		return Result{}, fmt.Errorf("card for transaction %d: %w", ct.ID, err)
	}
	user, err := e.store.CardUsers().GetByID(ct.CardUserID)
	if err != nil {
		return Result{}, fmt.Errorf("card user for transaction %d: %w", ct.ID, err)
	}

	err = e.withExclusiveTransaction(ctx, lockKey(user.ID, ev.Reference, card.ID), func(s repositories.Store) error {
		fresh, err := s.CardTransactions().GetByID(ct.ID)
		if err != nil {
			return err
		}
		tx, err := e.lookupTransaction(s, ev.Reference)
		if err != nil {
			return err
		}

		switch d := validateUpdate(fresh, tx, incoming{Status: ProviderStatusCompleted, Amount: ev.Amount, Currency: ev.Currency}); d.Verdict {
		case VerdictSkipDuplicate:
			return errAlreadyApplied
		case VerdictReject:
			return rejectionError{reason: d.Reason}
		}

		// Settlement short-circuit: flip statuses only, never re-debit.
		fresh.Status = models.CardTransactionStatusSuccessful
		if err := s.CardTransactions().Update(fresh); err != nil {
			return err
		}
		if tx != nil {
			tx.Status = models.TransactionStatusCompleted
			if err := s.Transactions().Update(tx); err != nil {
				return err
			}
		}

		freshCard, err := s.Cards().GetByID(card.ID)
		if err != nil {
			return err
		}
		if freshCard.InsufficientFundsDeclineCount != 0 {
			freshCard.InsufficientFundsDeclineCount = 0
			if err := s.Cards().Update(freshCard); err != nil {
				return err
			}
		}
		return nil
	})

	var rejection rejectionError
	switch {
	case errors.Is(err, errAlreadyApplied):
		return processedWithReason(action, ReasonAlreadyProcessed), nil
	case errors.As(err, &rejection):
		return processedWithReason(action, rejection.reason), nil
	case err != nil:
		return Result{}, err
	}

	return processed(action, map[string]interface{}{"settled": true}), nil
}

func spendDescription(m Merchant) string {
	if m.Name == "" {
		return "card spend"
	}
	return "card spend at " + m.Name
}

// applyCardBlock pushes the block to the provider and notifies the
// holder after the local block has committed.
func (e *Engine) applyCardBlock(ctx context.Context, providerCardRef string, user *models.CardUser) {
	if err := e.issuer.UpdateCard(ctx, providerCardRef, models.CardStatusBlocked); err != nil {
		e.logger.ErrorContext(ctx, "provider card block failed",
			"provider_card_ref", providerCardRef, "error", err)
	}
	e.notify(ctx, []notification.Channel{notification.ChannelEmail, notification.ChannelSMS}, notification.CardNotification{
		UserID:           user.UserID,
		NotificationType: notification.TypeCardBlocked,
		Metadata: map[string]interface{}{
			"provider_card_ref": providerCardRef,
		},
	})
}
