package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"cardledger/internal/models"
	"cardledger/internal/repositories"
	"cardledger/internal/services/fees"
	"cardledger/internal/services/notification"
)

// handleFunding settles an on-chain collateral deposit against the
// user's most recent pending deposit card transaction. Only a resulting
// successful status credits balances and triggers fee side effects; a
// funding event that stays pending or fails must not charge anything.
func (e *Engine) handleFunding(ctx context.Context, action string, ev FundingEvent) (Result, error) {
	if ev.Reference == "" || ev.UserRef == "" {
		return rejected(action, ReasonMissingReference), nil
	}
	if ev.Amount <= 0 {
		return rejected(action, ReasonInvalidAmount), nil
	}

	user, err := e.store.CardUsers().GetByProviderRef(ev.UserRef)
	if err != nil {
		if errors.Is(err, repositories.ErrCardUserNotFound) {
			return processedWithReason(action, ReasonCardUserNotFound), nil
		}
		return Result{}, err
	}

	// Replay guard: funding outcomes are terminal, so any main ledger
	// row for this reference means the event was already applied.
	if existing, err := e.lookupTransaction(e.store, ev.Reference); err != nil {
		return Result{}, err
	} else if existing != nil {
		return processedWithReason(action, ReasonAlreadyProcessed), nil
	}

	pending, err := e.store.CardTransactions().GetLatestPendingDeposit(user.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrCardTransactionNotFound) {
			return processedWithReason(action, ReasonPendingDepositMissing), nil
		}
		return Result{}, err
	}

	card, err := e.store.Cards().GetByID(pending.CardID)
	if err != nil {
		return Result{}, fmt.Errorf("card for pending deposit %d: %w", pending.ID, err)
	}
	// Authorization check: the pending deposit's card must belong to
	// the user named by the webhook.
	if card.CardUserID != user.ID {
		return processedWithReason(action, ReasonCardUserMismatch), nil
	}

	if ev.Currency != "" && pending.Currency != "" && ev.Currency != pending.Currency {
		return processedWithReason(action, ReasonCurrencyMismatch), nil
	}

	// The fee was fixed when the deposit was initiated; re-derive it
	// from the pre-fee amount and flag drift, but the stored fee stays
	// authoritative either way.
	expected := e.fees.Quote(fees.CategoryFunding, pending.Amount)
	if expected.Fee != pending.Fee {
		e.logger.WarnContext(ctx, "funding fee drift; keeping stored fee",
			"provider_reference", ev.Reference,
			"stored_fee", pending.Fee, "derived_fee", expected.Fee)
	}

	credit := ev.Amount - pending.Fee
	if pending.Fee > ev.Amount || credit <= 0 {
		return processedWithReason(action, ReasonFeeExceedsAmount), nil
	}

	switch ev.Status {
	case ProviderStatusPending:
		// Acknowledge and wait for the settled delivery.
		return processedWithReason(action, ReasonFundingPending), nil
	case ProviderStatusDeclined, ProviderStatusReversed:
		return e.failFunding(ctx, action, ev, user, card, pending)
	case ProviderStatusSuccessful, ProviderStatusCompleted, "":
		return e.settleFunding(ctx, action, ev, user, card, pending, credit)
	default:
		return ignored(action, ReasonUnknownStatus), nil
	}
}

// failFunding records a declined/reversed funding with zero ledger
// effect. No fee is charged.
func (e *Engine) failFunding(ctx context.Context, action string, ev FundingEvent, user *models.CardUser, card *models.Card, pending *models.CardTransaction) (Result, error) {
	err := e.withExclusiveTransaction(ctx, lockKey(user.ID, ev.Reference, card.ID), func(s repositories.Store) error {
		ct, err := s.CardTransactions().GetByID(pending.ID)
		if err != nil {
			return err
		}
		if ct.Status != models.CardTransactionStatusPending {
			return errAlreadyApplied
		}

		ct.Status = models.CardTransactionStatusDeclined
		ct.TransactionHash = ev.Hash
		if err := s.CardTransactions().Update(ct); err != nil {
			return err
		}

		return s.Transactions().Create(&models.Transaction{
			Reference:   ev.Reference,
			UserID:      user.UserID,
			CardUserID:  user.ID,
			Amount:      0,
			Currency:    pending.Currency,
			Status:      models.TransactionStatusFailed,
			Category:    models.TransactionCategoryFunding,
			Description: "collateral funding " + ev.Status,
		})
	})
	if errors.Is(err, errAlreadyApplied) || errors.Is(err, repositories.ErrDuplicateReference) {
		return processedWithReason(action, ReasonAlreadyProcessed), nil
	}
	if err != nil {
		return Result{}, err
	}
	return processed(action, map[string]interface{}{"funding_status": ev.Status}), nil
}

// settleFunding credits the card and card-holder balances by the net
// amount inside the locked transaction, then fires the fee side
// effects.
func (e *Engine) settleFunding(ctx context.Context, action string, ev FundingEvent, user *models.CardUser, card *models.Card, pending *models.CardTransaction, credit int64) (Result, error) {
	var cardAfter, userAfter int64

	err := e.withExclusiveTransaction(ctx, lockKey(user.ID, ev.Reference, card.ID), func(s repositories.Store) error {
		freshCard, err := s.Cards().GetByID(card.ID)
		if err != nil {
			return err
		}
		freshUser, err := s.CardUsers().GetByID(user.ID)
		if err != nil {
			return err
		}
		ct, err := s.CardTransactions().GetByID(pending.ID)
		if err != nil {
			return err
		}
		if ct.Status != models.CardTransactionStatusPending {
			return errAlreadyApplied
		}

		cardAfter = freshCard.Balance + credit
		userAfter = freshUser.Balance + credit

		ct.Status = models.CardTransactionStatusSuccessful
		ct.TransactionHash = ev.Hash
		ct.BalanceBefore = freshCard.Balance
		ct.BalanceAfter = cardAfter
		if err := s.CardTransactions().Update(ct); err != nil {
			return err
		}

		if err := s.Transactions().Create(&models.Transaction{
			Reference:     ev.Reference,
			UserID:        freshUser.UserID,
			CardUserID:    freshUser.ID,
			Amount:        credit,
			Currency:      ct.Currency,
			Status:        models.TransactionStatusCompleted,
			Category:      models.TransactionCategoryFunding,
			Description:   "collateral funding settled",
			BalanceBefore: freshCard.Balance,
			BalanceAfter:  cardAfter,
		}); err != nil {
			return err
		}

		freshCard.Balance = cardAfter
		if err := s.Cards().Update(freshCard); err != nil {
			return err
		}
		freshUser.Balance = userAfter
		if err := s.CardUsers().Update(freshUser); err != nil {
			return err
		}

		return verifyBalances(s, card.ID, cardAfter, user.ID, userAfter)
	})
	if errors.Is(err, errAlreadyApplied) || errors.Is(err, repositories.ErrDuplicateReference) {
		return processedWithReason(action, ReasonAlreadyProcessed), nil
	}
	if err != nil {
		return Result{}, err
	}

	e.settleFundingFees(ctx, user, pending)

	e.notify(ctx, []notification.Channel{notification.ChannelEmail, notification.ChannelPush}, notification.CardNotification{
		UserID:             user.UserID,
		NotificationType:   notification.TypeCardFunded,
		BalanceChangeEvent: "credit",
		Metadata: map[string]interface{}{
			"amount":    credit,
			"fee":       pending.Fee,
			"reference": ev.Reference,
		},
	})

	return processed(action, map[string]interface{}{
		"credited":     credit,
		"fee":          pending.Fee,
		"card_balance": cardAfter,
		"user_balance": userAfter,
	}), nil
}

// settleFundingFees charges the funding fee and, on the user's first
// settled funding, the card issuance fee. These run after the ledger
// commit: a failed charge is logged for manual follow-up and never
// unwinds the credit.
func (e *Engine) settleFundingFees(ctx context.Context, user *models.CardUser, pending *models.CardTransaction) {
	quote := e.fees.Quote(fees.CategoryFunding, pending.Amount)
	if quote.RequiresCharge && pending.Fee > 0 {
		if _, ok := e.chargeFee(ctx, user.ProviderRef, pending.Fee, "card funding fee"); ok {
			ct, err := e.store.CardTransactions().GetByID(pending.ID)
			if err == nil {
				ct.IsFeeSettled = true
				if err := e.store.CardTransactions().Update(ct); err != nil {
					e.logger.ErrorContext(ctx, "failed to mark fee settled",
						"card_transaction_id", pending.ID, "error", err)
				}
			}
		}
	}

	if user.IssuanceFeeSettled {
		return
	}
	issuance := e.fees.Quote(fees.CategoryCardIssuance, 0)
	if issuance.Fee <= 0 {
		return
	}
	if _, ok := e.chargeFee(ctx, user.ProviderRef, issuance.Fee, "card issuance fee"); ok {
		fresh, err := e.store.CardUsers().GetByID(user.ID)
		if err != nil {
			return
		}
		fresh.IssuanceFeeSettled = true
		if err := e.store.CardUsers().Update(fresh); err != nil {
			e.logger.ErrorContext(ctx, "failed to mark issuance fee settled",
				"card_user_id", user.ID, "error", err)
		}
	}
}
