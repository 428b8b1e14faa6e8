package reconciliation

import (
	"cardledger/internal/models"
	"cardledger/internal/repositories"
	"cardledger/internal/services/fees"
)

type escalationOutcome struct {
	Blocked bool
	Penalty int64
	Count   int
}

// escalate handles one insufficient-funds decline. It runs inside the
// caller's locked transaction and persists the card and user it is
// given: the counter advances, the fixed penalty fee is charged against
// the balance — the only mutation permitted to drive it negative — and
// the card is blocked when the counter reaches the threshold. Already
// blocked cards are left alone.
func (e *Engine) escalate(s repositories.Store, card *models.Card, user *models.CardUser, sourceRef string) (escalationOutcome, error) {
	var out escalationOutcome
	if card.Status == models.CardStatusBlocked {
		if err := s.Cards().Update(card); err != nil {
			return out, err
		}
		if err := s.CardUsers().Update(user); err != nil {
			return out, err
		}
		return out, nil
	}

	card.InsufficientFundsDeclineCount++
	out.Count = card.InsufficientFundsDeclineCount

	if quote := e.fees.Quote(fees.CategoryInsufficientFunds, 0); quote.Fee > 0 {
		before := card.Balance
		card.Balance -= quote.Fee
		user.Balance -= quote.Fee
		out.Penalty = quote.Fee

		ref := sourceRef + "-nsf-fee"
		if err := s.CardTransactions().Create(&models.CardTransaction{
			CardID:            card.ID,
			CardUserID:        user.ID,
			TransactionType:   models.CardTransactionTypeFee,
			Type:              models.EntryTypeDebit,
			Amount:            quote.Fee,
			Currency:          e.cfg.DefaultCurrency,
			Status:            models.CardTransactionStatusSuccessful,
			ProviderReference: ref,
			BalanceBefore:     before,
			BalanceAfter:      card.Balance,
			IsFeeSettled:      true,
		}); err != nil {
			return out, err
		}
		if err := s.Transactions().Create(&models.Transaction{
			Reference:     ref,
			UserID:        user.UserID,
			CardUserID:    user.ID,
			Amount:        quote.Fee,
			Currency:      e.cfg.DefaultCurrency,
			Status:        models.TransactionStatusCompleted,
			Category:      models.TransactionCategoryFee,
			Description:   "insufficient funds penalty",
			BalanceBefore: before,
			BalanceAfter:  card.Balance,
		}); err != nil {
			return out, err
		}
	}

	if card.InsufficientFundsDeclineCount >= e.cfg.DeclineThreshold {
		card.Status = models.CardStatusBlocked
		card.Frozen = true
		out.Blocked = true
	}

	if err := s.Cards().Update(card); err != nil {
		return out, err
	}
	if err := s.CardUsers().Update(user); err != nil {
		return out, err
	}
	return out, nil
}
