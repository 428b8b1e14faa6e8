package reconciliation

import "cardledger/internal/models"

// Verdict is the validator's decision for an incoming provider event
// against the already-stored state for the same provider reference.
type Verdict int

const (
	// VerdictProceed: first sighting of the reference.
	VerdictProceed Verdict = iota
	// VerdictProceedAsUpdate: legal transition from the stored status.
	VerdictProceedAsUpdate
	// VerdictSkipDuplicate: identical status and amount already
	// applied; re-applying would double the economic effect.
	VerdictSkipDuplicate
	// VerdictReject: illegal transition or amount anomaly; logged and
	// never retried.
	VerdictReject
)

// Decision pairs a verdict with the reason reported to the caller.
type Decision struct {
	Verdict Verdict
	Reason  string
}

// incoming is the provider-reported view of a transaction event.
type incoming struct {
	Status   string
	Amount   int64
	Currency string
}

// legalNext maps a stored card transaction status to the provider
// statuses that may follow it. Stored successful covers provider
// successful/completed; stored declined covers declined/reversed.
var legalNext = map[string]map[string]bool{
	models.CardTransactionStatusPending: {
		ProviderStatusPending:    true,
		ProviderStatusSuccessful: true,
		ProviderStatusDeclined:   true,
		ProviderStatusReversed:   true,
		ProviderStatusCompleted:  true,
	},
	models.CardTransactionStatusSuccessful: {
		ProviderStatusSuccessful: true,
		ProviderStatusCompleted:  true,
	},
	models.CardTransactionStatusDeclined: {
		ProviderStatusDeclined: true,
		ProviderStatusReversed: true,
	},
}

func isFailedStatus(status string) bool {
	return status == ProviderStatusDeclined || status == ProviderStatusReversed
}

// cardStatus maps a provider status to the stored card transaction
// status domain.
func cardStatus(providerStatus string) string {
	switch providerStatus {
	case ProviderStatusSuccessful, ProviderStatusCompleted:
		return models.CardTransactionStatusSuccessful
	case ProviderStatusDeclined, ProviderStatusReversed:
		return models.CardTransactionStatusDeclined
	default:
		return models.CardTransactionStatusPending
	}
}

// ledgerStatus maps a provider status to the main ledger status domain.
func ledgerStatus(providerStatus string) string {
	switch providerStatus {
	case ProviderStatusSuccessful, ProviderStatusCompleted:
		return models.TransactionStatusCompleted
	case ProviderStatusDeclined, ProviderStatusReversed:
		return models.TransactionStatusFailed
	default:
		return models.TransactionStatusPending
	}
}

// amountTolerance is max(1 minor unit, 10% of the stored amount).
// The bound is an inherited policy pending business sign-off; preserve
// the behavior rather than tightening or loosening it.
func amountTolerance(stored int64) int64 {
	tol := stored / 10
	if tol < 1 {
		tol = 1
	}
	return tol
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// validateUpdate decides whether an incoming event for a known provider
// reference is a first sighting, a legal update, a safe duplicate, or
// anomalous. ct and tx are the stored card and main ledger rows for the
// reference, either of which may be nil.
func validateUpdate(ct *models.CardTransaction, tx *models.Transaction, in incoming) Decision {
	if ct == nil {
		return Decision{Verdict: VerdictProceed}
	}

	if in.Currency != "" && ct.Currency != "" && in.Currency != ct.Currency {
		return Decision{Verdict: VerdictReject, Reason: ReasonCurrencyMismatch}
	}

	allowed, known := legalNext[ct.Status]
	if !known || !allowed[in.Status] {
		return Decision{Verdict: VerdictReject, Reason: ReasonIllegalTransition}
	}

	if isFailedStatus(in.Status) {
		if in.Amount != 0 {
			return Decision{Verdict: VerdictReject, Reason: ReasonNonzeroFailedAmount}
		}
		// Same failed status already reflected on the main ledger:
		// nothing left to apply.
		if ct.Status == cardStatus(in.Status) && tx != nil &&
			tx.Status == ledgerStatus(in.Status) && tx.Amount == 0 {
			return Decision{Verdict: VerdictSkipDuplicate, Reason: ReasonAlreadyProcessed}
		}
		return Decision{Verdict: VerdictProceedAsUpdate}
	}

	// Identical status and amount already applied end to end: this is
	// a redelivery, not a new instruction.
	if ct.Status == cardStatus(in.Status) && in.Amount == ct.Amount && tx != nil &&
		tx.Status == ledgerStatus(in.Status) && tx.Amount == ct.Amount {
		return Decision{Verdict: VerdictSkipDuplicate, Reason: ReasonAlreadyProcessed}
	}

	if abs64(in.Amount-ct.Amount) > amountTolerance(ct.Amount) {
		return Decision{Verdict: VerdictReject, Reason: ReasonAmountMismatch}
	}

	return Decision{Verdict: VerdictProceedAsUpdate}
}
