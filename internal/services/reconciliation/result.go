package reconciliation

import "errors"

// Status classifies the outcome of one webhook delivery.
type Status string

const (
	// StatusProcessed: the event was understood and its outcome is
	// final, including business rejections and duplicates. No retry
	// will change it.
	StatusProcessed Status = "processed"
	// StatusIgnored: unknown resource/action or unknown user status;
	// acknowledged and dropped.
	StatusIgnored Status = "ignored"
	// StatusRejected: the payload itself was unusable, or an advisory
	// authorization was declined.
	StatusRejected Status = "rejected"
)

// Result is the acknowledgment returned to the delivery layer. The
// handler never returns an error for business outcomes; errors are
// reserved for internal conditions that should trigger redelivery.
type Result struct {
	Status Status                 `json:"status"`
	Action string                 `json:"action"`
	Reason string                 `json:"reason,omitempty"`
	Error  string                 `json:"error,omitempty"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

// Result reasons
const (
	ReasonAlreadyProcessed      = "transaction_already_processed"
	ReasonAmountMismatch        = "amount_mismatch"
	ReasonCurrencyMismatch      = "currency_mismatch"
	ReasonIllegalTransition     = "illegal_status_transition"
	ReasonNonzeroFailedAmount   = "nonzero_amount_on_failed_status"
	ReasonInsufficientBalance   = "insufficient_balance"
	ReasonInvalidAmount         = "invalid_amount"
	ReasonMissingReference      = "missing_reference"
	ReasonCardNotFound          = "card_not_found"
	ReasonCardUserNotFound      = "card_user_not_found"
	ReasonCardUserMismatch      = "card_user_mismatch"
	ReasonCardNotActive         = "card_not_active"
	ReasonPendingDepositMissing = "pending_deposit_not_found"
	ReasonFeeExceedsAmount      = "fee_exceeds_amount"
	ReasonFundingPending        = "funding_pending"
	ReasonTransactionNotFound   = "transaction_not_found"
	ReasonDisputeExists         = "dispute_already_exists"
	ReasonDisputeNotFound       = "dispute_not_found"
	ReasonUnknownEvent          = "unknown_event"
	ReasonUnknownStatus         = "unknown_status"
)

// Internal-class errors: returned rather than folded into a Result so
// the delivery layer fails the webhook and the provider redelivers.
var (
	// ErrBalanceVerification fires when the post-write verification
	// read disagrees with the computed balance.
	ErrBalanceVerification = errors.New("balance verification failed after write")
)

// Sentinels used inside locked transactions to signal outcomes decided
// after the fresh re-read; translated to Results by the handlers.
var (
	errAlreadyApplied      = errors.New("already applied")
	errInsufficientBalance = errors.New("insufficient balance")
)

func processed(action string, fields map[string]interface{}) Result {
	return Result{Status: StatusProcessed, Action: action, Fields: fields}
}

func processedWithReason(action, reason string) Result {
	return Result{Status: StatusProcessed, Action: action, Reason: reason}
}

func ignored(action, reason string) Result {
	return Result{Status: StatusIgnored, Action: action, Reason: reason}
}

func rejected(action, reason string) Result {
	return Result{Status: StatusRejected, Action: action, Reason: reason}
}
