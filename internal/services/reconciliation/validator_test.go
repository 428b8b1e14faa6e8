package reconciliation

import (
	"testing"

	"cardledger/internal/models"

	"github.com/stretchr/testify/assert"
)

func storedSpend(status string, amount int64) (*models.CardTransaction, *models.Transaction) {
	ct := &models.CardTransaction{
		Amount:   amount,
		Currency: "USD",
		Status:   status,
	}
	tx := &models.Transaction{
		Amount:   amount,
		Currency: "USD",
	}
	switch status {
	case models.CardTransactionStatusSuccessful:
		tx.Status = models.TransactionStatusCompleted
	case models.CardTransactionStatusDeclined:
		tx.Status = models.TransactionStatusFailed
		ct.Amount = 0
		tx.Amount = 0
	default:
		tx.Status = models.TransactionStatusPending
	}
	return ct, tx
}

func TestValidateUpdate(t *testing.T) {
	tests := []struct {
		name       string
		stored     string
		storedAmt  int64
		in         incoming
		wantV      Verdict
		wantReason string
	}{
		{
			name:  "first sighting proceeds",
			in:    incoming{Status: ProviderStatusPending, Amount: 100},
			wantV: VerdictProceed,
		},
		{
			name:      "pending to successful",
			stored:    models.CardTransactionStatusPending,
			storedAmt: 100,
			in:        incoming{Status: ProviderStatusSuccessful, Amount: 100},
			wantV:     VerdictProceedAsUpdate,
		},
		{
			name:      "pending to completed",
			stored:    models.CardTransactionStatusPending,
			storedAmt: 100,
			in:        incoming{Status: ProviderStatusCompleted, Amount: 100},
			wantV:     VerdictProceedAsUpdate,
		},
		{
			name:       "successful back to pending is illegal",
			stored:     models.CardTransactionStatusSuccessful,
			storedAmt:  100,
			in:         incoming{Status: ProviderStatusPending, Amount: 100},
			wantV:      VerdictReject,
			wantReason: ReasonIllegalTransition,
		},
		{
			name:       "declined to successful is illegal",
			stored:     models.CardTransactionStatusDeclined,
			in:         incoming{Status: ProviderStatusSuccessful, Amount: 100},
			wantV:      VerdictReject,
			wantReason: ReasonIllegalTransition,
		},
		{
			name:       "identical redelivery is a safe duplicate",
			stored:     models.CardTransactionStatusSuccessful,
			storedAmt:  100,
			in:         incoming{Status: ProviderStatusSuccessful, Amount: 100},
			wantV:      VerdictSkipDuplicate,
			wantReason: ReasonAlreadyProcessed,
		},
		{
			name:       "completed redelivery of settled spend is a safe duplicate",
			stored:     models.CardTransactionStatusSuccessful,
			storedAmt:  100,
			in:         incoming{Status: ProviderStatusCompleted, Amount: 100},
			wantV:      VerdictSkipDuplicate,
			wantReason: ReasonAlreadyProcessed,
		},
		{
			name:      "amount drift inside tolerance",
			stored:    models.CardTransactionStatusPending,
			storedAmt: 1000,
			in:        incoming{Status: ProviderStatusPending, Amount: 1099},
			wantV:     VerdictProceedAsUpdate,
		},
		{
			name:       "amount drift beyond tolerance",
			stored:     models.CardTransactionStatusPending,
			storedAmt:  1000,
			in:         incoming{Status: ProviderStatusPending, Amount: 1101},
			wantV:      VerdictReject,
			wantReason: ReasonAmountMismatch,
		},
		{
			name:      "tolerance floor of one minor unit",
			stored:    models.CardTransactionStatusPending,
			storedAmt: 5,
			in:        incoming{Status: ProviderStatusPending, Amount: 6},
			wantV:     VerdictProceedAsUpdate,
		},
		{
			name:       "nonzero amount on failed status",
			stored:     models.CardTransactionStatusPending,
			storedAmt:  1000,
			in:         incoming{Status: ProviderStatusDeclined, Amount: 1000},
			wantV:      VerdictReject,
			wantReason: ReasonNonzeroFailedAmount,
		},
		{
			name:      "decline of a pending spend proceeds",
			stored:    models.CardTransactionStatusPending,
			storedAmt: 1000,
			in:        incoming{Status: ProviderStatusReversed, Amount: 0},
			wantV:     VerdictProceedAsUpdate,
		},
		{
			name:       "declined redelivery is a safe duplicate",
			stored:     models.CardTransactionStatusDeclined,
			in:         incoming{Status: ProviderStatusDeclined, Amount: 0},
			wantV:      VerdictSkipDuplicate,
			wantReason: ReasonAlreadyProcessed,
		},
		{
			name:       "currency mismatch",
			stored:     models.CardTransactionStatusPending,
			storedAmt:  1000,
			in:         incoming{Status: ProviderStatusPending, Amount: 1000, Currency: "EUR"},
			wantV:      VerdictReject,
			wantReason: ReasonCurrencyMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				ct *models.CardTransaction
				tx *models.Transaction
			)
			if tt.stored != "" {
				ct, tx = storedSpend(tt.stored, tt.storedAmt)
			}
			d := validateUpdate(ct, tx, tt.in)
			assert.Equal(t, tt.wantV, d.Verdict)
			assert.Equal(t, tt.wantReason, d.Reason)
		})
	}
}

func TestAmountTolerance(t *testing.T) {
	assert.EqualValues(t, 1, amountTolerance(0))
	assert.EqualValues(t, 1, amountTolerance(9))
	assert.EqualValues(t, 1, amountTolerance(10))
	assert.EqualValues(t, 10, amountTolerance(100))
	assert.EqualValues(t, 250, amountTolerance(2500))
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, models.CardTransactionStatusSuccessful, cardStatus(ProviderStatusCompleted))
	assert.Equal(t, models.CardTransactionStatusDeclined, cardStatus(ProviderStatusReversed))
	assert.Equal(t, models.CardTransactionStatusPending, cardStatus(""))
	assert.Equal(t, models.TransactionStatusFailed, ledgerStatus(ProviderStatusDeclined))
	assert.Equal(t, models.TransactionStatusCompleted, ledgerStatus(ProviderStatusSuccessful))
	assert.True(t, isFailedStatus(ProviderStatusReversed))
	assert.False(t, isFailedStatus(ProviderStatusCompleted))
}
