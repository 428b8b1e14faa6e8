package reconciliation

import (
	"testing"

	"cardledger/internal/models"
	"cardledger/internal/services/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardUpdatedMirrorsProviderSettings(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "usr_1", 1000)
	card := env.seedCard(t, user, "crd_1", 1000)

	frozen := true
	res := env.process(t, ResourceCard, ActionUpdated, map[string]interface{}{
		"card_reference":  "crd_1",
		"status":          models.CardStatusInactive,
		"spend_limit":     25000,
		"limit_frequency": "monthly",
		"frozen":          frozen,
	})
	require.Equal(t, StatusProcessed, res.Status)

	after, err := env.store.Cards().GetByID(card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardStatusInactive, after.Status)
	assert.EqualValues(t, 25000, after.SpendLimit)
	assert.Equal(t, "monthly", after.LimitFrequency)
	assert.True(t, after.Frozen)

	// No balance effect.
	assert.EqualValues(t, 1000, after.Balance)
}

func TestCardUpdatedUnknownStatusIgnored(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "usr_1", 1000)
	card := env.seedCard(t, user, "crd_1", 1000)

	res := env.process(t, ResourceCard, ActionUpdated, map[string]interface{}{
		"card_reference": "crd_1",
		"status":         "vaporized",
	})
	require.Equal(t, StatusIgnored, res.Status)
	assert.Equal(t, ReasonUnknownStatus, res.Reason)

	after, err := env.store.Cards().GetByID(card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardStatusActive, after.Status)
}

func TestCardUpdatedUnknownCard(t *testing.T) {
	env := newTestEnv(t)

	res := env.process(t, ResourceCard, ActionUpdated, map[string]interface{}{
		"card_reference": "crd_ghost",
		"status":         models.CardStatusActive,
	})
	require.Equal(t, StatusProcessed, res.Status)
	assert.Equal(t, ReasonCardNotFound, res.Reason)
}

func TestCardNotificationForwarded(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "usr_1", 1000)
	env.seedCard(t, user, "crd_1", 1000)

	res := env.process(t, ResourceCard, ActionNotification, map[string]interface{}{
		"card_reference": "crd_1",
		"kind":           "spend_alert",
		"message":        "Card used at Acme Books",
	})
	require.Equal(t, StatusProcessed, res.Status)

	require.Len(t, env.notifier.sent, 1)
	sent := env.notifier.sent[0]
	assert.Equal(t, uint(42), sent.Payload.UserID)
	assert.Equal(t, []notification.Channel{notification.ChannelPush}, sent.Channels)
	assert.Equal(t, "Card used at Acme Books", sent.Payload.Metadata["message"])
}

func TestUserApplicationDecisions(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "usr_1", 0)
	user.ApplicationStatus = models.CardUserStatusPending
	require.NoError(t, env.store.CardUsers().Update(user))

	res := env.process(t, ResourceUser, ActionApproved, map[string]interface{}{
		"user_reference": "usr_1",
	})
	require.Equal(t, StatusProcessed, res.Status)

	after, err := env.store.CardUsers().GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardUserStatusApproved, after.ApplicationStatus)

	res = env.process(t, ResourceUser, ActionDenied, map[string]interface{}{
		"user_reference": "usr_1",
		"reason":         "kyc failed",
	})
	require.Equal(t, StatusProcessed, res.Status)

	after, err = env.store.CardUsers().GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CardUserStatusDenied, after.ApplicationStatus)

	require.Len(t, env.notifier.sent, 2)
	assert.Equal(t, notification.TypeUserApproved, env.notifier.sent[0].Payload.NotificationType)
	assert.Equal(t, notification.TypeUserDenied, env.notifier.sent[1].Payload.NotificationType)
	assert.Equal(t, "kyc failed", env.notifier.sent[1].Payload.Metadata["reason"])
}

func TestContractCreatedRecordsReference(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "usr_1", 0)

	res := env.process(t, ResourceContract, ActionCreated, map[string]interface{}{
		"user_reference":     "usr_1",
		"contract_reference": "ctr_99",
	})
	require.Equal(t, StatusProcessed, res.Status)

	after, err := env.store.CardUsers().GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ctr_99", after.ContractRef)
}
