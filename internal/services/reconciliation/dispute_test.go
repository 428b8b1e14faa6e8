package reconciliation

import (
	"testing"

	"cardledger/internal/models"
	"cardledger/internal/services/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func disputeCreatedBody(disputeRef, txRef string) map[string]interface{} {
	return map[string]interface{}{
		"dispute_reference":     disputeRef,
		"transaction_reference": txRef,
		"status":                "pending",
		"evidence":              "cardholder claims non-delivery",
	}
}

func (env *testEnv) seedSpend(t *testing.T, ref string) {
	t.Helper()
	user := env.seedUser(t, "usr_"+ref, 5000)
	env.seedCard(t, user, "crd_"+ref, 5000)
	res := env.process(t, ResourceTransaction, ActionCreated, spendBody(ref, "usr_"+ref, "crd_"+ref, 1000, "successful", ""))
	require.Equal(t, StatusProcessed, res.Status)
	require.Empty(t, res.Reason)
}

func TestDisputeCreated(t *testing.T) {
	env := newTestEnv(t)
	env.seedSpend(t, "sp_1")

	res := env.process(t, ResourceDispute, ActionCreated, disputeCreatedBody("dp_1", "sp_1"))
	require.Equal(t, StatusProcessed, res.Status)
	assert.Empty(t, res.Reason)

	dispute, err := env.store.Disputes().GetByProviderRef("dp_1")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusPending, dispute.Status)
	assert.Equal(t, "cardholder claims non-delivery", dispute.Evidence)
	assert.Nil(t, dispute.ResolvedAt)

	events := env.store.DisputeEvents(dispute.ID)
	require.Len(t, events, 1)
	assert.Equal(t, models.DisputeEventCreated, events[0].Kind)
	assert.Equal(t, models.DisputeStatusPending, events[0].NewStatus)
}

func TestDisputeCreatedUnknownTransaction(t *testing.T) {
	env := newTestEnv(t)

	res := env.process(t, ResourceDispute, ActionCreated, disputeCreatedBody("dp_1", "sp_ghost"))
	require.Equal(t, StatusProcessed, res.Status)
	assert.Equal(t, ReasonTransactionNotFound, res.Reason)
}

func TestDisputeCreatedReplayIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedSpend(t, "sp_1")
	env.process(t, ResourceDispute, ActionCreated, disputeCreatedBody("dp_1", "sp_1"))

	replay := env.process(t, ResourceDispute, ActionCreated, disputeCreatedBody("dp_1", "sp_1"))
	require.Equal(t, StatusProcessed, replay.Status)
	assert.Equal(t, ReasonDisputeExists, replay.Reason)

	dispute, err := env.store.Disputes().GetByProviderRef("dp_1")
	require.NoError(t, err)
	assert.Len(t, env.store.DisputeEvents(dispute.ID), 1)
}

func TestDisputeUpdatedLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seedSpend(t, "sp_1")
	env.process(t, ResourceDispute, ActionCreated, disputeCreatedBody("dp_1", "sp_1"))

	res := env.process(t, ResourceDispute, ActionUpdated, map[string]interface{}{
		"dispute_reference": "dp_1",
		"status":            models.DisputeStatusInReview,
	})
	require.Equal(t, StatusProcessed, res.Status)
	assert.Equal(t, true, res.Fields["status_changed"])

	res = env.process(t, ResourceDispute, ActionUpdated, map[string]interface{}{
		"dispute_reference": "dp_1",
		"status":            models.DisputeStatusAccepted,
	})
	require.Equal(t, StatusProcessed, res.Status)

	dispute, err := env.store.Disputes().GetByProviderRef("dp_1")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusAccepted, dispute.Status)
	require.NotNil(t, dispute.ResolvedAt)

	events := env.store.DisputeEvents(dispute.ID)
	require.Len(t, events, 3)
	assert.Equal(t, models.DisputeStatusInReview, events[1].NewStatus)
	assert.Equal(t, models.DisputeStatusPending, events[1].PreviousStatus)
	assert.Equal(t, models.DisputeStatusAccepted, events[2].NewStatus)

	var disputeNotices int
	for _, sent := range env.notifier.sent {
		if sent.Payload.NotificationType == notification.TypeDisputeUpdated {
			disputeNotices++
		}
	}
	assert.Equal(t, 2, disputeNotices)
}

func TestDisputeUpdatedSameStatusAppendsNoEvent(t *testing.T) {
	env := newTestEnv(t)
	env.seedSpend(t, "sp_1")
	env.process(t, ResourceDispute, ActionCreated, disputeCreatedBody("dp_1", "sp_1"))

	res := env.process(t, ResourceDispute, ActionUpdated, map[string]interface{}{
		"dispute_reference": "dp_1",
		"status":            models.DisputeStatusPending,
	})
	require.Equal(t, StatusProcessed, res.Status)
	assert.Equal(t, false, res.Fields["status_changed"])

	dispute, err := env.store.Disputes().GetByProviderRef("dp_1")
	require.NoError(t, err)
	assert.Len(t, env.store.DisputeEvents(dispute.ID), 1)
}

func TestDisputeUpdatedIllegalTransition(t *testing.T) {
	env := newTestEnv(t)
	env.seedSpend(t, "sp_1")
	env.process(t, ResourceDispute, ActionCreated, disputeCreatedBody("dp_1", "sp_1"))
	env.process(t, ResourceDispute, ActionUpdated, map[string]interface{}{
		"dispute_reference": "dp_1",
		"status":            models.DisputeStatusRejected,
	})

	res := env.process(t, ResourceDispute, ActionUpdated, map[string]interface{}{
		"dispute_reference": "dp_1",
		"status":            models.DisputeStatusInReview,
	})
	require.Equal(t, StatusProcessed, res.Status)
	assert.Equal(t, ReasonIllegalTransition, res.Reason)

	dispute, err := env.store.Disputes().GetByProviderRef("dp_1")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusRejected, dispute.Status)
}

func TestDisputeUpdatedUnknownDispute(t *testing.T) {
	env := newTestEnv(t)

	res := env.process(t, ResourceDispute, ActionUpdated, map[string]interface{}{
		"dispute_reference": "dp_ghost",
		"status":            models.DisputeStatusInReview,
	})
	require.Equal(t, StatusProcessed, res.Status)
	assert.Equal(t, ReasonDisputeNotFound, res.Reason)
}
