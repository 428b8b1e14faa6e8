package reconciliation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessWebhookMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.engine.ProcessWebhook(context.Background(), []byte("{not json"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, "malformed body", res.Error)
}

func TestProcessWebhookUnknownEventIsIgnored(t *testing.T) {
	env := newTestEnv(t)

	res := env.process(t, "subscription", ActionCreated, map[string]interface{}{"id": "sub_1"})
	assert.Equal(t, StatusIgnored, res.Status)
	assert.Equal(t, ReasonUnknownEvent, res.Reason)

	res = env.process(t, ResourceTransaction, "archived", map[string]interface{}{"reference": "sp_1"})
	assert.Equal(t, StatusIgnored, res.Status)
}

func TestProcessWebhookMalformedPayload(t *testing.T) {
	env := newTestEnv(t)

	// Known pair, but the payload does not decode into its event.
	res, err := env.engine.ProcessWebhook(context.Background(),
		[]byte(`{"resource":"transaction","action":"created","data":{"amount":"not-a-number"}}`))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, "malformed payload", res.Error)
}

func TestProcessWebhookActionLabel(t *testing.T) {
	env := newTestEnv(t)

	res := env.process(t, "subscription", "created", map[string]interface{}{})
	assert.Equal(t, "subscription.created", res.Action)
}
