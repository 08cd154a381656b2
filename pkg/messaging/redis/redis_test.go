package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoclinic/clinic-api/pkg/messaging"
)

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := NewClient(ctx, Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	broker := NewRedisBroker(client, zerolog.Nop())
	msgs, err := broker.Subscribe(ctx, "clinic.events")
	require.NoError(t, err)

	msg, err := messaging.NewMessage("patient_notification", map[string]int64{"appointment_id": 11})
	require.NoError(t, err)
	require.NoError(t, broker.Publish(ctx, "clinic.events", msg))

	select {
	case got := <-msgs:
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, "patient_notification", got.Type)
		assert.JSONEq(t, `{"appointment_id":11}`, string(got.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), Config{URL: "not-a-url"})
	assert.Error(t, err)
}
