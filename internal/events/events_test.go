package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventWireFormat(t *testing.T) {
	ev := Event{
		Type:       EventOrderPaid,
		Recipients: []string{"a", "b"},
		Payload:    map[string]any{"order_id": "o-1", "total": "80.00"},
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "order_paid", raw["type"])
	assert.Len(t, raw["recipients"], 2)
	assert.Equal(t, "80.00", raw["payload"].(map[string]any)["total"])
}

func TestLocalBusDeliversToSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewLocalBus()
	var got []string
	require.NoError(t, bus.Subscribe(ctx, StreamLedger, func(e Event) { got = append(got, e.Type) }))

	require.NoError(t, bus.Publish(ctx, StreamLedger, Event{Type: EventOrderPaid}))
	require.NoError(t, bus.Publish(ctx, "events:other", Event{Type: EventOrderShipped}))

	assert.Equal(t, []string{EventOrderPaid}, got)
}
