package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClientPublishRecordsAndLoopsBack(t *testing.T) {
	c := NewFakeClient()
	require.NoError(t, c.Publish(context.Background(), "symbion/agents/command@v1", 1, []byte(`{"a":1}`)))

	published := c.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "symbion/agents/command@v1", published[0].Topic)

	select {
	case msg := <-c.Incoming():
		assert.Equal(t, published[0], msg)
	default:
		t.Fatal("expected published message to loop back onto Incoming")
	}
}

func TestFakeClientPublishAfterCloseFails(t *testing.T) {
	c := NewFakeClient()
	require.NoError(t, c.Close(context.Background()))

	err := c.Publish(context.Background(), "t", 0, nil)
	assert.Error(t, err)
}

func TestFakeClientReconnectCounter(t *testing.T) {
	c := NewFakeClient()
	assert.Equal(t, uint64(0), c.Reconnects())
	c.SimulateReconnect()
	c.SimulateReconnect()
	assert.Equal(t, uint64(2), c.Reconnects())
}

func TestFakeClientDeliverBypassesPublish(t *testing.T) {
	c := NewFakeClient()
	c.Deliver(Message{Topic: "symbion/kernel/health@v1", Payload: []byte("{}")})

	msg := <-c.Incoming()
	assert.Equal(t, "symbion/kernel/health@v1", msg.Topic)
	assert.Empty(t, c.Published())
}
