package shape

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectedMock() *MockClient {
	c := NewMockClient()
	c.SetConnected(true)
	return c
}

func TestPublisherEnabled(t *testing.T) {
	assert.False(t, NewPublisher(nil, "").Enabled())

	c := NewMockClient()
	p := NewPublisher(c, "")
	assert.False(t, p.Enabled())

	c.SetConnected(true)
	assert.True(t, p.Enabled())
}

func TestPublishPlacement(t *testing.T) {
	c := connectedMock()
	p := NewPublisher(c, "geoshift")

	pl := Placement{ShapeID: "hall", AnchorLon: 10, AnchorLat: 45, Rotation: 30, Timestamp: 1700000000}
	require.NoError(t, p.PublishPlacement(pl))

	msgs := c.PublishedMessages()
	require.Len(t, msgs, 2)

	assert.Equal(t, "geoshift/hall", msgs[0].Topic)
	assert.True(t, msgs[0].Retain, "per-shape placement should be retained")

	var got Placement
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &got))
	assert.Equal(t, pl, got)

	assert.Equal(t, "geoshift/placements", msgs[1].Topic)
	var all []Placement
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &all))
	require.Len(t, all, 1)
	assert.Equal(t, "hall", all[0].ShapeID)
}

func TestPublishPlacementDefaultPrefix(t *testing.T) {
	c := connectedMock()
	p := NewPublisher(c, "")

	require.NoError(t, p.PublishPlacement(Placement{ShapeID: "hall"}))
	msgs := c.PublishedMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "geoshift/hall", msgs[0].Topic)
}

func TestPublishPlacementCombinedAccumulates(t *testing.T) {
	c := connectedMock()
	p := NewPublisher(c, "geoshift")

	require.NoError(t, p.PublishPlacement(Placement{ShapeID: "a"}))
	require.NoError(t, p.PublishPlacement(Placement{ShapeID: "b"}))

	msgs := c.PublishedMessages()
	require.Len(t, msgs, 4)

	var all []Placement
	require.NoError(t, json.Unmarshal(msgs[3].Payload, &all))
	assert.Len(t, all, 2)
}

func TestPublishRemoval(t *testing.T) {
	c := connectedMock()
	p := NewPublisher(c, "geoshift")

	require.NoError(t, p.PublishPlacement(Placement{ShapeID: "hall"}))
	require.NoError(t, p.PublishRemoval("hall"))

	msgs := c.PublishedMessages()
	require.Len(t, msgs, 4)

	cleared := msgs[2]
	assert.Equal(t, "geoshift/hall", cleared.Topic)
	assert.Empty(t, cleared.Payload, "removal should clear the retained topic")
	assert.True(t, cleared.Retain)

	var all []Placement
	require.NoError(t, json.Unmarshal(msgs[3].Payload, &all))
	assert.Empty(t, all, "combined payload should drop the removed shape")
}

func TestPublishDisconnected(t *testing.T) {
	p := NewPublisher(NewMockClient(), "geoshift")
	assert.Error(t, p.PublishPlacement(Placement{ShapeID: "hall"}))
	assert.Error(t, p.PublishRemoval("hall"))
}

func TestPublishError(t *testing.T) {
	c := connectedMock()
	c.SetPublishError(errors.New("broker gone"))
	p := NewPublisher(c, "geoshift")

	assert.Error(t, p.PublishPlacement(Placement{ShapeID: "hall"}))
}

func TestConnectMQTTNoBroker(t *testing.T) {
	client, err := ConnectMQTT(MQTTConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}
