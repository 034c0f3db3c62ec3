package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beandb/fanout/change"
)

func buildEvent(t *testing.T) *change.RemoteTransactionEvent {
	t.Helper()
	b := change.NewBuilder()
	b.AddInsert("customer", int64(1), nil)
	b.AddUpdate("customer", int64(2), []string{"name"}, nil)
	b.AddDelete("order", int64(3))
	b.AddTableEvent("o_raw", 0, 4, 0)
	b.AddDeleteByID("product", int64(5))
	return change.NewRemoteTransactionEvent("node-a", b.Seal())
}

func TestEnvelopeRoundTrip(t *testing.T) {
	evt := buildEvent(t)

	payload, eventID, err := EncodeEnvelope(evt)
	require.NoError(t, err)
	require.NotEmpty(t, payload)
	require.NotZero(t, eventID)

	decoded, decodedID, err := DecodeEnvelope(payload)
	require.NoError(t, err)

	assert.Equal(t, eventID, decodedID)
	assert.Equal(t, "node-a", decoded.OriginServer)
	require.Len(t, decoded.BeanIDs, 2)
	assert.Equal(t, []change.TableIUD{{Table: "o_raw", Updates: 4}}, decoded.TableEvents)
	require.Len(t, decoded.DeleteByID["product"], 1)

	// Identity values survive as int64 through loose interface decoding.
	set := decoded.ToChangeSet()
	require.Len(t, set.Inserted(), 1)
	assert.EqualValues(t, 1, set.Inserted()[0].ID)
	assert.True(t, set.FromCluster())
}

func TestEnvelopeEventIDStable(t *testing.T) {
	evt := buildEvent(t)

	p1, id1, err := EncodeEnvelope(evt)
	require.NoError(t, err)
	p2, id2, err := EncodeEnvelope(evt)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, id1, id2)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, _, err := DecodeEnvelope(nil)
	assert.Error(t, err)

	_, _, err = DecodeEnvelope([]byte{})
	assert.Error(t, err)

	// Wrong version byte.
	payload, _, err := EncodeEnvelope(buildEvent(t))
	require.NoError(t, err)
	payload[0] = 99
	_, _, err = DecodeEnvelope(payload)
	assert.ErrorContains(t, err, "unsupported envelope version")

	// Corrupted compressed body.
	_, _, err = DecodeEnvelope([]byte{1, 0xde, 0xad, 0xbe, 0xef})
	assert.Error(t, err)
}
