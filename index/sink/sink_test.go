package sink

import (
	"fmt"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockSinkRecords(t *testing.T) {
	m := &MockSink{}

	require.NoError(t, m.Publish("fanout.index.customer", "1", []byte("a")))
	require.NoError(t, m.Publish("fanout.index.customer", "2", []byte("b")))

	recorded := m.Recorded()
	require.Len(t, recorded, 2)
	assert.Equal(t, "fanout.index.customer", recorded[0].Topic)
	assert.Equal(t, "1", recorded[0].Key)
	assert.Equal(t, []byte("b"), recorded[1].Value)
}

func TestMockSinkPublishErr(t *testing.T) {
	m := &MockSink{PublishErr: fmt.Errorf("down")}

	assert.Error(t, m.Publish("t", "k", nil))
	assert.Empty(t, m.Recorded())
}

func TestNewKafkaSinkValidation(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{})
	assert.Error(t, err)

	s, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, DefaultKafkaBatchSize, s.writer.BatchSize)
	assert.Equal(t, int64(DefaultKafkaBatchBytes), s.writer.BatchBytes)
	assert.Equal(t, kafka.RequiredAcks(0), s.writer.RequiredAcks)
}

func TestSanitizeStreamName(t *testing.T) {
	assert.Equal(t, "fanout_index_customer", sanitizeStreamName("fanout.index.customer"))
	assert.Equal(t, "plain", sanitizeStreamName("plain"))
}
