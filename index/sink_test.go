package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beandb/fanout/cfg"
)

func TestNewSinkUnknownType(t *testing.T) {
	_, err := NewSink(cfg.IndexConfiguration{QueueSink: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unknown sink type")
}

func TestRegisterSink(t *testing.T) {
	sink := &testSink{}
	RegisterSink("test-sink", func(cfg.IndexConfiguration) (Sink, error) {
		return sink, nil
	})

	got, err := NewSink(cfg.IndexConfiguration{QueueSink: "test-sink"})
	require.NoError(t, err)
	assert.Same(t, Sink(sink), got)
}
