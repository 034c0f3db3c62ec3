package encoding

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/beandb/fanout/change"
)

// envelopeVersion is the first byte of every encoded envelope. Bump on any
// incompatible change to the wire format.
const envelopeVersion = 1

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	// EncodeAll/DecodeAll on shared instances are safe for concurrent use.
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("encoding: zstd encoder init: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("encoding: zstd decoder init: %v", err))
	}
}

// EncodeEnvelope serializes a remote transaction event for broadcast:
// msgpack body, zstd compressed, one leading version byte. The returned
// event ID is the xxhash64 of the payload; receivers use it for duplicate
// suppression and both sides use it in logs.
func EncodeEnvelope(evt *change.RemoteTransactionEvent) (payload []byte, eventID uint64, err error) {
	body, err := Marshal(evt)
	if err != nil {
		return nil, 0, fmt.Errorf("encode remote transaction event: %w", err)
	}

	payload = make([]byte, 1, len(body)/2+1)
	payload[0] = envelopeVersion
	payload = zstdEncoder.EncodeAll(body, payload)

	return payload, xxhash.Sum64(payload), nil
}

// DecodeEnvelope reverses EncodeEnvelope. The returned event ID matches the
// one computed by the sender for the same payload.
func DecodeEnvelope(payload []byte) (*change.RemoteTransactionEvent, uint64, error) {
	if len(payload) < 2 {
		return nil, 0, fmt.Errorf("envelope too short: %d bytes", len(payload))
	}
	if payload[0] != envelopeVersion {
		return nil, 0, fmt.Errorf("unsupported envelope version %d", payload[0])
	}

	body, err := zstdDecoder.DecodeAll(payload[1:], nil)
	if err != nil {
		return nil, 0, fmt.Errorf("decompress envelope: %w", err)
	}

	var evt change.RemoteTransactionEvent
	if err := Unmarshal(body, &evt); err != nil {
		return nil, 0, fmt.Errorf("decode remote transaction event: %w", err)
	}

	return &evt, xxhash.Sum64(payload), nil
}
