// Package encoding provides centralized serialization for fanout. ALL wire
// encoding of remote transaction events goes through this package so every
// node agrees on the byte format.
//
// Thread Safety: all functions are safe for concurrent use.
//
// Type Preservation: when decoding into interface{}, msgpack strings decode
// as Go strings (not []byte) and integers as int64. Identity values
// round-tripped through the cluster are used as cache keys; the cache store
// normalizes integer identities to int64 so a decoded id matches one cached
// under a plain int.
package encoding

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Marshal encodes a value to msgpack format.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal decodes msgpack data using loose interface decoding. When
// decoding into interface{}, strings are preserved as Go strings (not
// []byte), which keeps string identities usable as cache keys after a
// cluster round trip.
func Unmarshal(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)

	return dec.Decode(v)
}
