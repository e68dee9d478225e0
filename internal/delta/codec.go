package delta

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Encode serializes d to CBOR. Deltas are not themselves content-addressed
// by the hash of this encoding — the object database already knows the
// target's authoritative oid before it ever builds a Delta — so this uses
// plain (non-canonical) CBOR rather than domain's canonical encoder.
func (d *Delta) Encode() ([]byte, error) {
	return cbor.Marshal(d)
}

// DecodeDelta parses CBOR bytes produced by Delta.Encode.
func DecodeDelta(data []byte) (*Delta, error) {
	var d Delta
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// EncodeEnvelope packs d and its accompanying literal-data stream into one
// self-delimiting byte string: a 4-byte big-endian length of the encoded
// Delta, the encoded Delta, then the literal bytes verbatim.
func EncodeEnvelope(d *Delta, literal []byte) ([]byte, error) {
	encoded, err := d.Encode()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4+len(encoded)+len(literal))
	binary.BigEndian.PutUint32(out[:4], uint32(len(encoded)))
	copy(out[4:], encoded)
	copy(out[4+len(encoded):], literal)
	return out, nil
}

// DecodeEnvelope is the inverse of EncodeEnvelope, splitting the delta and
// its literal-data stream back apart.
func DecodeEnvelope(data []byte) (d *Delta, literal []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("delta: envelope truncated")
	}
	n := binary.BigEndian.Uint32(data[:4])
	if int(4+n) > len(data) {
		return nil, nil, fmt.Errorf("delta: envelope length %d exceeds payload", n)
	}
	d, err = DecodeDelta(data[4 : 4+n])
	if err != nil {
		return nil, nil, err
	}
	return d, data[4+n:], nil
}
