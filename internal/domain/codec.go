package domain

import (
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// canonicalEncMode serializes every object type in this package using CBOR's
// canonical form (RFC 7049 §3.9: length-first sorted map keys, shortest-form integers,
// no indefinite-length items), so two processes that build the same logical
// object always produce byte-identical encodings and therefore the same
// oid. This is load-bearing: commits/trees/tags are content-addressed by
// the hash of their own encoding.
var canonicalEncMode = sync.OnceValue(func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("domain: building canonical cbor encoder: %v", err))
	}
	return mode
})

func marshalCanonical(v interface{}) ([]byte, error) {
	return canonicalEncMode().Marshal(v)
}

func unmarshalCanonical(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}
