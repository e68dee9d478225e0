// Package httpjson implements transfer.RemotePeer over HTTP with a small
// JSON control protocol and raw-byte object bodies, the way the teacher's
// internal/handler exposes its S3 surface over HTTP with a JSON error body
// and raw-byte object bodies.
package httpjson

import "github.com/mediavault/mediavault-core/internal/oid"

// resolveRefResponse is the body of GET /refs/{name}.
type resolveRefResponse struct {
	Oid string `json:"oid"`
}

// haveRequest is the body of POST /objects/have.
type haveRequest struct {
	Tip string `json:"tip"`
}

// haveResponse is the body of POST /objects/have.
type haveResponse struct {
	Oids []string `json:"oids"`
}

// wantRequest is the body of POST /objects/want.
type wantRequest struct {
	Candidates []string `json:"candidates"`
}

// wantResponse is the body of POST /objects/want.
type wantResponse struct {
	Oids []string `json:"oids"`
}

// casRefRequest is the body of POST /refs/{name}.
type casRefRequest struct {
	ExpectedOld string `json:"expected_old"`
	New         string `json:"new"`
}

// errorResponse is the body of any non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

func encodeOids(ids map[oid.Oid]bool) []string {
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id.String())
	}
	return out
}

func encodeOidSlice(ids []oid.Oid) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func decodeOidSlice(ss []string) ([]oid.Oid, error) {
	out := make([]oid.Oid, len(ss))
	for i, s := range ss {
		id, err := oid.Parse(s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
