package transfer

import (
	"context"
	"io"

	"github.com/mediavault/mediavault-core/internal/oid"
)

// RemotePeer is the transport abstraction Push/Pull negotiate over,
// generalized from the teacher's internal/cluster.NodeClient
// (Ping/TransferBlob/RetrieveBlob/BlobExists reshaped from node-storage
// verbs into peer-repository verbs: a peer answers in terms of refs and
// reachable object sets, not raw blob storage).
type RemotePeer interface {
	// ResolveRef returns the oid a named ref currently points to on the
	// peer, or an ErrNotFound-kind error if the ref does not exist there.
	ResolveRef(ctx context.Context, name string) (oid.Oid, error)

	// Have returns every oid reachable from tip that the peer already
	// has, used to compute want = reachable_oids(local) - have.
	Have(ctx context.Context, tip oid.Oid) (map[oid.Oid]bool, error)

	// Want returns, of the candidate oids, the ones the peer does NOT yet
	// have. Push and Pull in this package do not call it; Pull checks
	// its own object database instead.
	Want(ctx context.Context, candidates []oid.Oid) ([]oid.Oid, error)

	// FetchObject streams one object's raw content-addressed bytes from
	// the peer (post-odb decode: the exact bytes oid.Of would reproduce).
	FetchObject(ctx context.Context, id oid.Oid) (io.ReadCloser, error)

	// PushObject streams one object's raw bytes to the peer.
	PushObject(ctx context.Context, id oid.Oid, size int64, r io.Reader) error

	// CasRef compare-and-sets name on the peer from expectedOld to newOid.
	// A mismatch is reported the same way internal/refstore.CAS reports
	// one, so callers can share conflict-handling logic.
	CasRef(ctx context.Context, name string, expectedOld, newOid oid.Oid) error
}
