package transfer

import (
	"errors"

	"github.com/mediavault/mediavault-core/internal/storage"
)

// ErrRefNotFound is the error a RemotePeer.ResolveRef implementation
// should wrap when the requested ref does not exist on the peer — Push
// treats this as "first push to a new branch" rather than a failure.
var ErrRefNotFound = errors.New("transfer: ref not found on peer")

// ErrNonFastForward is returned when a peer's CasRef rejects an update
// because its current value no longer matches the caller's expected prior
// value (spec §4.8: "if CAS fails, non-fast-forward, abort unless force").
var ErrNonFastForward = errors.New("transfer: non-fast-forward update rejected")

func isRemoteRefMissing(err error) bool {
	return errors.Is(err, ErrRefNotFound) || storage.IsNotFound(err)
}
