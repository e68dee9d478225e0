package transfer

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mediavault/mediavault-core/internal/oid"
)

// Options tunes the worker count Push/Pull use to stream objects (spec
// §4.8: "N parallel object workers, configurable, default = CPU count").
type Options struct {
	Concurrency int
}

func (o Options) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return runtime.NumCPU()
}

// PushResult reports what a Push actually moved.
type PushResult struct {
	Sent      int
	SentBytes int64
}

// Push implements spec §4.8's Push(remote, local_ref, remote_ref) exactly:
// ask the remote what it already has reachable from its current ref tip,
// compute want = reachable(local) - have, stream want through bounded-
// concurrency workers, then CAS the remote ref. A commit only becomes
// visible on the remote once every object it needs is already present
// there — Push always streams before it CASes.
func Push(ctx context.Context, db ObjectStore, peer RemotePeer, localRef oid.Oid, remoteRefName string, opts Options) (*PushResult, error) {
	remoteTip, err := peer.ResolveRef(ctx, remoteRefName)
	hadRemoteTip := err == nil
	if err != nil && !isRemoteRefMissing(err) {
		return nil, fmt.Errorf("transfer: resolve remote ref %s: %w", remoteRefName, err)
	}

	var have map[oid.Oid]bool
	if hadRemoteTip {
		have, err = peer.Have(ctx, remoteTip)
		if err != nil {
			return nil, fmt.Errorf("transfer: query remote have-set: %w", err)
		}
	} else {
		have = map[oid.Oid]bool{}
	}

	localReachable, err := ReachableOids(ctx, db, localRef)
	if err != nil {
		return nil, fmt.Errorf("transfer: compute local reachable set: %w", err)
	}

	var want []oid.Oid
	for id := range localReachable {
		if !have[id] {
			want = append(want, id)
		}
	}

	result := &PushResult{}
	if len(want) > 0 {
		sent, sentBytes, err := streamObjects(ctx, db, peer, want, opts.concurrency())
		if err != nil {
			return nil, err
		}
		result.Sent = sent
		result.SentBytes = sentBytes
	}

	expectedOld := oid.Zero
	if hadRemoteTip {
		expectedOld = remoteTip
	}
	if err := peer.CasRef(ctx, remoteRefName, expectedOld, localRef); err != nil {
		return nil, fmt.Errorf("transfer: cas remote ref %s: %w", remoteRefName, err)
	}
	return result, nil
}

// streamObjects uploads every oid in want to peer through a bounded
// worker pool, each worker reading the object's bytes from db and pushing
// them verbatim. Object order is unconstrained (spec §4.8: "ordering
// between objects is unconstrained"); content-addressing makes it safe.
func streamObjects(ctx context.Context, db ObjectStore, peer RemotePeer, want []oid.Oid, concurrency int) (int, int64, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var sent int64
	var sentBytes int64
	for _, id := range want {
		id := id
		g.Go(func() error {
			data, err := db.Get(gctx, id)
			if err != nil {
				return fmt.Errorf("transfer: read %s: %w", id, err)
			}
			if err := peer.PushObject(gctx, id, int64(len(data)), bytes.NewReader(data)); err != nil {
				return fmt.Errorf("transfer: push %s: %w", id, err)
			}
			atomic.AddInt64(&sent, 1)
			atomic.AddInt64(&sentBytes, int64(len(data)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	return int(sent), sentBytes, nil
}
