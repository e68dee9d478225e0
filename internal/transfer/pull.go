package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/mediavault/mediavault-core/internal/domain"
	"github.com/mediavault/mediavault-core/internal/merge"
	"github.com/mediavault/mediavault-core/internal/odb"
	"github.com/mediavault/mediavault-core/internal/oid"
	"github.com/mediavault/mediavault-core/internal/refstore"
	"github.com/mediavault/mediavault-core/internal/storage"
)

// PullResult reports what a Pull actually moved and how the local ref
// ended up being updated.
type PullResult struct {
	Fetched      int
	FetchedBytes int64
	FastForward  bool
	MergeOutcome *merge.Outcome
}

// pullItem is one pending node in the discovery walk: an oid together with
// the shape we already know it has, because the parent that referenced it
// told us (a commit names its tree oid; a tree entry carries a Kind).
type pullItem struct {
	id   oid.Oid
	kind objectKind
}

// Pull implements spec §4.8's Pull(remote, remote_ref, local_ref): resolve
// the remote ref, walk the object graph from its tip fetching only the
// commits/trees not already present locally (an oid already local is
// assumed to have everything it depends on local too, since odb never
// writes an object before its dependencies), download the resulting leaf
// blobs through a bounded worker pool, then either fast-forward the local
// ref or hand off to the merge engine. Interrupting a Pull midway and
// retrying only re-fetches what local still doesn't have, since discovery
// re-checks db.Exists for every node before touching the network.
func Pull(ctx context.Context, db *odb.DB, refs *refstore.Store, engine *merge.Engine, peer RemotePeer, remoteRefName, localRefName string, opts Options, mergeOpts merge.Options) (*PullResult, error) {
	remoteTip, err := peer.ResolveRef(ctx, remoteRefName)
	if err != nil {
		return nil, fmt.Errorf("transfer: resolve remote ref %s: %w", remoteRefName, err)
	}

	localTip, err := refs.Resolve(ctx, localRefName)
	hadLocal := err == nil
	if err != nil && !storage.IsNotFound(err) {
		return nil, fmt.Errorf("transfer: resolve local ref %s: %w", localRefName, err)
	}
	if hadLocal && localTip == remoteTip {
		return &PullResult{FastForward: true}, nil
	}

	leaves, fetched, fetchedBytes, err := discoverMissing(ctx, db, peer, remoteTip)
	if err != nil {
		return nil, err
	}
	if len(leaves) > 0 {
		n, nBytes, err := downloadObjects(ctx, db, peer, leaves, opts.concurrency())
		if err != nil {
			return nil, err
		}
		fetched += n
		fetchedBytes += nBytes
	}

	result := &PullResult{Fetched: fetched, FetchedBytes: fetchedBytes}

	if !hadLocal {
		if err := refs.CAS(ctx, localRefName, oid.Zero, remoteTip); err != nil {
			return nil, fmt.Errorf("transfer: cas local ref %s: %w", localRefName, err)
		}
		result.FastForward = true
		return result, nil
	}

	outcome, err := engine.MergeBranch(ctx, refs, localRefName, remoteTip, mergeOpts)
	if err != nil {
		return nil, fmt.Errorf("transfer: merge remote tip into %s: %w", localRefName, err)
	}
	result.MergeOutcome = outcome
	result.FastForward = outcome.FastForward
	return result, nil
}

// discoverMissing walks the graph rooted at remoteTip, fetching and
// storing any commit/tree object not already local in order to learn its
// children, and returns the blob-level leaves still missing without
// fetching their (possibly large) content yet — that is left to
// downloadObjects' worker pool.
func discoverMissing(ctx context.Context, db *odb.DB, peer RemotePeer, remoteTip oid.Oid) (leaves []oid.Oid, fetched int, fetchedBytes int64, err error) {
	seen := map[oid.Oid]bool{}
	queue := []pullItem{{id: remoteTip, kind: shapeCommit}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if seen[item.id] {
			continue
		}
		seen[item.id] = true

		exists, err := db.Exists(ctx, item.id)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("transfer: check local existence of %s: %w", item.id, err)
		}
		if exists {
			continue
		}

		if item.kind == shapeBlob {
			leaves = append(leaves, item.id)
			continue
		}

		data, err := fetchAndStore(ctx, db, peer, item.id)
		if err != nil {
			return nil, 0, 0, err
		}
		fetched++
		fetchedBytes += int64(len(data))

		switch item.kind {
		case shapeCommit:
			commit, derr := domain.DecodeCommit(data)
			if derr != nil {
				return nil, 0, 0, fmt.Errorf("transfer: decode commit %s: %w", item.id, derr)
			}
			queue = append(queue, pullItem{id: commit.TreeOid, kind: shapeTree})
			for _, p := range commit.Parents {
				queue = append(queue, pullItem{id: p, kind: shapeCommit})
			}
		case shapeTree:
			tree, derr := domain.DecodeTree(data)
			if derr != nil {
				return nil, 0, 0, fmt.Errorf("transfer: decode tree %s: %w", item.id, derr)
			}
			for _, e := range tree.Entries {
				childKind := shapeBlob
				if e.Kind == domain.KindTree {
					childKind = shapeTree
				}
				queue = append(queue, pullItem{id: e.Oid, kind: childKind})
			}
		}
	}

	return leaves, fetched, fetchedBytes, nil
}

// fetchAndStore pulls one object's content from peer and writes it through
// db.Put, which recomputes the object's oid from the bytes it actually
// received — a mismatch against id means the peer sent corrupt or wrong
// content, and is reported rather than silently trusted.
func fetchAndStore(ctx context.Context, db *odb.DB, peer RemotePeer, id oid.Oid) ([]byte, error) {
	r, err := peer.FetchObject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("transfer: fetch %s: %w", id, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("transfer: read %s: %w", id, err)
	}

	res, err := db.Put(ctx, bytes.NewReader(data), odb.PutOptions{})
	if err != nil {
		return nil, fmt.Errorf("transfer: store %s: %w", id, err)
	}
	if res.Oid != id {
		return nil, fmt.Errorf("transfer: peer sent content for %s that hashes to %s", id, res.Oid)
	}
	return data, nil
}

// downloadObjects fetches every oid in want through a bounded worker pool,
// storing each through db.Put (which verifies the content against its own
// oid the same way fetchAndStore does for structural objects).
func downloadObjects(ctx context.Context, db *odb.DB, peer RemotePeer, want []oid.Oid, concurrency int) (int, int64, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	results := make([][]byte, len(want))
	for i, id := range want {
		i, id := i, id
		g.Go(func() error {
			data, err := fetchAndStore(gctx, db, peer, id)
			if err != nil {
				return err
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	var totalBytes int64
	for _, data := range results {
		totalBytes += int64(len(data))
	}
	return len(want), totalBytes, nil
}
