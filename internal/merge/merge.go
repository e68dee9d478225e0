package merge

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/mediavault/mediavault-core/internal/domain"
	"github.com/mediavault/mediavault-core/internal/odb"
	"github.com/mediavault/mediavault-core/internal/oid"
	"github.com/mediavault/mediavault-core/internal/refstore"
	"github.com/mediavault/mediavault-core/internal/storage"
)

// Options controls how Merge resolves conflicts and whether it insists on
// a merge commit even when a fast-forward is possible.
type Options struct {
	// StrategyFor picks the resolution strategy for a given path; nil
	// defaults to DefaultStrategyFor.
	StrategyFor func(path string) Strategy

	// NoFastForward forces a merge commit even when LCA == ours (spec
	// §4.7: "unless --no-ff is requested by the caller").
	NoFastForward bool

	Author domain.Signature
}

// Outcome reports what Merge actually did.
type Outcome struct {
	// FastForward is true when no merge commit was created. When ours is
	// an ancestor of theirs, CommitOid is zero and the ref is advanced to
	// theirs; when ours already contains theirs, CommitOid is ours.
	FastForward bool

	// CommitOid is the new merge commit's oid; for a FastForward outcome it
	// is zero or ours, as described above.
	CommitOid oid.Oid

	// Conflicts lists every path the configured strategy could not
	// resolve. A non-empty Conflicts means Merge did not produce a
	// commit — the caller should persist a MergeState and ask the user
	// to resolve these, then call Continue.
	Conflicts []Conflict
}

// Engine ties LCA search and three-way merge to an object database so it
// can load commits/trees and write the resulting merge commit, plus the
// raw storage backend used to persist a MergeState when conflicts need a
// human to resolve them.
type Engine struct {
	db      *odb.DB
	backend storage.Backend
}

// NewEngine builds an Engine over db, persisting merge state to backend.
func NewEngine(db *odb.DB, backend storage.Backend) *Engine {
	return &Engine{db: db, backend: backend}
}

// Merge merges theirs into ours, per spec §4.7: LCA search, three-way tree
// merge, strategy-based conflict resolution, and fast-forward detection.
// For a criss-cross with several LCAs, the base is the last LCA's tree
// (see virtualBaseFlat); the LCAs are not merged with one another.
func (e *Engine) Merge(ctx context.Context, ours, theirs oid.Oid, opts Options) (*Outcome, error) {
	if opts.StrategyFor == nil {
		opts.StrategyFor = DefaultStrategyFor
	}

	lcas, err := FindLCAs(ctx, e.db, ours, theirs)
	if err != nil {
		return nil, fmt.Errorf("merge: find LCA: %w", err)
	}
	if len(lcas) == 0 {
		return nil, fmt.Errorf("merge: no common ancestor between %s and %s", ours, theirs)
	}

	if !opts.NoFastForward && len(lcas) == 1 && lcas[0] == ours {
		return &Outcome{FastForward: true}, nil
	}
	if !opts.NoFastForward && len(lcas) == 1 && lcas[0] == theirs {
		// ours is already a descendant of theirs: nothing to do.
		return &Outcome{FastForward: true, CommitOid: ours}, nil
	}

	baseFlat, err := e.virtualBaseFlat(ctx, lcas)
	if err != nil {
		return nil, err
	}

	ourCommit, err := loadCommit(ctx, e.db, ours)
	if err != nil {
		return nil, err
	}
	theirCommit, err := loadCommit(ctx, e.db, theirs)
	if err != nil {
		return nil, err
	}
	oursFlat, err := e.flattenCommitTree(ctx, ourCommit)
	if err != nil {
		return nil, err
	}
	theirsFlat, err := e.flattenCommitTree(ctx, theirCommit)
	if err != nil {
		return nil, err
	}

	result := ThreeWayMerge(baseFlat, oursFlat, theirsFlat)

	unresolved := e.applyStrategies(result, opts.StrategyFor, ourCommit, theirCommit)
	if len(unresolved) > 0 {
		state := &MergeState{
			Ours:   ours,
			Theirs: theirs,
			Base:   lcas,
			Merged: result.Merged,
			Author: opts.Author,
		}
		for _, c := range unresolved {
			state.Conflicts = append(state.Conflicts, PendingConflict{Path: c.Path, Kind: c.Kind})
		}
		if err := SaveState(ctx, e.backend, state); err != nil {
			return nil, fmt.Errorf("merge: persist state: %w", err)
		}
		return &Outcome{Conflicts: unresolved}, nil
	}

	commitOid, err := e.writeMergeCommit(ctx, result.Merged, []oid.Oid{ours, theirs}, opts.Author)
	if err != nil {
		return nil, err
	}
	return &Outcome{CommitOid: commitOid}, nil
}

// applyStrategies resolves every conflict in result via strategyFor,
// folding resolved paths into result.Merged (or deleting them) in place
// and returning whatever the chosen strategy could not resolve.
func (e *Engine) applyStrategies(result Result, strategyFor func(string) Strategy, ourCommit, theirCommit *domain.Commit) []Conflict {
	var unresolved []Conflict
	for _, c := range result.Conflicts {
		strategy := strategyFor(c.Path)
		res, ok := Resolve(strategy, c, ourCommit, theirCommit)
		if !ok {
			unresolved = append(unresolved, c)
			continue
		}
		if res.Deleted {
			delete(result.Merged, c.Path)
		} else {
			result.Merged[c.Path] = res.Entry
		}
	}
	return unresolved
}

// Continue resumes a merge previously stopped on unresolved conflicts.
// resolutions must supply an entry for every path in the persisted
// MergeState's Conflicts (deleted paths included as a zero-value
// Resolution{Deleted: true}); any path missing a resolution keeps the
// merge pending. On full resolution it writes the merge commit and clears
// the state.
func (e *Engine) Continue(ctx context.Context, resolutions map[string]Resolution) (*Outcome, error) {
	state, err := LoadState(ctx, e.backend)
	if err != nil {
		return nil, fmt.Errorf("merge: load pending state: %w", err)
	}

	var stillPending []PendingConflict
	for _, c := range state.Conflicts {
		res, ok := resolutions[c.Path]
		if !ok {
			stillPending = append(stillPending, c)
			continue
		}
		if res.Deleted {
			delete(state.Merged, c.Path)
		} else {
			state.Merged[c.Path] = res.Entry
		}
	}

	if len(stillPending) > 0 {
		state.Conflicts = stillPending
		if err := SaveState(ctx, e.backend, state); err != nil {
			return nil, fmt.Errorf("merge: persist state: %w", err)
		}
		var remaining []Conflict
		for _, c := range stillPending {
			remaining = append(remaining, Conflict{Path: c.Path, Kind: c.Kind})
		}
		return &Outcome{Conflicts: remaining}, nil
	}

	commitOid, err := e.writeMergeCommit(ctx, state.Merged, []oid.Oid{state.Ours, state.Theirs}, state.Author)
	if err != nil {
		return nil, err
	}
	if err := ClearState(ctx, e.backend); err != nil {
		return nil, fmt.Errorf("merge: clear state: %w", err)
	}
	return &Outcome{CommitOid: commitOid}, nil
}

// MergeBranch merges theirs into the named branch's current tip and, on a
// clean result (fast-forward or a fully auto-resolved merge commit),
// compare-and-sets the branch ref onto the outcome. A non-empty
// Outcome.Conflicts means the ref was left untouched — the state has
// already been persisted for a later Continue plus a second call here (or
// a direct CAS) once every path is resolved.
func (e *Engine) MergeBranch(ctx context.Context, refs *refstore.Store, branch string, theirs oid.Oid, opts Options) (*Outcome, error) {
	ours, err := refs.Resolve(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("merge: resolve branch %s: %w", branch, err)
	}

	outcome, err := e.Merge(ctx, ours, theirs, opts)
	if err != nil {
		return nil, err
	}
	if len(outcome.Conflicts) > 0 {
		return outcome, nil
	}

	newTip := outcome.CommitOid
	if outcome.FastForward && newTip == (oid.Oid{}) {
		newTip = theirs
	}
	if err := refs.CAS(ctx, branch, ours, newTip); err != nil {
		return nil, fmt.Errorf("merge: update ref %s: %w", branch, err)
	}
	return outcome, nil
}

// virtualBaseFlat computes the merge base as a flat path map. It folds the
// LCAs through ThreeWayMerge with ours==theirs==next, which yields next's
// tree unchanged, so with several LCAs the result is the last LCA's tree;
// the LCA trees are not merged with one another.
func (e *Engine) virtualBaseFlat(ctx context.Context, lcas []oid.Oid) (map[string]FlatEntry, error) {
	commit, err := loadCommit(ctx, e.db, lcas[0])
	if err != nil {
		return nil, err
	}
	acc, err := e.flattenCommitTree(ctx, commit)
	if err != nil {
		return nil, err
	}

	for _, next := range lcas[1:] {
		nextCommit, err := loadCommit(ctx, e.db, next)
		if err != nil {
			return nil, err
		}
		nextFlat, err := e.flattenCommitTree(ctx, nextCommit)
		if err != nil {
			return nil, err
		}
		merged := ThreeWayMerge(acc, nextFlat, nextFlat)
		acc = merged.Merged
	}
	return acc, nil
}

func (e *Engine) flattenCommitTree(ctx context.Context, commit *domain.Commit) (map[string]FlatEntry, error) {
	data, err := e.db.Get(ctx, commit.TreeOid)
	if err != nil {
		return nil, fmt.Errorf("merge: load tree %s: %w", commit.TreeOid, err)
	}
	tree, err := domain.DecodeTree(data)
	if err != nil {
		return nil, fmt.Errorf("merge: decode tree %s: %w", commit.TreeOid, err)
	}
	return Flatten(ctx, e.db, tree, "")
}

// writeMergeCommit rebuilds a nested Tree from a flat path map and writes
// a two-parent commit over it.
func (e *Engine) writeMergeCommit(ctx context.Context, flat map[string]FlatEntry, parents []oid.Oid, author domain.Signature) (oid.Oid, error) {
	root := newMergeDirNode()
	for p, entry := range flat {
		root.insert(p, entry)
	}
	treeOid, err := root.write(ctx, e.db)
	if err != nil {
		return oid.Oid{}, err
	}

	commit := &domain.Commit{
		TreeOid:   treeOid,
		Parents:   parents,
		Author:    author,
		Committer: author,
		Timestamp: time.Now().UTC(),
		Message:   "merge",
	}
	encoded, err := commit.Encode()
	if err != nil {
		return oid.Oid{}, fmt.Errorf("merge: encode commit: %w", err)
	}
	res, err := e.db.Put(ctx, bytes.NewReader(encoded), odb.PutOptions{Name: "commit.cbor"})
	if err != nil {
		return oid.Oid{}, fmt.Errorf("merge: store commit: %w", err)
	}
	return res.Oid, nil
}
