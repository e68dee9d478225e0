// Package merge implements lowest-common-ancestor search and three-way
// tree merging over the commit DAG (spec §4.7).
package merge

import (
	"context"
	"fmt"

	"github.com/mediavault/mediavault-core/internal/domain"
	"github.com/mediavault/mediavault-core/internal/oid"
)

// CommitLoader resolves a commit oid to its decoded Commit, the one thing
// LCA search and tree merging need from the object database.
type CommitLoader interface {
	Get(ctx context.Context, id oid.Oid) ([]byte, error)
}

func loadCommit(ctx context.Context, loader CommitLoader, id oid.Oid) (*domain.Commit, error) {
	data, err := loader.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("merge: load commit %s: %w", id, err)
	}
	return domain.DecodeCommit(data)
}

// ancestry is the result of a single BFS from one tip: every reachable
// commit's generation (distance from the tip, 0 being the tip itself).
type ancestry map[oid.Oid]int

func walkAncestry(ctx context.Context, loader CommitLoader, tip oid.Oid) (ancestry, error) {
	visited := ancestry{tip: 0}
	queue := []oid.Oid{tip}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		gen := visited[cur]

		commit, err := loadCommit(ctx, loader, cur)
		if err != nil {
			return nil, err
		}
		for _, parent := range commit.Parents {
			if existing, seen := visited[parent]; !seen || existing > gen+1 {
				visited[parent] = gen + 1
				queue = append(queue, parent)
			}
		}
	}
	return visited, nil
}

// FindLCAs returns every lowest common ancestor of a and b (spec §4.7:
// "two-way BFS from both tips, marking generation numbers"). More than one
// result means a criss-cross merge; Engine.Merge then uses the last LCA's
// tree as the base (see virtualBaseFlat).
func FindLCAs(ctx context.Context, loader CommitLoader, a, b oid.Oid) ([]oid.Oid, error) {
	if a == b {
		return []oid.Oid{a}, nil
	}

	ancestryA, err := walkAncestry(ctx, loader, a)
	if err != nil {
		return nil, err
	}
	ancestryB, err := walkAncestry(ctx, loader, b)
	if err != nil {
		return nil, err
	}

	var common []oid.Oid
	for id := range ancestryA {
		if _, ok := ancestryB[id]; ok {
			common = append(common, id)
		}
	}
	if len(common) == 0 {
		return nil, nil
	}

	// A common ancestor c is not "lowest" if some other common ancestor is
	// itself strictly between c and the tips — equivalently, if c is
	// reachable (an ancestor) of another common ancestor. Keep only the
	// ones nothing else in `common` can reach.
	isAncestorOfAny := make(map[oid.Oid]bool)
	for _, c := range common {
		reach, err := walkAncestry(ctx, loader, c)
		if err != nil {
			return nil, err
		}
		for _, other := range common {
			if other == c {
				continue
			}
			if _, ok := reach[other]; ok {
				isAncestorOfAny[other] = true
			}
		}
	}

	var lcas []oid.Oid
	for _, c := range common {
		if !isAncestorOfAny[c] {
			lcas = append(lcas, c)
		}
	}
	return lcas, nil
}
