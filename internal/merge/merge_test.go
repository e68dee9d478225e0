package merge

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/mediavault/mediavault-core/internal/domain"
	"github.com/mediavault/mediavault-core/internal/lock"
	"github.com/mediavault/mediavault-core/internal/odb"
	"github.com/mediavault/mediavault-core/internal/refstore"
	"github.com/mediavault/mediavault-core/internal/storage"
	"github.com/mediavault/mediavault-core/internal/storage/memory"
	"github.com/mediavault/mediavault-core/internal/workingtree"
)

var testAuthor = domain.Signature{Name: "tester", Email: "t@example.com"}

func newTestRig(t *testing.T) (*workingtree.WorkingTree, *refstore.Store, *odb.DB, storage.Backend, afero.Fs) {
	t.Helper()
	backend := memory.New()
	paths := storage.DefaultPathConfig()
	db := odb.New(backend, paths, nil, odb.DefaultConfig(), zerolog.Nop())
	refs := refstore.NewStore(backend, paths, lock.NewMemoryLocker())
	require.NoError(t, refs.SetSymbolic(context.Background(), "HEAD", "refs/heads/main"))

	afs := afero.NewMemMapFs()
	wt := workingtree.New(afs, "/repo", db, refs, workingtree.WithAuthor(testAuthor))
	return wt, refs, db, backend, afs
}

func writeAndCommit(t *testing.T, wt *workingtree.WorkingTree, afs afero.Fs, message string, files map[string]string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, afs.MkdirAll("/repo", 0o755))
	for path, content := range files {
		require.NoError(t, afero.WriteFile(afs, "/repo/"+path, []byte(content), 0o644))
		require.NoError(t, wt.Add(ctx, path))
	}
	_, err := wt.Commit(ctx, message)
	require.NoError(t, err)
}

func TestMerge_FastForward(t *testing.T) {
	wt, refs, db, backend, afs := newTestRig(t)
	ctx := context.Background()

	writeAndCommit(t, wt, afs, "base", map[string]string{"a.txt": "one"})
	base, err := refs.ResolveHead(ctx)
	require.NoError(t, err)

	writeAndCommit(t, wt, afs, "advance", map[string]string{"b.txt": "two"})
	tip, err := refs.ResolveHead(ctx)
	require.NoError(t, err)

	engine := NewEngine(db, backend)
	outcome, err := engine.Merge(ctx, base, tip, Options{Author: testAuthor})
	require.NoError(t, err)
	require.True(t, outcome.FastForward)
	require.Empty(t, outcome.Conflicts)
}

func TestMerge_CleanAutoMergeOfIndependentAdditions(t *testing.T) {
	wt, refs, db, backend, afs := newTestRig(t)
	ctx := context.Background()

	writeAndCommit(t, wt, afs, "base", map[string]string{"shared.txt": "base content"})
	base, err := refs.ResolveHead(ctx)
	require.NoError(t, err)

	require.NoError(t, refs.SetOid(ctx, "refs/heads/feature", base))

	writeAndCommit(t, wt, afs, "ours", map[string]string{"ours.txt": "from ours"})
	ours, err := refs.ResolveHead(ctx)
	require.NoError(t, err)

	require.NoError(t, refs.SetSymbolic(ctx, "HEAD", "refs/heads/feature"))
	wt2 := workingtree.New(afs, "/repo2", db, refs, workingtree.WithAuthor(testAuthor))
	require.NoError(t, afs.MkdirAll("/repo2", 0o755))
	require.NoError(t, afero.WriteFile(afs, "/repo2/shared.txt", []byte("base content"), 0o644))
	require.NoError(t, afero.WriteFile(afs, "/repo2/theirs.txt", []byte("from theirs"), 0o644))
	require.NoError(t, wt2.Add(ctx, "shared.txt"))
	require.NoError(t, wt2.Add(ctx, "theirs.txt"))
	_, err = wt2.Commit(ctx, "theirs")
	require.NoError(t, err)
	theirs, err := refs.Resolve(ctx, "refs/heads/feature")
	require.NoError(t, err)

	engine := NewEngine(db, backend)
	outcome, err := engine.Merge(ctx, ours, theirs, Options{Author: testAuthor})
	require.NoError(t, err)
	require.Empty(t, outcome.Conflicts)
	require.False(t, outcome.FastForward)
	require.False(t, outcome.CommitOid.IsZero())

	data, err := db.Get(ctx, outcome.CommitOid)
	require.NoError(t, err)
	commit, err := domain.DecodeCommit(data)
	require.NoError(t, err)
	require.Len(t, commit.Parents, 2)

	treeData, err := db.Get(ctx, commit.TreeOid)
	require.NoError(t, err)
	tree, err := domain.DecodeTree(treeData)
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, e := range tree.Entries {
		names[e.Name] = true
	}
	require.True(t, names["shared.txt"])
	require.True(t, names["ours.txt"])
	require.True(t, names["theirs.txt"])
}

func TestMerge_ConflictResolvedByOursStrategy(t *testing.T) {
	wt, refs, db, backend, afs := newTestRig(t)
	ctx := context.Background()

	writeAndCommit(t, wt, afs, "base", map[string]string{"a.txt": "base content"})
	base, err := refs.ResolveHead(ctx)
	require.NoError(t, err)
	require.NoError(t, refs.SetOid(ctx, "refs/heads/feature", base))

	writeAndCommit(t, wt, afs, "ours change", map[string]string{"a.txt": "ours content"})
	ours, err := refs.ResolveHead(ctx)
	require.NoError(t, err)

	require.NoError(t, refs.SetSymbolic(ctx, "HEAD", "refs/heads/feature"))
	wt2 := workingtree.New(afs, "/repo2", db, refs, workingtree.WithAuthor(testAuthor))
	require.NoError(t, afs.MkdirAll("/repo2", 0o755))
	require.NoError(t, afero.WriteFile(afs, "/repo2/a.txt", []byte("theirs content"), 0o644))
	require.NoError(t, wt2.Add(ctx, "a.txt"))
	_, err = wt2.Commit(ctx, "theirs change")
	require.NoError(t, err)
	theirs, err := refs.Resolve(ctx, "refs/heads/feature")
	require.NoError(t, err)

	engine := NewEngine(db, backend)
	always := func(string) Strategy { return StrategyOurs }
	outcome, err := engine.Merge(ctx, ours, theirs, Options{Author: testAuthor, StrategyFor: always})
	require.NoError(t, err)
	require.Empty(t, outcome.Conflicts)
	require.False(t, outcome.CommitOid.IsZero())

	commitData, err := db.Get(ctx, outcome.CommitOid)
	require.NoError(t, err)
	commit, err := domain.DecodeCommit(commitData)
	require.NoError(t, err)
	treeData, err := db.Get(ctx, commit.TreeOid)
	require.NoError(t, err)
	tree, err := domain.DecodeTree(treeData)
	require.NoError(t, err)
	entry, ok := tree.Find("a.txt")
	require.True(t, ok)

	blobData, err := db.Get(ctx, entry.Oid)
	require.NoError(t, err)
	require.Equal(t, "ours content", string(blobData))
}

func TestMerge_UnresolvedManualConflictPersistsState(t *testing.T) {
	wt, refs, db, backend, afs := newTestRig(t)
	ctx := context.Background()

	writeAndCommit(t, wt, afs, "base", map[string]string{"a.txt": "base content"})
	base, err := refs.ResolveHead(ctx)
	require.NoError(t, err)
	require.NoError(t, refs.SetOid(ctx, "refs/heads/feature", base))

	writeAndCommit(t, wt, afs, "ours change", map[string]string{"a.txt": "ours content"})
	ours, err := refs.ResolveHead(ctx)
	require.NoError(t, err)

	require.NoError(t, refs.SetSymbolic(ctx, "HEAD", "refs/heads/feature"))
	wt2 := workingtree.New(afs, "/repo2", db, refs, workingtree.WithAuthor(testAuthor))
	require.NoError(t, afs.MkdirAll("/repo2", 0o755))
	require.NoError(t, afero.WriteFile(afs, "/repo2/a.txt", []byte("theirs content"), 0o644))
	require.NoError(t, wt2.Add(ctx, "a.txt"))
	_, err = wt2.Commit(ctx, "theirs change")
	require.NoError(t, err)
	theirs, err := refs.Resolve(ctx, "refs/heads/feature")
	require.NoError(t, err)

	engine := NewEngine(db, backend)
	manual := func(string) Strategy { return StrategyManual }
	outcome, err := engine.Merge(ctx, ours, theirs, Options{Author: testAuthor, StrategyFor: manual})
	require.NoError(t, err)
	require.Len(t, outcome.Conflicts, 1)
	require.Equal(t, "a.txt", outcome.Conflicts[0].Path)

	pending, err := HasPendingMerge(ctx, backend)
	require.NoError(t, err)
	require.True(t, pending)

	state, err := LoadState(ctx, backend)
	require.NoError(t, err)
	require.Equal(t, ours, state.Ours)
	require.Equal(t, theirs, state.Theirs)
	require.Len(t, state.Conflicts, 1)

	resolvedOid, err := db.Put(ctx, strings.NewReader("resolved by hand"), odb.PutOptions{Name: "a.txt"})
	require.NoError(t, err)

	outcome2, err := engine.Continue(ctx, map[string]Resolution{
		"a.txt": {Entry: FlatEntry{Oid: resolvedOid.Oid, Size: int64(len("resolved by hand"))}},
	})
	require.NoError(t, err)
	require.Empty(t, outcome2.Conflicts)
	require.False(t, outcome2.CommitOid.IsZero())

	stillPending, err := HasPendingMerge(ctx, backend)
	require.NoError(t, err)
	require.False(t, stillPending)
}
