package refstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediavault/mediavault-core/internal/lock"
	"github.com/mediavault/mediavault-core/internal/oid"
	"github.com/mediavault/mediavault-core/internal/storage"
	"github.com/mediavault/mediavault-core/internal/storage/memory"
)

func newTestStore() *Store {
	return NewStore(memory.New(), storage.DefaultPathConfig(), lock.NewMemoryLocker())
}

func TestHead_DefaultsSymbolicToMain(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.SetSymbolic(ctx, "HEAD", "refs/heads/main"))

	branch, err := s.CurrentBranch(ctx)
	require.NoError(t, err)
	require.Equal(t, "main", branch)
}

func TestCAS_FirstCommitOnNewBranch(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	id := oid.Of([]byte("first commit"))
	require.NoError(t, s.CAS(ctx, "main", oid.Zero, id))

	got, err := s.Resolve(ctx, "refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestCAS_RejectsStaleExpectedOld(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	first := oid.Of([]byte("c1"))
	second := oid.Of([]byte("c2"))
	require.NoError(t, s.CAS(ctx, "main", oid.Zero, first))

	err := s.CAS(ctx, "main", oid.Zero, second)
	require.Error(t, err)

	got, err := s.Resolve(ctx, "refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, first, got)
}

func TestResolveHead_FollowsSymbolicChain(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	id := oid.Of([]byte("root commit"))
	require.NoError(t, s.SetSymbolic(ctx, "HEAD", "refs/heads/main"))
	require.NoError(t, s.CAS(ctx, "main", oid.Zero, id))

	got, err := s.ResolveHead(ctx)
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestListBranches(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CAS(ctx, "main", oid.Zero, oid.Of([]byte("a"))))
	require.NoError(t, s.CAS(ctx, "feature", oid.Zero, oid.Of([]byte("b"))))

	names, err := s.ListBranches(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"main", "feature"}, names)
}

func TestDelete_RemovesBranch(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.CAS(ctx, "main", oid.Zero, oid.Of([]byte("a"))))
	require.NoError(t, s.Delete(ctx, "main"))

	_, err := s.Resolve(ctx, "refs/heads/main")
	require.Error(t, err)
}
