package workingtree

import (
	"context"
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
)

func newTestTree(t *testing.T) (*WorkingTree, afero.Fs) {
	t.Helper()
	afs := afero.NewMemMapFs()
	db := odb.New(memory.New(), storage.DefaultPathConfig(), nil, odb.DefaultConfig(), zerolog.Nop())
	refs := refstore.NewStore(memory.New(), storage.DefaultPathConfig(), lock.NewMemoryLocker())
	require.NoError(t, refs.SetSymbolic(context.Background(), "HEAD", "refs/heads/main"))

	wt := New(afs, "/repo", db, refs, WithAuthor(domain.Signature{Name: "tester", Email: "t@example.com"}))
	return wt, afs
}

func writeFile(t *testing.T, afs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afs.MkdirAll("/repo", 0o755))
	require.NoError(t, afero.WriteFile(afs, "/repo/"+path, []byte(content), 0o644))
}

func TestAdd_Commit_RoundTrip(t *testing.T) {
	wt, afs := newTestTree(t)
	ctx := context.Background()

	writeFile(t, afs, "a.txt", "hello world")
	writeFile(t, afs, "dir/b.txt", "nested content")

	require.NoError(t, wt.Add(ctx, "a.txt"))
	require.NoError(t, wt.Add(ctx, "dir/b.txt"))

	commitOid, err := wt.Commit(ctx, "first commit")
	require.NoError(t, err)
	require.False(t, commitOid.IsZero())

	head, err := wt.refs.ResolveHead(ctx)
	require.NoError(t, err)
	require.Equal(t, commitOid, head)
}

func TestStatus_DetectsUntrackedModifiedDeleted(t *testing.T) {
	wt, afs := newTestTree(t)
	ctx := context.Background()

	writeFile(t, afs, "a.txt", "version one")
	require.NoError(t, wt.Add(ctx, "a.txt"))
	_, err := wt.Commit(ctx, "c1")
	require.NoError(t, err)

	writeFile(t, afs, "b.txt", "new file")

	status, err := wt.Status(ctx, nil)
	require.NoError(t, err)
	require.Contains(t, status.Untracked, "b.txt")
}

func TestCheckout_NoopWhenAlreadyAtTarget(t *testing.T) {
	wt, afs := newTestTree(t)
	ctx := context.Background()

	writeFile(t, afs, "a.txt", "content")
	require.NoError(t, wt.Add(ctx, "a.txt"))
	commitOid, err := wt.Commit(ctx, "c1")
	require.NoError(t, err)

	stats, err := wt.Checkout(ctx, commitOid)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Added)
	require.Equal(t, 0, stats.Modified)
	require.Equal(t, 0, stats.Removed)
}

func TestCheckout_AppliesDifferentialChanges(t *testing.T) {
	wt, afs := newTestTree(t)
	ctx := context.Background()

	writeFile(t, afs, "a.txt", "v1")
	writeFile(t, afs, "b.txt", "stays the same")
	require.NoError(t, wt.Add(ctx, "a.txt"))
	require.NoError(t, wt.Add(ctx, "b.txt"))
	first, err := wt.Commit(ctx, "c1")
	require.NoError(t, err)

	writeFile(t, afs, "a.txt", "v2")
	require.NoError(t, wt.Add(ctx, "a.txt"))
	second, err := wt.Commit(ctx, "c2")
	require.NoError(t, err)

	stats, err := wt.Checkout(ctx, first)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Modified)
	require.Equal(t, 1, stats.Unchanged)

	content, err := afero.ReadFile(afs, "/repo/a.txt")
	require.NoError(t, err)
	require.Equal(t, "v1", string(content))

	stats, err = wt.Checkout(ctx, second)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Modified)
}
