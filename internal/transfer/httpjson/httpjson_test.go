package httpjson

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/mediavault/mediavault-core/internal/domain"
	"github.com/mediavault/mediavault-core/internal/lock"
	"github.com/mediavault/mediavault-core/internal/merge"
	"github.com/mediavault/mediavault-core/internal/odb"
	"github.com/mediavault/mediavault-core/internal/oid"
	"github.com/mediavault/mediavault-core/internal/refstore"
	"github.com/mediavault/mediavault-core/internal/storage"
	"github.com/mediavault/mediavault-core/internal/storage/memory"
	"github.com/mediavault/mediavault-core/internal/transfer"
	"github.com/mediavault/mediavault-core/internal/workingtree"
)

var testAuthor = domain.Signature{Name: "tester", Email: "t@example.com"}

type repo struct {
	db      *odb.DB
	backend storage.Backend
	refs    *refstore.Store
	wt      *workingtree.WorkingTree
	afs     afero.Fs
}

func newRepo(t *testing.T) *repo {
	t.Helper()
	backend := memory.New()
	paths := storage.DefaultPathConfig()
	db := odb.New(backend, paths, nil, odb.DefaultConfig(), zerolog.Nop())
	refs := refstore.NewStore(backend, paths, lock.NewMemoryLocker())
	require.NoError(t, refs.SetSymbolic(context.Background(), "HEAD", "refs/heads/main"))
	afs := afero.NewMemMapFs()
	wt := workingtree.New(afs, "/repo", db, refs, workingtree.WithAuthor(testAuthor))
	return &repo{db: db, backend: backend, refs: refs, wt: wt, afs: afs}
}

func (r *repo) commit(t *testing.T, message string, files map[string]string) oid.Oid {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.afs.MkdirAll("/repo", 0o755))
	for path, content := range files {
		require.NoError(t, afero.WriteFile(r.afs, "/repo/"+path, []byte(content), 0o644))
		require.NoError(t, r.wt.Add(ctx, path))
	}
	commitOid, err := r.wt.Commit(ctx, message)
	require.NoError(t, err)
	return commitOid
}

func TestServerClient_PushAndPullRoundTrip(t *testing.T) {
	ctx := context.Background()
	local := newRepo(t)
	remote := newRepo(t)

	health := NewHealthChecker(remote.refs, remote.backend, zerolog.Nop())
	srv := NewServer(ServerConfig{
		DB:      remote.db,
		Refs:    remote.refs,
		Backend: remote.backend,
		Health:  health,
		Logger:  zerolog.Nop(),
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := NewClient(ts.URL, nil)

	tip := local.commit(t, "first", map[string]string{"a.txt": "hello world"})
	result, err := transfer.Push(ctx, local.db, client, tip, "refs/heads/main", transfer.Options{})
	require.NoError(t, err)
	require.Positive(t, result.Sent)

	remoteTip, err := remote.refs.Resolve(ctx, "refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, tip, remoteTip)

	other := newRepo(t)
	engine := merge.NewEngine(other.db, other.backend)
	pullResult, err := transfer.Pull(ctx, other.db, other.refs, engine, client, "refs/heads/main", "refs/heads/main", transfer.Options{}, merge.Options{Author: testAuthor})
	require.NoError(t, err)
	require.True(t, pullResult.FastForward)

	otherTip, err := other.refs.Resolve(ctx, "refs/heads/main")
	require.NoError(t, err)
	require.Equal(t, tip, otherTip)

	data, err := other.db.Get(ctx, tip)
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestHealthChecker_ReadinessOnEmptyRepo(t *testing.T) {
	remote := newRepo(t)
	health := NewHealthChecker(remote.refs, remote.backend, zerolog.Nop())
	srv := NewServer(ServerConfig{DB: remote.db, Refs: remote.refs, Backend: remote.backend, Health: health, Logger: zerolog.Nop()})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
}
