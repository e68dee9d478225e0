// Package refstore implements the ref namespace: branch pointers and HEAD,
// stored as small text records under storage.Backend's refs/ and HEAD keys
// (spec §3's storage layout). A ref either holds a 64-hex oid directly or
// the symbolic sentinel "ref: <path>\n" that HEAD carries by default.
package refstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mediavault/mediavault-core/internal/lock"
	"github.com/mediavault/mediavault-core/internal/oid"
	"github.com/mediavault/mediavault-core/internal/storage"
)

const symbolicPrefix = "ref: "

// defaultLockTTL bounds how long a crashed writer can hold a ref's CAS
// lock before it expires and another writer can proceed.
const defaultLockTTL = 10 * time.Second

// casLockRetries/casLockRetryDelay bound how long CAS waits for a
// concurrent ref update to finish before giving up with a conflict.
const (
	casLockRetries    = 5
	casLockRetryDelay = 50 * time.Millisecond
)

// headKey is the well-known name CAS/Resolve treat specially.
const headKey = "HEAD"

// Store reads and writes refs over a Backend, serializing compare-and-set
// updates through an advisory Locker so the single-writer invariant (spec
// §3 invariant 6) holds even across a Backend that has no native
// conditional-put primitive of its own.
type Store struct {
	backend storage.Backend
	paths   storage.PathConfig
	locker  lock.Locker
}

// NewStore builds a Store. locker may be lock.NewNoOpLocker() for a
// single-process deployment that needs no cross-process coordination.
func NewStore(backend storage.Backend, paths storage.PathConfig, locker lock.Locker) *Store {
	return &Store{backend: backend, paths: paths, locker: locker}
}

// Get returns the raw content of a ref (either a hex oid or a "ref: path"
// symbolic line), or storage.ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	r, err := s.backend.Get(ctx, s.paths.RefKey(name))
	if err != nil {
		return "", err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("refstore: read %s: %w", name, err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// Set writes raw content under a ref's key unconditionally. Used for the
// initial creation of a ref (no prior value to compare against) and for
// repointing HEAD's symbolic target (branch switch).
func (s *Store) Set(ctx context.Context, name, content string) error {
	key := s.paths.RefKey(name)
	payload := []byte(content + "\n")
	return s.backend.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)))
}

// SetSymbolic points name at target (e.g. HEAD at "refs/heads/main").
func (s *Store) SetSymbolic(ctx context.Context, name, target string) error {
	return s.Set(ctx, name, symbolicPrefix+target)
}

// SetOid points name directly at id.
func (s *Store) SetOid(ctx context.Context, name string, id oid.Oid) error {
	return s.Set(ctx, name, id.String())
}

// IsSymbolic reports whether content is a "ref: <path>" sentinel, and if
// so returns the path it points at.
func IsSymbolic(content string) (target string, ok bool) {
	if strings.HasPrefix(content, symbolicPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(content, symbolicPrefix)), true
	}
	return "", false
}

// Resolve follows symbolic refs (HEAD -> refs/heads/main -> oid) to a
// final oid, returning an error if the chain dangles or cycles.
func (s *Store) Resolve(ctx context.Context, name string) (oid.Oid, error) {
	const maxHops = 8
	cur := name
	for hop := 0; hop < maxHops; hop++ {
		content, err := s.Get(ctx, cur)
		if err != nil {
			return oid.Oid{}, fmt.Errorf("refstore: resolve %s: %w", name, err)
		}
		if target, ok := IsSymbolic(content); ok {
			cur = target
			continue
		}
		return oid.Parse(content)
	}
	return oid.Oid{}, fmt.Errorf("refstore: resolve %s: too many symbolic hops", name)
}

// ResolveHead is a convenience for Resolve(ctx, "HEAD").
func (s *Store) ResolveHead(ctx context.Context) (oid.Oid, error) {
	return s.Resolve(ctx, headKey)
}

// CurrentBranch returns the ref path HEAD currently points at ("" if HEAD
// is detached, i.e. holds a bare oid rather than a symbolic sentinel).
func (s *Store) CurrentBranch(ctx context.Context) (string, error) {
	content, err := s.Get(ctx, headKey)
	if err != nil {
		return "", err
	}
	target, ok := IsSymbolic(content)
	if !ok {
		return "", nil
	}
	return branchNameFromRefPath(target), nil
}

func branchNameFromRefPath(refPath string) string {
	const prefix = "refs/heads/"
	if strings.HasPrefix(refPath, prefix) {
		return strings.TrimPrefix(refPath, prefix)
	}
	return refPath
}

// CAS atomically moves the branch ref "name" from expectedOld to newOid,
// failing with storage.ErrCasConflict if the ref's current value does not
// match expectedOld (spec invariant 6). A zero expectedOld means "the ref
// must not currently exist" (first commit on a new branch).
func (s *Store) CAS(ctx context.Context, name string, expectedOld, newOid oid.Oid) error {
	key := "refstore:" + s.paths.RefKey(name)
	held, err := s.locker.AcquireWithRetry(ctx, key, defaultLockTTL, casLockRetries, casLockRetryDelay)
	if err != nil {
		return fmt.Errorf("refstore: acquire lock for %s: %w", name, err)
	}
	if !held {
		return storage.NewError(storage.KindCasConflict, "refstore.CAS", fmt.Errorf("could not acquire ref lock for %s", name))
	}
	defer func() { _, _ = s.locker.Release(ctx, key) }()

	current, err := s.Resolve(ctx, name)
	if err != nil && !storage.IsNotFound(err) {
		return err
	}

	if current != expectedOld {
		return storage.NewError(storage.KindCasConflict, "refstore.CAS",
			fmt.Errorf("ref %s is at %s, expected %s", name, current, expectedOld))
	}

	return s.SetOid(ctx, name, newOid)
}

// Delete removes a branch ref.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.backend.Delete(ctx, s.paths.RefKey(name))
}

// ListBranches returns every branch name under refs/heads/.
func (s *Store) ListBranches(ctx context.Context) ([]string, error) {
	prefix := s.paths.RefsPrefix + "/heads/"
	keys, err := s.backend.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, prefix))
	}
	return names, nil
}
