package workingtree

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/mediavault/mediavault-core/internal/delta"
	"github.com/mediavault/mediavault-core/internal/domain"
	"github.com/mediavault/mediavault-core/internal/odb"
	"github.com/mediavault/mediavault-core/internal/oid"
	"github.com/mediavault/mediavault-core/internal/refstore"
)

// StatusSet partitions the tracked/untracked universe the way spec §4.6's
// status() operation does.
type StatusSet struct {
	Staged    []string
	Modified  []string
	Untracked []string
	Deleted   []string
}

// CheckoutStats reports what a differential Checkout actually touched.
type CheckoutStats struct {
	Added     int
	Modified  int
	Removed   int
	Unchanged int
	Elapsed   time.Duration
}

// WorkingTree ties a staging Index to an object database, a ref store, and
// an afero filesystem (the real OS filesystem in production, an in-memory
// one in tests), implementing add/status/commit/checkout (spec §4.6).
type WorkingTree struct {
	fs   afero.Fs
	root string

	db   *odb.DB
	refs *refstore.Store

	index *Index

	author domain.Signature

	// maxConcurrency bounds how many files Status/Add hash in parallel
	// (spec §4.6: "parallelized across available CPU cores").
	maxConcurrency int
}

// Option configures a WorkingTree at construction.
type Option func(*WorkingTree)

// WithMaxConcurrency overrides the default hashing worker count.
func WithMaxConcurrency(n int) Option {
	return func(wt *WorkingTree) {
		if n > 0 {
			wt.maxConcurrency = n
		}
	}
}

// WithAuthor sets the signature Commit stamps onto new commits.
func WithAuthor(sig domain.Signature) Option {
	return func(wt *WorkingTree) { wt.author = sig }
}

// New builds a WorkingTree rooted at root on filesystem afs, backed by db
// and refs, starting from an empty index.
func New(afs afero.Fs, root string, db *odb.DB, refs *refstore.Store, opts ...Option) *WorkingTree {
	wt := &WorkingTree{
		fs:             afs,
		root:           root,
		db:             db,
		refs:           refs,
		index:          NewIndex(),
		maxConcurrency: 8,
	}
	for _, opt := range opts {
		opt(wt)
	}
	return wt
}

// Index exposes the current staging area, primarily for persistence by the
// caller (encode/decode is the caller's concern — workingtree only mutates
// it in memory).
func (wt *WorkingTree) Index() *Index { return wt.index }

// LoadIndex replaces the in-memory index, used when resuming a session
// against a previously persisted index.
func (wt *WorkingTree) LoadIndex(idx *Index) { wt.index = idx }

func (wt *WorkingTree) fullPath(relPath string) string {
	return path.Join(wt.root, relPath)
}

// Add hashes, chunks/compresses, and stores path's current contents, then
// stages the resulting entry in the index (spec §4.6: add(path)).
func (wt *WorkingTree) Add(ctx context.Context, relPath string) error {
	f, err := wt.fs.Open(wt.fullPath(relPath))
	if err != nil {
		return fmt.Errorf("workingtree: open %s: %w", relPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("workingtree: stat %s: %w", relPath, err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("workingtree: read %s: %w", relPath, err)
	}

	res, err := wt.db.Put(ctx, bytes.NewReader(data), wt.putOptionsFor(relPath))
	if err != nil {
		return fmt.Errorf("workingtree: store %s: %w", relPath, err)
	}

	wt.index.Set(relPath, IndexEntry{
		Oid:   res.Oid,
		Size:  info.Size(),
		Mtime: info.ModTime(),
		Mode:  uint32(domain.ModeFile),
	})
	return nil
}

// putOptionsFor supplies a delta base when the path was already tracked,
// so re-adding a changed file gets a chance at delta encoding against its
// own prior version.
func (wt *WorkingTree) putOptionsFor(relPath string) odb.PutOptions {
	opts := odb.PutOptions{
		Name:       relPath,
		AssetClass: delta.ClassifyExtension(strings.TrimPrefix(path.Ext(relPath), ".")),
	}
	if prior, ok := wt.index.Get(relPath); ok {
		opts.Base = prior.Oid
	}
	return opts
}

// AddAll walks every regular file under the working tree root and Adds it,
// using the same parallel-hashing pool Status uses.
func (wt *WorkingTree) AddAll(ctx context.Context) error {
	paths, err := wt.walkFiles()
	if err != nil {
		return err
	}
	return wt.addParallel(ctx, paths)
}

func (wt *WorkingTree) addParallel(ctx context.Context, paths []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(wt.maxConcurrency)

	var mu sync.Mutex
	for _, p := range paths {
		p := p
		g.Go(func() error {
			data, info, err := wt.readFile(p)
			if err != nil {
				return err
			}
			res, err := wt.db.Put(ctx, bytes.NewReader(data), wt.putOptionsFor(p))
			if err != nil {
				return fmt.Errorf("workingtree: store %s: %w", p, err)
			}
			mu.Lock()
			wt.index.Set(p, IndexEntry{Oid: res.Oid, Size: info.Size(), Mtime: info.ModTime(), Mode: uint32(domain.ModeFile)})
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (wt *WorkingTree) readFile(relPath string) ([]byte, fs.FileInfo, error) {
	f, err := wt.fs.Open(wt.fullPath(relPath))
	if err != nil {
		return nil, nil, fmt.Errorf("workingtree: open %s: %w", relPath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("workingtree: stat %s: %w", relPath, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, fmt.Errorf("workingtree: read %s: %w", relPath, err)
	}
	return data, info, nil
}

func (wt *WorkingTree) walkFiles() ([]string, error) {
	var paths []string
	err := afero.Walk(wt.fs, wt.root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(p, wt.root), "/")
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workingtree: walk: %w", err)
	}
	return paths, nil
}

// statusEntry is the per-path classification result computed in parallel,
// collected afterward into a StatusSet.
type statusEntry struct {
	path  string
	class string // "untracked", "modified", "staged"
}

// Status compares the working files against the index (size/mtime
// short-circuit, re-hash on mismatch, parallelized across
// maxConcurrency workers) and the index against HEAD's tree, producing the
// four sets spec §4.6 names.
func (wt *WorkingTree) Status(ctx context.Context, headTree *domain.Tree) (StatusSet, error) {
	onDisk, err := wt.walkFiles()
	if err != nil {
		return StatusSet{}, err
	}
	onDiskSet := make(map[string]bool, len(onDisk))
	for _, p := range onDisk {
		onDiskSet[p] = true
	}

	var headEntries map[string]flatEntry
	if headTree != nil {
		headEntries = make(map[string]flatEntry)
		if err := flattenTree(ctx, wt.db, headTree, "", headEntries); err != nil {
			return StatusSet{}, err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(wt.maxConcurrency)

	results := make(chan statusEntry, len(onDisk))
	for _, p := range onDisk {
		p := p
		g.Go(func() error {
			entry, tracked := wt.index.Get(p)
			if !tracked {
				results <- statusEntry{path: p, class: "untracked"}
				return nil
			}

			info, err := wt.fs.Stat(wt.fullPath(p))
			if err != nil {
				return fmt.Errorf("workingtree: stat %s: %w", p, err)
			}

			// Only re-hash when size or mtime disagrees with the index
			// (spec §4.6: "only re-hash on mismatch") — this is the
			// whole point of tracking both in IndexEntry.
			if info.Size() != entry.Size || !info.ModTime().Equal(entry.Mtime) {
				data, _, err := wt.readFile(p)
				if err != nil {
					return err
				}
				if oid.Of(data) != entry.Oid {
					results <- statusEntry{path: p, class: "modified"}
					return nil
				}
			}

			if head, ok := headEntries[p]; !ok || head.oid != entry.Oid {
				results <- statusEntry{path: p, class: "staged"}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return StatusSet{}, err
	}
	close(results)

	var set StatusSet
	for r := range results {
		switch r.class {
		case "untracked":
			set.Untracked = append(set.Untracked, r.path)
		case "modified":
			set.Modified = append(set.Modified, r.path)
		case "staged":
			set.Staged = append(set.Staged, r.path)
		}
	}

	for _, p := range wt.index.Paths() {
		if !onDiskSet[p] {
			set.Deleted = append(set.Deleted, p)
		}
	}

	sort.Strings(set.Staged)
	sort.Strings(set.Modified)
	sort.Strings(set.Untracked)
	sort.Strings(set.Deleted)
	return set, nil
}
