// Package odb implements the content-addressable object database: the
// single entry point every higher layer (working tree, merge, transfer,
// GC) goes through to read or write a Blob, Tree, Commit, or Tag.
//
// Put dedups on oid, routes large payloads through content-defined
// chunking plus a manifest, tries delta-encoding against a similar prior
// version when the caller supplies one, and picks a compression strategy
// by file extension. Get reverses all of that transparently and verifies
// the result hashes back to the oid it was asked for.
package odb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediavault/mediavault-core/internal/chunk"
	"github.com/mediavault/mediavault-core/internal/compress"
	"github.com/mediavault/mediavault-core/internal/delta"
	"github.com/mediavault/mediavault-core/internal/domain"
	"github.com/mediavault/mediavault-core/internal/manifest"
	"github.com/mediavault/mediavault-core/internal/oid"
	"github.com/mediavault/mediavault-core/internal/repository"
	"github.com/mediavault/mediavault-core/internal/storage"
)

// ChunkThreshold is the size above which Put routes a blob through content-
// defined chunking and a manifest instead of storing it as one object
// (spec §4.5: "chunk-manifest path for large blobs").
const ChunkThreshold = 16 << 20 // 16MB

// DB is the object database.
type DB struct {
	backend  storage.Backend
	paths    storage.PathConfig
	manifest *manifest.Store
	cache    repository.Cache
	logger   zerolog.Logger

	maxChainDepth int
	savingsFloor  float64
}

// Config tunes DB's delta-eligibility policy (spec §3 invariant 4, §4.4).
type Config struct {
	MaxChainDepth int
	SavingsFloor  float64
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{MaxChainDepth: delta.DefaultMaxChainDepth, SavingsFloor: delta.DefaultSavingsFloor}
}

// New builds a DB over backend, caching hot objects in cache (pass nil to
// disable caching).
func New(backend storage.Backend, paths storage.PathConfig, cache repository.Cache, cfg Config, logger zerolog.Logger) *DB {
	if cfg.MaxChainDepth <= 0 {
		cfg.MaxChainDepth = delta.DefaultMaxChainDepth
	}
	if cfg.SavingsFloor <= 0 {
		cfg.SavingsFloor = delta.DefaultSavingsFloor
	}
	return &DB{
		backend:       backend,
		paths:         paths,
		manifest:      manifest.NewStore(backend, paths),
		cache:         cache,
		logger:        logger,
		maxChainDepth: cfg.MaxChainDepth,
		savingsFloor:  cfg.SavingsFloor,
	}
}

// PutOptions controls how Put stores a payload.
type PutOptions struct {
	// Name is the file's logical name, used only to select a compression
	// strategy and (for chunking) a format-aware chunker. It is not stored.
	Name string

	// Base, when non-zero, is a prior version's oid to attempt delta
	// encoding against (the working tree supplies this from history; the
	// ODB itself never infers it).
	Base oid.Oid

	// BaseDepth is the chain depth of Base, used to enforce the
	// chain-depth cap on the new delta.
	BaseDepth int

	// AssetClass drives the similarity-probe acceptance threshold.
	AssetClass delta.AssetClass
}

// PutResult reports what Put actually did.
type PutResult struct {
	Oid       oid.Oid
	Size      int64
	Deduped   bool
	Chunked   bool
	Deltified bool
	ChainDepth int
}

// Put reads all of r and stores it under its content oid, returning that
// oid and how it was stored in a PutResult. Writing the same bytes twice is a cheap no-op
// after the first write (spec §3 invariant: "identical bytes always
// produce identical oids").
func (db *DB) Put(ctx context.Context, r io.Reader, opts PutOptions) (*PutResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("odb: read payload: %w", err)
	}
	id := oid.Of(data)

	if exists, err := db.Exists(ctx, id); err != nil {
		return nil, err
	} else if exists {
		return &PutResult{Oid: id, Size: int64(len(data)), Deduped: true}, nil
	}

	if len(data) > ChunkThreshold {
		return db.putChunked(ctx, id, data, opts)
	}
	return db.putSingle(ctx, id, data, opts)
}

func (db *DB) putSingle(ctx context.Context, id oid.Oid, data []byte, opts PutOptions) (*PutResult, error) {
	if !opts.Base.IsZero() {
		if res, err := db.tryDelta(ctx, id, data, opts); err != nil {
			db.logger.Debug().Err(err).Str("oid", id.String()).Msg("delta attempt failed, storing literal")
		} else if res != nil {
			return res, nil
		}
	}

	strategy, level := compress.Select(opts.Name)
	compressed, err := compress.Compress(data, strategy, level)
	if err != nil {
		return nil, fmt.Errorf("odb: compress %s: %w", id, err)
	}

	if err := db.writeObject(ctx, id, compressed); err != nil {
		return nil, err
	}
	return &PutResult{Oid: id, Size: int64(len(data))}, nil
}

// tryDelta attempts to store data as a delta against opts.Base, returning
// nil (not an error) if the similarity probe or chain/savings checks
// reject it — the caller falls back to a literal write in that case.
func (db *DB) tryDelta(ctx context.Context, id oid.Oid, data []byte, opts PutOptions) (*PutResult, error) {
	base, err := db.getRaw(ctx, opts.Base)
	if err != nil {
		return nil, fmt.Errorf("load base %s: %w", opts.Base, err)
	}

	ok, _, err := delta.ShouldAttemptDelta(ctx, bytes.NewReader(base), bytes.NewReader(data), opts.AssetClass)
	if err != nil || !ok {
		return nil, err
	}

	computer := delta.NewComputer(chunk.NewFastCDC(chunk.SelectParams(int64(len(data)))))
	d, err := computer.Compute(ctx, bytes.NewReader(base), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	// The computer derives its own chunk-hash-based labels for BaseOid/
	// TargetOid; overwrite them with the authoritative ODB oids so a reader
	// can follow BaseOid straight back into this same database.
	d.BaseOid = opts.Base
	d.TargetOid = id

	if err := delta.EvaluateChain(d, opts.BaseDepth, db.maxChainDepth, db.savingsFloor); err != nil {
		return nil, err
	}

	literal, err := delta.ExtractLiteralData(d, data)
	if err != nil {
		return nil, err
	}

	envelope, err := delta.EncodeEnvelope(d, literal)
	if err != nil {
		return nil, err
	}

	if err := db.writeObject(ctx, id, append(deltaEnvelopeTag(), envelope...)); err != nil {
		return nil, err
	}
	return &PutResult{Oid: id, Size: int64(len(data)), Deltified: true, ChainDepth: d.ChainDepth}, nil
}

// putChunked splits data into content-defined chunks (format-aware when
// opts.Name identifies a recognized container), stores each chunk as its
// own object (deduping across chunks the same way whole objects dedup),
// and records the assembly order in a ChunkManifest.
func (db *DB) putChunked(ctx context.Context, id oid.Oid, data []byte, opts PutOptions) (*PutResult, error) {
	format := chunk.Detect(opts.Name, data)
	chunker := chunk.ForFormat(format, chunk.SelectParams(int64(len(data))))

	chunks, err := chunker.ChunkAll(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("odb: chunk %s: %w", id, err)
	}

	entries := make([]domain.ChunkEntry, 0, len(chunks))
	for _, c := range chunks {
		chunkOid := oid.Of(c.Data)
		if exists, err := db.Exists(ctx, chunkOid); err != nil {
			return nil, err
		} else if !exists {
			strategy, level := compress.Select(opts.Name)
			compressed, err := compress.Compress(c.Data, strategy, level)
			if err != nil {
				return nil, err
			}
			if err := db.writeObject(ctx, chunkOid, compressed); err != nil {
				return nil, err
			}
		}
		entries = append(entries, domain.ChunkEntry{
			Oid: chunkOid, Offset: c.Offset, Size: int64(len(c.Data)), Kind: domain.KindBlob,
		})
	}

	m := &domain.ChunkManifest{FilePath: opts.Name, TotalSize: int64(len(data)), Chunks: entries}
	if err := db.manifest.Put(ctx, id, m); err != nil {
		return nil, fmt.Errorf("odb: store manifest %s: %w", id, err)
	}

	return &PutResult{Oid: id, Size: int64(len(data)), Chunked: true}, nil
}

// Get reassembles and returns the full contents addressed by id, verifying
// the result hashes back to id before returning it (spec: "corruption
// verification on read").
func (db *DB) Get(ctx context.Context, id oid.Oid) ([]byte, error) {
	if db.cache != nil {
		if cached, err := db.cache.Get(ctx, id.String()); err == nil {
			return cached, nil
		}
	}

	if chunked, err := db.manifest.Exists(ctx, id); err != nil {
		return nil, err
	} else if chunked {
		data, err := db.getChunked(ctx, id)
		if err != nil {
			return nil, err
		}
		db.cacheOnRead(ctx, id, data)
		return data, nil
	}

	data, err := db.getRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	db.cacheOnRead(ctx, id, data)
	return data, nil
}

func (db *DB) cacheOnRead(ctx context.Context, id oid.Oid, data []byte) {
	if db.cache == nil {
		return
	}
	if err := db.cache.Set(ctx, id.String(), data, time.Hour); err != nil {
		db.logger.Debug().Err(err).Str("oid", id.String()).Msg("cache set failed")
	}
}

// getRaw reads and decompresses (and, when present, delta-resolves) the
// single object stored under id, without consulting the manifest store or
// the cache.
func (db *DB) getRaw(ctx context.Context, id oid.Oid) ([]byte, error) {
	key := db.paths.ObjectKey(id.String())
	r, err := db.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("odb: read object %s: %w", id, err)
	}

	if isDeltaEnvelope(raw) {
		return db.resolveDelta(ctx, id, raw[len(deltaEnvelopeTag()):])
	}

	data, err := compress.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("odb: decompress %s: %w", id, err)
	}
	if !oid.Verify(data, id) {
		return nil, storage.NewError(storage.KindCorrupt, "odb.Get", fmt.Errorf("object %s failed hash verification", id))
	}
	return data, nil
}

func (db *DB) resolveDelta(ctx context.Context, id oid.Oid, payload []byte) ([]byte, error) {
	d, literal, err := delta.DecodeEnvelope(payload)
	if err != nil {
		return nil, fmt.Errorf("odb: decode delta %s: %w", id, err)
	}

	base, err := db.getRaw(ctx, d.BaseOid)
	if err != nil {
		return nil, fmt.Errorf("odb: load delta base %s: %w", d.BaseOid, err)
	}

	applier := delta.NewApplier()
	result, err := applier.Apply(ctx, bytes.NewReader(base), d, bytes.NewReader(literal), id)
	if err != nil {
		return nil, fmt.Errorf("odb: apply delta %s: %w", id, err)
	}
	return result, nil
}

func (db *DB) getChunked(ctx context.Context, id oid.Oid) ([]byte, error) {
	m, err := db.manifest.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]byte, m.TotalSize)
	for _, entry := range m.Chunks {
		chunkData, err := db.getRaw(ctx, entry.Oid)
		if err != nil {
			return nil, fmt.Errorf("odb: load chunk %s of %s: %w", entry.Oid, id, err)
		}
		copy(out[entry.Offset:entry.Offset+entry.Size], chunkData)
	}
	if !oid.Verify(out, id) {
		return nil, storage.NewError(storage.KindCorrupt, "odb.getChunked", fmt.Errorf("reassembled %s failed hash verification", id))
	}
	return out, nil
}

// Exists reports whether id is stored, either as a direct object or via a
// chunk manifest.
func (db *DB) Exists(ctx context.Context, id oid.Oid) (bool, error) {
	if ok, err := db.backend.Exists(ctx, db.paths.ObjectKey(id.String())); err != nil {
		return false, err
	} else if ok {
		return true, nil
	}
	return db.manifest.Exists(ctx, id)
}

// Verify re-reads and re-hashes id, reporting whether it is intact. Unlike
// Get/getRaw's implicit verification, Verify never returns the bytes, for
// checking objects the caller does not otherwise need.
func (db *DB) Verify(ctx context.Context, id oid.Oid) error {
	_, err := db.Get(ctx, id)
	return err
}

// Delete removes id's stored object (and manifest, if chunked). It does
// not touch any chunk the manifest referenced, since another manifest may
// still use them; nothing in this package removes those chunks.
func (db *DB) Delete(ctx context.Context, id oid.Oid) error {
	if chunked, err := db.manifest.Exists(ctx, id); err != nil {
		return err
	} else if chunked {
		return db.manifest.Delete(ctx, id)
	}
	return db.backend.Delete(ctx, db.paths.ObjectKey(id.String()))
}

// Dependencies returns the oids id directly references without resolving
// them — a chunked object's manifest entries, or a delta-encoded object's
// base — so a reachability walk can follow the object graph without paying
// to decompress/reassemble/apply every object along the way. No package in
// this repository calls it; transfer walks resolved content instead.
// A plain stored object has no dependencies.
func (db *DB) Dependencies(ctx context.Context, id oid.Oid) ([]oid.Oid, error) {
	if chunked, err := db.manifest.Exists(ctx, id); err != nil {
		return nil, err
	} else if chunked {
		m, err := db.manifest.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		deps := make([]oid.Oid, len(m.Chunks))
		for i, c := range m.Chunks {
			deps[i] = c.Oid
		}
		return deps, nil
	}

	key := db.paths.ObjectKey(id.String())
	r, err := db.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("odb: read object %s: %w", id, err)
	}

	if !isDeltaEnvelope(raw) {
		return nil, nil
	}
	d, _, err := delta.DecodeEnvelope(raw[len(deltaEnvelopeTag()):])
	if err != nil {
		return nil, fmt.Errorf("odb: decode delta %s: %w", id, err)
	}
	return []oid.Oid{d.BaseOid}, nil
}

func (db *DB) writeObject(ctx context.Context, id oid.Oid, payload []byte) error {
	key := db.paths.ObjectKey(id.String())
	return db.backend.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)))
}

// deltaEnvelopeTag prefixes a stored object to distinguish a delta-encoded
// payload from a plain compressed literal, since both share the object
// namespace. It is distinct from compress's own codec tags (0x00-0x02) by
// using a byte no compress.Strategy ever emits as its first byte alone
// followed by a fixed magic sequence.
func deltaEnvelopeTag() []byte { return []byte{0xD3, 0x7A} }

func isDeltaEnvelope(raw []byte) bool {
	tag := deltaEnvelopeTag()
	return len(raw) >= len(tag) && bytes.Equal(raw[:len(tag)], tag)
}
