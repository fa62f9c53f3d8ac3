// Package resource wires the page-transaction layer into a single
// open session per spec's resource lifecycle (spec §6, §4.11): one
// backing block store, one shared page cache and intent-log budget, and
// the HOT/path-summary indexes a write transaction carries to commit.
//
// Grounded on teacher dbfile.Database's Create/Open/Close lifecycle and
// mutex-guarded header access, generalized from a single fixed-page-size
// file to the full dependency graph pagetx.WriteOptions expects: block
// store, cache, budget, per-index versioning policy, and the
// single-writer lock. Full dependency-injection wiring (spec §9) and
// anything upstream of the page layer (document node models, query
// interfaces) stay out of scope; this package only opens and closes
// sessions onto an already-encoded page store.
package resource

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"golang.org/x/crypto/chacha20poly1305"

	"stratadb/pkg/blockio"
	"stratadb/pkg/codec"
	"stratadb/pkg/errs"
	"stratadb/pkg/hot"
	"stratadb/pkg/page"
	"stratadb/pkg/pagecache"
	"stratadb/pkg/pagetx"
	"stratadb/pkg/pathsummary"
)

// Resource is one open stratadb resource: a revisioned page store plus
// the three HOT secondary indexes and the path summary that ride along
// in its RevisionRootPage (spec §3.2).
type Resource struct {
	logger   *zap.Logger
	store    blockio.Store
	pipeline *codec.Pipeline
	budget   *pagecache.Budget
	cache    *pagecache.Cache[page.Page]
	lock     sync.Mutex

	policy             map[pagetx.IndexType]pagetx.VersioningPolicy
	pathSummaryEnabled bool
}

// Params configures Create/Open/OpenMemory. Every field but Resource may
// be left zero for the library's defaults. EncryptionKey is required
// only when Resource.ByteHandlerClasses names "encrypt-chacha20poly1305".
type Params struct {
	Resource      ResourceConfig
	EncryptionKey *[chacha20poly1305.KeySize]byte
	Budget        *pagecache.Budget
	CacheCapacity int
	Logger        *zap.Logger
}

// Create initializes a brand-new backing file at path. It fails if a
// file already exists there, matching teacher dbfile.Create's contract.
func Create(path string, params Params) (*Resource, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, errs.Usagef("resource file already exists: %s", path)
	}
	store, err := blockio.OpenFileStore(path)
	if err != nil {
		return nil, errs.WrapIO(err)
	}
	r, err := open(store, params)
	if err != nil {
		store.Close()
		return nil, err
	}
	return r, nil
}

// Open resumes an existing backing file at path.
func Open(path string, params Params) (*Resource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errs.Usagef("resource file not found: %s", path)
	}
	store, err := blockio.OpenFileStore(path)
	if err != nil {
		return nil, errs.WrapIO(err)
	}
	r, err := open(store, params)
	if err != nil {
		store.Close()
		return nil, err
	}
	return r, nil
}

// OpenMemory opens a Resource over an in-memory store, for tests and
// scratch sessions (teacher pager.MemoryStorage's equivalent).
func OpenMemory(params Params) (*Resource, error) {
	return open(blockio.NewMemoryStore(), params)
}

func open(store blockio.Store, params Params) (*Resource, error) {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pipeline, err := buildPipeline(params.Resource, params.EncryptionKey)
	if err != nil {
		return nil, err
	}
	docPolicy, err := params.Resource.versioningPolicy()
	if err != nil {
		return nil, err
	}

	budget := params.Budget
	if budget == nil {
		budget = pagecache.NewBudget(0)
	}
	cacheCapacity := params.CacheCapacity
	if cacheCapacity <= 0 {
		cacheCapacity = 1000
	}

	r := &Resource{
		logger:   logger,
		store:    store,
		pipeline: pipeline,
		budget:   budget,
		cache:    pagecache.New[page.Page]("page_cache", cacheCapacity, budget),
		policy: map[pagetx.IndexType]pagetx.VersioningPolicy{
			pagetx.DocumentIndex: docPolicy,
			pagetx.NameDict:      pagetx.DefaultVersioningPolicy(),
		},
		pathSummaryEnabled: params.Resource.PathSummary,
	}
	logger.Debug("resource opened",
		zap.String("storage_kind", params.Resource.StorageKind),
		zap.Strings("byte_handlers", pipeline.Names()),
	)
	return r, nil
}

// Close releases the backing store.
func (r *Resource) Close() error {
	return r.store.Close()
}

// currentRoot reads the resource's current RevisionRootPage (the zero
// value for a brand-new store) without opening a full transaction.
func (r *Resource) currentRoot() (*page.RevisionRootPage, error) {
	tx, err := pagetx.OpenReadTrx(pagetx.Options{Reader: r.store, Pipeline: r.pipeline})
	if err != nil {
		return nil, err
	}
	return tx.Root(), nil
}

// hotIndexes opens the three HOT trees at root's currently committed
// roots, ready to be read and, for a write session, mutated and flushed.
func (r *Resource) hotIndexes(root *page.RevisionRootPage) (name, path, cas *hot.Tree) {
	return hot.Open(root.NameIndex, r.store, r.pipeline),
		hot.Open(root.PathIndex, r.store, r.pipeline),
		hot.Open(root.CASIndex, r.store, r.pipeline)
}

// BeginRead opens a read-only transaction pinned to the resource's
// currently committed revision, with the three HOT indexes and the path
// summary attached. Pinning to an arbitrary earlier revision number is
// not supported: this store retains only the latest committed
// RevisionRootPage plus each leaf's own bounded fragment chain (spec
// §4.3), never a revision-indexed history of uber references, so there
// is nothing else for a revision parameter to select.
func (r *Resource) BeginRead() (*pagetx.ReadTrx, *pathsummary.Tree, error) {
	root, err := r.currentRoot()
	if err != nil {
		return nil, nil, err
	}
	nameIdx, pathIdx, casIdx := r.hotIndexes(root)
	tx, err := pagetx.OpenReadTrx(pagetx.Options{
		Reader:    r.store,
		Pipeline:  r.pipeline,
		Cache:     r.cache,
		Policy:    r.policy,
		NameIndex: nameIdx,
		PathIndex: pathIdx,
		CASIndex:  casIdx,
	})
	if err != nil {
		return nil, nil, err
	}
	return tx, pathsummary.Open(r.store, r.pipeline, root.PathSummary.Offset()), nil
}

// WriteSession is one write transaction together with the HOT indexes
// and path summary tree a caller mutates alongside the document/name
// indirection trees pagetx.WriteTrx itself owns.
type WriteSession struct {
	*pagetx.WriteTrx

	nameIndex, pathIndex, casIndex *hot.Tree
	pathSummary                    *pathsummary.Tree
	resource                       *Resource
}

func (ws *WriteSession) NameIndex() *hot.Tree           { return ws.nameIndex }
func (ws *WriteSession) PathIndex() *hot.Tree           { return ws.pathIndex }
func (ws *WriteSession) CASIndex() *hot.Tree            { return ws.casIndex }
func (ws *WriteSession) PathSummary() *pathsummary.Tree { return ws.pathSummary }

// BeginWrite acquires the resource's single-writer lock and returns a
// WriteSession pinned one revision ahead of the currently committed one,
// with the HOT indexes and path summary opened at their current roots.
func (r *Resource) BeginWrite() (*WriteSession, error) {
	root, err := r.currentRoot()
	if err != nil {
		return nil, err
	}
	nameIdx, pathIdx, casIdx := r.hotIndexes(root)

	tx, err := pagetx.BeginWriteTrx(pagetx.WriteOptions{
		Options: pagetx.Options{
			Reader:    r.store,
			Pipeline:  r.pipeline,
			Cache:     r.cache,
			Policy:    r.policy,
			NameIndex: nameIdx,
			PathIndex: pathIdx,
			CASIndex:  casIdx,
		},
		Store:  r.store,
		Budget: r.budget,
		Lock:   &r.lock,
	})
	if err != nil {
		return nil, err
	}
	return &WriteSession{
		WriteTrx:    tx,
		nameIndex:   nameIdx,
		pathIndex:   pathIdx,
		casIndex:    casIdx,
		pathSummary: pathsummary.Open(r.store, r.pipeline, root.PathSummary.Offset()),
		resource:    r,
	}, nil
}

// Commit flushes every HOT index, wires their new roots into the next
// RevisionRootPage together with the path summary's current root (when the
// path summary is enabled; its nodes are already written by each
// Insert/Delete), and commits the underlying page transaction. The three HOT trees are disjoint in-memory structures
// flushed through the same append-only store, so their flushes run
// concurrently via errgroup; the write-side mutex each blockio.Store
// implementation already holds around AppendBlock keeps the interleaved
// writes consistent.
func (ws *WriteSession) Commit() (*page.UberPage, error) {
	var nameRef, pathRef, casRef page.PageRef
	g := new(errgroup.Group)
	g.Go(func() (err error) {
		nameRef, err = ws.nameIndex.Flush(ws.resource.store, ws.resource.pipeline)
		return err
	})
	g.Go(func() (err error) {
		pathRef, err = ws.pathIndex.Flush(ws.resource.store, ws.resource.pipeline)
		return err
	})
	g.Go(func() (err error) {
		casRef, err = ws.casIndex.Flush(ws.resource.store, ws.resource.pipeline)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	ws.WriteTrx.SetHOTRoots(nameRef, pathRef, casRef)

	if ws.resource.pathSummaryEnabled {
		ws.WriteTrx.SetPathSummaryRoot(page.PageRef{
			Fragments: []page.Fragment{{Offset: ws.pathSummary.Root()}},
		})
	}

	uber, err := ws.WriteTrx.Commit()
	if err != nil {
		ws.resource.logger.Error("commit failed", zap.Error(err))
		return nil, err
	}
	ws.resource.logger.Debug("commit", zap.Uint64("revision", uint64(uber.RevisionNumber)))
	return uber, nil
}
