package ss

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	storeFileName = "store.db"

	defaultBatchSize         = 100
	defaultScriptTimeout     = 5 * time.Second
	defaultCompressThreshold = 1024
)

// DB is a document store: an append-only log of document versions plus the
// views defined over it. All methods are safe for concurrent use; writes are
// serialized by the storage engine.
type DB struct {
	dir    string
	name   string
	opt    Options
	logger *zap.Logger

	stor storage
	tt   txTracker

	viewsLock sync.Mutex
	views     map[string]*View

	bg     sync.WaitGroup
	closed atomic.Bool
}

type Options struct {
	Logger *zap.Logger

	// IsTesting trades durability for speed.
	IsTesting bool
	// InMemory keeps the store and its views in memory. Nothing is written to
	// the directory.
	InMemory bool
	MmapSize int

	// ViewRoot is where map scripts live, as
	// <ViewRoot>/<design>/views/<view>/map.js.
	ViewRoot string
	// Indexers maps "design/view" to a compiled map function. These take
	// precedence over scripts.
	Indexers map[string]Indexer

	// BatchSize is the number of queued index actions that triggers a flush
	// during view updates, and the join batch size for include_docs.
	BatchSize     int
	ScriptTimeout time.Duration

	Compression       Compression
	CompressThreshold int

	Now func() time.Time
}

func (opt *Options) applyDefaults() {
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.BatchSize <= 0 {
		opt.BatchSize = defaultBatchSize
	}
	if opt.ScriptTimeout <= 0 {
		opt.ScriptTimeout = defaultScriptTimeout
	}
	if opt.CompressThreshold == 0 {
		opt.CompressThreshold = defaultCompressThreshold
	}
	if opt.ViewRoot == "" {
		opt.ViewRoot = "."
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
}

// Open opens the store in dir, creating it if needed.
func Open(dir string, opt Options) (*DB, error) {
	opt.applyDefaults()

	var stor storage
	if opt.InMemory {
		stor = newMemStorage()
	} else {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return nil, fmt.Errorf("ss: %w", err)
		}
		var err error
		stor, err = openBoltStorage(filepath.Join(dir, storeFileName), opt.IsTesting, opt.MmapSize)
		if err != nil {
			return nil, fmt.Errorf("ss: %w", err)
		}
	}

	db := &DB{
		dir:    dir,
		name:   filepath.Base(dir),
		opt:    opt,
		logger: opt.Logger,
		stor:   stor,
		views:  make(map[string]*View),
	}

	err := db.tt.update(stor, func(stx storageTx) error {
		for _, name := range []string{logBucket, headsBucket} {
			if _, err := stx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		stor.Close()
		return nil, fmt.Errorf("ss: initializing %s: %w", dir, err)
	}
	return db, nil
}

func (db *DB) Dir() string  { return db.dir }
func (db *DB) Name() string { return db.name }

func (db *DB) Logger() *zap.Logger { return db.logger }

// Close waits for background view updates, then closes every view and the
// store.
func (db *DB) Close() error {
	db.viewsLock.Lock()
	if db.closed.Swap(true) {
		db.viewsLock.Unlock()
		return nil
	}
	db.viewsLock.Unlock()
	db.bg.Wait()

	db.viewsLock.Lock()
	views := db.views
	db.views = nil
	db.viewsLock.Unlock()

	var errs []error
	for _, v := range views {
		errs = append(errs, v.close())
	}
	errs = append(errs, db.stor.Close())
	return errors.Join(errs...)
}

// View returns the view design/name, opening it on first use. Views are
// cached for the lifetime of the DB.
func (db *DB) View(design, name string) (*View, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	key := viewKey(design, name)

	db.viewsLock.Lock()
	defer db.viewsLock.Unlock()
	if v := db.views[key]; v != nil {
		return v, nil
	}
	if db.views == nil {
		return nil, ErrClosed
	}
	v, err := openView(db, design, name)
	if err != nil {
		return nil, err
	}
	db.views[key] = v
	return v, nil
}

// ViewNames lists "design/view" for every view that can be opened: compiled
// indexers plus map scripts found under the view root.
func (db *DB) ViewNames() ([]string, error) {
	var names []string
	for key := range db.opt.Indexers {
		names = append(names, key)
	}
	matches, err := filepath.Glob(filepath.Join(db.opt.ViewRoot, "*", "views", "*", mapScriptName))
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		viewDir := filepath.Dir(m)
		design := filepath.Base(filepath.Dir(filepath.Dir(viewDir)))
		names = append(names, viewKey(design, filepath.Base(viewDir)))
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// UpdateAll brings every view returned by ViewNames up to date, one at a
// time.
func (db *DB) UpdateAll(ctx context.Context) (map[string]UpdateStats, error) {
	names, err := db.ViewNames()
	if err != nil {
		return nil, err
	}
	result := make(map[string]UpdateStats, len(names))
	for _, key := range names {
		design, name, _ := strings.Cut(key, "/")
		v, err := db.View(design, name)
		if err != nil {
			return result, err
		}
		st, err := v.Update(ctx)
		result[key] = st
		if err != nil {
			return result, fmt.Errorf("%s: %w", key, err)
		}
	}
	return result, nil
}

// background runs f in a goroutine Close waits for. It does nothing once the
// DB is closing.
func (db *DB) background(f func()) bool {
	db.viewsLock.Lock()
	defer db.viewsLock.Unlock()
	if db.closed.Load() {
		return false
	}
	db.bg.Add(1)
	go func() {
		defer db.bg.Done()
		f()
	}()
	return true
}

func viewKey(design, name string) string {
	return design + "/" + name
}
