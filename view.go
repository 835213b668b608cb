package ss

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shootingstick/ss/collation"
)

// Buckets of a view's storage.
const (
	rowsBucket  = "rows"
	docsBucket  = "docs"
	stateBucket = "state"

	viewFileName = "view.db"
)

var (
	stateKeyOID   = []byte("oid")
	stateKeyCount = []byte("count")
)

// View is a materialized secondary index over a DB, maintained by replaying
// the change feed through a map function.
//
// Storage layout:
//
//	rows:  row key (see rowKey) -> msgpack rowData
//	docs:  document id -> msgpack list of the row keys it produced
//	state: "oid" -> high-water mark, "count" -> number of rows
type View struct {
	db      *DB
	design  string
	name    string
	logger  *zap.Logger
	indexer Indexer

	stor storage
	tt   txTracker

	updateLock sync.Mutex
	merger     *DocumentMerger
}

// rowData is the stored value of an index row.
type rowData struct {
	OID   uint64     `msgpack:"o"`
	ID    string     `msgpack:"i"`
	Key   structured `msgpack:"k"`
	Value structured `msgpack:"v"`
}

func validViewName(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`) && !strings.ContainsRune(s, 0)
}

func openView(db *DB, design, name string) (*View, error) {
	if !validViewName(design) || !validViewName(name) {
		return nil, fmt.Errorf("%s: %w", viewKey(design, name), ErrViewNotFound)
	}
	key := viewKey(design, name)

	indexer := db.opt.Indexers[key]
	if indexer == nil {
		path := filepath.Join(db.opt.ViewRoot, design, "views", name, mapScriptName)
		si, err := LoadScript(path, db.opt.ScriptTimeout)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrViewNotFound)
		} else if err != nil {
			return nil, err
		}
		indexer = si
	}

	var stor storage
	if db.opt.InMemory {
		stor = newMemStorage()
	} else {
		dir := filepath.Join(db.dir, "views", design, name)
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return nil, err
		}
		var err error
		stor, err = openBoltStorage(filepath.Join(dir, viewFileName), db.opt.IsTesting, db.opt.MmapSize)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}

	v := &View{
		db:      db,
		design:  design,
		name:    name,
		logger:  db.logger.Named("view").With(zap.String("db", db.name), zap.String("design", design), zap.String("view", name)),
		indexer: indexer,
		stor:    stor,
		merger:  NewDocumentMerger(db),
	}
	err := v.tt.update(stor, func(stx storageTx) error {
		for _, b := range []string{rowsBucket, docsBucket, stateBucket} {
			if _, err := stx.CreateBucket(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		stor.Close()
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func (v *View) Design() string { return v.design }
func (v *View) Name() string   { return v.name }
func (v *View) DB() *DB        { return v.db }

func (v *View) close() error {
	v.updateLock.Lock()
	defer v.updateLock.Unlock()
	return v.stor.Close()
}

type viewState struct {
	HighWaterMark uint64
	RowCount      uint64
}

func readViewState(stx storageTx) (viewState, error) {
	b := nonNil(stx.Bucket(stateBucket))
	var st viewState
	var err error
	if st.HighWaterMark, err = decodeStateUint(b.Get(stateKeyOID)); err != nil {
		return st, err
	}
	if st.RowCount, err = decodeStateUint(b.Get(stateKeyCount)); err != nil {
		return st, err
	}
	return st, nil
}

func writeViewState(stx storageTx, st viewState) error {
	b := nonNil(stx.Bucket(stateBucket))
	if err := b.Put(stateKeyOID, binary.BigEndian.AppendUint64(nil, st.HighWaterMark)); err != nil {
		return err
	}
	return b.Put(stateKeyCount, binary.BigEndian.AppendUint64(nil, st.RowCount))
}

func decodeStateUint(v []byte) (uint64, error) {
	switch len(v) {
	case 0:
		return 0, nil
	case 8:
		return binary.BigEndian.Uint64(v), nil
	default:
		return 0, dataErrf(v, 0, nil, "invalid view state")
	}
}

func (v *View) state() (viewState, error) {
	var st viewState
	err := v.tt.read(v.stor, func(stx storageTx) error {
		var err error
		st, err = readViewState(stx)
		return err
	})
	return st, err
}

// HighWaterMark returns the largest oid folded into the index.
func (v *View) HighWaterMark() (uint64, error) {
	st, err := v.state()
	return st.HighWaterMark, err
}

// TotalRows returns the number of rows in the index.
func (v *View) TotalRows() (uint64, error) {
	st, err := v.state()
	return st.RowCount, err
}

type UpdateStats struct {
	Processed     int
	Rows          int
	Deleted       int
	Failed        int
	Flushes       int
	HighWaterMark uint64
}

// Update folds every change since the high-water mark into the index. Work
// is committed in batches of Options.BatchSize actions; each batch replaces
// the rows of the documents it touches and advances the high-water mark in
// one transaction, so an interrupted update resumes where the last batch
// ended.
//
// A document whose map function fails contributes no rows. Collation and
// storage failures abort the update.
func (v *View) Update(ctx context.Context) (UpdateStats, error) {
	v.updateLock.Lock()
	defer v.updateLock.Unlock()

	start := time.Now()
	var st UpdateStats
	hwm, err := v.HighWaterMark()
	if err != nil {
		return st, err
	}
	st.HighWaterMark = hwm

	batch := v.db.opt.BatchSize
	queue := make([]action, 0, batch+8)
	flush := func() error {
		if len(queue) == 0 {
			return nil
		}
		newHWM, err := v.flush(queue)
		if err != nil {
			return err
		}
		st.HighWaterMark = newHWM
		st.Flushes++
		queue = queue[:0]
		return nil
	}

	ch := v.db.Since(ctx, hwm)
	defer ch.Close()
	for ch.Next() {
		rec := ch.Record()
		st.Processed++
		if rec.Deleted {
			queue = append(queue, action{verb: VerbDelete, oid: rec.OID, id: rec.ID})
			st.Deleted++
		} else {
			obj, err := rec.Object()
			if err != nil {
				return st, err
			}
			emits, err := v.indexer.Project(ctx, obj)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return st, ctxErr
				}
				v.logger.Warn("map function failed", zap.Error(&ScriptError{View: viewKey(v.design, v.name), ID: rec.ID, Err: err}), zap.Uint64("oid", rec.OID))
				st.Failed++
				queue = append(queue, action{verb: VerbDelete, oid: rec.OID, id: rec.ID})
			} else {
				for _, e := range emits {
					queue = append(queue, action{verb: VerbUpdate, oid: rec.OID, id: rec.ID, key: e.Key, value: e.Value})
				}
				st.Rows += len(emits)
			}
			queue = append(queue, action{verb: VerbMark, oid: rec.OID, id: rec.ID})
		}
		if len(queue) >= batch {
			if err := flush(); err != nil {
				return st, err
			}
		}
	}
	if err := ch.Err(); err != nil {
		return st, err
	}
	if err := flush(); err != nil {
		return st, err
	}

	if st.Processed > 0 {
		v.logger.Info("view updated",
			zap.Int("processed", st.Processed),
			zap.Int("rows", st.Rows),
			zap.Int("deleted", st.Deleted),
			zap.Int("failed", st.Failed),
			zap.Uint64("hwm", st.HighWaterMark),
			zap.Duration("elapsed", time.Since(start)))
	}
	return st, nil
}

// flush applies queued actions in one transaction and returns the new
// high-water mark.
func (v *View) flush(queue []action) (uint64, error) {
	// Pending rows per touched id, in order of first appearance.
	type pending struct {
		oid  uint64
		rows []*action
	}
	var ids []string
	byID := make(map[string]*pending)
	var hwm uint64
	for i := range queue {
		a := &queue[i]
		hwm = max(hwm, a.oid)
		if !a.touches() {
			continue
		}
		p := byID[a.id]
		if p == nil {
			p = &pending{oid: a.oid}
			byID[a.id] = p
			ids = append(ids, a.id)
		}
		if a.oid != p.oid {
			p.oid, p.rows = a.oid, nil
		}
		switch a.verb {
		case VerbDelete:
			p.rows = nil
		case VerbUpdate:
			p.rows = append(p.rows, a)
		}
	}

	var removed, added int
	err := v.tt.update(v.stor, func(stx storageTx) error {
		st, err := readViewState(stx)
		if err != nil {
			return err
		}
		rows := nonNil(stx.Bucket(rowsBucket))
		docs := nonNil(stx.Bucket(docsBucket))
		scratch := getSortKeyBuf()
		defer func() { releaseSortKeyBuf(scratch) }()

		for _, id := range ids {
			idKey := []byte(id)
			if old := docs.Get(idKey); old != nil {
				var keys [][]byte
				if err := unmarshalMsgpack(old, &keys); err != nil {
					return err
				}
				for _, k := range keys {
					if err := rows.Delete(k); err != nil {
						return err
					}
				}
				removed += len(keys)
				if err := docs.Delete(idKey); err != nil {
					return err
				}
			}

			p := byID[id]
			if len(p.rows) == 0 {
				continue
			}
			keys := make([][]byte, 0, len(p.rows))
			for idx, a := range p.rows {
				sk, err := collation.AppendSortKey(scratch[:0], a.key)
				if err != nil {
					return fmt.Errorf("key emitted for %q: %w", id, err)
				}
				scratch = sk
				rk := rowKey(sk, id, uint32(idx))
				data, err := appendMsgpack(nil, &rowData{
					OID:   a.oid,
					ID:    id,
					Key:   structured{a.key},
					Value: structured{a.value},
				})
				if err != nil {
					return fmt.Errorf("value emitted for %q: %w", id, err)
				}
				if err := rows.Put(rk, data); err != nil {
					return err
				}
				keys = append(keys, rk)
			}
			added += len(keys)
			if err := docs.Put(idKey, mustAppendMsgpack(nil, keys)); err != nil {
				return err
			}
		}

		st.RowCount = st.RowCount + uint64(added) - uint64(removed)
		st.HighWaterMark = max(st.HighWaterMark, hwm)
		hwm = st.HighWaterMark
		return writeViewState(stx, st)
	})
	if err != nil {
		return 0, err
	}
	v.logger.Debug("flushed", zap.Int("actions", len(queue)), zap.Int("ids", len(ids)), zap.Int("removed", removed), zap.Int("added", added), zap.Uint64("hwm", hwm))
	return hwm, nil
}
