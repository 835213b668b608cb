package ss

import (
	"context"
	"fmt"
	"time"
)

// Insert appends every document as a new version, taking revisions as given.
// No conflict checking is done. If any document lacks a valid id the call
// fails with ErrNoID and nothing is written.
func (db *DB) Insert(ctx context.Context, docs []Document) error {
	if db.closed.Load() {
		return ErrClosed
	}
	for _, d := range docs {
		if !ValidID(d.ID) {
			return fmt.Errorf("insert %q: %w", d.ID, ErrNoID)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	now := db.opt.Now()
	return db.tt.update(db.stor, func(stx storageTx) error {
		w := db.newLogWriter(stx, now)
		for i := range docs {
			if _, err := w.append(&docs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// logWriter appends records within one write transaction.
type logWriter struct {
	db    *DB
	log   storageBucket
	heads storageBucket
	now   time.Time
}

func (db *DB) newLogWriter(stx storageTx, now time.Time) *logWriter {
	return &logWriter{
		db:    db,
		log:   nonNil(stx.Bucket(logBucket)),
		heads: nonNil(stx.Bucket(headsBucket)),
		now:   now,
	}
}

func (w *logWriter) append(d *Document) (*Record, error) {
	oid, err := w.log.NextSequence()
	if err != nil {
		return nil, err
	}
	body, err := appendMsgpack(nil, d.Body())
	if err != nil {
		return nil, err
	}
	rec := &Record{
		OID:       oid,
		Timestamp: w.now,
		ID:        d.ID,
		Rev:       d.Rev,
		Deleted:   d.Deleted,
		Body:      body,
	}
	err = w.log.Put(oidKey(oid), encodeRecord(rec, w.db.opt.Compression, w.db.opt.CompressThreshold))
	if err != nil {
		return nil, err
	}
	err = w.heads.Put([]byte(d.ID), encodeHead(oid, d.Deleted))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// current returns the head record of id without its body, or nil.
func (w *logWriter) current(id string) (*Record, error) {
	return loadHead(w.log, w.heads, id, false)
}

func loadHead(log, heads storageBucket, id string, withBody bool) (*Record, error) {
	hv := heads.Get([]byte(id))
	if hv == nil {
		return nil, nil
	}
	oid, _, err := decodeHead(hv)
	if err != nil {
		return nil, err
	}
	k := oidKey(oid)
	v := log.Get(k)
	if v == nil {
		return nil, dataErrf(k, 0, nil, "head of %q points to missing record", id)
	}
	return decodeRecord(k, v, withBody)
}
