package ss

import (
	"context"
)

// Changes iterates the change feed returned by DB.Since. It holds a read
// transaction on the store until Close is called or the feed is exhausted.
//
//	ch := db.Since(ctx, hwm)
//	defer ch.Close()
//	for ch.Next() {
//		rec := ch.Record()
//	}
//	if err := ch.Err(); err != nil { ... }
type Changes struct {
	ctx   context.Context
	db    *DB
	stx   storageTx
	heads storageBucket
	cur   *RawRangeCursor
	rec   *Record
	err   error
	done  bool
}

// Since returns the current version of every document that has a version
// with an oid greater than oid, in ascending oid order. Superseded versions
// are skipped, so each id appears at most once.
func (db *DB) Since(ctx context.Context, oid uint64) *Changes {
	ch := &Changes{ctx: ctx, db: db}
	if db.closed.Load() {
		ch.fail(ErrClosed)
		return ch
	}
	stx, err := db.tt.beginRead(db.stor)
	if err != nil {
		ch.fail(err)
		return ch
	}
	ch.stx = stx
	ch.heads = nonNil(stx.Bucket(headsBucket))
	rang := RawIO(oidKey(oid + 1))
	if oid == ^uint64(0) {
		rang = RawRange{Lower: oidKey(oid), LowerInc: false}
	}
	ch.cur = rang.newCursor(nonNil(stx.Bucket(logBucket)).Cursor(), db.logger)
	return ch
}

func (ch *Changes) Next() bool {
	if ch.done {
		return false
	}
	for ch.cur.Next() {
		if err := ch.ctx.Err(); err != nil {
			ch.fail(err)
			return false
		}
		rec, err := decodeRecord(ch.cur.Key(), ch.cur.Value(), false)
		if err != nil {
			ch.fail(err)
			return false
		}
		hv := ch.heads.Get([]byte(rec.ID))
		if hv == nil {
			ch.fail(dataErrf(ch.cur.Key(), 0, nil, "record %d of %q has no head", rec.OID, rec.ID))
			return false
		}
		headOID, _, err := decodeHead(hv)
		if err != nil {
			ch.fail(err)
			return false
		}
		if headOID != rec.OID {
			continue
		}
		rec, err = decodeRecord(ch.cur.Key(), ch.cur.Value(), true)
		if err != nil {
			ch.fail(err)
			return false
		}
		ch.rec = rec
		return true
	}
	ch.Close()
	return false
}

// Record returns the record the last Next call moved to. It stays valid after
// the feed is closed.
func (ch *Changes) Record() *Record {
	return ch.rec
}

func (ch *Changes) Err() error {
	return ch.err
}

// Close releases the read transaction. It is safe to call more than once.
func (ch *Changes) Close() {
	if ch.done {
		return
	}
	ch.done = true
	ch.rec = nil
	if ch.stx != nil {
		ch.db.tt.endRead(ch.stx)
		ch.stx = nil
	}
}

func (ch *Changes) fail(err error) {
	ch.Close()
	ch.err = err
}
