package ss

import (
	"fmt"
	"io"
	"strings"
)

type DumpFlags uint64

const (
	DumpHeaders = DumpFlags(1 << iota)
	DumpRecords
	DumpStats
	DumpHeads
	DumpViewRows

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump writes a human-readable listing of the store: the record log, the
// heads, and the rows of every open view.
func (db *DB) Dump(w io.Writer, f DumpFlags) error {
	if db.closed.Load() {
		return ErrClosed
	}
	err := db.tt.read(db.stor, func(stx storageTx) error {
		log := nonNil(stx.Bucket(logBucket))
		heads := nonNil(stx.Bucket(headsBucket))

		if f.Contains(DumpHeaders) {
			fmt.Fprintln(w, dumpSep1)
			fmt.Fprintf(w, "%s (%d records, %d documents, seq %d)\n", db.name, log.KeyCount(), heads.KeyCount(), log.Sequence())
		}
		if f.Contains(DumpStats) {
			ls, hs := log.Stats(), heads.Stats()
			fmt.Fprintf(w, "%s.stats: log_size = %d, log_alloc = %d, heads_size = %d, heads_alloc = %d\n", db.name, ls.LeafInuse, ls.TotalAlloc(), hs.LeafInuse, hs.TotalAlloc())
		}
		if f.Contains(DumpRecords) {
			fmt.Fprintln(w, dumpSep2)
			c := log.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				dumpRecord(w, db.name, k, v)
			}
		}
		if f.Contains(DumpHeads) {
			fmt.Fprintln(w, dumpSep2)
			c := heads.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				oid, deleted, err := decodeHead(v)
				if err != nil {
					fmt.Fprintf(w, "%s.h.%q ** ERROR: %v\n", db.name, k, err)
					continue
				}
				fmt.Fprintf(w, "%s.h.%q = %d%s\n", db.name, k, oid, map[bool]string{false: "", true: " DELETED"}[deleted])
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if f.Contains(DumpViewRows) {
		db.viewsLock.Lock()
		views := make([]*View, 0, len(db.views))
		for _, v := range db.views {
			views = append(views, v)
		}
		db.viewsLock.Unlock()
		for _, v := range views {
			if err := v.dump(w, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func dumpRecord(w io.Writer, prefix string, k, v []byte) {
	rec, err := decodeRecord(k, v, true)
	if err != nil {
		fmt.Fprintf(w, "%s.%s ** ERROR: %v\n", prefix, hexstr(k), err)
		return
	}
	obj, err := rec.Object()
	if err != nil {
		fmt.Fprintf(w, "%s.%d ** ERROR: %v\n", prefix, rec.OID, err)
		return
	}
	fmt.Fprintf(w, "%s.%d = (%s %s) %s\n", prefix, rec.OID, rec.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"), rec.Rev, must(obj.MarshalJSON()))
}

func (v *View) dump(w io.Writer, f DumpFlags) error {
	prefix := v.db.name + ".v." + viewKey(v.design, v.name)
	return v.tt.read(v.stor, func(stx storageTx) error {
		st, err := readViewState(stx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, dumpSep2)
		fmt.Fprintf(w, "%s (%d rows, hwm %d)\n", prefix, st.RowCount, st.HighWaterMark)
		c := nonNil(stx.Bucket(rowsBucket)).Cursor()
		var pos int
		for k, val := c.First(); k != nil; k, val = c.Next() {
			pos++
			var rd rowData
			if err := unmarshalMsgpack(val, &rd); err != nil {
				fmt.Fprintf(w, "%s.%d ** ERROR: %v\n", prefix, pos, err)
				continue
			}
			row := Row{ID: rd.ID, Key: rd.Key.V, Value: rd.Value.V}
			fmt.Fprintf(w, "%s.%d: %s => %s\n", prefix, pos, hexstr(k), must(row.MarshalJSON()))
		}
		return nil
	})
}
