package ss

import (
	"context"
	"fmt"
)

// Load returns the current version of every id that exists, tombstones
// included, in the order the ids are first given. Duplicate ids are
// collapsed and unknown ids are omitted.
func (db *DB) Load(ctx context.Context, ids []string) ([]Document, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	var docs []Document
	err := db.tt.read(db.stor, func(stx storageTx) error {
		log := nonNil(stx.Bucket(logBucket))
		heads := nonNil(stx.Bucket(headsBucket))
		seen := make(map[string]struct{}, len(ids))
		docs = make([]Document, 0, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := loadHead(log, heads, id, true)
			if err != nil {
				return err
			}
			if rec == nil {
				continue
			}
			d, err := rec.Document()
			if err != nil {
				return fmt.Errorf("load %q: %w", id, err)
			}
			docs = append(docs, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Get returns the current version of id, or ErrNotFound. A deleted document
// is returned as a tombstone with Deleted set.
func (db *DB) Get(ctx context.Context, id string) (Document, error) {
	docs, err := db.Load(ctx, []string{id})
	if err != nil {
		return Document{}, err
	}
	if len(docs) == 0 {
		return Document{}, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	return docs[0], nil
}

// DBInfo mirrors the CouchDB database info object.
type DBInfo struct {
	Name        string `json:"db_name"`
	DocCount    int    `json:"doc_count"`
	DocDelCount int    `json:"doc_del_count"`
	UpdateSeq   uint64 `json:"update_seq"`
	Records     int    `json:"records"`
	DiskSize    int64  `json:"disk_size"`
}

func (db *DB) Info() (DBInfo, error) {
	if db.closed.Load() {
		return DBInfo{}, ErrClosed
	}
	info := DBInfo{Name: db.name}
	err := db.tt.read(db.stor, func(stx storageTx) error {
		log := nonNil(stx.Bucket(logBucket))
		heads := nonNil(stx.Bucket(headsBucket))
		info.UpdateSeq = log.Sequence()
		info.Records = log.KeyCount()
		info.DiskSize = stx.Size()
		c := heads.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			_, deleted, err := decodeHead(v)
			if err != nil {
				return err
			}
			if deleted {
				info.DocDelCount++
			} else {
				info.DocCount++
			}
		}
		return nil
	})
	if err != nil {
		return DBInfo{}, err
	}
	return info, nil
}
