package ss

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const (
	bulkErrorConflict = "conflict"
	bulkErrorNoID     = "noid"

	bulkReasonConflict = "Document update conflict"
	bulkReasonNoID     = "Documents must have an _id string"
)

// BulkResult is the outcome of one document of a BulkWrite. It marshals to
// the CouchDB _bulk_docs response shape.
type BulkResult struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok,omitempty"`
	Rev    string `json:"rev,omitempty"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Err maps a failed result to ErrConflict or ErrNoID.
func (r BulkResult) Err() error {
	switch r.Error {
	case "":
		return nil
	case bulkErrorConflict:
		return ErrConflict
	case bulkErrorNoID:
		return ErrNoID
	default:
		return fmt.Errorf("%s: %s", r.Error, r.Reason)
	}
}

// BulkWrite writes docs in one transaction with optimistic concurrency: a
// document is accepted only if its Rev equals the current revision of its id
// ("" for ids that were never written). Accepted documents get the next
// revision. Documents are processed in order, so a later document in the
// batch sees the revisions assigned to earlier ones.
//
// Per-document failures are reported in the results; the error is for
// storage failures only, in which case nothing is written.
func (db *DB) BulkWrite(ctx context.Context, docs []Document) ([]BulkResult, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := make([]BulkResult, len(docs))
	now := db.opt.Now()
	err := db.tt.update(db.stor, func(stx storageTx) error {
		w := db.newLogWriter(stx, now)
		for i, d := range docs {
			if !ValidID(d.ID) {
				results[i] = BulkResult{ID: d.ID, Error: bulkErrorNoID, Reason: bulkReasonNoID}
				continue
			}
			cur, err := w.current(d.ID)
			if err != nil {
				return err
			}
			var curRev string
			if cur != nil {
				curRev = cur.Rev
			}
			if d.Rev != curRev {
				results[i] = BulkResult{ID: d.ID, Error: bulkErrorConflict, Reason: bulkReasonConflict}
				continue
			}
			d.Rev = nextRevision(d)
			if _, err := w.append(&d); err != nil {
				return err
			}
			results[i] = BulkResult{ID: d.ID, OK: true, Rev: d.Rev}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var accepted, rejected int
	for _, r := range results {
		if r.OK {
			accepted++
		} else {
			rejected++
		}
	}
	db.logger.Debug("bulk write", zap.String("db", db.name), zap.Int("accepted", accepted), zap.Int("rejected", rejected))
	return results, nil
}
