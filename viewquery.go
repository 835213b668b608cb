package ss

import (
	"bytes"
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/shootingstick/ss/value"
)

// Row is one result of a view query.
type Row struct {
	ID    string
	Key   any
	Value any
	// Doc is the joined document when the query asked for include_docs; nil
	// for deleted documents.
	Doc    *Document
	HasDoc bool
}

// docTarget is the id whose document include_docs attaches to the row.
func (r *Row) docTarget() string {
	if id, ok := resolveReference(r.Value); ok {
		return id
	}
	return r.ID
}

// MarshalJSON writes id, key, value and, with include_docs, doc.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"id":`)
	if err := writeJSON(&buf, r.ID); err != nil {
		return nil, err
	}
	buf.WriteString(`,"key":`)
	if err := writeJSON(&buf, r.Key); err != nil {
		return nil, err
	}
	buf.WriteString(`,"value":`)
	if err := writeJSON(&buf, r.Value); err != nil {
		return nil, err
	}
	if r.HasDoc {
		buf.WriteString(`,"doc":`)
		if r.Doc == nil {
			buf.WriteString("null")
		} else if err := writeJSON(&buf, r.Doc); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	if d, ok := v.(*Document); ok {
		v = d.Body()
	}
	data, err := value.ToJSON(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

// Rows is a single-pass cursor over query results. It holds a read
// transaction on the view until Close is called or the rows are exhausted.
// Do not update the view from the goroutine that is iterating its rows.
type Rows struct {
	ctx  context.Context
	view *View
	opt  QueryOptions

	stx    storageTx
	bucket storageBucket
	ranges []RawRange
	ri     int
	cur    *RawRangeCursor

	skip      int
	remaining int

	buf []Row
	bi  int

	row  Row
	err  error
	done bool

	total uint64
	seq   uint64
}

// Query runs a view query. Unless opt.Update says otherwise, the view is
// brought up to date first.
func (v *View) Query(ctx context.Context, opt QueryOptions) (*Rows, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	ranges, err := planRanges(&opt)
	if err != nil {
		return nil, err
	}

	if opt.Update == UpdateBefore {
		if _, err := v.Update(ctx); err != nil {
			return nil, err
		}
	}

	stx, err := v.tt.beginRead(v.stor)
	if err != nil {
		return nil, err
	}
	st, err := readViewState(stx)
	if err != nil {
		v.tt.endRead(stx)
		return nil, err
	}

	if opt.Update == UpdateLazy {
		v.updateInBackground()
	}

	r := &Rows{
		ctx:       ctx,
		view:      v,
		opt:       opt,
		stx:       stx,
		bucket:    nonNil(stx.Bucket(rowsBucket)),
		ranges:    ranges,
		skip:      opt.Skip,
		remaining: opt.Limit.Get(-1),
		total:     st.RowCount,
		seq:       st.HighWaterMark,
	}
	return r, nil
}

func (v *View) updateInBackground() {
	v.db.background(func() {
		if _, err := v.Update(context.Background()); err != nil {
			v.logger.Error("background update failed", zap.Error(err))
		}
	})
}

// TotalRows is the number of rows in the index at the time of the query.
func (r *Rows) TotalRows() uint64 { return r.total }

// Offset is the number of rows skipped before the first returned row.
func (r *Rows) Offset() int { return r.opt.Skip }

// UpdateSeq is the high-water mark of the index snapshot being read.
func (r *Rows) UpdateSeq() uint64 { return r.seq }

func (r *Rows) Next() bool {
	if r.done {
		return false
	}
	if !r.opt.IncludeDocs {
		row, ok := r.scan()
		if !ok {
			r.Close()
			return false
		}
		r.row = row
		return true
	}

	if r.bi < len(r.buf) {
		r.row = r.buf[r.bi]
		r.bi++
		return true
	}
	batch := r.view.db.opt.BatchSize
	r.buf = r.buf[:0]
	r.bi = 0
	for len(r.buf) < batch {
		row, ok := r.scan()
		if !ok {
			break
		}
		r.buf = append(r.buf, row)
	}
	if r.err != nil || len(r.buf) == 0 {
		r.Close()
		return false
	}
	joined, err := r.view.merger.AddDocuments(r.ctx, r.buf)
	if err != nil {
		r.fail(err)
		return false
	}
	r.buf = joined
	r.row = r.buf[0]
	r.bi = 1
	return true
}

func (r *Rows) scan() (Row, bool) {
	for {
		if r.remaining == 0 || r.err != nil {
			return Row{}, false
		}
		if r.cur == nil {
			if r.ri >= len(r.ranges) {
				return Row{}, false
			}
			r.cur = r.ranges[r.ri].newCursor(r.bucket.Cursor(), r.view.logger)
			r.ri++
		}
		if !r.cur.Next() {
			r.cur = nil
			continue
		}
		if err := r.ctx.Err(); err != nil {
			r.err = err
			return Row{}, false
		}
		if r.skip > 0 {
			r.skip--
			continue
		}
		var rd rowData
		if err := unmarshalMsgpack(r.cur.Value(), &rd); err != nil {
			r.err = err
			return Row{}, false
		}
		if r.remaining > 0 {
			r.remaining--
		}
		return Row{ID: rd.ID, Key: rd.Key.V, Value: rd.Value.V}, true
	}
}

func (r *Rows) Row() Row {
	return r.row
}

func (r *Rows) Err() error {
	return r.err
}

// Close releases the read transaction. It is safe to call more than once.
func (r *Rows) Close() {
	if r.done {
		return
	}
	r.done = true
	r.cur = nil
	r.buf = nil
	if r.stx != nil {
		r.view.tt.endRead(r.stx)
		r.stx = nil
	}
}

func (r *Rows) fail(err error) {
	r.Close()
	r.err = err
}

// All drains the cursor.
func (r *Rows) All() ([]Row, error) {
	defer r.Close()
	var rows []Row
	for r.Next() {
		rows = append(rows, r.Row())
	}
	return rows, r.Err()
}

var _ json.Marshaler = Row{}
