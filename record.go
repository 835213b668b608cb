package ss

import (
	"encoding/binary"
	"time"

	"github.com/shootingstick/ss/value"
)

const (
	logBucket   = "log"
	headsBucket = "heads"
)

// Record is one row of the store's append-only log. For each id, the record
// with the highest OID is the current version; older records are history.
type Record struct {
	OID       uint64
	Timestamp time.Time
	ID        string
	Rev       string
	Deleted   bool
	// Body is the msgpack-serialized document (see Document.Body). It is nil
	// when the record was decoded without its body.
	Body []byte
}

// Document decodes the body.
func (r *Record) Document() (Document, error) {
	obj, err := r.Object()
	if err != nil {
		return Document{}, err
	}
	return DocumentFromObject(obj), nil
}

// Object decodes the body as an ordered object, reserved members included.
func (r *Record) Object() (value.Object, error) {
	var obj value.Object
	if err := unmarshalMsgpack(r.Body, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// recordData is the stored form of a log record. The body is wrapped in a
// value header so large bodies can be compressed while the metadata stays
// readable without decompression.
type recordData struct {
	Time    int64  `msgpack:"t"`
	ID      string `msgpack:"i"`
	Rev     string `msgpack:"r"`
	Deleted bool   `msgpack:"d,omitempty"`
	Body    []byte `msgpack:"b"`
}

func encodeRecord(rec *Record, comp Compression, threshold int) []byte {
	rd := recordData{
		Time:    rec.Timestamp.UnixNano(),
		ID:      rec.ID,
		Rev:     rec.Rev,
		Deleted: rec.Deleted,
		Body:    encodeValue(nil, rec.Body, comp, threshold),
	}
	return mustAppendMsgpack(nil, &rd)
}

// decodeRecord decodes a log entry. With withBody false the (possibly
// compressed) body is left alone.
func decodeRecord(k, v []byte, withBody bool) (*Record, error) {
	oid, err := decodeOIDKey(k)
	if err != nil {
		return nil, err
	}
	var rd recordData
	if err := unmarshalMsgpack(v, &rd); err != nil {
		return nil, err
	}
	rec := &Record{
		OID:       oid,
		Timestamp: time.Unix(0, rd.Time),
		ID:        rd.ID,
		Rev:       rd.Rev,
		Deleted:   rd.Deleted,
	}
	if withBody {
		body, _, err := decodeValue(rd.Body)
		if err != nil {
			return nil, err
		}
		rec.Body = body
	}
	return rec, nil
}

// Head values map an id to its current record: the big-endian oid followed by
// a flags byte.
const headDeleted = 1

func encodeHead(oid uint64, deleted bool) []byte {
	buf := binary.BigEndian.AppendUint64(make([]byte, 0, 9), oid)
	var flags byte
	if deleted {
		flags |= headDeleted
	}
	return append(buf, flags)
}

func decodeHead(v []byte) (oid uint64, deleted bool, err error) {
	if len(v) != 9 {
		return 0, false, dataErrf(v, 0, nil, "invalid head")
	}
	return binary.BigEndian.Uint64(v), v[8]&headDeleted != 0, nil
}
