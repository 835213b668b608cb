package ss

import (
	"encoding/binary"

	"github.com/shootingstick/ss/collation"
)

// Row keys sort by collated key, then by document id, then by emit order:
//
//	sortkey | 00 00 | id | 00 | emit index (uint32, big-endian)
//
// Sort keys are sequences of 16-bit words; a complete key followed by 00 00
// sorts below any longer key it is a prefix of, because string words at or
// below 0x000f are escaped. Ids cannot contain NUL, so the id terminator
// sorts below any longer id.
const (
	keyIDSep = 0x00
	idEnd    = 0x00
	idAfter  = 0x01
)

func appendRowKeyPrefix(buf, sk []byte) []byte {
	buf = append(buf, sk...)
	return append(buf, 0x00, keyIDSep)
}

func rowKey(sk []byte, id string, idx uint32) []byte {
	buf := make([]byte, 0, len(sk)+2+len(id)+1+4)
	buf = appendRowKeyPrefix(buf, sk)
	buf = append(buf, id...)
	buf = append(buf, idEnd)
	return binary.BigEndian.AppendUint32(buf, idx)
}

// keyFloor is the smallest possible row key for sk: sk|0000.
func keyFloor(sk []byte) []byte {
	return appendRowKeyPrefix(make([]byte, 0, len(sk)+2), sk)
}

// keyCeiling is just past every row key for sk: sk|0001.
func keyCeiling(sk []byte) []byte {
	buf := append(make([]byte, 0, len(sk)+2), sk...)
	return append(buf, 0x00, 0x01)
}

// docBound is sk|0000|id|term. With idEnd it is the first row of (sk, id),
// with idAfter it is just past the last one.
func docBound(sk []byte, id string, term byte) []byte {
	buf := make([]byte, 0, len(sk)+2+len(id)+1)
	buf = appendRowKeyPrefix(buf, sk)
	buf = append(buf, id...)
	return append(buf, term)
}

// planRanges turns key options into scans over the rows bucket. Every range
// is exclusive at the top, which keeps bounds exact under the exact-bound
// semantics of RawRange.
//
// startkey_docid and endkey_docid only apply together with their key bound.
func planRanges(opt *QueryOptions) ([]RawRange, error) {
	desc := opt.Descending

	exact := func(k any) (RawRange, error) {
		sk, err := collation.SortKey(k)
		if err != nil {
			return RawRange{}, err
		}
		r := RawIE(keyFloor(sk), keyCeiling(sk))
		r.Reverse = desc
		return r, nil
	}

	if opt.Keys.Valid {
		ranges := make([]RawRange, 0, len(opt.Keys.Value))
		for _, k := range opt.Keys.Value {
			r, err := exact(k)
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, r)
		}
		return ranges, nil
	}
	if opt.Key.Valid {
		r, err := exact(opt.Key.Value)
		if err != nil {
			return nil, err
		}
		return []RawRange{r}, nil
	}

	r := RawRange{Reverse: desc}
	if opt.StartKey.Valid {
		sk, err := collation.SortKey(opt.StartKey.Value)
		if err != nil {
			return nil, err
		}
		docID := opt.StartKeyDocID
		switch {
		case !desc && docID != "":
			r.Lower, r.LowerInc = docBound(sk, docID, idEnd), true
		case !desc:
			r.Lower, r.LowerInc = sk, true
		case docID != "":
			r.Upper = docBound(sk, docID, idAfter)
		default:
			r.Upper = keyCeiling(sk)
		}
	}
	if opt.EndKey.Valid {
		ek, err := collation.SortKey(opt.EndKey.Value)
		if err != nil {
			return nil, err
		}
		docID := opt.EndKeyDocID
		inclusive := opt.InclusiveEnd.Get(true)
		if !desc {
			switch {
			case inclusive && docID != "":
				r.Upper = docBound(ek, docID, idAfter)
			case inclusive:
				r.Upper = keyCeiling(ek)
			case docID != "":
				r.Upper = docBound(ek, docID, idEnd)
			default:
				r.Upper = keyFloor(ek)
			}
		} else {
			r.LowerInc = true
			switch {
			case inclusive && docID != "":
				r.Lower = docBound(ek, docID, idEnd)
			case inclusive:
				r.Lower = ek
			case docID != "":
				r.Lower = docBound(ek, docID, idAfter)
			default:
				r.Lower = keyCeiling(ek)
			}
		}
	}
	return []RawRange{r}, nil
}
