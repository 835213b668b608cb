package ss

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shootingstick/ss/value"
)

// Reserved body members.
const (
	idField      = "_id"
	revField     = "_rev"
	deletedField = "_deleted"
)

// Document is one version of a stored document. Documents are immutable once
// written: an update appends a new version.
type Document struct {
	ID      string
	Rev     string
	Deleted bool
	// Fields holds every other body member in order. Reserved members live in
	// ID, Rev and Deleted.
	Fields value.Object
}

// DocumentFromObject splits a body into reserved members and fields. A
// missing or non-string _id leaves ID empty, which writes reject with
// ErrNoID.
func DocumentFromObject(obj value.Object) Document {
	var d Document
	d.Fields = make(value.Object, 0, len(obj))
	for _, m := range obj {
		switch m.Key {
		case idField:
			d.ID, _ = m.Value.(string)
		case revField:
			d.Rev, _ = m.Value.(string)
		case deletedField:
			d.Deleted, _ = m.Value.(bool)
		default:
			d.Fields = append(d.Fields, m)
		}
	}
	return d
}

// ParseDocumentJSON parses one JSON object into a Document.
func ParseDocumentJSON(data []byte) (Document, error) {
	v, err := value.ParseJSON(data)
	if err != nil {
		return Document{}, err
	}
	obj, ok := v.(value.Object)
	if !ok {
		return Document{}, fmt.Errorf("document must be a JSON object, got %s", value.KindOf(v))
	}
	return DocumentFromObject(obj), nil
}

// Body returns the serialized form: _id, _rev (when set), _deleted (when
// true), then the fields.
func (d Document) Body() value.Object {
	body := make(value.Object, 0, len(d.Fields)+3)
	body = append(body, value.Member{Key: idField, Value: d.ID})
	if d.Rev != "" {
		body = append(body, value.Member{Key: revField, Value: d.Rev})
	}
	if d.Deleted {
		body = append(body, value.Member{Key: deletedField, Value: true})
	}
	return append(body, d.Fields...)
}

func (d Document) Get(key string) (any, bool) {
	return d.Fields.Get(key)
}

func (d Document) MarshalJSON() ([]byte, error) {
	return d.Body().MarshalJSON()
}

func (d *Document) UnmarshalJSON(data []byte) error {
	doc, err := ParseDocumentJSON(data)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}

// NewDocument builds a document from Go values. Fields go through
// value.Normalize, so maps get their keys sorted.
func NewDocument(id string, fields map[string]any) (Document, error) {
	v, err := value.Normalize(fields)
	if err != nil {
		return Document{}, err
	}
	obj, _ := v.(value.Object)
	d := DocumentFromObject(obj)
	d.ID = id
	return d, nil
}

// ValidID reports whether id can be stored. Ids must be non-empty valid UTF-8
// without NUL bytes, because index row keys use NUL as the id terminator.
func ValidID(id string) bool {
	return id != "" && utf8.ValidString(id) && !strings.ContainsRune(id, 0)
}
