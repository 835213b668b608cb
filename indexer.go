package ss

import (
	"context"
	"fmt"

	"github.com/shootingstick/ss/value"
)

// Emit is one (key, value) pair produced by a map function.
type Emit struct {
	Key   any
	Value any
}

// Indexer is a view's map function. Project is called once per live
// document with its full body (_id and _rev included) and returns the rows
// the document contributes. Keys and values must be structured values (see
// value.Normalize).
//
// A View calls Project from one goroutine at a time.
type Indexer interface {
	Project(ctx context.Context, doc value.Object) ([]Emit, error)
}

// IndexerFunc adapts a Go function to Indexer. Emitted keys and values are
// normalized, so plain Go maps, slices and integers may be passed to emit.
type IndexerFunc func(doc value.Object, emit func(key, val any)) error

func (f IndexerFunc) Project(ctx context.Context, doc value.Object) ([]Emit, error) {
	var out []Emit
	var emitErr error
	err := f(doc, func(key, val any) {
		if emitErr != nil {
			return
		}
		k, err := value.Normalize(key)
		if err != nil {
			emitErr = fmt.Errorf("emit key: %w", err)
			return
		}
		v, err := value.Normalize(val)
		if err != nil {
			emitErr = fmt.Errorf("emit value: %w", err)
			return
		}
		out = append(out, Emit{k, v})
	})
	if err != nil {
		return nil, err
	}
	if emitErr != nil {
		return nil, emitErr
	}
	return out, nil
}
