package ss

import (
	"context"
	"sync"

	"github.com/shootingstick/ss/value"
)

// DocumentLoader is what the merger needs from a store. DB implements it.
type DocumentLoader interface {
	Load(ctx context.Context, ids []string) ([]Document, error)
}

// DocumentMerger attaches documents to view rows. It keeps the documents of
// the previous call and reuses those that are requested again, which pays
// off when consecutive calls page through the same view.
type DocumentMerger struct {
	loader DocumentLoader

	mu    sync.Mutex
	cache map[string]Document
}

func NewDocumentMerger(loader DocumentLoader) *DocumentMerger {
	return &DocumentMerger{loader: loader}
}

// AddDocuments returns copies of rows with Doc set. A row whose value is a
// reference of the form {"_id": "<id>"} gets that document instead of its
// own. Deleted documents are attached as null. Any id that cannot be found
// fails the call with *MissingReferenceError.
func (m *DocumentMerger) AddDocuments(ctx context.Context, rows []Row) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	targets := make([]string, len(rows))
	var missing []string
	queued := make(map[string]struct{})
	for i := range rows {
		id := rows[i].docTarget()
		targets[i] = id
		if _, ok := m.cache[id]; ok {
			continue
		}
		if _, ok := queued[id]; ok {
			continue
		}
		queued[id] = struct{}{}
		missing = append(missing, id)
	}

	next := make(map[string]Document, len(targets))
	if len(missing) > 0 {
		loaded, err := m.loader.Load(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, d := range loaded {
			next[d.ID] = d
		}
	}
	for _, id := range targets {
		if _, ok := next[id]; ok {
			continue
		}
		if d, ok := m.cache[id]; ok {
			next[id] = d
		}
	}
	m.cache = next

	out := make([]Row, len(rows))
	for i, row := range rows {
		d, ok := next[targets[i]]
		if !ok {
			return nil, &MissingReferenceError{ID: targets[i]}
		}
		row.HasDoc = true
		row.Doc = nil
		if !d.Deleted {
			row.Doc = &d
		}
		out[i] = row
	}
	return out, nil
}

// resolveReference returns the id referenced by a value of the form
// {"_id": "<id>"}, the object's only member.
func resolveReference(v any) (string, bool) {
	obj, ok := v.(value.Object)
	if !ok || len(obj) != 1 || obj[0].Key != idField {
		return "", false
	}
	id, ok := obj[0].Value.(string)
	return id, ok
}
