package ss

import (
	"bytes"
	"errors"
	"maps"
	"slices"
	"sync"
)

var (
	errMemClosed      = errors.New("in-memory storage closed")
	errMemTxReadOnly  = errors.New("in-memory tx not writable")
	errMemTxCompleted = errors.New("in-memory tx already completed")
)

// memStorage keeps every bucket as a sorted slice. Committed tables are never
// mutated: a write transaction copies a table the first time it writes to it
// and publishes its table set on commit, so readers keep a consistent
// snapshot for free. As with Bolt, there is at most one writer at a time.
type memStorage struct {
	mu      sync.Mutex
	idle    *sync.Cond
	tables  map[string]*memTable
	writing bool
	closed  bool
}

type memTable struct {
	rows []memRow
	seq  uint64
}

type memRow struct {
	key, value []byte
}

// newMemStorage returns a transient in-memory storage, used by tests and by
// databases opened with Options.InMemory.
func newMemStorage() storage {
	s := &memStorage{tables: make(map[string]*memTable)}
	s.idle = sync.NewCond(&s.mu)
	return s
}

func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for writable && s.writing && !s.closed {
		s.idle.Wait()
	}
	if s.closed {
		return nil, errMemClosed
	}
	tx := &memTx{s: s, writable: writable, tables: s.tables}
	if writable {
		s.writing = true
		tx.tables = maps.Clone(s.tables)
		tx.owned = make(map[string]bool)
	}
	return tx, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tables = nil
	s.idle.Broadcast()
	return nil
}

type memTx struct {
	s        *memStorage
	writable bool
	done     bool
	tables   map[string]*memTable
	owned    map[string]bool
}

func (tx *memTx) Writable() bool { return tx.writable }

func (tx *memTx) Bucket(name string) storageBucket {
	if tx.tables[name] == nil {
		return nil
	}
	return memBucket{tx: tx, name: name}
}

func (tx *memTx) CreateBucket(name string) (storageBucket, error) {
	if !tx.writable {
		return nil, errMemTxReadOnly
	}
	if tx.tables[name] == nil {
		tx.tables[name] = &memTable{}
		tx.owned[name] = true
	}
	return memBucket{tx: tx, name: name}, nil
}

// table returns the current version of a bucket, copying it first when the
// transaction is about to modify a table it shares with committed state.
func (tx *memTx) table(name string, write bool) *memTable {
	t := tx.tables[name]
	if write && !tx.owned[name] {
		t = &memTable{rows: slices.Clone(t.rows), seq: t.seq}
		tx.tables[name] = t
		tx.owned[name] = true
	}
	return t
}

func (tx *memTx) Commit() error {
	if tx.done {
		return errMemTxCompleted
	}
	if !tx.writable {
		return errMemTxReadOnly
	}
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	tx.finishLocked()
	if tx.s.closed {
		return errMemClosed
	}
	tx.s.tables = tx.tables
	return nil
}

func (tx *memTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	tx.finishLocked()
	return nil
}

func (tx *memTx) finishLocked() {
	tx.done = true
	if tx.writable {
		tx.s.writing = false
		tx.s.idle.Broadcast()
	}
}

func (tx *memTx) Size() int64 { return 0 }

type memBucket struct {
	tx   *memTx
	name string
}

// search returns the position of key, or where it would be inserted.
func (t *memTable) search(key []byte) (int, bool) {
	return slices.BinarySearchFunc(t.rows, key, func(r memRow, k []byte) int {
		return bytes.Compare(r.key, k)
	})
}

func (b memBucket) Get(key []byte) []byte {
	t := b.tx.table(b.name, false)
	if i, found := t.search(key); found {
		return t.rows[i].value
	}
	return nil
}

func (b memBucket) Put(key, value []byte) error {
	if !b.tx.writable {
		return errMemTxReadOnly
	}
	t := b.tx.table(b.name, true)
	row := memRow{key: slices.Clone(key), value: slices.Clone(value)}
	if i, found := t.search(key); found {
		t.rows[i] = row
	} else {
		t.rows = slices.Insert(t.rows, i, row)
	}
	return nil
}

func (b memBucket) Delete(key []byte) error {
	if !b.tx.writable {
		return errMemTxReadOnly
	}
	if _, found := b.tx.table(b.name, false).search(key); !found {
		return nil
	}
	t := b.tx.table(b.name, true)
	i, _ := t.search(key)
	t.rows = slices.Delete(t.rows, i, i+1)
	return nil
}

func (b memBucket) Cursor() storageCursor {
	return &memCursor{b: b, pos: -1}
}

func (b memBucket) Stats() bucketStats {
	t := b.tx.table(b.name, false)
	var size int64
	for _, r := range t.rows {
		size += int64(len(r.key) + len(r.value))
	}
	return bucketStats{KeyN: len(t.rows), LeafInuse: size, LeafAlloc: size}
}

func (b memBucket) KeyCount() int { return len(b.tx.table(b.name, false).rows) }

func (b memBucket) NextSequence() (uint64, error) {
	if !b.tx.writable {
		return 0, errMemTxReadOnly
	}
	t := b.tx.table(b.name, true)
	t.seq++
	return t.seq, nil
}

func (b memBucket) Sequence() uint64 { return b.tx.table(b.name, false).seq }

// memCursor looks the table up on every move, so it sees writes made through
// the same transaction.
type memCursor struct {
	b   memBucket
	pos int
}

func (c *memCursor) at(pos int) ([]byte, []byte) {
	rows := c.b.tx.table(c.b.name, false).rows
	c.pos = max(-1, min(pos, len(rows)))
	if c.pos < 0 || c.pos >= len(rows) {
		return nil, nil
	}
	return rows[c.pos].key, rows[c.pos].value
}

func (c *memCursor) First() ([]byte, []byte) { return c.at(0) }

func (c *memCursor) Last() ([]byte, []byte) {
	return c.at(len(c.b.tx.table(c.b.name, false).rows) - 1)
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	i, _ := c.b.tx.table(c.b.name, false).search(seek)
	return c.at(i)
}

func (c *memCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	limit := slices.Clone(prefix)
	if len(limit) == 0 || !inc(limit) {
		return c.Last()
	}
	i, _ := c.b.tx.table(c.b.name, false).search(limit)
	return c.at(i - 1)
}

func (c *memCursor) Next() ([]byte, []byte) {
	if c.pos < 0 {
		return c.First()
	}
	return c.at(c.pos + 1)
}

func (c *memCursor) Prev() ([]byte, []byte) {
	if c.pos < 0 {
		return nil, nil
	}
	return c.at(c.pos - 1)
}
