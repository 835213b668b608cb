package ss

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"
)

// txTracker counts transactions on one storage. Each DB and each View owns
// one; the numbers surface in Stats.
type txTracker struct {
	ReaderCount atomic.Int64
	WriterCount atomic.Int64
	ReadCount   atomic.Uint64
	WriteCount  atomic.Uint64
}

// update runs f in a writable transaction and commits it if f succeeds. A
// panic inside f is converted into an error and the transaction is rolled
// back, so a failed flush or bulk write never leaves partial state behind.
func (tt *txTracker) update(s storage, f func(stx storageTx) error) error {
	tt.WriterCount.Add(1)
	defer tt.WriterCount.Add(-1)
	tt.WriteCount.Add(1)

	stx, err := s.BeginTx(true)
	if err != nil {
		return fmt.Errorf("begin write: %w", err)
	}
	defer stx.Rollback()

	if err := safelyCall(f, stx); err != nil {
		return err
	}
	if err := stx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// read runs f in a read-only transaction.
func (tt *txTracker) read(s storage, f func(stx storageTx) error) error {
	stx, err := tt.beginRead(s)
	if err != nil {
		return err
	}
	defer tt.endRead(stx)
	return safelyCall(f, stx)
}

// beginRead starts a read transaction that outlives the call, for cursors.
// The caller must pass it to endRead.
func (tt *txTracker) beginRead(s storage) (storageTx, error) {
	stx, err := s.BeginTx(false)
	if err != nil {
		return nil, fmt.Errorf("begin read: %w", err)
	}
	tt.ReaderCount.Add(1)
	tt.ReadCount.Add(1)
	return stx, nil
}

func (tt *txTracker) endRead(stx storageTx) {
	// Rollback of a read-only transaction only fails if it was already closed.
	_ = stx.Rollback()
	tt.ReaderCount.Add(-1)
}

type panicked struct {
	reason interface{}
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

// Unwrap exposes panics raised with an error value, such as
// collation.InvariantViolation, to errors.As.
func (p panicked) Unwrap() error {
	err, _ := p.reason.(error)
	return err
}

func safelyCall(fn func(storageTx) error, stx storageTx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(stx)
}
