package ss

import (
	"errors"
	"fmt"
)

var (
	ErrNoID         = errors.New("documents must have an _id string")
	ErrConflict     = errors.New("document update conflict")
	ErrNotFound     = errors.New("not found")
	ErrInvalidQuery = errors.New("invalid query")
	ErrViewNotFound = errors.New("view not found")
	ErrInvalidName  = errors.New("invalid database name")
	ErrClosed       = errors.New("database closed")
)

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// MissingReferenceError is returned by queries with include_docs when a row
// points at a document that does not exist. It means the index and the store
// have diverged.
type MissingReferenceError struct {
	ID string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("no document found for %q", e.ID)
}

// QueryError describes a rejected query option. It matches ErrInvalidQuery.
type QueryError struct {
	Param string
	Msg   string
}

func queryErrf(param string, format string, args ...any) error {
	return &QueryError{param, fmt.Sprintf(format, args...)}
}

func (e *QueryError) Error() string {
	if e.Param == "" {
		return "invalid query: " + e.Msg
	}
	return fmt.Sprintf("invalid query: %s: %s", e.Param, e.Msg)
}

func (e *QueryError) Is(target error) bool {
	return target == ErrInvalidQuery
}

// ScriptError wraps a failure of a map function for one document.
type ScriptError struct {
	View string
	ID   string
	Err  error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s: map function failed on %q: %v", e.View, e.ID, e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}
