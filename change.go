package ss

import (
	"fmt"
)

// Verb is the kind of a queued index action.
type Verb int

const (
	VerbNone Verb = iota
	// VerbUpdate adds one row for a document.
	VerbUpdate
	// VerbDelete removes every row of a deleted document.
	VerbDelete
	// VerbMark records that a document version was processed. It replaces the
	// rows of its id even when the version emits nothing, and advances the
	// high-water mark.
	VerbMark
)

func (v Verb) String() string {
	switch v {
	case VerbNone:
		return "none"
	case VerbUpdate:
		return "update"
	case VerbDelete:
		return "delete"
	case VerbMark:
		return "mark"
	default:
		return fmt.Sprintf("invalid verb %d", int(v))
	}
}

// action is one entry of a view's update queue.
type action struct {
	verb  Verb
	oid   uint64
	id    string
	key   any
	value any
}

// touches reports whether the action replaces the rows of its id.
func (a *action) touches() bool {
	return a.id != "" && a.verb != VerbNone
}
