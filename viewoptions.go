package ss

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/shootingstick/ss/value"
)

// Opt is an optional query parameter.
type Opt[T any] struct {
	Value T
	Valid bool
}

func Some[T any](v T) Opt[T] {
	return Opt[T]{Value: v, Valid: true}
}

// Get returns the value, or def if unset.
func (o Opt[T]) Get(def T) T {
	if o.Valid {
		return o.Value
	}
	return def
}

// UpdateMode says when a query brings its view up to date.
type UpdateMode int

const (
	// UpdateBefore updates the view before reading it (update=true).
	UpdateBefore UpdateMode = iota
	// UpdateNever reads the view as is (update=false, stale=ok).
	UpdateNever
	// UpdateLazy reads the view as is and updates it in the background
	// afterwards (update=lazy, stale=update_after).
	UpdateLazy
)

func (m UpdateMode) String() string {
	switch m {
	case UpdateBefore:
		return "true"
	case UpdateNever:
		return "false"
	case UpdateLazy:
		return "lazy"
	default:
		return fmt.Sprintf("invalid update mode %d", int(m))
	}
}

// QueryOptions is the CouchDB view query surface. Key values are structured
// values (see package value).
type QueryOptions struct {
	Key           Opt[any]
	Keys          Opt[[]any]
	StartKey      Opt[any]
	StartKeyDocID string
	EndKey        Opt[any]
	EndKeyDocID   string
	InclusiveEnd  Opt[bool]
	Descending    bool

	Limit Opt[int]
	Skip  int

	IncludeDocs bool
	Update      UpdateMode
	UpdateSeq   bool

	// Reduce, Group and GroupLevel are rejected unless they ask for no
	// reduction.
	Reduce     Opt[bool]
	Group      bool
	GroupLevel Opt[int]

	// Accepted and ignored. Rows always come in index order.
	Sorted      Opt[bool]
	Conflicts   bool
	Attachments bool
	Stable      bool
}

// Validate rejects combinations the engine cannot honor. The error matches
// ErrInvalidQuery.
func (opt *QueryOptions) Validate() error {
	if opt.Key.Valid && opt.Keys.Valid {
		return queryErrf("keys", "key and keys are mutually exclusive")
	}
	if opt.Key.Valid || opt.Keys.Valid {
		if opt.StartKey.Valid || opt.EndKey.Valid {
			return queryErrf("keys", "key and keys cannot be combined with startkey or endkey")
		}
	}
	if opt.Reduce.Get(false) {
		return queryErrf("reduce", "reduce is not supported")
	}
	if opt.Group {
		return queryErrf("group", "grouping requires reduce, which is not supported")
	}
	if opt.GroupLevel.Valid {
		return queryErrf("group_level", "grouping requires reduce, which is not supported")
	}
	if opt.Limit.Valid && opt.Limit.Value < 0 {
		return queryErrf("limit", "must be a non-negative integer")
	}
	if opt.Skip < 0 {
		return queryErrf("skip", "must be a non-negative integer")
	}
	switch opt.Update {
	case UpdateBefore, UpdateNever, UpdateLazy:
	default:
		return queryErrf("update", "invalid mode %d", int(opt.Update))
	}
	return nil
}

// ParseQueryOptions parses CouchDB view query parameters. Key parameters are
// JSON; unknown parameters are ignored. The result is validated.
func ParseQueryOptions(q url.Values) (QueryOptions, error) {
	var opt QueryOptions
	for name, vals := range q {
		if len(vals) == 0 {
			continue
		}
		s := vals[len(vals)-1]
		var err error
		switch name {
		case "key":
			opt.Key, err = parseJSONParam(name, s)
		case "keys":
			var v Opt[any]
			v, err = parseJSONParam(name, s)
			if err == nil {
				arr, ok := v.Value.([]any)
				if !ok {
					return opt, queryErrf(name, "must be a JSON array")
				}
				opt.Keys = Some(arr)
			}
		case "startkey", "start_key":
			opt.StartKey, err = parseJSONParam(name, s)
		case "endkey", "end_key":
			opt.EndKey, err = parseJSONParam(name, s)
		case "startkey_docid", "start_key_doc_id":
			opt.StartKeyDocID = s
		case "endkey_docid", "end_key_doc_id":
			opt.EndKeyDocID = s
		case "inclusive_end":
			opt.InclusiveEnd, err = parseBoolOpt(name, s)
		case "descending":
			opt.Descending, err = parseBoolParam(name, s)
		case "limit":
			opt.Limit, err = parseIntOpt(name, s)
		case "skip":
			var v Opt[int]
			v, err = parseIntOpt(name, s)
			opt.Skip = v.Value
		case "include_docs":
			opt.IncludeDocs, err = parseBoolParam(name, s)
		case "update_seq":
			opt.UpdateSeq, err = parseBoolParam(name, s)
		case "reduce":
			opt.Reduce, err = parseBoolOpt(name, s)
		case "group":
			opt.Group, err = parseBoolParam(name, s)
		case "group_level":
			opt.GroupLevel, err = parseIntOpt(name, s)
		case "sorted":
			opt.Sorted, err = parseBoolOpt(name, s)
		case "conflicts":
			opt.Conflicts, err = parseBoolParam(name, s)
		case "attachments":
			opt.Attachments, err = parseBoolParam(name, s)
		case "stable":
			opt.Stable, err = parseBoolParam(name, s)
		}
		if err != nil {
			return opt, err
		}
	}

	// update is applied before stale so that the legacy parameter wins.
	if s := q.Get("update"); s != "" {
		switch s {
		case "true":
			opt.Update = UpdateBefore
		case "false":
			opt.Update = UpdateNever
		case "lazy":
			opt.Update = UpdateLazy
		default:
			return opt, queryErrf("update", "must be true, false or lazy")
		}
	}
	if s := q.Get("stale"); s != "" {
		switch s {
		case "ok":
			opt.Update = UpdateNever
		case "update_after":
			opt.Update = UpdateLazy
		default:
			return opt, queryErrf("stale", "must be ok or update_after")
		}
	}

	if err := opt.Validate(); err != nil {
		return opt, err
	}
	return opt, nil
}

func parseJSONParam(name, s string) (Opt[any], error) {
	v, err := value.ParseJSON([]byte(s))
	if err != nil {
		return Opt[any]{}, queryErrf(name, "invalid JSON: %v", err)
	}
	return Some(v), nil
}

func parseBoolParam(name, s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, queryErrf(name, "must be true or false")
	}
}

func parseBoolOpt(name, s string) (Opt[bool], error) {
	b, err := parseBoolParam(name, s)
	if err != nil {
		return Opt[bool]{}, err
	}
	return Some(b), nil
}

func parseIntOpt(name, s string) (Opt[int], error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return Opt[int]{}, queryErrf(name, "must be a non-negative integer")
	}
	return Some(n), nil
}
