package ss

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/shootingstick/ss/value"
)

const (
	mapScriptName = "map.js"

	maxScriptDepth     = 64
	maxScriptCallStack = 1024
)

// ErrScriptTimeout is returned when a map function runs longer than its
// timeout.
var ErrScriptTimeout = errors.New("map function timed out")

const scriptPrelude = `var exports = null; var toJSON = JSON.stringify;`

// ScriptIndexer runs a JavaScript map function of the form
//
//	exports = function (doc) { emit(key, value) }
//
// in its own goja runtime. The runtime has no module loader, console, timers,
// network or filesystem; the only capability a script gets is emit. Emitted
// values are converted with JSON semantics: undefined and functions become
// null in arrays and are dropped from objects, NaN and infinities become null,
// and objects with a toJSON method (such as Date) are replaced by its result.
type ScriptIndexer struct {
	name    string
	timeout time.Duration

	mu    sync.Mutex
	vm    *goja.Runtime
	fn    goja.Callable
	emits []Emit
	err   error

	interruptLock sync.Mutex
	callID        uint64
}

// CompileScript evaluates src and returns an indexer calling the function it
// assigns to exports. A timeout <= 0 disables the per-call time limit.
func CompileScript(name, src string, timeout time.Duration) (*ScriptIndexer, error) {
	s := &ScriptIndexer{
		name:    name,
		timeout: timeout,
		vm:      goja.New(),
	}
	s.vm.SetMaxCallStackSize(maxScriptCallStack)
	if _, err := s.vm.RunScript("prelude", scriptPrelude); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := s.vm.Set("emit", s.emit); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	// Top-level code runs under the same limit as map calls.
	err := s.guard(context.Background(), func() error {
		_, err := s.vm.RunScript(name, src)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	fn, ok := goja.AssertFunction(s.vm.Get("exports"))
	if !ok {
		return nil, fmt.Errorf("%s: script must assign a function to exports", name)
	}
	s.fn = fn
	return s, nil
}

// LoadScript compiles the map function stored at path.
func LoadScript(path string, timeout time.Duration) (*ScriptIndexer, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return CompileScript(path, string(src), timeout)
}

func (s *ScriptIndexer) Name() string {
	return s.name
}

func (s *ScriptIndexer) Project(ctx context.Context, doc value.Object) ([]Emit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.emits, s.err = nil, nil
	jsDoc := s.toJS(doc)
	err := s.guard(ctx, func() error {
		_, err := s.fn(goja.Undefined(), jsDoc)
		return err
	})
	emits, emitErr := s.emits, s.err
	s.emits, s.err = nil, nil
	if err != nil {
		return nil, err
	}
	if emitErr != nil {
		return nil, emitErr
	}
	return emits, nil
}

// guard runs f with the timeout and ctx wired to vm.Interrupt. An interrupt
// that fires after f returned is ignored thanks to the call id, so it cannot
// leak into the next call.
func (s *ScriptIndexer) guard(ctx context.Context, f func() error) error {
	s.interruptLock.Lock()
	s.callID++
	id := s.callID
	s.interruptLock.Unlock()

	interrupt := func(reason error) {
		s.interruptLock.Lock()
		defer s.interruptLock.Unlock()
		if s.callID == id {
			s.vm.Interrupt(reason)
		}
	}

	if s.timeout > 0 {
		timer := time.AfterFunc(s.timeout, func() { interrupt(ErrScriptTimeout) })
		defer timer.Stop()
	}
	stop := context.AfterFunc(ctx, func() { interrupt(context.Cause(ctx)) })
	defer stop()

	err := f()

	s.interruptLock.Lock()
	s.callID++
	s.interruptLock.Unlock()
	s.vm.ClearInterrupt()

	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		if reason, ok := ie.Value().(error); ok {
			return reason
		}
	}
	return err
}

func (s *ScriptIndexer) emit(call goja.FunctionCall) goja.Value {
	if s.err != nil {
		return goja.Undefined()
	}
	k, err := s.fromJS(call.Argument(0), 0)
	if err != nil {
		s.err = fmt.Errorf("emit key: %w", err)
		return goja.Undefined()
	}
	v, err := s.fromJS(call.Argument(1), 0)
	if err != nil {
		s.err = fmt.Errorf("emit value: %w", err)
		return goja.Undefined()
	}
	s.emits = append(s.emits, Emit{k, v})
	return goja.Undefined()
}

func (s *ScriptIndexer) toJS(v any) goja.Value {
	switch v := v.(type) {
	case nil:
		return goja.Null()
	case value.Object:
		o := s.vm.NewObject()
		for _, m := range v {
			_ = o.Set(m.Key, s.toJS(m.Value))
		}
		return o
	case []any:
		items := make([]any, len(v))
		for i, el := range v {
			items[i] = s.toJS(el)
		}
		return s.vm.NewArray(items...)
	default:
		return s.vm.ToValue(v)
	}
}

func (s *ScriptIndexer) fromJS(v goja.Value, depth int) (any, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	if depth > maxScriptDepth {
		return nil, fmt.Errorf("value nested deeper than %d levels", maxScriptDepth)
	}
	o, ok := v.(*goja.Object)
	if !ok {
		switch x := v.Export().(type) {
		case bool:
			return x, nil
		case string:
			return x, nil
		case int64:
			return float64(x), nil
		case float64:
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, nil
			}
			return x, nil
		default:
			return nil, fmt.Errorf("unsupported value %s", v.String())
		}
	}

	if toJSON, ok := goja.AssertFunction(o.Get("toJSON")); ok {
		r, err := toJSON(o)
		if err != nil {
			return nil, err
		}
		return s.fromJS(r, depth+1)
	}

	switch o.ClassName() {
	case "Function":
		return nil, nil
	case "String":
		return o.String(), nil
	case "Number":
		return s.fromJS(s.vm.ToValue(o.ToFloat()), depth)
	case "Boolean":
		return o.ToBoolean(), nil
	case "Array":
		n := o.Get("length").ToInteger()
		arr := make([]any, 0, n)
		for i := int64(0); i < n; i++ {
			el := o.Get(strconv.FormatInt(i, 10))
			if isJSFunction(el) {
				arr = append(arr, nil)
				continue
			}
			ev, err := s.fromJS(el, depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, ev)
		}
		return arr, nil
	default:
		keys := o.Keys()
		obj := make(value.Object, 0, len(keys))
		for _, k := range keys {
			el := o.Get(k)
			if el == nil || goja.IsUndefined(el) || isJSFunction(el) {
				continue
			}
			ev, err := s.fromJS(el, depth+1)
			if err != nil {
				return nil, err
			}
			obj = append(obj, value.Member{Key: k, Value: ev})
		}
		return obj, nil
	}
}

func isJSFunction(v goja.Value) bool {
	_, ok := goja.AssertFunction(v)
	return ok
}
