// Package guard wraps host values in recursive, read-only views before they
// are exposed to untrusted script code. A View forwards reads to the real
// value but denies the meta-properties scripts use to walk from data to code
// (constructor, prototype, __proto__), offers no mutation surface at all, and
// wraps everything reachable from it, including call arguments and returns.
package guard

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Meta-property deny list
// ---------------------------------------------------------------------------

// metaNames are the bindings that let a script reach type metadata from a
// plain value. Reads of these always come back absent.
var metaNames = map[string]struct{}{
	"constructor": {},
	"prototype":   {},
	"__proto__":   {},
}

// IsMetaName reports whether name is a denied meta-property.
func IsMetaName(name string) bool {
	_, ok := metaNames[name]
	return ok
}

// ---------------------------------------------------------------------------
// Wrapper: per-run wrap cache
// ---------------------------------------------------------------------------

// refKey identifies an underlying reference for the identity cache.
// Only reference kinds (pointer, map, slice, func) carry identity. The
// address alone is not enough: a pointer to a struct and a pointer to its
// first field share an address, as do aliased slices over the same backing
// array, so the type (and for slices the bounds) is part of the key.
type refKey struct {
	typ      reflect.Type
	ptr      uintptr
	len, cap int // slices only
}

// Wrapper wraps values into Views and caches them by reference identity, so
// the same underlying object always maps to the same View no matter how many
// traversal paths reach it. A Wrapper is scoped to one evaluation run; drop
// it and the cache goes with it.
type Wrapper struct {
	mu      sync.Mutex
	views   map[refKey]*View
	methods map[methodKey]*View
}

// NewWrapper creates an empty wrap cache.
func NewWrapper() *Wrapper {
	return &Wrapper{views: make(map[refKey]*View)}
}

// Wrap returns a guarded form of v. Primitives (booleans, numbers, strings)
// and nil pass through unchanged; objects, arrays, and callables come back as
// a *View. Unsupported kinds (channels, unsafe pointers) map to nil.
func (w *Wrapper) Wrap(v any) any {
	if v == nil {
		return nil
	}
	if view, ok := v.(*View); ok {
		return view
	}
	rv := reflect.ValueOf(v)
	return w.wrapValue(rv)
}

func (w *Wrapper) wrapValue(rv reflect.Value) any {
	for rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return rv.Interface()

	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		if rv.Elem().Kind() == reflect.Struct {
			return w.cachedView(rv, KindObject)
		}
		// Pointer to a non-struct: unwrap to the pointee.
		return w.wrapValue(rv.Elem())

	case reflect.Struct:
		// Struct copies have no stable reference identity; wrap uncached.
		return newView(w, rv, KindObject)

	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		return w.cachedView(rv, KindObject)

	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		return w.cachedView(rv, KindArray)

	case reflect.Array:
		return newView(w, rv, KindArray)

	case reflect.Func:
		if rv.IsNil() {
			return nil
		}
		return w.cachedView(rv, KindCallable)
	}

	return nil
}

// cachedView returns the View for a reference value, creating and caching it
// on first sight. This keeps wrapping idempotent and bounds work on cyclic
// graphs.
func (w *Wrapper) cachedView(rv reflect.Value, kind Kind) *View {
	key := refKey{typ: rv.Type(), ptr: rv.Pointer()}
	if rv.Kind() == reflect.Slice {
		key.len, key.cap = rv.Len(), rv.Cap()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if view, ok := w.views[key]; ok {
		return view
	}
	view := newView(w, rv, kind)
	w.views[key] = view
	return view
}

// CachedCount returns the number of distinct references wrapped so far.
func (w *Wrapper) CachedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.views)
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

// Kind classifies what a View presents to the script.
type Kind int

const (
	// KindObject is a keyed structure: a struct, pointer to struct, or map.
	KindObject Kind = iota
	// KindArray is an indexed sequence.
	KindArray
	// KindCallable is an invokable function or bound method.
	KindCallable
)

// View is the read-only guarded form of one host value. It has no setters:
// read-only is enforced by construction, not by checks.
type View struct {
	w    *Wrapper
	rv   reflect.Value
	kind Kind
	info *typeInfo // lazy, objects backed by structs only
}

func newView(w *Wrapper, rv reflect.Value, kind Kind) *View {
	return &View{w: w, rv: rv, kind: kind}
}

// Kind returns the view's classification.
func (v *View) Kind() Kind { return v.kind }

// Unwrap returns the underlying host value. Host-side use only; never handed
// to scripts.
func (v *View) Unwrap() any { return v.rv.Interface() }

// Get reads the named member. Meta-properties and unknown names read as
// absent. Struct fields are exposed under their JSON tag name (or the
// lower-camel field name); methods under the lower-camel method name. The
// result is wrapped before it is returned.
func (v *View) Get(name string) (any, bool) {
	if IsMetaName(name) {
		return nil, false
	}

	switch v.rv.Kind() {
	case reflect.Map:
		if v.rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		mv := v.rv.MapIndex(reflect.ValueOf(name).Convert(v.rv.Type().Key()))
		if !mv.IsValid() {
			return nil, false
		}
		return v.w.wrapValue(mv), true

	case reflect.Struct, reflect.Ptr:
		info := v.typeInfo()
		if info == nil {
			return nil, false
		}
		if idx, ok := info.fields[name]; ok {
			sv := v.structValue()
			if !sv.IsValid() {
				return nil, false
			}
			return v.w.wrapValue(sv.FieldByIndex(idx)), true
		}
		if idx, ok := info.methods[name]; ok {
			// Method values stay bound to the real receiver, so internal
			// invariants that depend on true identity keep holding.
			return v.w.cachedMethod(v.rv, idx), true
		}
	}

	return nil, false
}

// Keys lists the readable member names in declaration order (map keys sorted
// lexically). Meta-properties never appear.
func (v *View) Keys() []string {
	switch v.rv.Kind() {
	case reflect.Map:
		if v.rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		keys := make([]string, 0, v.rv.Len())
		iter := v.rv.MapRange()
		for iter.Next() {
			keys = append(keys, iter.Key().String())
		}
		sort.Strings(keys)
		return keys

	case reflect.Struct, reflect.Ptr:
		info := v.typeInfo()
		if info == nil {
			return nil
		}
		return info.names
	}
	return nil
}

// Len returns the element count of an array view, or 0.
func (v *View) Len() int {
	switch v.rv.Kind() {
	case reflect.Slice, reflect.Array:
		return v.rv.Len()
	}
	return 0
}

// Index reads one element of an array view, wrapped. Out-of-range reads are
// absent (nil), not panics.
func (v *View) Index(i int) any {
	switch v.rv.Kind() {
	case reflect.Slice, reflect.Array:
		if i < 0 || i >= v.rv.Len() {
			return nil
		}
		return v.w.wrapValue(v.rv.Index(i))
	}
	return nil
}

// Call invokes a callable view with the given arguments. Arguments that are
// themselves Views are unwrapped to their real values on the way in; the
// return value is wrapped on the way out. A trailing error return becomes the
// call error; panics inside the callee are converted to errors rather than
// crossing the guard boundary.
func (v *View) Call(args []any) (result any, err error) {
	if v.kind != KindCallable {
		return nil, fmt.Errorf("guard: value of kind %d is not callable", v.kind)
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("guard: call panicked: %v", r)
		}
	}()

	ft := v.rv.Type()
	in, err := buildArgs(ft, args)
	if err != nil {
		return nil, err
	}

	out := v.rv.Call(in)
	return v.wrapReturns(out)
}

func (v *View) wrapReturns(out []reflect.Value) (any, error) {
	if len(out) == 0 {
		return nil, nil
	}
	last := out[len(out)-1]
	if last.Type() == errorType {
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return v.w.wrapValue(out[0]), nil
}

// structValue resolves the struct behind an object view backed by a struct
// or pointer to struct.
func (v *View) structValue() reflect.Value {
	if v.rv.Kind() == reflect.Ptr {
		return v.rv.Elem()
	}
	return v.rv
}

func (v *View) typeInfo() *typeInfo {
	if v.info == nil {
		v.info = infoForType(v.rv.Type())
	}
	return v.info
}

// methodKey identifies a bound method for the identity cache. The receiver
// type disambiguates pointers that share an address (a struct and its first
// field).
type methodKey struct {
	recv uintptr
	typ  reflect.Type
	idx  int
}

// cachedMethod wraps a bound method value, cached per receiver+method so two
// reads of the same method on the same object compare equal.
func (w *Wrapper) cachedMethod(recv reflect.Value, idx int) *View {
	mv := recv.Method(idx)
	if recv.Kind() != reflect.Ptr {
		// Value receivers have no stable address; skip the cache.
		return newView(w, mv, KindCallable)
	}
	key := methodKey{recv: recv.Pointer(), typ: recv.Type(), idx: idx}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.methods == nil {
		w.methods = make(map[methodKey]*View)
	}
	if view, ok := w.methods[key]; ok {
		return view
	}
	view := newView(w, mv, KindCallable)
	w.methods[key] = view
	return view
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// buildArgs converts call arguments into the callee's parameter types.
// Views unwrap to real values; script numbers arrive as int64 or float64 and
// convert where the target type allows it.
func buildArgs(ft reflect.Type, args []any) ([]reflect.Value, error) {
	numIn := ft.NumIn()
	if ft.IsVariadic() {
		if len(args) < numIn-1 {
			return nil, fmt.Errorf("guard: call needs at least %d args, got %d", numIn-1, len(args))
		}
	} else if len(args) != numIn {
		return nil, fmt.Errorf("guard: call needs %d args, got %d", numIn, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i := range args {
		var target reflect.Type
		if ft.IsVariadic() && i >= numIn-1 {
			target = ft.In(numIn - 1).Elem()
		} else {
			target = ft.In(i)
		}
		av, err := convertArg(target, args[i])
		if err != nil {
			return nil, fmt.Errorf("guard: arg %d: %w", i, err)
		}
		in[i] = av
	}
	return in, nil
}

func convertArg(target reflect.Type, arg any) (reflect.Value, error) {
	if view, ok := arg.(*View); ok {
		arg = view.Unwrap()
	}
	if arg == nil {
		switch target.Kind() {
		case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func:
			return reflect.Zero(target), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot pass nil as %s", target)
	}

	av := reflect.ValueOf(arg)
	if av.Type().AssignableTo(target) {
		return av, nil
	}
	if av.Type().ConvertibleTo(target) {
		switch target.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64, reflect.String:
			// Guard against reflect's surprising number→string conversion.
			if target.Kind() == reflect.String && av.Kind() != reflect.String {
				break
			}
			return av.Convert(target), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("cannot pass %s as %s", av.Type(), target)
}
