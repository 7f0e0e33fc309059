package sandbox

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/tliron/commonlog"

	"github.com/kexing/starmatch/guard"
)

// ---------------------------------------------------------------------------
// binder: guard.View → goja value adapters
// ---------------------------------------------------------------------------

// binder materializes guard views inside one goja runtime. Views are
// runtime-neutral; the binder gives each one a single script-side object per
// runtime so reference equality keeps working inside scripts.
type binder struct {
	rt   *goja.Runtime
	log  commonlog.Logger
	objs map[*guard.View]goja.Value
	back map[*goja.Object]*guard.View
}

func newBinder(rt *goja.Runtime, log commonlog.Logger) *binder {
	return &binder{
		rt:   rt,
		log:  log,
		objs: make(map[*guard.View]goja.Value),
		back: make(map[*goja.Object]*guard.View),
	}
}

// toValue converts a guarded value (a primitive or a *guard.View) to a goja
// value, reusing the per-runtime object for an already-seen view.
func (b *binder) toValue(v any) goja.Value {
	view, ok := v.(*guard.View)
	if !ok {
		if v == nil {
			return goja.Null()
		}
		return b.rt.ToValue(v)
	}

	if cached, ok := b.objs[view]; ok {
		return cached
	}

	var obj *goja.Object
	switch view.Kind() {
	case guard.KindArray:
		obj = b.rt.NewDynamicArray(&guardArray{b: b, view: view})
	case guard.KindCallable:
		obj = b.callable(view)
	default:
		obj = b.rt.NewDynamicObject(&guardObject{b: b, view: view})
	}

	b.objs[view] = obj
	b.back[obj] = view
	return obj
}

// fromValue converts a script-supplied value back to the guarded domain:
// objects the binder created map back to their views, everything else exports
// to a plain Go value.
func (b *binder) fromValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if obj, ok := v.(*goja.Object); ok {
		if view, ok := b.back[obj]; ok {
			return view
		}
	}
	return v.Export()
}

// callable wraps a callable view as a script function. Arguments unwrap on
// the way in, the return value wraps on the way out, and call failures become
// script exceptions.
func (b *binder) callable(view *guard.View) *goja.Object {
	fn := func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = b.fromValue(a)
		}
		out, err := view.Call(args)
		if err != nil {
			panic(b.rt.NewGoError(err))
		}
		return b.toValue(out)
	}
	return b.rt.ToValue(fn).(*goja.Object)
}

// console returns the neutered logging shim injected as the script's only
// output channel.
func (b *binder) console() goja.Value {
	emit := func(level string) func(call goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]any, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			b.log.Debugf("script console.%s: %s", level, fmt.Sprint(parts...))
			return goja.Undefined()
		}
	}
	obj := b.rt.NewObject()
	obj.Set("log", emit("log"))
	obj.Set("warn", emit("warn"))
	obj.Set("error", emit("error"))
	return obj
}

// ---------------------------------------------------------------------------
// Dynamic object / array adapters
// ---------------------------------------------------------------------------

// guardObject exposes an object view as a goja dynamic object. Reads forward
// through the view; every mutation reports failure without throwing.
type guardObject struct {
	b    *binder
	view *guard.View
}

func (g *guardObject) Get(key string) goja.Value {
	if guard.IsMetaName(key) {
		// Present-but-undefined, so lookup never falls through to the
		// runtime's own prototype machinery.
		return goja.Undefined()
	}
	v, ok := g.view.Get(key)
	if !ok {
		return nil
	}
	return g.b.toValue(v)
}

func (g *guardObject) has(key string) bool {
	for _, k := range g.view.Keys() {
		if k == key {
			return true
		}
	}
	return false
}

func (g *guardObject) Set(key string, val goja.Value) bool { return false }

func (g *guardObject) Has(key string) bool {
	if guard.IsMetaName(key) {
		return false
	}
	return g.has(key)
}

func (g *guardObject) Delete(key string) bool { return false }

func (g *guardObject) Keys() []string { return g.view.Keys() }

// guardArray exposes an array view as a goja dynamic array. Element and
// length writes report failure.
type guardArray struct {
	b    *binder
	view *guard.View
}

func (g *guardArray) Len() int { return g.view.Len() }

func (g *guardArray) Get(idx int) goja.Value {
	v := g.view.Index(idx)
	if v == nil {
		return goja.Undefined()
	}
	return g.b.toValue(v)
}

func (g *guardArray) Set(idx int, val goja.Value) bool { return false }

func (g *guardArray) SetLen(n int) bool { return false }
