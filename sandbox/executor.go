// Package sandbox compiles and runs one untrusted pattern script against a
// guarded chart context, under a fixed time budget, and reduces whatever
// happens to a single boolean. Scripts execute in a fresh, capability-free
// interpreter per call: the only reachable bindings are the guarded context
// and a neutered console.
package sandbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/tliron/commonlog"

	"github.com/kexing/starmatch/guard"
)

// DefaultTimeout is the wall-clock budget for one script run.
const DefaultTimeout = 100 * time.Millisecond

// errBudgetExceeded interrupts scripts that outlive their time budget.
var errBudgetExceeded = errors.New("sandbox: execution time budget exceeded")

// preludeProg runs in every fresh runtime before the pattern script. It locks
// the constructor bindings on the function prototypes to undefined, so the
// function constructors stay unreachable through instances
// ((function(){}).constructor and the generator/async variants) once the
// globals are gone.
var preludeProg = goja.MustCompile("prelude", `
[function () {}, function* () {}, async function () {}, async function* () {}].forEach(function (f) {
	for (var p = Object.getPrototypeOf(f); p && p !== Object.prototype; p = Object.getPrototypeOf(p)) {
		Object.defineProperty(p, "constructor", { value: undefined, writable: false, configurable: false });
	}
});
`, false)

// Executor evaluates pattern scripts. Safe for concurrent use; every call
// gets its own interpreter.
type Executor struct {
	timeout time.Duration
	log     commonlog.Logger
}

// NewExecutor creates an Executor. A non-positive timeout selects
// DefaultTimeout.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		timeout: timeout,
		log:     commonlog.GetLogger("starmatch.sandbox"),
	}
}

// Evaluate runs scriptSource against context and reports whether it matched.
// Only a literal boolean true counts as a match; rejection by the static
// scan, any thrown exception, a timeout, or a non-boolean result all count
// as no-match. Nothing ever propagates to the caller.
//
// context may be a *guard.View (shared across many patterns in one run), a
// primitive, or a raw host value, which is wrapped on the spot.
func (e *Executor) Evaluate(scriptSource string, context any) bool {
	if err := ScanScript(scriptSource); err != nil {
		e.log.Debugf("script rejected by static scan: %v", err)
		return false
	}

	matched, err := e.run(scriptSource, context)
	if err != nil {
		e.log.Debugf("script failed: %v", err)
		return false
	}
	return matched
}

func (e *Executor) run(scriptSource string, context any) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			err = fmt.Errorf("sandbox: panic during evaluation: %v", r)
		}
	}()

	prog, err := goja.Compile("pattern", "(function(context, console) {\n"+scriptSource+"\n})", false)
	if err != nil {
		return false, fmt.Errorf("sandbox: compile: %w", err)
	}

	rt := goja.New()
	// The runtime starts with no host, filesystem, network, or module
	// bindings; all that is left to remove is in-runtime code evaluation.
	rt.Set("eval", goja.Undefined())
	rt.Set("Function", goja.Undefined())
	if _, err := rt.RunProgram(preludeProg); err != nil {
		return false, fmt.Errorf("sandbox: prelude: %w", err)
	}

	b := newBinder(rt, e.log)
	ctxVal := b.toValue(e.guarded(context))
	consoleVal := b.console()

	timer := time.AfterFunc(e.timeout, func() {
		rt.Interrupt(errBudgetExceeded)
	})
	defer timer.Stop()

	v, err := rt.RunProgram(prog)
	if err != nil {
		return false, fmt.Errorf("sandbox: load: %w", err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return false, errors.New("sandbox: script did not load as a function")
	}

	res, err := fn(goja.Undefined(), ctxVal, consoleVal)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return false, errBudgetExceeded
		}
		return false, fmt.Errorf("sandbox: script threw: %w", err)
	}

	b2, ok := res.Export().(bool)
	return ok && b2, nil
}

// guarded ensures context is in the guarded domain before it touches the
// interpreter. Pre-wrapped views and primitives pass through; anything else
// gets a wrapper of its own.
func (e *Executor) guarded(context any) any {
	switch context.(type) {
	case nil, *guard.View, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return context
	default:
		return guard.NewWrapper().Wrap(context)
	}
}
